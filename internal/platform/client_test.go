package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestListConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		_, _ = w.Write([]byte(`{"conversations": [
			{"id": "` + convID + `", "counterpart": {"user_id": "u2", "username": "alex"}, "last_message": "hi", "last_message_at": 1700000000000, "unread_count": 2}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	convs, err := c.ListConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(convs))
	}
	if convs[0].Counterpart.Username != "alex" || convs[0].UnreadCount != 2 {
		t.Errorf("conversation = %+v", convs[0])
	}
}

func TestHistoryNormalizesContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/"+convID+"/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"messages": [
			{"id": "m1", "author_id": "u2", "content": "plain", "created_at": 1000},
			{"id": "m2", "author_id": "u2", "content": {"en": "localized"}, "created_at": 2000}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	msgs, err := c.History(context.Background(), convID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Text != "plain" || msgs[1].Text != "localized" {
		t.Errorf("texts = %q, %q", msgs[0].Text, msgs[1].Text)
	}
}

func TestSendMessageReturnsServerID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["text"] != "yo" {
			t.Errorf("text = %v", body["text"])
		}
		_, _ = w.Write([]byte(`{"id": "srv-9"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	id, err := c.SendMessage(context.Background(), convID, "yo", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != "srv-9" {
		t.Errorf("id = %q, want srv-9", id)
	}
}

func TestAPIErrorOnFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	_, err := c.ListConversations(context.Background())
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error = %T (%v), want *APIError", err, err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", apiErr.Status)
	}
}
