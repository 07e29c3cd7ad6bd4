package platform

import (
	"testing"
)

const convID = "a1b2c3d4-e5f6-7890-abcd-ef0123456789"

func TestNormalizeObjectFrame(t *testing.T) {
	frame := []byte(`{
		"action": "new_message",
		"payload": {
			"conversation_id": "` + convID + `",
			"actor_id": "u2",
			"message": {"id": "m1", "author_id": "u2", "content": "hi", "created_at": 1700000000000}
		}
	}`)

	evt, err := Normalize(frame)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != PushNewMessage {
		t.Errorf("kind = %q, want new_message", evt.Kind)
	}
	if evt.ConversationID != convID {
		t.Errorf("conversation id = %q", evt.ConversationID)
	}
	if evt.Message == nil || evt.Message.Text != "hi" {
		t.Errorf("message = %+v, want text hi", evt.Message)
	}
	if evt.Message.ConversationID != convID {
		t.Errorf("message conversation id not backfilled: %q", evt.Message.ConversationID)
	}
}

func TestNormalizeArrayFrame(t *testing.T) {
	frame := []byte(`["typing", {"conversation_id": "` + convID + `", "actor_id": "u2", "typing_state": true}]`)

	evt, err := Normalize(frame)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != PushTyping {
		t.Errorf("kind = %q, want typing", evt.Kind)
	}
	if !evt.Typing {
		t.Error("typing = false, want true")
	}
	if evt.ActorID != "u2" {
		t.Errorf("actor = %q, want u2", evt.ActorID)
	}
}

func TestNormalizeStringEncodedPayload(t *testing.T) {
	frame := []byte(`{"action": "typing", "payload": "{\"conversation_id\": \"` + convID + `\", \"actor_id\": \"u2\", \"typing_state\": \"true\"}"}`)

	evt, err := Normalize(frame)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != PushTyping || !evt.Typing {
		t.Errorf("got %+v, want typing=true", evt)
	}
}

func TestNormalizeLocaleKeyedContent(t *testing.T) {
	frame := []byte(`["new_message", {
		"conversation_id": "` + convID + `",
		"message": {"id": "m1", "author_id": "u2", "content": {"pt": "oi", "en": "hello"}, "created_at": 1}
	}]`)

	evt, err := Normalize(frame)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Message.Text != "hello" {
		t.Errorf("text = %q, want english variant", evt.Message.Text)
	}
	// Actor falls back to the message author when the payload omits actor_id.
	if evt.ActorID != "u2" {
		t.Errorf("actor = %q, want u2", evt.ActorID)
	}
}

func TestNormalizeMalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `garbage{`},
		{"missing action", `{"payload": {}}`},
		{"unknown action", `{"action": "poke", "payload": {"conversation_id": "` + convID + `"}}`},
		{"missing conversation id", `{"action": "typing", "payload": {"actor_id": "u2"}}`},
		{"new_message without message", `{"action": "new_message", "payload": {"conversation_id": "` + convID + `"}}`},
		{"array wrong length", `["typing"]`},
		{"payload not decodable", `{"action": "typing", "payload": 42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize([]byte(tt.frame)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecodeTypingState(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`"true"`, true},
		{`"false"`, false},
		{`"1"`, true},
		{`1`, true},
		{`0`, false},
		{``, false},
	}
	for _, tt := range tests {
		if got := decodeTypingState([]byte(tt.raw)); got != tt.want {
			t.Errorf("decodeTypingState(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestValidConversationID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{convID, true},
		{"A1B2C3D4-E5F6-7890-ABCD-EF0123456789", true},
		{"", false},
		{"alex", false},
		{"local-123", false},
		{"a1b2c3d4e5f67890abcdef0123456789", false},
		{"a1b2c3d4-e5f6-7890-abcd-ef012345678", false},
		{"g1b2c3d4-e5f6-7890-abcd-ef0123456789", false},
	}
	for _, tt := range tests {
		if got := ValidConversationID(tt.id); got != tt.want {
			t.Errorf("ValidConversationID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
