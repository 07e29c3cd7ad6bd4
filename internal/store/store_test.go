package store

import (
	"path/filepath"
	"strings"
	"testing"
)

const (
	testConvA = "a1b2c3d4-e5f6-7890-abcd-ef0123456789"
	testConvB = "b2c3d4e5-f6a7-8901-bcde-f01234567890"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestConversationUpsertAndList(t *testing.T) {
	db := testDB(t)

	conv := &Conversation{ConversationID: testConvA, CounterpartID: "u-1", Username: "alex_92", Name: "Alex", LastMessageAt: 1000, LastMessage: "hello"}
	if err := db.UpsertConversation(conv); err != nil {
		t.Fatal(err)
	}

	// Update name.
	conv.Name = "Alex Updated"
	if err := db.UpsertConversation(conv); err != nil {
		t.Fatal(err)
	}

	convs, err := db.ListConversations(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(convs))
	}
	if convs[0].Name != "Alex Updated" {
		t.Errorf("name = %q, want Alex Updated", convs[0].Name)
	}
}

func TestListConversationsOrderedByActivity(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConversation(&Conversation{ConversationID: testConvA, Username: "older", LastMessageAt: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertConversation(&Conversation{ConversationID: testConvB, Username: "newer", LastMessageAt: 2000}); err != nil {
		t.Fatal(err)
	}

	convs, err := db.ListConversations(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].ConversationID != testConvB {
		t.Errorf("first = %s, want most recent conversation", convs[0].ConversationID)
	}
}

func TestGetConversationNameFallback(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConversation(&Conversation{ConversationID: testConvA, Username: "alex_92"}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetConversation(testConvA)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("expected conversation")
	}
	if c.Name != "alex_92" {
		t.Errorf("name = %q, want username fallback alex_92", c.Name)
	}

	// Non-existent.
	c, err = db.GetConversation(testConvB)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing conversation")
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConversation(&Conversation{ConversationID: testConvA}); err != nil {
		t.Fatal(err)
	}

	msg := &Message{ConversationID: testConvA, MsgID: "m1", AuthorID: "u-1", Body: "hello", Timestamp: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	// Upsert again should not create a duplicate.
	msg.Body = "hello updated"
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(testConvA, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent upsert failed)", len(msgs))
	}
	if msgs[0].Body != "hello updated" {
		t.Errorf("body = %q, want hello updated", msgs[0].Body)
	}
}

func TestListMessagesScopedToConversation(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{ConversationID: testConvA, MsgID: "m1", Body: "in A", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ConversationID: testConvB, MsgID: "m2", Body: "in B", Timestamp: 2000}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(testConvA, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MsgID != "m1" {
		t.Fatalf("got %v, want only m1", msgs)
	}
}

func TestDeleteAndClearMessages(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{ConversationID: testConvA, MsgID: "m1", Body: "one", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ConversationID: testConvA, MsgID: "m2", Body: "two", Timestamp: 2000}); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteMessage(testConvA, "m1"); err != nil {
		t.Fatal(err)
	}
	msgs, err := db.ListMessages(testConvA, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MsgID != "m2" {
		t.Fatalf("got %v after delete, want only m2", msgs)
	}

	if err := db.ClearMessages(testConvA); err != nil {
		t.Fatal(err)
	}
	msgs, err = db.ListMessages(testConvA, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("got %d messages after clear, want 0", len(msgs))
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{ConversationID: testConvA, MsgID: "m1", Body: "hello world", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ConversationID: testConvA, MsgID: "m2", Body: "goodbye world", Timestamp: 2000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ConversationID: testConvB, MsgID: "m3", Body: "hello again", Timestamp: 3000}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchMessages("hello", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	// Scoped to one conversation.
	results, err = db.SearchMessages("hello", testConvA, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d scoped results, want 1", len(results))
	}
	if results[0].Message.MsgID != "m1" {
		t.Errorf("msg_id = %q, want m1", results[0].Message.MsgID)
	}
}

// TestSearchMessagesLikeFallback runs the same search through the LIKE path
// used when the sqlite driver is built without the fts5 module. Migrate sets
// the flag from a runtime probe, so a default (untagged) build must still
// boot and answer searches.
func TestSearchMessagesLikeFallback(t *testing.T) {
	db := testDB(t)
	db.fts = false

	if err := db.UpsertMessage(&Message{ConversationID: testConvA, MsgID: "m1", Body: "hello world", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ConversationID: testConvB, MsgID: "m2", Body: "hello again", Timestamp: 2000}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchMessages("hello", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	results, err = db.SearchMessages("hello", testConvA, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.MsgID != "m1" {
		t.Fatalf("scoped results = %+v, want m1 only", results)
	}
	if results[0].Snippet != "<<hello>> world" {
		t.Errorf("snippet = %q, want the match marked", results[0].Snippet)
	}
}

func TestBuildSnippet(t *testing.T) {
	long := strings.Repeat("a", 50) + "needle" + strings.Repeat("b", 50)
	got := buildSnippet(long, "NEEDLE")
	if !strings.Contains(got, "<<needle>>") {
		t.Errorf("snippet %q does not mark the match", got)
	}
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet %q missing ellipses around the window", got)
	}

	if got := buildSnippet("short", "absent"); got != "short" {
		t.Errorf("no-match snippet = %q, want full body", got)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConversation(&Conversation{ConversationID: testConvA}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&Message{ConversationID: testConvA, MsgID: "m1", Body: "bye", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteConversation(testConvA); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation(testConvA)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("conversation still present after delete")
	}
	msgs, err := db.ListMessages(testConvA, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages after conversation delete, want 0", len(msgs))
	}
}
