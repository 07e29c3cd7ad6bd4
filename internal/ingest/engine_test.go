package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/amora-chat/amora/internal/bus"
	"github.com/amora-chat/amora/internal/platform"
	"github.com/amora-chat/amora/internal/store"
)

const (
	convA = "a1b2c3d4-e5f6-7890-abcd-ef0123456789"
	convB = "b2c3d4e5-f6a7-8901-bcde-f01234567890"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEngineIngestMessage(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, zap.NewNop())

	ch, unsub := b.Subscribe("ingest.", 10)
	defer unsub()

	msg := &platform.Message{
		ID: "m1", ConversationID: convA, AuthorID: "u-2",
		Text: "hello", SentAt: time.UnixMilli(1000),
	}
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}

	// Conversation row auto-created with the activity bump.
	conv, err := db.GetConversation(convA)
	if err != nil {
		t.Fatal(err)
	}
	if conv == nil {
		t.Fatal("conversation not created")
	}
	if conv.LastMessage != "hello" {
		t.Errorf("last_message = %q, want hello", conv.LastMessage)
	}

	msgs, err := db.ListMessages(convA, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hello" {
		t.Errorf("got %d messages, want 1 with body=hello", len(msgs))
	}

	select {
	case evt := <-ch:
		if evt.Kind != "ingest.message_upserted" {
			t.Errorf("event kind = %q, want ingest.message_upserted", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ingest.message_upserted event")
	}
}

func TestEngineIngestMessageIdempotent(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), zap.NewNop())

	msg := &platform.Message{
		ID: "m1", ConversationID: convA, AuthorID: "u-2",
		Text: "v1", SentAt: time.UnixMilli(1000),
	}
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg.Text = "v2"
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(convA, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent)", len(msgs))
	}
	if msgs[0].Body != "v2" {
		t.Errorf("body = %q, want v2 (updated)", msgs[0].Body)
	}
}

func TestEngineFromMeFlag(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), zap.NewNop())
	e.SetSelfID("u-self")

	if err := e.IngestMessage(&platform.Message{
		ID: "m1", ConversationID: convA, AuthorID: "u-self",
		Text: "mine", SentAt: time.UnixMilli(1000),
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.IngestMessage(&platform.Message{
		ID: "m2", ConversationID: convA, AuthorID: "u-other",
		Text: "theirs", SentAt: time.UnixMilli(2000),
	}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(convA, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// ListMessages returns newest first.
	if msgs[0].FromMe || !msgs[1].FromMe {
		t.Errorf("from_me flags wrong: got [%v %v], want [false true]", msgs[0].FromMe, msgs[1].FromMe)
	}
}

func TestEngineIngestHistoryBatch(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, zap.NewNop())

	ch, unsub := b.Subscribe("ingest.", 10)
	defer unsub()

	msgs := []*platform.Message{
		{ID: "m1", ConversationID: convA, AuthorID: "u-2", Text: "one", SentAt: time.UnixMilli(1000)},
		{ID: "m2", ConversationID: convA, AuthorID: "u-2", Text: "two", SentAt: time.UnixMilli(2000)},
		{ID: "m3", ConversationID: convB, AuthorID: "u-3", Text: "three", SentAt: time.UnixMilli(3000)},
	}

	if err := e.IngestHistoryBatch(msgs); err != nil {
		t.Fatal(err)
	}

	convs, err := db.ListConversations(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Errorf("got %d conversations, want 2", len(convs))
	}

	msgsA, _ := db.ListMessages(convA, 0, 10)
	msgsB, _ := db.ListMessages(convB, 0, 10)
	if len(msgsA) != 2 || len(msgsB) != 1 {
		t.Errorf("got %d+%d messages, want 2+1", len(msgsA), len(msgsB))
	}

	select {
	case evt := <-ch:
		if evt.Kind != "ingest.history_batch" {
			t.Errorf("event kind = %q, want ingest.history_batch", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ingest.history_batch event")
	}
}

func TestEngineHistoryBatchIdempotent(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), zap.NewNop())

	msgs := []*platform.Message{
		{ID: "m1", ConversationID: convA, AuthorID: "u-2", Text: "hello", SentAt: time.UnixMilli(1000)},
	}

	// Ingest twice.
	if err := e.IngestHistoryBatch(msgs); err != nil {
		t.Fatal(err)
	}
	if err := e.IngestHistoryBatch(msgs); err != nil {
		t.Fatal(err)
	}

	stored, _ := db.ListMessages(convA, 0, 10)
	if len(stored) != 1 {
		t.Errorf("got %d messages, want 1 (idempotent batch)", len(stored))
	}
}

func TestEngineIngestDirectory(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), zap.NewNop())

	summaries := []platform.ConversationSummary{
		{
			ID:          convA,
			Counterpart: platform.Counterpart{UserID: "u-2", Username: "alex_92", Name: "Alex"},
			LastMessage: "see you", LastMessageAt: 2000, UnreadCount: 3,
		},
		{
			ID:          convB,
			Counterpart: platform.Counterpart{UserID: "u-3", Username: "sam"},
			LastMessage: "hi", LastMessageAt: 1000,
		},
	}

	if err := e.IngestDirectory(summaries); err != nil {
		t.Fatal(err)
	}

	conv, err := db.GetConversation(convA)
	if err != nil {
		t.Fatal(err)
	}
	if conv == nil {
		t.Fatal("conversation not cached")
	}
	if conv.Username != "alex_92" || conv.UnreadCount != 3 {
		t.Errorf("got %+v, want alex_92 with 3 unread", conv)
	}
}

// TestEngineBusSubscription verifies the engine processes cache-bound events
// from the bus. This is the core of the chat→bus→ingest decoupling.
func TestEngineBusSubscription(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, zap.NewNop())

	e.Start(context.Background())
	defer e.Stop()

	b.Publish(bus.Event{
		Kind:      bus.KindCacheMessage,
		Timestamp: time.Now(),
		Payload: &platform.Message{
			ID: "bm1", ConversationID: convA, AuthorID: "u-2",
			Text: "from bus", SentAt: time.UnixMilli(5000),
		},
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs, err := db.ListMessages(convA, 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) == 1 && msgs[0].Body == "from bus" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message not ingested via bus, got %d", len(msgs))
		}
		time.Sleep(10 * time.Millisecond)
	}

	b.Publish(bus.Event{
		Kind:      bus.KindCacheHistory,
		Timestamp: time.Now(),
		Payload: []*platform.Message{
			{ID: "hm1", ConversationID: convB, AuthorID: "u-3", Text: "history", SentAt: time.UnixMilli(6000)},
			{ID: "hm2", ConversationID: convB, AuthorID: "u-3", Text: "history2", SentAt: time.UnixMilli(7000)},
		},
	})

	deadline = time.Now().Add(2 * time.Second)
	for {
		msgs, err := db.ListMessages(convB, 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("history batch not ingested via bus, got %d", len(msgs))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
