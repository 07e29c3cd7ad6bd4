// Package ingest writes confirmed messages and directory snapshots into the
// SQLite cache. It consumes cache-bound bus events so the in-memory chat core
// never blocks on disk.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amora-chat/amora/internal/bus"
	"github.com/amora-chat/amora/internal/platform"
	"github.com/amora-chat/amora/internal/store"
)

// Engine handles idempotent ingestion of confirmed messages into the cache.
// It subscribes to "cache." events on the bus and processes them.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc

	mu     sync.Mutex
	selfID string
}

// NewEngine creates a new ingest engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// SetSelfID records the authenticated user's id so cached messages carry a
// correct from_me flag. Safe to call after Start.
func (e *Engine) SetSelfID(id string) {
	e.mu.Lock()
	e.selfID = id
	e.mu.Unlock()
}

func (e *Engine) fromMe(authorID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selfID != "" && authorID == e.selfID
}

// Start subscribes to cache-bound events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("cache.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindCacheMessage:
		msg, ok := evt.Payload.(*platform.Message)
		if !ok {
			return
		}
		if err := e.IngestMessage(msg); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", msg.ID))
		}
	case bus.KindCacheHistory:
		msgs, ok := evt.Payload.([]*platform.Message)
		if !ok {
			return
		}
		if err := e.IngestHistoryBatch(msgs); err != nil {
			e.logger.Error("failed to ingest history batch", zap.Error(err), zap.Int("count", len(msgs)))
		} else {
			e.logger.Info("history batch ingested", zap.Int("messages", len(msgs)))
		}
	case bus.KindCacheDirectory:
		summaries, ok := evt.Payload.([]platform.ConversationSummary)
		if !ok {
			return
		}
		if err := e.IngestDirectory(summaries); err != nil {
			e.logger.Error("failed to ingest directory", zap.Error(err), zap.Int("count", len(summaries)))
		}
	}
}

// IngestMessage processes a single confirmed message into the cache (idempotent).
func (e *Engine) IngestMessage(msg *platform.Message) error {
	ts := msg.SentAt.UnixMilli()
	if err := e.db.TouchConversation(msg.ConversationID, ts, truncate(msg.Text, 100)); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	if err := e.db.UpsertMessage(toStoreMessage(msg, e.fromMe(msg.AuthorID))); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "ingest.message_upserted",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": msg.ConversationID,
			"msg_id":          msg.ID,
		},
	})

	return nil
}

// IngestHistoryBatch processes a history page in a single transaction.
func (e *Engine) IngestHistoryBatch(msgs []*platform.Message) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		ts := m.SentAt.UnixMilli()
		if _, err := tx.Exec(`
			INSERT INTO conversations (conversation_id, last_message_at, last_message, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(conversation_id) DO UPDATE SET
				last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
				last_message = CASE WHEN excluded.last_message_at > conversations.last_message_at THEN excluded.last_message ELSE conversations.last_message END,
				updated_at = excluded.updated_at`,
			m.ConversationID, ts, truncate(m.Text, 100), now); err != nil {
			return fmt.Errorf("touch conversation in batch: %w", err)
		}

		sm := toStoreMessage(m, e.fromMe(m.AuthorID))
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, msg_id, author_id, body, attachments, from_me, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
				body = excluded.body,
				attachments = excluded.attachments`,
			sm.ConversationID, sm.MsgID, sm.AuthorID, sm.Body, sm.Attachments, sm.FromMe, sm.Timestamp, now); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "ingest.history_batch",
		Timestamp: time.Now(),
		Payload:   map[string]int{"messages_count": len(msgs)},
	})

	return nil
}

// IngestDirectory mirrors a directory fetch into the cache.
func (e *Engine) IngestDirectory(summaries []platform.ConversationSummary) error {
	for i := range summaries {
		s := &summaries[i]
		if err := e.db.UpsertConversation(&store.Conversation{
			ConversationID: s.ID,
			CounterpartID:  s.Counterpart.UserID,
			Username:       s.Counterpart.Username,
			Name:           s.Counterpart.Name,
			LastMessageAt:  s.LastMessageAt,
			LastMessage:    truncate(s.LastMessage, 100),
			UnreadCount:    s.UnreadCount,
		}); err != nil {
			return fmt.Errorf("upsert conversation %s: %w", s.ID, err)
		}
	}
	return nil
}

func toStoreMessage(m *platform.Message, fromMe bool) *store.Message {
	return &store.Message{
		ConversationID: m.ConversationID,
		MsgID:          m.ID,
		AuthorID:       m.AuthorID,
		Body:           m.Text,
		Attachments:    encodeAttachments(m.Attachments),
		FromMe:         fromMe,
		Timestamp:      m.SentAt.UnixMilli(),
	}
}

func encodeAttachments(atts []platform.Attachment) string {
	if len(atts) == 0 {
		return ""
	}
	b, err := json.Marshal(atts)
	if err != nil {
		return ""
	}
	return string(b)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
