package store

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or updates a conversation record.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (conversation_id, counterpart_id, username, name, last_message_at, last_message, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			counterpart_id = excluded.counterpart_id,
			username = excluded.username,
			name = excluded.name,
			last_message_at = excluded.last_message_at,
			last_message = excluded.last_message,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ConversationID, c.CounterpartID, c.Username, c.Name, c.LastMessageAt, c.LastMessage, c.UnreadCount, now)
	return err
}

// TouchConversation bumps a conversation's activity without touching its
// identity columns. The row is created when absent.
func (db *DB) TouchConversation(conversationID string, lastMessageAt int64, preview string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (conversation_id, last_message_at, last_message, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message = CASE WHEN excluded.last_message_at > conversations.last_message_at THEN excluded.last_message ELSE conversations.last_message END,
			updated_at = excluded.updated_at`,
		conversationID, lastMessageAt, preview, now)
	return err
}

// ListConversations returns conversations sorted by last message timestamp descending.
// The display name falls back to the username when the profile name is empty.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT conversation_id, counterpart_id, username,
			COALESCE(NULLIF(name,''), username) AS display_name,
			last_message_at, last_message, unread_count
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ConversationID, &c.CounterpartID, &c.Username, &c.Name, &c.LastMessageAt, &c.LastMessage, &c.UnreadCount); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation by id, or nil when absent.
func (db *DB) GetConversation(conversationID string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT conversation_id, counterpart_id, username,
			COALESCE(NULLIF(name,''), username) AS display_name,
			last_message_at, last_message, unread_count
		FROM conversations
		WHERE conversation_id = ?`, conversationID).
		Scan(&c.ConversationID, &c.CounterpartID, &c.Username, &c.Name, &c.LastMessageAt, &c.LastMessage, &c.UnreadCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteConversation removes a conversation and its cached messages.
func (db *DB) DeleteConversation(conversationID string) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM conversations WHERE conversation_id = ?`, conversationID)
	return err
}
