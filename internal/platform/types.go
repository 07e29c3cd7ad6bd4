package platform

import (
	"encoding/json"
	"regexp"
	"time"
)

// Conversation ids are server-assigned UUIDs. Anything else (usernames,
// locally minted tokens) is a display-layer identifier and must never
// reach the transport.
var conversationIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ValidConversationID reports whether s is a well-formed server conversation id.
func ValidConversationID(s string) bool {
	return conversationIDPattern.MatchString(s)
}

// Profile is the authenticated user's identity as reported by the API.
type Profile struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Counterpart identifies the other participant of a conversation.
type Counterpart struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// ConversationSummary is one entry of the directory fetch response.
type ConversationSummary struct {
	ID            string      `json:"id"`
	Counterpart   Counterpart `json:"counterpart"`
	LastMessage   string      `json:"last_message"`
	LastMessageAt int64       `json:"last_message_at"` // unix millis
	UnreadCount   int         `json:"unread_count"`
}

// Attachment is a media reference carried by a message.
type Attachment struct {
	Type string `json:"type"` // image, video, audio
	URL  string `json:"url"`
}

// Message is a normalized platform message. Text is already resolved
// from the wire's locale-keyed or plain-string content.
type Message struct {
	ID             string
	ConversationID string
	AuthorID       string
	Text           string
	Attachments    []Attachment
	SentAt         time.Time
}

// wireMessage matches the history/push payload shape before normalization.
type wireMessage struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	AuthorID       string          `json:"author_id"`
	Content        json.RawMessage `json:"content"`
	Attachments    []Attachment    `json:"attachments"`
	CreatedAt      int64           `json:"created_at"` // unix millis
}

func (w *wireMessage) normalize() *Message {
	return &Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		AuthorID:       w.AuthorID,
		Text:           decodeContent(w.Content),
		Attachments:    w.Attachments,
		SentAt:         time.UnixMilli(w.CreatedAt),
	}
}

// decodeContent resolves the wire content field, which is either a plain
// string or a locale-keyed object. English wins, then any locale.
func decodeContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	var byLocale map[string]string
	if err := json.Unmarshal(raw, &byLocale); err == nil {
		if s, ok := byLocale["en"]; ok {
			return s
		}
		for _, s := range byLocale {
			return s
		}
	}
	return ""
}

// Push event kinds after normalization.
const (
	PushNewMessage = "new_message"
	PushTyping     = "typing"
)

// PushEvent is the single canonical shape every socket frame is reduced to
// before any reconciliation logic runs.
type PushEvent struct {
	Kind           string
	ConversationID string
	ActorID        string
	Message        *Message // set when Kind == PushNewMessage
	Typing         bool     // set when Kind == PushTyping
}
