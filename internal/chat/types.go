package chat

import (
	"context"
	"strings"
	"time"

	"github.com/amora-chat/amora/internal/platform"
)

// Transport is the slice of the platform client the messaging core consumes.
type Transport interface {
	ListConversations(ctx context.Context) ([]platform.ConversationSummary, error)
	History(ctx context.Context, conversationID string) ([]*platform.Message, error)
	SendMessage(ctx context.Context, conversationID, text string, attachments []platform.Attachment) (string, error)
	SendTyping(ctx context.Context, conversationID string) error
}

// Origin marks who authored a timeline message.
type Origin string

const (
	OriginSelf   Origin = "self"
	OriginRemote Origin = "remote"
)

// localIDPrefix marks client-minted placeholder ids awaiting server confirmation.
const localIDPrefix = "local-"

// IsPlaceholderID reports whether id is a client-minted placeholder id.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// Message is one entry of the open conversation's timeline.
type Message struct {
	ID          string
	Text        string
	Attachments []platform.Attachment
	SentAt      time.Time
	Origin      Origin
	Pending     bool // true while the id is a placeholder
}

// Conversation is one directory entry. DisplayID is what the UI selects by;
// it may be a username, a counterpart user id, or a locally minted token.
// ConversationID is the server UUID and is empty until confirmed.
type Conversation struct {
	DisplayID      string
	ConversationID string
	CounterpartID  string
	Username       string
	Name           string
	LastMessage    string
	LastActivityAt time.Time
	UnreadCount    int
	Unconfirmed    bool

	// lastMsgID is the id of the last live message applied to this entry.
	// Redelivered push events must not bump the unread count twice.
	lastMsgID string
}

// ResolveHint carries whatever identifiers the caller has when navigating
// into a conversation from another screen.
type ResolveHint struct {
	ExistingID          string // server conversation id, if known
	CounterpartUserID   string
	CounterpartUsername string
}
