package chat

import (
	"sort"

	"github.com/amora-chat/amora/internal/platform"
)

// ApplyResult says what ApplyRemote did with a push event.
type ApplyResult int

const (
	// ApplyIgnored: the event targets a conversation that is not open here.
	ApplyIgnored ApplyResult = iota
	// ApplyDuplicate: a message with the same id already exists.
	ApplyDuplicate
	// ApplyReconciled: a self-echo confirmed an optimistic placeholder in place.
	ApplyReconciled
	// ApplyAppended: a new message was appended to the tail.
	ApplyAppended
)

// Timeline is the ordered message list of the currently open conversation.
// History load establishes ascending-timestamp order; live events are
// appended in arrival order and never re-sorted. Not safe for concurrent
// use on its own; the Controller serializes access.
type Timeline struct {
	conversationID string
	messages       []*Message
	loading        bool
}

// NewTimeline creates an empty, unbound timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Reset binds the timeline to a conversation and clears it.
func (t *Timeline) Reset(conversationID string) {
	t.conversationID = conversationID
	t.messages = nil
	t.loading = true
}

// ConversationID returns the conversation this timeline is bound to.
func (t *Timeline) ConversationID() string {
	return t.conversationID
}

// Loading reports whether a history load is outstanding.
func (t *Timeline) Loading() bool {
	return t.loading
}

// ReplaceFromHistory swaps in a freshly fetched history and clears the
// loading flag. An error upstream maps to msgs == nil: empty timeline,
// loading cleared regardless. The server does not guarantee response order,
// so the ascending baseline is established here; the stable sort keeps the
// server's relative order for equal timestamps.
func (t *Timeline) ReplaceFromHistory(selfID string, msgs []*platform.Message) {
	t.loading = false
	t.messages = make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		t.messages = append(t.messages, fromPlatform(m, selfID))
	}
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].SentAt.Before(t.messages[j].SentAt)
	})
}

// AppendPlaceholder appends an optimistic local send.
func (t *Timeline) AppendPlaceholder(m *Message) {
	m.Pending = true
	m.Origin = OriginSelf
	t.messages = append(t.messages, m)
}

// ConfirmPlaceholder rewrites a placeholder's id to the server id in place.
// Returns false when the placeholder is gone (timeline reset or rolled back).
func (t *Timeline) ConfirmPlaceholder(placeholderID, serverID string) bool {
	for _, m := range t.messages {
		if m.ID == placeholderID {
			m.ID = serverID
			m.Pending = false
			return true
		}
	}
	return false
}

// RemovePlaceholder rolls back a failed optimistic send. No silent leftover.
func (t *Timeline) RemovePlaceholder(placeholderID string) bool {
	return t.Remove(placeholderID)
}

// Remove deletes a message locally by id.
func (t *Timeline) Remove(id string) bool {
	for i, m := range t.messages {
		if m.ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Clear wipes the local history. Local-only.
func (t *Timeline) Clear() {
	t.messages = nil
}

// Messages returns a snapshot copy of the timeline.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = *m
	}
	return out
}

// ApplyRemote reconciles an inbound new_message push event:
//
//  1. Events for a conversation other than the open one are ignored entirely.
//  2. An id already present in the timeline is a duplicate delivery; no-op.
//  3. A self-echo is matched against the most recent pending placeholder with
//     equal text and confirmed in place instead of appended.
//  4. Anything else is appended at the tail in arrival order.
//
// Typing supersession is the Controller's job, keyed off an ApplyAppended
// result for a remote author.
func (t *Timeline) ApplyRemote(evt *platform.PushEvent, selfID string) ApplyResult {
	if t.conversationID == "" || evt.ConversationID != t.conversationID {
		return ApplyIgnored
	}
	msg := evt.Message

	for _, m := range t.messages {
		if m.ID == msg.ID {
			return ApplyDuplicate
		}
	}

	if msg.AuthorID == selfID {
		// Search from the tail: the most recent matching placeholder wins.
		for i := len(t.messages) - 1; i >= 0; i-- {
			m := t.messages[i]
			if m.Pending && IsPlaceholderID(m.ID) && m.Text == msg.Text {
				m.ID = msg.ID
				m.Pending = false
				return ApplyReconciled
			}
		}
	}

	t.messages = append(t.messages, fromPlatform(msg, selfID))
	return ApplyAppended
}

func fromPlatform(m *platform.Message, selfID string) *Message {
	origin := OriginRemote
	if m.AuthorID == selfID {
		origin = OriginSelf
	}
	return &Message{
		ID:          m.ID,
		Text:        m.Text,
		Attachments: m.Attachments,
		SentAt:      m.SentAt,
		Origin:      origin,
	}
}
