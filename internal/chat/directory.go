package chat

import (
	"errors"
	"time"

	"github.com/amora-chat/amora/internal/platform"
)

// ErrNoConversationID is returned when ResolveOrCreate cannot find an entry
// and the hint carries no server conversation id to synthesize one from.
// Directory entries without a server id are forbidden: nothing could ever be
// sent to them.
var ErrNoConversationID = errors.New("cannot create directory entry without a server conversation id")

// Directory is the in-memory conversation list. It is not safe for concurrent
// use on its own; the Controller serializes access.
type Directory struct {
	entries []*Conversation
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{}
}

// SetFromSummaries replaces the directory contents from a directory fetch.
// Unconfirmed local placeholders are kept at the front so navigating into a
// brand-new conversation survives a refresh racing it.
func (d *Directory) SetFromSummaries(summaries []platform.ConversationSummary) {
	var kept []*Conversation
	for _, e := range d.entries {
		if e.Unconfirmed {
			kept = append(kept, e)
		}
	}
	for i := range summaries {
		s := &summaries[i]
		display := s.Counterpart.Username
		if display == "" {
			display = s.Counterpart.UserID
		}
		kept = append(kept, &Conversation{
			DisplayID:      display,
			ConversationID: s.ID,
			CounterpartID:  s.Counterpart.UserID,
			Username:       s.Counterpart.Username,
			Name:           s.Counterpart.Name,
			LastMessage:    s.LastMessage,
			LastActivityAt: time.UnixMilli(s.LastMessageAt),
			UnreadCount:    s.UnreadCount,
		})
	}
	d.entries = kept
}

// Entries returns a snapshot copy of the directory.
func (d *Directory) Entries() []Conversation {
	out := make([]Conversation, len(d.entries))
	for i, e := range d.entries {
		out[i] = *e
	}
	return out
}

// ByDisplayID returns the entry selected by the UI, or nil.
func (d *Directory) ByDisplayID(displayID string) *Conversation {
	for _, e := range d.entries {
		if e.DisplayID == displayID {
			return e
		}
	}
	return nil
}

// ByConversationID returns the entry with the given server id, or nil.
func (d *Directory) ByConversationID(conversationID string) *Conversation {
	if conversationID == "" {
		return nil
	}
	for _, e := range d.entries {
		if e.ConversationID == conversationID {
			return e
		}
	}
	return nil
}

// ResolveOrCreate finds an existing entry by conversation id, then username,
// then counterpart user id. When nothing matches it synthesizes an unconfirmed
// placeholder and prepends it, which requires a valid server conversation id
// in the hint.
func (d *Directory) ResolveOrCreate(hint ResolveHint) (*Conversation, error) {
	if e := d.ByConversationID(hint.ExistingID); e != nil {
		return e, nil
	}
	if hint.CounterpartUsername != "" {
		for _, e := range d.entries {
			if e.Username == hint.CounterpartUsername {
				return e, nil
			}
		}
	}
	if hint.CounterpartUserID != "" {
		for _, e := range d.entries {
			if e.CounterpartID == hint.CounterpartUserID {
				return e, nil
			}
		}
	}

	if !platform.ValidConversationID(hint.ExistingID) {
		return nil, ErrNoConversationID
	}

	display := hint.CounterpartUsername
	if display == "" {
		display = hint.CounterpartUserID
	}
	if display == "" {
		display = hint.ExistingID
	}
	entry := &Conversation{
		DisplayID:      display,
		ConversationID: hint.ExistingID,
		CounterpartID:  hint.CounterpartUserID,
		Username:       hint.CounterpartUsername,
		LastActivityAt: time.Now(),
		Unconfirmed:    true,
	}
	d.entries = append([]*Conversation{entry}, d.entries...)
	return entry, nil
}

// Confirm upgrades an entry in place once the server acknowledges it.
func (d *Directory) Confirm(displayID, conversationID string) {
	if e := d.ByDisplayID(displayID); e != nil {
		e.ConversationID = conversationID
		e.Unconfirmed = false
	}
}

// Remove deletes an entry locally. No server call is made.
func (d *Directory) Remove(displayID string) bool {
	for i, e := range d.entries {
		if e.DisplayID == displayID {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Touch updates the denormalized summary fields on live message arrival.
// The unread count is bumped only when the conversation is not open and the
// message was authored remotely; a redelivery of the already-applied message
// id is a no-op, mirroring the timeline's duplicate check for conversations
// that have no timeline bound.
func (d *Directory) Touch(conversationID, msgID, preview string, at time.Time, open, fromSelf bool) {
	e := d.ByConversationID(conversationID)
	if e == nil {
		return
	}
	if msgID != "" && e.lastMsgID == msgID {
		return
	}
	e.lastMsgID = msgID
	e.LastMessage = preview
	e.LastActivityAt = at
	if open {
		e.UnreadCount = 0
	} else if !fromSelf {
		// A self-echo from another device leaves the count alone: the
		// local user has nothing new to read.
		e.UnreadCount++
	}
}

// MarkRead zeroes the unread count for the given entry.
func (d *Directory) MarkRead(displayID string) {
	if e := d.ByDisplayID(displayID); e != nil {
		e.UnreadCount = 0
	}
}
