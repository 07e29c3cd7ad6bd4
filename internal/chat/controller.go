package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amora-chat/amora/internal/bus"
	"github.com/amora-chat/amora/internal/metrics"
	"github.com/amora-chat/amora/internal/platform"
)

var (
	// ErrNotSelected is returned for operations requiring an open conversation.
	ErrNotSelected = errors.New("no conversation selected")
	// ErrNoServerID is the precondition failure for outbound operations on a
	// conversation without a well-formed server id. Never sent to the transport.
	ErrNoServerID = errors.New("conversation has no valid server id")
	// ErrEmptyMessage rejects sends with neither text nor attachments.
	ErrEmptyMessage = errors.New("message needs text or attachments")
	// ErrUnknownConversation is returned when selecting a display id the
	// directory does not know.
	ErrUnknownConversation = errors.New("unknown conversation")
)

// Controller owns the messaging screen state: the conversation directory,
// the open conversation's timeline, the typing tracker, and the selection.
// Push events are applied against the selection snapshot under one lock, so
// reconciliation never reads ambient mutable state.
type Controller struct {
	mu sync.Mutex

	transport Transport
	bus       *bus.Bus
	logger    *zap.Logger
	self      platform.Profile

	directory *Directory
	timeline  *Timeline
	typing    *Tracker

	selected        string // display id of the open conversation, "" when none
	chromeCollapsed bool
	loadGen         int // invalidates in-flight history loads on reselect

	cancel context.CancelFunc
}

// NewController wires the messaging core. self identifies the local user so
// echoes of our own sends are recognized.
func NewController(transport Transport, self platform.Profile, b *bus.Bus, logger *zap.Logger) *Controller {
	c := &Controller{
		transport: transport,
		bus:       b,
		logger:    logger,
		self:      self,
		directory: NewDirectory(),
		timeline:  NewTimeline(),
	}
	c.typing = NewTracker(c.sendTypingSignal, func(conversationID string, typing bool) {
		b.Publish(bus.Event{
			Kind:      bus.KindChatTyping,
			Timestamp: time.Now(),
			Payload:   bus.TypingChange{ConversationID: conversationID, Typing: typing},
		})
	})
	return c
}

// Start subscribes to inbound push events on the bus.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	ch, unsub := c.bus.Subscribe("push.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if pe, ok := evt.Payload.(*platform.PushEvent); ok {
					c.applyPush(pe)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// SetSelf records the authenticated user's identity once the profile fetch
// completes. Echo recognition depends on it.
func (c *Controller) SetSelf(p platform.Profile) {
	c.mu.Lock()
	c.self = p
	c.mu.Unlock()
}

func (c *Controller) selfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self.UserID
}

// Stop halts event processing and cancels all typing timers.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.typing.Bind("")
}

// RefreshDirectory fetches the conversation directory. A transport failure
// degrades to an empty refresh: logged, never fatal.
func (c *Controller) RefreshDirectory(ctx context.Context) {
	summaries, err := c.transport.ListConversations(ctx)
	if err != nil {
		c.logger.Warn("directory fetch failed", zap.Error(err))
		summaries = nil
	}

	c.mu.Lock()
	c.directory.SetFromSummaries(summaries)
	c.mu.Unlock()

	c.bus.Publish(bus.Event{Kind: bus.KindChatDirectory, Timestamp: time.Now()})
	if len(summaries) > 0 {
		c.bus.Publish(bus.Event{Kind: bus.KindCacheDirectory, Timestamp: time.Now(), Payload: summaries})
	}
}

// Conversations returns a snapshot of the directory.
func (c *Controller) Conversations() []Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.directory.Entries()
}

// ResolveOrCreate finds or synthesizes a directory entry for a navigation hint.
func (c *Controller) ResolveOrCreate(hint ResolveHint) (Conversation, error) {
	c.mu.Lock()
	entry, err := c.directory.ResolveOrCreate(hint)
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("resolve conversation failed", zap.Error(err),
			zap.String("username", hint.CounterpartUsername))
		return Conversation{}, err
	}
	c.bus.Publish(bus.Event{Kind: bus.KindChatDirectory, Timestamp: time.Now()})
	return *entry, nil
}

// Select opens a conversation: binds the timeline and typing tracker to it,
// collapses the surrounding chrome, marks it read, and kicks off an async
// history load. A response landing after the selection has moved on is
// discarded, so nothing bleeds across conversations.
func (c *Controller) Select(ctx context.Context, displayID string) error {
	c.mu.Lock()
	entry := c.directory.ByDisplayID(displayID)
	if entry == nil {
		c.mu.Unlock()
		return ErrUnknownConversation
	}

	c.selected = displayID
	c.chromeCollapsed = true
	c.directory.MarkRead(displayID)
	conversationID := entry.ConversationID
	c.timeline.Reset(conversationID)
	c.loadGen++
	gen := c.loadGen
	c.mu.Unlock()

	c.typing.Bind(conversationID)
	c.bus.Publish(bus.Event{Kind: bus.KindChatSelected, Timestamp: time.Now(), Payload: displayID})

	if conversationID == "" {
		// Unconfirmed placeholder conversation: nothing to load.
		c.mu.Lock()
		c.timeline.loading = false
		c.mu.Unlock()
		c.publishTimeline(conversationID)
		return nil
	}

	// The load outlives the triggering request: HTTP handlers cancel their
	// context on return, which would abort the fetch mid-flight. The stale
	// guard in loadHistory is what bounds this work, not the caller.
	go c.loadHistory(context.WithoutCancel(ctx), conversationID, gen)
	return nil
}

// Deselect closes the open conversation and restores the chrome.
func (c *Controller) Deselect() {
	c.mu.Lock()
	c.selected = ""
	c.chromeCollapsed = false
	c.timeline.Reset("")
	c.timeline.loading = false
	c.mu.Unlock()
	c.typing.Bind("")
	c.bus.Publish(bus.Event{Kind: bus.KindChatSelected, Timestamp: time.Now(), Payload: ""})
}

// Selected returns the open conversation's display id, or "".
func (c *Controller) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// ChromeCollapsed reports whether the surrounding navigation is collapsed.
func (c *Controller) ChromeCollapsed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chromeCollapsed
}

// Timeline returns a snapshot of the open conversation's messages.
func (c *Controller) Timeline() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline.Messages()
}

// Loading reports whether a history load is outstanding.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline.Loading()
}

// RemoteTyping reports the open conversation's remote typing indicator.
func (c *Controller) RemoteTyping() bool {
	return c.typing.RemoteTyping()
}

func (c *Controller) loadHistory(ctx context.Context, conversationID string, gen int) {
	msgs, err := c.transport.History(ctx, conversationID)
	if err != nil {
		c.logger.Warn("history load failed", zap.Error(err),
			zap.String("conversation_id", conversationID))
		msgs = nil // empty timeline, loading cleared below
	}

	c.mu.Lock()
	// Stale guard: the user may have switched away while the fetch was in
	// flight. Applying it anyway would bleed one conversation into another.
	if gen != c.loadGen || c.timeline.ConversationID() != conversationID {
		c.mu.Unlock()
		return
	}
	c.timeline.ReplaceFromHistory(c.self.UserID, msgs)
	c.mu.Unlock()

	c.publishTimeline(conversationID)
	if len(msgs) > 0 {
		c.bus.Publish(bus.Event{Kind: bus.KindCacheHistory, Timestamp: time.Now(), Payload: msgs})
	}
}

// Send performs an optimistic send into the open conversation. The
// precondition gate (valid server id, non-empty content) aborts before any
// transport call. On transport failure the placeholder is rolled back.
func (c *Controller) Send(ctx context.Context, text string, attachments []platform.Attachment) error {
	if text == "" && len(attachments) == 0 {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.selected == "" {
		c.mu.Unlock()
		return ErrNotSelected
	}
	conversationID := c.timeline.ConversationID()
	if !platform.ValidConversationID(conversationID) {
		c.mu.Unlock()
		c.logger.Error("send rejected: conversation has no valid server id",
			zap.String("display_id", c.selected))
		metrics.MessagesSent.WithLabelValues("rejected").Inc()
		return ErrNoServerID
	}

	placeholder := &Message{
		ID:          localIDPrefix + uuid.NewString(),
		Text:        text,
		Attachments: attachments,
		SentAt:      time.Now(),
	}
	c.timeline.AppendPlaceholder(placeholder)
	c.directory.Touch(conversationID, placeholder.ID, text, placeholder.SentAt, true, true)
	c.mu.Unlock()

	c.publishTimeline(conversationID)

	// Detached like loadHistory: the send must confirm or roll back even
	// after the triggering request's context is cancelled.
	go c.completeSend(context.WithoutCancel(ctx), conversationID, placeholder.ID, text, attachments)
	return nil
}

func (c *Controller) completeSend(ctx context.Context, conversationID, placeholderID, text string, attachments []platform.Attachment) {
	serverID, err := c.transport.SendMessage(ctx, conversationID, text, attachments)

	c.mu.Lock()
	if err != nil {
		// Roll the optimistic entry back entirely; no silent leftover.
		c.timeline.RemovePlaceholder(placeholderID)
		c.mu.Unlock()
		c.logger.Warn("send failed", zap.Error(err), zap.String("conversation_id", conversationID))
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		c.bus.Publish(bus.Event{
			Kind:      bus.KindChatSendFailed,
			Timestamp: time.Now(),
			Payload: bus.SendFailure{
				ConversationID: conversationID,
				PlaceholderID:  placeholderID,
				Reason:         err.Error(),
			},
		})
		c.publishTimeline(conversationID)
		return
	}

	confirmed := c.timeline.ConfirmPlaceholder(placeholderID, serverID)
	selfID := c.self.UserID
	c.mu.Unlock()

	metrics.MessagesSent.WithLabelValues("confirmed").Inc()
	if confirmed {
		c.publishTimeline(conversationID)
	}
	c.cacheMessage(&platform.Message{
		ID:             serverID,
		ConversationID: conversationID,
		AuthorID:       selfID,
		Text:           text,
		Attachments:    attachments,
		SentAt:         time.Now(),
	})
}

// NotifyTyping registers local keystrokes; outbound signals are coalesced by
// the tracker's rate limiter. Same id gate as Send, but silent: keystrokes
// into an unconfirmed conversation are simply not signalled.
func (c *Controller) NotifyTyping() {
	c.mu.Lock()
	conversationID := c.timeline.ConversationID()
	c.mu.Unlock()
	if !platform.ValidConversationID(conversationID) {
		return
	}
	c.typing.NotifyLocal()
}

func (c *Controller) sendTypingSignal(conversationID string) {
	if !platform.ValidConversationID(conversationID) {
		c.logger.Error("typing signal rejected: invalid conversation id",
			zap.String("conversation_id", conversationID))
		return
	}
	metrics.TypingSignals.WithLabelValues("out").Inc()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.transport.SendTyping(ctx, conversationID); err != nil {
		// Dropped silently by contract; debug log only.
		c.logger.Debug("typing signal dropped", zap.Error(err))
	}
}

// DeleteMessage removes a message from the open timeline. Local-only.
func (c *Controller) DeleteMessage(id string) bool {
	c.mu.Lock()
	removed := c.timeline.Remove(id)
	conversationID := c.timeline.ConversationID()
	c.mu.Unlock()
	if removed {
		c.publishTimeline(conversationID)
	}
	return removed
}

// ClearHistory wipes the open timeline. Local-only.
func (c *Controller) ClearHistory() {
	c.mu.Lock()
	c.timeline.Clear()
	conversationID := c.timeline.ConversationID()
	c.mu.Unlock()
	c.publishTimeline(conversationID)
}

// RemoveConversation deletes a directory entry locally.
func (c *Controller) RemoveConversation(displayID string) bool {
	c.mu.Lock()
	removed := c.directory.Remove(displayID)
	selected := c.selected == displayID
	c.mu.Unlock()
	if selected {
		c.Deselect()
	}
	if removed {
		c.bus.Publish(bus.Event{Kind: bus.KindChatDirectory, Timestamp: time.Now()})
	}
	return removed
}

// applyPush routes one canonical push event through the reconciliation rules
// under the selection snapshot held by the controller lock.
func (c *Controller) applyPush(evt *platform.PushEvent) {
	switch evt.Kind {
	case platform.PushNewMessage:
		c.applyPushMessage(evt)
	case platform.PushTyping:
		if evt.ActorID == c.selfID() {
			return // our own signal echoed back
		}
		c.typing.ApplyRemote(evt.ConversationID, evt.Typing)
	}
}

func (c *Controller) applyPushMessage(evt *platform.PushEvent) {
	c.mu.Lock()
	selfID := c.self.UserID
	result := c.timeline.ApplyRemote(evt, selfID)

	open := c.timeline.ConversationID() == evt.ConversationID
	if result != ApplyDuplicate {
		c.directory.Touch(evt.ConversationID, evt.Message.ID, evt.Message.Text,
			evt.Message.SentAt, open, evt.Message.AuthorID == selfID)
	}
	c.mu.Unlock()

	switch result {
	case ApplyDuplicate:
		metrics.DuplicateEvents.Inc()
		return
	case ApplyReconciled:
		metrics.PlaceholdersReconciled.Inc()
		c.publishTimeline(evt.ConversationID)
	case ApplyAppended:
		if evt.Message.AuthorID != selfID {
			// A real message supersedes any pending typing indicator.
			c.typing.ClearRemote()
		}
		c.publishTimeline(evt.ConversationID)
	case ApplyIgnored:
		// Not the open conversation: directory summary was bumped above,
		// the timeline stays untouched.
		c.bus.Publish(bus.Event{Kind: bus.KindChatDirectory, Timestamp: time.Now()})
	}

	c.cacheMessage(evt.Message)
}

func (c *Controller) publishTimeline(conversationID string) {
	c.bus.Publish(bus.Event{Kind: bus.KindChatTimeline, Timestamp: time.Now(), Payload: conversationID})
}

// cacheMessage hands a confirmed message to the ingest engine for the
// SQLite cache. Placeholders never reach it.
func (c *Controller) cacheMessage(m *platform.Message) {
	c.bus.Publish(bus.Event{Kind: bus.KindCacheMessage, Timestamp: time.Now(), Payload: m})
}
