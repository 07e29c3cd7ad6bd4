package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Well-known event kinds. Subscribers filter by namespace prefix,
// e.g. "push." receives every inbound platform event.
const (
	KindPushMessage = "push.message" // payload *platform.PushEvent
	KindPushTyping  = "push.typing"  // payload *platform.PushEvent

	KindSocketConnected    = "socket.connected"
	KindSocketDisconnected = "socket.disconnected"

	KindChatSelected   = "chat.selected"       // payload display id
	KindChatTimeline   = "chat.timeline"       // payload conversation id whose timeline changed
	KindChatTyping     = "chat.typing_changed" // payload TypingChange
	KindChatDirectory  = "chat.directory"      // directory summaries changed
	KindChatSendFailed = "chat.send_failed"    // payload SendFailure

	// Cache-bound events, consumed by the ingest engine.
	KindCacheMessage   = "cache.message"   // payload *platform.Message
	KindCacheDirectory = "cache.directory" // payload []platform.ConversationSummary
	KindCacheHistory   = "cache.history"   // payload []*platform.Message

	KindProfileStatus = "profile.status_changed"
)

// TypingChange is the payload for chat.typing_changed events.
type TypingChange struct {
	ConversationID string
	Typing         bool
}

// SendFailure is the payload for chat.send_failed events.
type SendFailure struct {
	ConversationID string
	PlaceholderID  string
	Reason         string
}
