package store

// Conversation is a cached conversation summary.
type Conversation struct {
	ConversationID string
	CounterpartID  string
	Username       string
	Name           string
	LastMessageAt  int64
	LastMessage    string
	UnreadCount    int
}

// Message is a cached confirmed message. Placeholders are never cached.
type Message struct {
	ID             int64
	ConversationID string
	MsgID          string
	AuthorID       string
	Body           string
	Attachments    string // JSON-encoded attachment list, "" when none
	FromMe         bool
	Timestamp      int64
}

// SearchResult holds a message with a match snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
