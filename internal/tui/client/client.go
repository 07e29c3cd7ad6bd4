// Package client talks to the daemon's local API over its Unix socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Client wraps the daemon's local HTTP API.
type Client struct {
	http       *http.Client
	socketPath string
}

// New returns a client bound to the daemon's Unix domain socket.
func New(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// Status is the daemon's runtime state.
type Status struct {
	Profile string `json:"profile"`
	State   string `json:"state"`
}

// Conversation is one directory entry as served by the daemon.
type Conversation struct {
	DisplayID      string `json:"display_id"`
	ConversationID string `json:"conversation_id"`
	CounterpartID  string `json:"counterpart_id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	LastMessage    string `json:"last_message"`
	LastActivityAt int64  `json:"last_activity_at_unix_ms"`
	UnreadCount    int    `json:"unread_count"`
	Unconfirmed    bool   `json:"unconfirmed"`
}

// Message is one timeline entry as served by the daemon.
type Message struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	SentAt  int64  `json:"sent_at_unix_ms"`
	Origin  string `json:"origin"`
	Pending bool   `json:"pending"`
}

// Timeline is the open conversation's snapshot.
type Timeline struct {
	Selected     string    `json:"selected"`
	Messages     []Message `json:"messages"`
	Loading      bool      `json:"loading"`
	RemoteTyping bool      `json:"remote_typing"`
}

// SearchResult is one hit of a cache search.
type SearchResult struct {
	ConversationID string `json:"conversation_id"`
	MsgID          string `json:"msg_id"`
	Body           string `json:"body"`
	Timestamp      int64  `json:"timestamp_unix_ms"`
	Snippet        string `json:"snippet"`
}

// Event is one frame of the daemon's event stream.
type Event struct {
	EventID          string          `json:"event_id"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurred_at_unix_ms"`
	Payload          json.RawMessage `json:"payload"`
}

// Status fetches the daemon state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.get(ctx, "/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Conversations fetches the directory.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var resp struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.get(ctx, "/v1/conversations", &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// Refresh asks the daemon to refetch the directory, then returns it.
func (c *Client) Refresh(ctx context.Context) ([]Conversation, error) {
	var resp struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.post(ctx, "/v1/conversations/refresh", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// Select opens a conversation by display id.
func (c *Client) Select(ctx context.Context, displayID string) error {
	return c.post(ctx, "/v1/conversations/"+displayID+"/select", nil, nil)
}

// Deselect closes the open conversation.
func (c *Client) Deselect(ctx context.Context) error {
	return c.post(ctx, "/v1/deselect", nil, nil)
}

// Timeline fetches the open conversation's snapshot.
func (c *Client) Timeline(ctx context.Context) (*Timeline, error) {
	var tl Timeline
	if err := c.get(ctx, "/v1/messages", &tl); err != nil {
		return nil, err
	}
	return &tl, nil
}

// Send performs an optimistic send into the open conversation.
func (c *Client) Send(ctx context.Context, text string) error {
	return c.post(ctx, "/v1/messages", map[string]string{"text": text}, nil)
}

// Typing reports a local keystroke.
func (c *Client) Typing(ctx context.Context) error {
	return c.post(ctx, "/v1/typing", nil, nil)
}

// Search queries the cached message bodies.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var resp struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.get(ctx, "/v1/search?q="+url.QueryEscape(query), &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Resolve finds or synthesizes a conversation for the given identifiers.
func (c *Client) Resolve(ctx context.Context, conversationID, userID, username string) (*Conversation, error) {
	var conv Conversation
	err := c.post(ctx, "/v1/conversations", map[string]string{
		"conversation_id": conversationID,
		"user_id":         userID,
		"username":        username,
	}, &conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Events opens the daemon's event stream. The returned channel closes when
// the stream drops or ctx is cancelled.
func (c *Client) Events(ctx context.Context, prefix string) (<-chan Event, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.socketPath)
		},
		HandshakeTimeout: 5 * time.Second,
	}
	streamURL := "ws://unix/v1/events"
	if prefix != "" {
		streamURL += "?prefix=" + url.QueryEscape(prefix)
	}
	conn, _, err := dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial event stream: %w", err)
	}

	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		defer func() { _ = conn.Close() }()
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()
		for {
			var evt Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case ch <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix"+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix"+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: status %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
