package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// APIError is a non-2xx response from the platform API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api: status %d: %s", e.Status, e.Body)
}

// Client is the request/response half of the transport binding.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates an API client for the given base URL and bearer token.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListConversations fetches the conversation directory.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var resp struct {
		Conversations []ConversationSummary `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// History fetches the full message history of a conversation,
// normalized and ascending by server timestamp.
func (c *Client) History(ctx context.Context, conversationID string) ([]*Message, error) {
	var resp struct {
		Messages []wireMessage `json:"messages"`
	}
	path := "/conversations/" + conversationID + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	msgs := make([]*Message, 0, len(resp.Messages))
	for i := range resp.Messages {
		msgs = append(msgs, resp.Messages[i].normalize())
	}
	return msgs, nil
}

// SendMessage posts a message and returns the server-assigned message id.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string, attachments []Attachment) (string, error) {
	body := map[string]any{
		"conversation_id": conversationID,
		"text":            text,
		"attachments":     attachments,
	}
	var resp struct {
		ID string `json:"id"`
	}
	path := "/conversations/" + conversationID + "/messages"
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("send message: server returned no id")
	}
	return resp.ID, nil
}

// SendTyping fires a typing signal. Fire-and-forget: the caller already
// rate-limits, and failures are not worth surfacing.
func (c *Client) SendTyping(ctx context.Context, conversationID string) error {
	body := map[string]any{"conversation_id": conversationID}
	return c.do(ctx, http.MethodPost, "/conversations/"+conversationID+"/typing", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("platform request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &APIError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
