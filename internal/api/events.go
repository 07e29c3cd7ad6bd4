package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/amora-chat/amora/internal/bus"
	"github.com/amora-chat/amora/internal/status"
)

const (
	eventWriteWait   = 10 * time.Second
	eventPingPeriod  = 25 * time.Second
	eventBufferDepth = 256
)

// eventEnvelope is one frame of the /v1/events stream.
type eventEnvelope struct {
	EventID          string `json:"event_id"`
	Profile          string `json:"profile"`
	Kind             string `json:"kind"`
	OccurredAtUnixMs int64  `json:"occurred_at_unix_ms"`
	Payload          any    `json:"payload,omitempty"`
}

// EventsHandler streams bus events to local clients over a websocket.
type EventsHandler struct {
	profileName string
	bus         *bus.Bus
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

// NewEventsHandler creates the event stream handler.
func NewEventsHandler(profileName string, b *bus.Bus, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		profileName: profileName,
		bus:         b,
		logger:      logger,
		upgrader: websocket.Upgrader{
			// The socket file is mode 0600; every peer is the local user.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Stream handles GET /v1/events. The optional prefix query narrows the
// subscription, default "chat.".
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "chat."
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch, unsub := h.bus.Subscribe(prefix, eventBufferDepth)
	defer unsub()

	// Drain client frames so pongs and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(h.envelope(evt)); err != nil {
				h.logger.Debug("event stream closed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (h *EventsHandler) envelope(evt bus.Event) eventEnvelope {
	return eventEnvelope{
		EventID:          uuid.NewString(),
		Profile:          h.profileName,
		Kind:             evt.Kind,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
		Payload:          envelopePayload(evt),
	}
}

// envelopePayload maps known payload types to their wire shape. Unknown
// payloads are dropped from the envelope; the kind alone is enough for
// clients to refetch.
func envelopePayload(evt bus.Event) any {
	switch p := evt.Payload.(type) {
	case string:
		if p == "" {
			return nil
		}
		return map[string]string{"id": p}
	case bus.TypingChange:
		return map[string]any{"conversation_id": p.ConversationID, "typing": p.Typing}
	case bus.SendFailure:
		return map[string]any{
			"conversation_id": p.ConversationID,
			"placeholder_id":  p.PlaceholderID,
			"reason":          p.Reason,
		}
	case status.StatusChange:
		return map[string]string{"from": string(p.From), "to": string(p.To)}
	default:
		return nil
	}
}
