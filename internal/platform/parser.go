package platform

import (
	"encoding/json"
	"fmt"
)

// The push service is not consistent about frame shape: the same event can
// arrive as an object {"action":..., "payload":...}, as a two-element array
// [action, payload], or with the payload string-encoded inside either form.
// Normalize is the single place that variance is allowed to exist; everything
// downstream sees only PushEvent.

type wireFrame struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type wirePayload struct {
	ConversationID string          `json:"conversation_id"`
	ActorID        string          `json:"actor_id"`
	Message        *wireMessage    `json:"message"`
	TypingState    json.RawMessage `json:"typing_state"`
}

// Normalize reduces a raw socket frame to a canonical PushEvent.
// A non-nil error means the frame is malformed and must be dropped;
// the stream itself continues.
func Normalize(frame []byte) (*PushEvent, error) {
	action, payload, err := splitFrame(frame)
	if err != nil {
		return nil, err
	}

	var wp wirePayload
	if err := json.Unmarshal(payload, &wp); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if wp.ConversationID == "" {
		return nil, fmt.Errorf("payload missing conversation_id")
	}

	switch action {
	case PushNewMessage:
		if wp.Message == nil {
			return nil, fmt.Errorf("new_message payload missing message")
		}
		msg := wp.Message.normalize()
		if msg.ConversationID == "" {
			msg.ConversationID = wp.ConversationID
		}
		actor := wp.ActorID
		if actor == "" {
			actor = msg.AuthorID
		}
		return &PushEvent{
			Kind:           PushNewMessage,
			ConversationID: wp.ConversationID,
			ActorID:        actor,
			Message:        msg,
		}, nil

	case PushTyping:
		return &PushEvent{
			Kind:           PushTyping,
			ConversationID: wp.ConversationID,
			ActorID:        wp.ActorID,
			Typing:         decodeTypingState(wp.TypingState),
		}, nil

	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// splitFrame extracts (action, payload) from the three wire shapes.
func splitFrame(frame []byte) (string, json.RawMessage, error) {
	// Array shape: [action, payload].
	var arr []json.RawMessage
	if err := json.Unmarshal(frame, &arr); err == nil {
		if len(arr) != 2 {
			return "", nil, fmt.Errorf("array frame has %d elements, want 2", len(arr))
		}
		var action string
		if err := json.Unmarshal(arr[0], &action); err != nil {
			return "", nil, fmt.Errorf("array frame action: %w", err)
		}
		return action, unquotePayload(arr[1]), nil
	}

	// Object shape: {"action": ..., "payload": ...}.
	var obj wireFrame
	if err := json.Unmarshal(frame, &obj); err != nil {
		return "", nil, fmt.Errorf("decode frame: %w", err)
	}
	if obj.Action == "" {
		return "", nil, fmt.Errorf("frame missing action")
	}
	return obj.Action, unquotePayload(obj.Payload), nil
}

// unquotePayload unwraps a string-encoded payload ("{\"a\":1}" -> {"a":1}).
func unquotePayload(raw json.RawMessage) json.RawMessage {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return json.RawMessage(s)
	}
	return raw
}

// decodeTypingState accepts bool, "true"/"false", and 0/1: the push service
// emits all three.
func decodeTypingState(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == "true" || s == "1"
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return false
}
