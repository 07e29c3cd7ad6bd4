package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/amora-chat/amora/internal/chat"
	"github.com/amora-chat/amora/internal/platform"
	"github.com/amora-chat/amora/internal/store"
)

// messageDTO is the wire shape of one timeline entry.
type messageDTO struct {
	ID          string                `json:"id"`
	Text        string                `json:"text,omitempty"`
	Attachments []platform.Attachment `json:"attachments,omitempty"`
	SentAt      int64                 `json:"sent_at_unix_ms"`
	Origin      string                `json:"origin"`
	Pending     bool                  `json:"pending,omitempty"`
}

func toMessageDTO(m chat.Message) messageDTO {
	return messageDTO{
		ID:          m.ID,
		Text:        m.Text,
		Attachments: m.Attachments,
		SentAt:      m.SentAt.UnixMilli(),
		Origin:      string(m.Origin),
		Pending:     m.Pending,
	}
}

// MessageHandler serves the open conversation's timeline.
type MessageHandler struct {
	ctrl   *chat.Controller
	db     *store.DB
	logger *zap.Logger
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(ctrl *chat.Controller, db *store.DB, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{ctrl: ctrl, db: db, logger: logger}
}

// Timeline handles GET /v1/messages: the open conversation's snapshot.
func (h *MessageHandler) Timeline(w http.ResponseWriter, _ *http.Request) {
	msgs := h.ctrl.Timeline()
	dtos := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		dtos = append(dtos, toMessageDTO(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"selected":      h.ctrl.Selected(),
		"messages":      dtos,
		"loading":       h.ctrl.Loading(),
		"remote_typing": h.ctrl.RemoteTyping(),
	})
}

// Send handles POST /v1/messages: optimistic send into the open conversation.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text        string                `json:"text"`
		Attachments []platform.Attachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.ctrl.Send(r.Context(), req.Text, req.Attachments)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrNoServerID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotSelected):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// Typing handles POST /v1/typing: a local keystroke notification.
func (h *MessageHandler) Typing(w http.ResponseWriter, _ *http.Request) {
	h.ctrl.NotifyTyping()
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /v1/messages/{id}. Local-only removal.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ctrl.DeleteMessage(id) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /v1/messages: wipes the open timeline locally.
func (h *MessageHandler) Clear(w http.ResponseWriter, _ *http.Request) {
	h.ctrl.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /v1/search over the cached message bodies.
func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	conversationID := r.URL.Query().Get("conversation_id")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	results, err := h.db.SearchMessages(query, conversationID, limit)
	if err != nil {
		h.logger.Error("search failed", zap.Error(err), zap.String("query", query))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	type searchResultDTO struct {
		ConversationID string `json:"conversation_id"`
		MsgID          string `json:"msg_id"`
		Body           string `json:"body"`
		Timestamp      int64  `json:"timestamp_unix_ms"`
		Snippet        string `json:"snippet"`
	}
	dtos := make([]searchResultDTO, 0, len(results))
	for _, res := range results {
		dtos = append(dtos, searchResultDTO{
			ConversationID: res.Message.ConversationID,
			MsgID:          res.Message.MsgID,
			Body:           res.Message.Body,
			Timestamp:      res.Message.Timestamp,
			Snippet:        res.Snippet,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": dtos})
}
