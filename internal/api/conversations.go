package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/amora-chat/amora/internal/chat"
	"github.com/amora-chat/amora/internal/store"
)

// conversationDTO is the wire shape of one directory entry.
type conversationDTO struct {
	DisplayID      string `json:"display_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	CounterpartID  string `json:"counterpart_id,omitempty"`
	Username       string `json:"username,omitempty"`
	Name           string `json:"name,omitempty"`
	LastMessage    string `json:"last_message,omitempty"`
	LastActivityAt int64  `json:"last_activity_at_unix_ms,omitempty"`
	UnreadCount    int    `json:"unread_count,omitempty"`
	Unconfirmed    bool   `json:"unconfirmed,omitempty"`
}

func toConversationDTO(c chat.Conversation) conversationDTO {
	dto := conversationDTO{
		DisplayID:      c.DisplayID,
		ConversationID: c.ConversationID,
		CounterpartID:  c.CounterpartID,
		Username:       c.Username,
		Name:           c.Name,
		LastMessage:    c.LastMessage,
		UnreadCount:    c.UnreadCount,
		Unconfirmed:    c.Unconfirmed,
	}
	if !c.LastActivityAt.IsZero() {
		dto.LastActivityAt = c.LastActivityAt.UnixMilli()
	}
	return dto
}

// ConversationHandler serves the conversation directory.
type ConversationHandler struct {
	ctrl   *chat.Controller
	db     *store.DB
	logger *zap.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(ctrl *chat.Controller, db *store.DB, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{ctrl: ctrl, db: db, logger: logger}
}

// List handles GET /v1/conversations. The live directory wins; when it is
// still empty (daemon just started, platform unreachable) the cached
// directory is served instead so the UI has something to show.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.ctrl.Conversations()
	if len(entries) > 0 {
		dtos := make([]conversationDTO, 0, len(entries))
		for _, e := range entries {
			dtos = append(dtos, toConversationDTO(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": dtos, "source": "live"})
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	cached, err := h.db.ListConversations(limit, 0)
	if err != nil {
		h.logger.Error("list cached conversations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	dtos := make([]conversationDTO, 0, len(cached))
	for _, c := range cached {
		dtos = append(dtos, conversationDTO{
			DisplayID:      c.Username,
			ConversationID: c.ConversationID,
			CounterpartID:  c.CounterpartID,
			Username:       c.Username,
			Name:           c.Name,
			LastMessage:    c.LastMessage,
			LastActivityAt: c.LastMessageAt,
			UnreadCount:    c.UnreadCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": dtos, "source": "cache"})
}

// Refresh handles POST /v1/conversations/refresh.
func (h *ConversationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.ctrl.RefreshDirectory(r.Context())
	h.List(w, r)
}

// Resolve handles POST /v1/conversations. The body carries whatever
// identifiers the caller has; an entry is found or synthesized.
func (h *ConversationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversation_id"`
		UserID         string `json:"user_id"`
		Username       string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.ctrl.ResolveOrCreate(chat.ResolveHint{
		ExistingID:          req.ConversationID,
		CounterpartUserID:   req.UserID,
		CounterpartUsername: req.Username,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toConversationDTO(entry))
}

// Select handles POST /v1/conversations/{display_id}/select.
func (h *ConversationHandler) Select(w http.ResponseWriter, r *http.Request) {
	displayID := chi.URLParam(r, "display_id")
	if err := h.ctrl.Select(r.Context(), displayID); err != nil {
		if errors.Is(err, chat.ErrUnknownConversation) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selected": displayID})
}

// Deselect handles POST /v1/deselect.
func (h *ConversationHandler) Deselect(w http.ResponseWriter, _ *http.Request) {
	h.ctrl.Deselect()
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /v1/conversations/{display_id}. Local-only removal.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	displayID := chi.URLParam(r, "display_id")

	entry := findEntry(h.ctrl.Conversations(), displayID)
	if !h.ctrl.RemoveConversation(displayID) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if entry != nil && entry.ConversationID != "" {
		if err := h.db.DeleteConversation(entry.ConversationID); err != nil {
			h.logger.Warn("cache delete failed", zap.Error(err),
				zap.String("conversation_id", entry.ConversationID))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func findEntry(entries []chat.Conversation, displayID string) *chat.Conversation {
	for i := range entries {
		if entries[i].DisplayID == displayID {
			return &entries[i]
		}
	}
	return nil
}
