package api

import (
	"net/http"

	"github.com/amora-chat/amora/internal/status"
)

// StatusHandler reports the daemon's runtime state.
type StatusHandler struct {
	profileName string
	machine     *status.Machine
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(profileName string, m *status.Machine) *StatusHandler {
	return &StatusHandler{profileName: profileName, machine: m}
}

// Get handles GET /v1/status.
func (h *StatusHandler) Get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"profile": h.profileName,
		"state":   string(h.machine.Current()),
	})
}
