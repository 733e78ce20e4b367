package handler

import (
	"net/http"

	"github.com/calebhsu/longbox/internal/scheduler"
)

// StatusHandler serves the coordinator status snapshot for the dashboard.
type StatusHandler struct {
	coord *scheduler.Coordinator
}

// NewStatusHandler creates a StatusHandler for the given coordinator.
func NewStatusHandler(coord *scheduler.Coordinator) *StatusHandler {
	return &StatusHandler{coord: coord}
}

// GetStatus responds with the running state, active service names, and each
// service's last tick result.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.Status())
}
