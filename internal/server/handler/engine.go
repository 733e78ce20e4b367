package handler

import (
	"context"
	"net/http"

	"github.com/calebhsu/longbox/internal/scheduler"
)

// EngineHandler exposes start/stop control over the scheduled services.
type EngineHandler struct {
	coord *scheduler.Coordinator

	// baseCtx is the parent for tick contexts started over HTTP, so ticks
	// outlive the request that started the engine.
	baseCtx context.Context
}

// NewEngineHandler creates an EngineHandler. Ticks launched via the start
// endpoint descend from baseCtx, not from the HTTP request context.
func NewEngineHandler(coord *scheduler.Coordinator, baseCtx context.Context) *EngineHandler {
	return &EngineHandler{coord: coord, baseCtx: baseCtx}
}

// Start launches all registered services. Starting an already running engine
// is a no-op.
// POST /api/engine/start
func (h *EngineHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.coord.Start(h.baseCtx)
	writeJSON(w, http.StatusOK, h.coord.Status())
}

// Stop clears all service timers and waits for in-flight ticks to drain
// before responding.
// POST /api/engine/stop
func (h *EngineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.coord.Stop()
	writeJSON(w, http.StatusOK, h.coord.Status())
}
