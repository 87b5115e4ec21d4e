package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// EngineStatus reports whether the settlement engine is accepting operations.
type EngineStatus interface {
	Paused() bool
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	engine EngineStatus
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided engine and logger.
func NewHealthHandler(engine EngineStatus, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{engine: engine, logger: logger}
}

// HealthCheck responds with a JSON status indicating the server is alive and
// whether the engine is paused.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	paused := false
	if h.engine != nil && h.engine.Paused() {
		status = "paused"
		paused = true
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"paused":    paused,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
