package handler

import (
	"net/http"

	"github.com/lumenote-ai/notebook-platform/internal/events"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	bridge *events.Bridge
}

// NewHealthHandler creates a new health handler. bridge may be nil when the
// NATS event bridge is disabled.
func NewHealthHandler(bridge *events.Bridge) *HealthHandler {
	return &HealthHandler{bridge: bridge}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.bridge != nil && !h.bridge.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
