package handlers

import (
	"net/http"

	"worktrack/pkg/api"
)

// Healthz answers as long as the process serves HTTP.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, api.HealthResponse{Status: "healthy"})
}

// Readyz reports ready once the session store answers.
// Geofence monitoring is reported, not required.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.httpError(w, "Store unavailable", http.StatusServiceUnavailable)
		return
	}
	h.respondJson(w, http.StatusOK, api.HealthResponse{
		Status:     "ready",
		Monitoring: h.geofence.IsMonitoring(),
	})
}
