package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"worktrack/internal/geofence"
	"worktrack/internal/logger"
	"worktrack/pkg/api"
)

// PushLocation handles POST /v1/location.
func (h *Handlers) PushLocation(w http.ResponseWriter, r *http.Request) {
	var req api.LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		h.httpError(w, "Coordinates out of range", http.StatusBadRequest)
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	delivered := h.location.Push(geofence.Sample{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		Timestamp: ts,
	})
	h.respondJson(w, http.StatusAccepted, api.LocationResponse{Delivered: delivered})
}

// SetPermission handles PUT /v1/location/permission.
func (h *Handlers) SetPermission(w http.ResponseWriter, r *http.Request) {
	var req api.PermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.location.SetPermission(req.Granted)
	h.respondJson(w, http.StatusOK, req)
}

// GetGeofence handles GET /v1/geofence.
func (h *Handlers) GetGeofence(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, api.GeofenceResponse{
		Monitoring: h.geofence.IsMonitoring(),
		Statuses:   toGeofenceStatuses(h.geofence.Statuses()),
		Inside:     h.geofence.JobsInside(),
	})
}

// CheckGeofence handles POST /v1/geofence/check.
// It evaluates the latest known location against the stored jobs.
func (h *Handlers) CheckGeofence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx, h.logger)

	jobs, err := h.store.GetJobs(ctx)
	if err != nil {
		log.Error("failed to load jobs", "error", err)
		h.httpError(w, "Failed to load jobs", http.StatusInternalServerError)
		return
	}

	statuses, err := h.geofence.CheckCurrentLocation(ctx, jobs)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.respondJson(w, http.StatusOK, api.GeofenceResponse{
		Monitoring: h.geofence.IsMonitoring(),
		Statuses:   toGeofenceStatuses(statuses),
		Inside:     h.geofence.JobsInside(),
	})
}
