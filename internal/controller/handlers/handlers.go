// Package handlers contains HTTP handlers for the control API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"worktrack/internal/autotimer"
	"worktrack/internal/geofence"
	"worktrack/internal/store"
	"worktrack/pkg/api"
)

// AutoTimer is the auto-timer service surface exposed over HTTP.
type AutoTimer interface {
	Start(ctx context.Context, jobs []store.Job) bool
	Stop(ctx context.Context)
	ForceRestart(ctx context.Context, jobs []store.Job) bool
	UpdateJobs(ctx context.Context, jobs []store.Job)
	GetStatus() autotimer.Status
	CancelPendingAction(ctx context.Context) bool
	ManualRestart(ctx context.Context) bool
	SetManualMode(ctx context.Context) error
	HandleManualTimerStart(ctx context.Context, jobID string)
	HandleManualTimerStop(ctx context.Context)
	ForceStopAndSave(ctx context.Context) (autotimer.StopResult, error)
	CheckPendingActions(ctx context.Context)
}

// Geofence exposes monitor state.
type Geofence interface {
	IsMonitoring() bool
	Statuses() []geofence.Status
	JobsInside() []string
	CheckCurrentLocation(ctx context.Context, jobs []store.Job) ([]geofence.Status, error)
}

// Location receives device uploads.
type Location interface {
	Push(sample geofence.Sample) int
	SetPermission(granted bool)
}

// Store is what the handlers read from the session store.
type Store interface {
	GetJobs(ctx context.Context) ([]store.Job, error)
	ListWorkRecords(ctx context.Context, jobID string, limit int) ([]store.WorkRecord, error)
	Ping(ctx context.Context) error
}

// JobsReloader re-reads the jobs file and applies it.
type JobsReloader interface {
	Reload(ctx context.Context) ([]store.Job, error)
}

// Deps are the collaborators of the handlers. Jobs is optional.
type Deps struct {
	Service  AutoTimer
	Geofence Geofence
	Location Location
	Store    Store
	Jobs     JobsReloader
	Logger   *slog.Logger
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	svc      AutoTimer
	geofence Geofence
	location Location
	store    Store
	jobs     JobsReloader
	logger   *slog.Logger
}

// New creates a new Handlers instance.
func New(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		svc:      d.Service,
		geofence: d.Geofence,
		location: d.Location,
		store:    d.Store,
		jobs:     d.Jobs,
		logger:   logger,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func toStatusResponse(st autotimer.Status) api.StatusResponse {
	return api.StatusResponse{
		State:             string(st.State),
		JobID:             st.JobID,
		JobName:           st.JobName,
		RemainingSeconds:  st.RemainingSeconds,
		TotalDelaySeconds: st.TotalDelaySeconds,
		Message:           st.Message,
		Enabled:           st.Enabled,
		Paused:            st.Paused,
	}
}

func toGeofenceStatuses(statuses []geofence.Status) []api.GeofenceStatus {
	out := make([]api.GeofenceStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, api.GeofenceStatus{
			JobID:          s.JobID,
			IsInside:       s.IsInside,
			DistanceMeters: s.DistanceMeters,
			LastUpdate:     s.LastUpdate,
		})
	}
	return out
}
