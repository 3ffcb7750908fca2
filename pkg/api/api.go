// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the daemon.
package api

import "time"

// HealthResponse is returned by the liveness and readiness checks.
type HealthResponse struct {
	Status     string `json:"status"`
	Monitoring bool   `json:"monitoring,omitempty"`
}

// StatusResponse is the auto-timer status.
type StatusResponse struct {
	State             string  `json:"state"`
	JobID             string  `json:"job_id,omitempty"`
	JobName           string  `json:"job_name,omitempty"`
	RemainingSeconds  float64 `json:"remaining_seconds"`
	TotalDelaySeconds float64 `json:"total_delay_seconds"`
	Message           string  `json:"message"`
	Enabled           bool    `json:"enabled"`
	Paused            bool    `json:"paused"`
}

// ActionResponse reports whether a command changed anything.
type ActionResponse struct {
	OK     bool            `json:"ok"`
	Status *StatusResponse `json:"status,omitempty"`
}

// ManualStartRequest is the request body for POST /v1/manual/start.
type ManualStartRequest struct {
	JobID string `json:"job_id"`
}

// ForceStopResponse is the response body for POST /v1/force-stop.
type ForceStopResponse struct {
	Saved bool    `json:"saved"`
	Hours float64 `json:"hours"`
}

// JobsResponse is the response body for PUT /v1/jobs and the start commands.
type JobsResponse struct {
	Count   int  `json:"count"`
	Started bool `json:"started"`
}

// LocationRequest is a device location upload.
type LocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	// Timestamp defaults to the time the daemon received the sample.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// LocationResponse reports how many watchers received the sample.
type LocationResponse struct {
	Delivered int `json:"delivered"`
}

// PermissionRequest grants or revokes location access.
type PermissionRequest struct {
	Granted bool `json:"granted"`
}

// GeofenceStatus is one job's last evaluation.
type GeofenceStatus struct {
	JobID          string    `json:"job_id"`
	IsInside       bool      `json:"is_inside"`
	DistanceMeters float64   `json:"distance_meters"`
	LastUpdate     time.Time `json:"last_update"`
}

// GeofenceResponse lists geofence statuses.
type GeofenceResponse struct {
	Monitoring bool             `json:"monitoring"`
	Statuses   []GeofenceStatus `json:"statuses"`
	// Inside lists the jobs the device is currently inside.
	Inside []string `json:"inside,omitempty"`
}

// WorkRecord is one completed stretch of work.
type WorkRecord struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	JobID     string    `json:"job_id"`
	Hours     float64   `json:"hours"`
	Overtime  bool      `json:"overtime"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkRecordsResponse is the response body for GET /v1/records.
type WorkRecordsResponse struct {
	Records []WorkRecord `json:"records"`
}

// ErrorResponse is the standard error format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
