package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"worktrack/internal/autotimer"
	"worktrack/internal/logger"
	"worktrack/pkg/api"
)

// GetStatus handles GET /v1/status.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, toStatusResponse(h.svc.GetStatus()))
}

// Start handles POST /v1/start.
// Jobs are read from the session store.
func (h *Handlers) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.store.GetJobs(ctx)
	if err != nil {
		logger.FromContext(ctx, h.logger).Error("failed to load jobs", "error", err)
		h.httpError(w, "Failed to load jobs", http.StatusInternalServerError)
		return
	}

	started := h.svc.Start(ctx, jobs)
	h.respondJson(w, http.StatusOK, api.JobsResponse{Count: len(jobs), Started: started})
}

// Stop handles POST /v1/stop.
func (h *Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	h.svc.Stop(r.Context())
	h.respondAction(w, true)
}

// Restart handles POST /v1/restart.
// It clears the active session and starts again with the stored jobs.
func (h *Handlers) Restart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.store.GetJobs(ctx)
	if err != nil {
		logger.FromContext(ctx, h.logger).Error("failed to load jobs", "error", err)
		h.httpError(w, "Failed to load jobs", http.StatusInternalServerError)
		return
	}

	started := h.svc.ForceRestart(ctx, jobs)
	h.respondJson(w, http.StatusOK, api.JobsResponse{Count: len(jobs), Started: started})
}

// UpdateJobs handles PUT /v1/jobs.
// With a jobs file configured the file is reloaded; otherwise the stored jobs are re-applied.
func (h *Handlers) UpdateJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx, h.logger)

	if h.jobs != nil {
		jobs, err := h.jobs.Reload(ctx)
		if err != nil {
			log.Warn("jobs reload failed", "error", err)
			h.httpError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.respondJson(w, http.StatusOK, api.JobsResponse{Count: len(jobs), Started: h.svc.GetStatus().Enabled})
		return
	}

	jobs, err := h.store.GetJobs(ctx)
	if err != nil {
		log.Error("failed to load jobs", "error", err)
		h.httpError(w, "Failed to load jobs", http.StatusInternalServerError)
		return
	}
	h.svc.UpdateJobs(ctx, jobs)
	h.respondJson(w, http.StatusOK, api.JobsResponse{Count: len(jobs), Started: h.svc.GetStatus().Enabled})
}

// Cancel handles POST /v1/cancel.
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	h.respondAction(w, h.svc.CancelPendingAction(r.Context()))
}

// Resume handles POST /v1/resume.
func (h *Handlers) Resume(w http.ResponseWriter, r *http.Request) {
	h.respondAction(w, h.svc.ManualRestart(r.Context()))
}

// ManualMode handles POST /v1/manual/mode.
func (h *Handlers) ManualMode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.svc.SetManualMode(ctx); err != nil {
		if errors.Is(err, autotimer.ErrNoJob) {
			h.httpError(w, "No current job", http.StatusConflict)
			return
		}
		logger.FromContext(ctx, h.logger).Error("failed to enter manual mode", "error", err)
		h.httpError(w, "Failed to enter manual mode", http.StatusInternalServerError)
		return
	}
	h.respondAction(w, true)
}

// ManualStart handles POST /v1/manual/start.
func (h *Handlers) ManualStart(w http.ResponseWriter, r *http.Request) {
	var req api.ManualStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.JobID == "" {
		h.httpError(w, "job_id is required", http.StatusBadRequest)
		return
	}

	h.svc.HandleManualTimerStart(r.Context(), req.JobID)
	h.respondAction(w, true)
}

// ManualStop handles POST /v1/manual/stop.
func (h *Handlers) ManualStop(w http.ResponseWriter, r *http.Request) {
	h.svc.HandleManualTimerStop(r.Context())
	h.respondAction(w, true)
}

// ForceStop handles POST /v1/force-stop.
func (h *Handlers) ForceStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.svc.ForceStopAndSave(ctx)
	if err != nil {
		logger.FromContext(ctx, h.logger).Error("force stop failed", "error", err)
		h.httpError(w, "Failed to stop session", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.ForceStopResponse{Saved: res.Saved, Hours: res.Hours})
}

// AppResume handles POST /v1/app/resume.
// Clients call it when they return to the foreground.
func (h *Handlers) AppResume(w http.ResponseWriter, r *http.Request) {
	h.svc.CheckPendingActions(r.Context())
	h.respondAction(w, true)
}

func (h *Handlers) respondAction(w http.ResponseWriter, ok bool) {
	st := toStatusResponse(h.svc.GetStatus())
	h.respondJson(w, http.StatusOK, api.ActionResponse{OK: ok, Status: &st})
}
