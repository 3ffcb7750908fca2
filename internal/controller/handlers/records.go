package handlers

import (
	"net/http"
	"strconv"

	"worktrack/internal/logger"
	"worktrack/pkg/api"
)

const maxRecordsLimit = 500

// ListRecords handles GET /v1/records?job_id=...&limit=...
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		h.httpError(w, "job_id is required", http.StatusBadRequest)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRecordsLimit {
			h.httpError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.store.ListWorkRecords(ctx, jobID, limit)
	if err != nil {
		logger.FromContext(ctx, h.logger).Error("failed to list work records", "job_id", jobID, "error", err)
		h.httpError(w, "Failed to list work records", http.StatusInternalServerError)
		return
	}

	resp := api.WorkRecordsResponse{Records: make([]api.WorkRecord, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, api.WorkRecord{
			ID:        rec.ID.String(),
			Date:      rec.Date,
			JobID:     rec.JobID,
			Hours:     rec.Hours,
			Overtime:  rec.Overtime,
			Notes:     rec.Notes,
			CreatedAt: rec.CreatedAt,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}
