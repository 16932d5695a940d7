package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

// JobHandler exposes classification job status and cancellation.
type JobHandler struct {
	jobs   services.JobService
	logger *zap.Logger
}

func NewJobHandler(jobs services.JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger.Named("job-handler")}
}

// RegisterRoutes registers the job routes on the given mux.
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/jobs/{id}", h.Get)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.Cancel)
	mux.HandleFunc("GET /api/workbooks/{id}/jobs", h.ListByWorkbook)
}

// Get handles GET /api/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseJobID(w, r, h.logger)
	if !ok {
		return
	}
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "get_job_failed", "Failed to get job")
		return
	}
	writeOK(w, h.logger, http.StatusOK, job)
}

// Cancel handles POST /api/jobs/{id}/cancel. A finished job yields 409.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseJobID(w, r, h.logger)
	if !ok {
		return
	}
	job, err := h.jobs.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "cancel_job_failed", "Failed to cancel job")
		return
	}
	h.logger.Info("Job cancelled", zap.String("job_id", id.String()))
	writeOK(w, h.logger, http.StatusOK, job)
}

// ListByWorkbook handles GET /api/workbooks/{id}/jobs
func (h *JobHandler) ListByWorkbook(w http.ResponseWriter, r *http.Request) {
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}
	jobs, err := h.jobs.ListByWorkbook(r.Context(), workbookID)
	if err != nil {
		writeError(w, h.logger, err, "list_jobs_failed", "Failed to list jobs")
		return
	}
	writeOK(w, h.logger, http.StatusOK, jobs)
}
