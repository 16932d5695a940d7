package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// AnalyzeRequest for POST /api/workbooks/{id}/analyze
type AnalyzeRequest struct {
	SelectedColumn string                `json:"selectedColumn" validate:"required"`
	Provider       string                `json:"provider" validate:"provider"`
	Guide          []models.TaxonomyNode `json:"guide,omitempty"`
}

// AnalyzeResponse carries the proposal. NeedsTaxonomyConfirmation is false
// when the flat bucketing already produced a result.
type AnalyzeResponse struct {
	NeedsTaxonomyConfirmation bool `json:"needsTaxonomyConfirmation"`
	*models.TaxonomyProposal
}

// FinalizeRequest for POST /api/workbooks/{id}/analyze/finalize
type FinalizeRequest struct {
	SelectedColumn   string                `json:"selectedColumn" validate:"required"`
	ConfirmedBuckets []models.TaxonomyNode `json:"confirmedBuckets"`
	UniqueValues     map[string]int        `json:"uniqueValues"`
	Provider         string                `json:"provider" validate:"provider"`
}

// FinalizeResponse for POST /api/workbooks/{id}/analyze/finalize
type FinalizeResponse struct {
	JobID   uuid.UUID                 `json:"jobId"`
	Message string                    `json:"message"`
	Job     *models.ClassificationJob `json:"job"`
}

// ============================================================================
// Handler
// ============================================================================

// AnalysisHandler handles the analyze, finalize and browse endpoints.
type AnalysisHandler struct {
	analysis services.AnalysisService
	logger   *zap.Logger
}

func NewAnalysisHandler(analysis services.AnalysisService, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis, logger: logger.Named("analysis-handler")}
}

// RegisterRoutes registers the analysis routes on the given mux.
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workbooks/{id}/analyze", h.Analyze)
	mux.HandleFunc("POST /api/workbooks/{id}/analyze/finalize", h.Finalize)
	mux.HandleFunc("GET /api/workbooks/{id}/bucketRows", h.BucketRows)
	mux.HandleFunc("GET /api/analyses/{id}", h.GetResult)
}

// Analyze handles POST /api/workbooks/{id}/analyze
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}
	var req AnalyzeRequest
	if !decodeAndValidate(w, r, h.logger, &req) {
		return
	}
	provider, _ := models.ParseAIProvider(req.Provider)

	proposal, err := h.analysis.Propose(r.Context(), services.ProposeInput{
		WorkbookID: workbookID,
		Column:     req.SelectedColumn,
		Provider:   provider,
		Guide:      req.Guide,
	})
	if err != nil {
		writeError(w, h.logger, err, "analyze_failed", "Failed to analyze column")
		return
	}
	writeOK(w, h.logger, http.StatusOK, AnalyzeResponse{
		NeedsTaxonomyConfirmation: proposal.Result == nil,
		TaxonomyProposal:          proposal,
	})
}

// Finalize handles POST /api/workbooks/{id}/analyze/finalize
func (h *AnalysisHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}
	var req FinalizeRequest
	if !decodeAndValidate(w, r, h.logger, &req) {
		return
	}
	provider, _ := models.ParseAIProvider(req.Provider)

	job, err := h.analysis.Finalize(r.Context(), services.FinalizeInput{
		WorkbookID:   workbookID,
		Column:       req.SelectedColumn,
		Taxonomy:     req.ConfirmedBuckets,
		UniqueValues: req.UniqueValues,
		Provider:     provider,
	})
	if err != nil {
		writeError(w, h.logger, err, "finalize_failed", "Failed to start classification")
		return
	}
	writeOK(w, h.logger, http.StatusAccepted, FinalizeResponse{
		JobID:   job.ID,
		Message: "Analysis started in background",
		Job:     job,
	})
}

// BucketRows handles GET /api/workbooks/{id}/bucketRows?analysisId=&bucketId=
func (h *AnalysisHandler) BucketRows(w http.ResponseWriter, r *http.Request) {
	workbookID, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}
	q := r.URL.Query()
	bucketID := q.Get("bucketId")
	if q.Get("analysisId") == "" || bucketID == "" {
		badRequest(w, h.logger, "missing_parameters", "analysisId and bucketId are required")
		return
	}
	analysisID, ok := parseUUID(w, q.Get("analysisId"), "invalid_analysis_id", "Invalid analysis ID format", h.logger)
	if !ok {
		return
	}

	rows, err := h.analysis.BucketRows(r.Context(), workbookID, analysisID, bucketID)
	if err != nil {
		writeError(w, h.logger, err, "bucket_rows_failed", "Failed to read bucket rows")
		return
	}
	writeOK(w, h.logger, http.StatusOK, rows)
}

// GetResult handles GET /api/analyses/{id}
func (h *AnalysisHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r.PathValue("id"), "invalid_analysis_id", "Invalid analysis ID format", h.logger)
	if !ok {
		return
	}
	result, err := h.analysis.GetResult(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "get_analysis_failed", "Failed to get analysis")
		return
	}
	writeOK(w, h.logger, http.StatusOK, result)
}
