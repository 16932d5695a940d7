package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseWorkbookID extracts the workbook ID from the path parameter "id".
// On failure a 400 response has been written.
func ParseWorkbookID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r.PathValue("id"), "invalid_workbook_id", "Invalid workbook ID format", logger)
}

// ParseJobID extracts the job ID from the path parameter "id".
func ParseJobID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r.PathValue("id"), "invalid_job_id", "Invalid job ID format", logger)
}

func parseUUID(w http.ResponseWriter, raw, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(w, logger, errorCode, errorMessage)
		return uuid.Nil, false
	}
	return id, true
}
