package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/logging"
)

// ApiResponse is the envelope of every successful JSON response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeError writes err with a status derived from its sentinel.
// Unexpected errors are logged and returned as 500.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error, errorCode, action string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, errorCode = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrInvalidInput):
		status, errorCode = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperrors.ErrJobTerminal):
		status, errorCode = http.StatusConflict, "job_finished"
	case errors.Is(err, apperrors.ErrConflict):
		status, errorCode = http.StatusConflict, "conflict"
	}

	message := logging.SanitizeError(err)
	if status == http.StatusInternalServerError {
		logger.Error(action, zap.String("error", message))
	} else {
		logger.Debug(action, zap.Int("status", status), zap.String("error", message))
	}
	if err := ErrorResponse(w, status, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func badRequest(w http.ResponseWriter, logger *zap.Logger, errorCode, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
