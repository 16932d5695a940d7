package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/logging"
)

// ErrorResponse is the body of an actionable tool error. It is returned as
// a tool result with IsError set so the calling agent sees the details.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult builds an error tool result. Use it for problems the
// caller can fix, such as a bad ID or a job that already finished. System
// failures are returned as Go errors instead.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails is NewErrorResult with extra context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	body, _ := json.Marshal(ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	})
	result := mcp.NewToolResultText(string(body))
	result.IsError = true
	return result
}

// fromServiceError maps service sentinels onto error results. Anything it
// does not recognise is handed back as a Go error.
func fromServiceError(err error) (*mcp.CallToolResult, error) {
	msg := logging.SanitizeError(err)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", msg), nil
	case errors.Is(err, apperrors.ErrInvalidInput):
		return NewErrorResult("invalid_input", msg), nil
	case errors.Is(err, apperrors.ErrJobTerminal):
		return NewErrorResult("job_finished", msg), nil
	}
	return nil, err
}
