package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
	"github.com/dyslexia-hub/therapy-workflow/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	TotalCount int       `json:"total_count,omitempty"`
}

func writeJSON(c *gin.Context, status int, data any) {
	c.JSON(status, JSONResponse{
		Success:   true,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: requestID(c),
	})
}

func writeList[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, JSONResponse{
		Success:   true,
		Data:      items,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), TotalCount: len(items)},
		RequestID: requestID(c),
	})
}

func writeJSONError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: requestID(c),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusFor maps a domain error kind onto an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrRoleNotPermitted):
		return http.StatusForbidden, "role_not_permitted"
	case errors.Is(err, shared.ErrPreconditionNotMet):
		return http.StatusPreconditionFailed, "precondition_not_met"
	case errors.Is(err, shared.ErrStageAlreadyCompleted):
		return http.StatusConflict, "stage_already_completed"
	case errors.Is(err, shared.ErrAlreadyCompleted):
		return http.StatusConflict, "already_completed"
	case errors.Is(err, shared.ErrDuplicateRecord):
		return http.StatusConflict, "duplicate_record"
	case errors.Is(err, shared.ErrOutOfRange):
		return http.StatusUnprocessableEntity, "out_of_range"
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "invalid_input"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondError writes err as an API error. Internal failures are logged and
// their details are withheld from the client.
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		msg = de.Message
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			logger.String("path", c.FullPath()),
			logger.String("request_id", requestID(c)),
			logger.Err(err),
		)
		msg = "An unexpected error occurred"
	}
	writeJSONError(c, status, code, msg)
}

// badRequest reports a body or parameter that could not be decoded.
func badRequest(c *gin.Context, err error) {
	writeJSONError(c, http.StatusBadRequest, "bad_request", err.Error())
}
