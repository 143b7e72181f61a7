package adapthttp

import (
	"net/http"

	"mindfulweb/internal/domain"
)

// ErrorCode is the machine-readable code of an error response.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeInvalidUserID      ErrorCode = "INVALID_USER_ID"
	CodeTimestamp          ErrorCode = "TIMESTAMP_ERROR"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
	CodeDatabase           ErrorCode = "DATABASE_ERROR"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeResourceNotFound   ErrorCode = "RESOURCE_NOT_FOUND"
	CodeConflict           ErrorCode = "CONFLICT"
)

// Messages that must not leak driver details.
const (
	msgSessionFailed = "Failed to create database session"
	msgUnavailable   = "Service is not available"
	msgDatabase      = "Database error while processing the request"
	msgInternal      = "Internal server error"
)

type errorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorResponse maps a failure from the application layer to a status, a code
// and a client-facing message.
func errorResponse(err error) (int, ErrorCode, string) {
	switch domain.KindOf(err) {
	case domain.KindConfiguration:
		return http.StatusBadRequest, CodeValidation, err.Error()
	case domain.KindEventStaging:
		return http.StatusUnprocessableEntity, CodeValidation, err.Error()
	case domain.KindDataIntegrity:
		return http.StatusConflict, CodeConflict, err.Error()
	case domain.KindConnection:
		return http.StatusServiceUnavailable, CodeServiceUnavailable, msgUnavailable
	case domain.KindSession, domain.KindUnexpectedSession:
		return http.StatusInternalServerError, CodeDatabase, msgSessionFailed
	case domain.KindUserProvisioning, domain.KindDataPersistence:
		return http.StatusInternalServerError, CodeDatabase, msgDatabase
	default:
		return http.StatusInternalServerError, CodeInternal, msgInternal
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", domain.KindOf(err).String(), "error", err)
	}
	writeError(w, status, code, msg)
}
