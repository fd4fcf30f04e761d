package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/research-review-backend/internal/services"
)

// Error codes returned in ErrorResponse.Code.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeValidation        = "validation_failed"
	ErrCodeUnauthenticated   = "unauthenticated"
	ErrCodeForbidden         = "forbidden"
	ErrCodeNotFound          = "not_found"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeDuplicate         = "duplicate_assignment"
	ErrCodeConflict          = "conflict"
	ErrCodeRateLimited       = "too_many_requests"
	ErrCodeInternal          = "internal_error"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)

// statusFor maps a service failure kind to an HTTP status and code.
func statusFor(k services.Kind) (int, string) {
	switch k {
	case services.KindValidation:
		return http.StatusBadRequest, ErrCodeValidation
	case services.KindUnauthorized:
		return http.StatusForbidden, ErrCodeForbidden
	case services.KindNotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case services.KindInvalidTransition:
		return http.StatusConflict, ErrCodeInvalidTransition
	case services.KindDuplicate:
		return http.StatusConflict, ErrCodeDuplicate
	case services.KindConflict:
		return http.StatusConflict, ErrCodeConflict
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// failErr writes err using its service kind. Infrastructure details are not
// echoed to the client.
func failErr(c *gin.Context, err error) {
	status, code := statusFor(services.KindOf(err))
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal server error"
	}
	fail(c, status, code, msg)
}
