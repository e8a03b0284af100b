// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on the message text. Generic codes mirror HTTP status semantics;
// the domain-specific ones name the operation that failed.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-livechat-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeConfigFailed     = "config_failed"
	ErrCodeSessionFailed    = "session_failed"
	ErrCodeSendFailed       = "send_failed"
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeUpdateFailed     = "update_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// serviceError maps a service error onto the envelope. Validation sentinels
// become 400, missing resources 404, and anything else a 500 carrying code
// and the wrapped error text as detail.
func serviceError(c *gin.Context, err error, code, msg string) {
	switch {
	case errors.Is(err, services.ErrMissingChatbotID):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing chatbot_id")
	case errors.Is(err, services.ErrMissingSessionID):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing session_id")
	case errors.Is(err, services.ErrEmptyContent):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
	case errors.Is(err, services.ErrContentTooLong),
		errors.Is(err, services.ErrInvalidSenderRole),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidConfig):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrChatbotNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chatbot not found")
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
	case errors.Is(err, services.ErrCannedNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "canned response not found")
	default:
		failDetail(c, http.StatusInternalServerError, code, msg, err.Error())
	}
}
