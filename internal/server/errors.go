package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/floodwatch/internal/audit/domain"
	authdomain "github.com/smallbiznis/floodwatch/internal/auth/domain"
	"github.com/smallbiznis/floodwatch/internal/auth/token"
	"github.com/smallbiznis/floodwatch/internal/authorization"
	reportdomain "github.com/smallbiznis/floodwatch/internal/report/domain"
	twofactordomain "github.com/smallbiznis/floodwatch/internal/twofactor/domain"
	"github.com/smallbiznis/floodwatch/internal/validation"
	"github.com/smallbiznis/floodwatch/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgUnauthenticated    = "Authentication required"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

// errorResponse is the failure envelope. Error carries raw detail and is
// only filled outside production.
type errorResponse struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Error   string                  `json:"error,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

type mappedError struct {
	status  int
	kind    string
	message string
	fields  []validation.FieldError
}

func ErrorHandlingMiddleware(exposeDetail bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		mapped := mapError(lastErr.Err)
		resp := errorResponse{
			Success: false,
			Message: mapped.message,
			Errors:  mapped.fields,
		}
		if exposeDetail {
			resp.Error = lastErr.Err.Error()
		}
		c.AbortWithStatusJSON(mapped.status, resp)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) mappedError {
	if verrs, ok := validation.As(err); ok {
		return mappedError{
			status:  http.StatusBadRequest,
			kind:    "validation_error",
			message: "Validation failed",
			fields:  verrs.Fields,
		}
	}

	switch {
	case errors.Is(err, authdomain.ErrInvalidCredentials):
		return mappedError{http.StatusUnauthorized, "invalid_credentials", msgInvalidCredentials, nil}
	case errors.Is(err, authdomain.ErrUnauthenticated),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrTokenExpired):
		return mappedError{http.StatusUnauthorized, "unauthenticated", msgUnauthenticated, nil}
	case errors.Is(err, twofactordomain.ErrChallengeNotFound),
		errors.Is(err, twofactordomain.ErrChallengeExpired),
		errors.Is(err, twofactordomain.ErrInvalidCode):
		return mappedError{http.StatusUnauthorized, "invalid_code", "Invalid or expired verification code", nil}
	case errors.Is(err, authorization.ErrForbidden):
		return mappedError{http.StatusForbidden, "forbidden", "You are not authorized to perform this action", nil}
	case errors.Is(err, authdomain.ErrAccountExists):
		return mappedError{http.StatusBadRequest, "duplicate", "An account with this email already exists", nil}
	case errors.Is(err, authdomain.ErrSignupInProgress):
		return mappedError{http.StatusConflict, "conflict", "A signup for this email is already in progress", nil}
	case errors.Is(err, authdomain.ErrAccountCreation):
		return mappedError{http.StatusInternalServerError, "store_error", "Could not create account", nil}
	case errors.Is(err, reportdomain.ErrInvalidStatus):
		return mappedError{http.StatusBadRequest, "invalid_status", "Status must be one of active, resolved, false_report", nil}
	case errors.Is(err, authdomain.ErrInvalidRole):
		return mappedError{http.StatusBadRequest, "invalid_role", "Role must be one of user, moderator, admin", nil}
	case errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return mappedError{http.StatusBadRequest, "invalid_time_range", "start_at must not be after end_at", nil}
	case errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, ErrInvalidRequest):
		return mappedError{http.StatusBadRequest, "invalid_request", "Invalid request", nil}
	case errors.Is(err, reportdomain.ErrReportNotFound):
		return mappedError{http.StatusNotFound, "not_found", "Report not found", nil}
	case errors.Is(err, authdomain.ErrAccountNotFound):
		return mappedError{http.StatusNotFound, "not_found", "Account not found", nil}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return mappedError{http.StatusNotFound, "not_found", "Not found", nil}
	case errors.Is(err, ErrRateLimited):
		return mappedError{http.StatusTooManyRequests, "rate_limited", "Too many requests, please try again later", nil}
	default:
		return mappedError{http.StatusInternalServerError, "store_error", "Internal server error", nil}
	}
}

// classifyErrorForLog feeds the request logger's error_type/error_code fields.
func classifyErrorForLog(err error) (string, string) {
	mapped := mapError(err)
	return mapped.kind, http.StatusText(mapped.status)
}
