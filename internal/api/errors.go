package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/deployhub/internal/agents"
	"evalgo.org/deployhub/internal/auth"
	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/sysconfig"
	"evalgo.org/deployhub/internal/users"
	"evalgo.org/deployhub/models"
)

// APIError represents a structured API error with HTTP status code.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// NewAPIError creates a new API error.
func NewAPIError(code int, message string, details string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Common error constructors
func BadRequestError(message, details string) *APIError {
	return NewAPIError(http.StatusBadRequest, message, details)
}

func NotFoundError(resource, id string) *APIError {
	return NewAPIError(http.StatusNotFound, fmt.Sprintf("%s not found", resource), id)
}

func InternalError(message, details string) *APIError {
	return NewAPIError(http.StatusInternalServerError, message, details)
}

func ConflictError(message, details string) *APIError {
	return NewAPIError(http.StatusConflict, message, details)
}

// domainError maps service errors onto API errors.
func domainError(err error) *APIError {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewAPIError(http.StatusNotFound, "Resource not found", err.Error())
	case errors.Is(err, users.ErrDuplicateUsername), errors.Is(err, sysconfig.ErrDuplicateKey):
		return ConflictError("Conflict", err.Error())
	case errors.Is(err, users.ErrInvalidUser),
		errors.Is(err, users.ErrOwnStatus),
		errors.Is(err, sysconfig.ErrInvalidConfig),
		errors.Is(err, agents.ErrInvalidAgent),
		errors.Is(err, agents.ErrInvalidCall):
		return BadRequestError("Bad request", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUserDisabled),
		errors.Is(err, auth.ErrInvalid2FA):
		return BadRequestError("Login failed", err.Error())
	}
	return InternalError("Internal server error", err.Error())
}

// HTTPErrorHandler renders every error as a failed HttpResult envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	// Don't send response if already sent
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		apiErr = &APIError{
			Code:    he.Code,
			Message: getHTTPMessage(he.Code),
			Details: fmt.Sprintf("%v", he.Message),
		}
	case errors.As(err, &apiErr):
	default:
		apiErr = domainError(err)
	}

	msg := apiErr.Error()
	if he != nil {
		msg = apiErr.Details
	}

	// Don't expose internal errors in production
	if apiErr.Code >= http.StatusInternalServerError && !c.Echo().Debug {
		msg = "An internal error occurred. Please try again later."
	}

	if err := c.JSON(apiErr.Code, models.Failed(apiErr.Code, msg)); err != nil {
		c.Logger().Error(err)
	}
}

// getHTTPMessage returns a user-friendly message for HTTP status codes.
func getHTTPMessage(code int) string {
	messages := map[int]string{
		http.StatusBadRequest:          "Bad request",
		http.StatusUnauthorized:        "Unauthorized",
		http.StatusForbidden:           "Forbidden",
		http.StatusNotFound:            "Resource not found",
		http.StatusMethodNotAllowed:    "Method not allowed",
		http.StatusConflict:            "Conflict",
		http.StatusUnprocessableEntity: "Unprocessable entity",
		http.StatusTooManyRequests:     "Too many requests",
		http.StatusInternalServerError: "Internal server error",
		http.StatusBadGateway:          "Bad gateway",
		http.StatusServiceUnavailable:  "Service unavailable",
	}

	if msg, ok := messages[code]; ok {
		return msg
	}
	return http.StatusText(code)
}
