package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"evalgo.org/deployhub/internal/agents"
	"evalgo.org/deployhub/internal/auth"
	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/sysconfig"
	"evalgo.org/deployhub/internal/users"
	"evalgo.org/deployhub/models"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		want     string
	}{
		{
			name: "error with details",
			apiError: &APIError{
				Code:    400,
				Message: "Bad Request",
				Details: "Invalid JSON format",
			},
			want: "Bad Request: Invalid JSON format",
		},
		{
			name: "error without details",
			apiError: &APIError{
				Code:    404,
				Message: "Not Found",
			},
			want: "Not Found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apiError.Error(); got != tt.want {
				t.Errorf("APIError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBadRequestError(t *testing.T) {
	err := BadRequestError("Invalid input", "Field 'name' is required")

	if err.Code != http.StatusBadRequest {
		t.Errorf("BadRequestError().Code = %v, want %v", err.Code, http.StatusBadRequest)
	}
	if err.Message != "Invalid input" {
		t.Errorf("BadRequestError().Message = %v, want %v", err.Message, "Invalid input")
	}
	if err.Details != "Field 'name' is required" {
		t.Errorf("BadRequestError().Details = %v, want %v", err.Details, "Field 'name' is required")
	}
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("Agent", "7")

	if err.Code != http.StatusNotFound {
		t.Errorf("NotFoundError().Code = %v, want %v", err.Code, http.StatusNotFound)
	}
	if err.Message != "Agent not found" {
		t.Errorf("NotFoundError().Message = %v, want %v", err.Message, "Agent not found")
	}
	if err.Details != "7" {
		t.Errorf("NotFoundError().Details = %v, want '7'", err.Details)
	}
}

func TestConflictError(t *testing.T) {
	err := ConflictError("Resource conflict", "Resource already exists")

	if err.Code != http.StatusConflict {
		t.Errorf("ConflictError().Code = %v, want %v", err.Code, http.StatusConflict)
	}
	if err.Details != "Resource already exists" {
		t.Errorf("ConflictError().Details = %v, want %v", err.Details, "Resource already exists")
	}
}

func TestDomainError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: 9", storage.ErrNotFound), http.StatusNotFound},
		{users.ErrDuplicateUsername, http.StatusConflict},
		{sysconfig.ErrDuplicateKey, http.StatusConflict},
		{users.ErrOwnStatus, http.StatusBadRequest},
		{users.ErrInvalidUser, http.StatusBadRequest},
		{agents.ErrInvalidAgent, http.StatusBadRequest},
		{agents.ErrInvalidCall, http.StatusBadRequest},
		{auth.ErrInvalidCredentials, http.StatusBadRequest},
		{auth.ErrUserDisabled, http.StatusBadRequest},
		{auth.ErrInvalid2FA, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := domainError(tt.err).Code; got != tt.want {
				t.Errorf("domainError(%v).Code = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		debug    bool
		wantCode int
		wantMsg  string
	}{
		{"echo http error", echo.NewHTTPError(http.StatusForbidden, "Token is missing"), false, http.StatusForbidden, "Token is missing"},
		{"api error", BadRequestError("Bad request", "name is required"), false, http.StatusBadRequest, "Bad request: name is required"},
		{"domain error", users.ErrOwnStatus, false, http.StatusBadRequest, "Bad request: " + users.ErrOwnStatus.Error()},
		{"internal hidden", errors.New("secret detail"), false, http.StatusInternalServerError, "An internal error occurred. Please try again later."},
		{"internal in debug", errors.New("secret detail"), true, http.StatusInternalServerError, "Internal server error: secret detail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Debug = tt.debug
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			HTTPErrorHandler(tt.err, c)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var res models.HttpResult
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.Code != tt.wantCode || res.Status != models.ResultFailed {
				t.Errorf("envelope = %+v", res)
			}
			if res.Msg != tt.wantMsg {
				t.Errorf("msg = %v, want %v", res.Msg, tt.wantMsg)
			}
		})
	}
}

func TestGetHTTPMessage(t *testing.T) {
	tests := []struct {
		name string
		code int
		want string
	}{
		{"Bad Request", http.StatusBadRequest, "Bad request"},
		{"Not Found", http.StatusNotFound, "Resource not found"},
		{"Internal Server Error", http.StatusInternalServerError, "Internal server error"},
		{"Unknown Code", 999, http.StatusText(999)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getHTTPMessage(tt.code); got != tt.want {
				t.Errorf("getHTTPMessage() = %v, want %v", got, tt.want)
			}
		})
	}
}
