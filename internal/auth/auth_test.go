package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/deployhub/models"
)

func enabledUser() *models.User {
	return &models.User{ID: 4, Username: "alice", Status: models.UserEnabled}
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewJWTService("secret")

	token, err := svc.GenerateToken(enabledUser(), time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, 4, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestGenerateTokenDisabledUser(t *testing.T) {
	user := enabledUser()
	user.Status = models.UserDisabled

	_, err := NewJWTService("secret").GenerateToken(user, time.Hour)
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestValidateTokenFailures(t *testing.T) {
	svc := NewJWTService("secret")

	expired, err := svc.GenerateToken(enabledUser(), -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	foreign, err := NewJWTService("other").GenerateToken(enabledUser(), time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.NoError(t, ComparePassword("hunter2", hash))
	assert.ErrorIs(t, ComparePassword("wrong", hash), ErrInvalidCredentials)
}

func TestTOTP(t *testing.T) {
	tfa := NewTOTP("DeployHub")

	setup, err := tfa.Generate("alice")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.URI, "otpauth://totp/DeployHub:alice")
	assert.Contains(t, setup.QRCodeBase64, "data:image/png;base64,")

	now := time.Now()
	tfa.now = func() time.Time { return now }

	code, err := totp.GenerateCode(setup.Secret, now)
	require.NoError(t, err)
	assert.True(t, tfa.Verify(setup.Secret, code))

	previous, err := totp.GenerateCode(setup.Secret, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.True(t, tfa.Verify(setup.Secret, previous), "one period of skew is accepted")

	stale, err := totp.GenerateCode(setup.Secret, now.Add(-5*time.Minute))
	require.NoError(t, err)
	if stale != code && stale != previous {
		assert.False(t, tfa.Verify(setup.Secret, stale))
	}

	assert.False(t, tfa.Verify("", code))
	assert.False(t, tfa.Verify(setup.Secret, ""))
}

func TestOperatorContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, OperatorFrom(ctx))

	op := &models.UserProfile{ID: 9, Username: "ops"}
	assert.Same(t, op, OperatorFrom(WithOperator(ctx, op)))
}

func TestRequireAuth(t *testing.T) {
	svc := NewJWTService("secret")
	mw := NewMiddleware(svc, true, func(c echo.Context) bool {
		return c.Request().URL.Path == "/health"
	})
	handler := mw.RequireAuth(func(c echo.Context) error {
		claims, ok := GetClaims(c)
		if ok {
			return c.String(http.StatusOK, claims.Username)
		}
		return c.String(http.StatusOK, "anonymous")
	})

	token, err := svc.GenerateToken(enabledUser(), time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		header  string
		wantErr int
		body    string
	}{
		{name: "skipped path", path: "/health", body: "anonymous"},
		{name: "missing token", path: "/user/list", wantErr: http.StatusForbidden},
		{name: "invalid token", path: "/user/list", header: "Bearer nope", wantErr: http.StatusForbidden},
		{name: "valid token", path: "/user/list", header: "Bearer " + token, body: "alice"},
		{name: "bare token", path: "/user/list", header: token, body: "alice"},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			err := handler(e.NewContext(req, rec))

			if tt.wantErr != 0 {
				var he *echo.HTTPError
				require.ErrorAs(t, err, &he)
				assert.Equal(t, tt.wantErr, he.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestRequireAuthDisabled(t *testing.T) {
	mw := NewMiddleware(NewJWTService("secret"), false, nil)
	e := echo.New()
	rec := httptest.NewRecorder()
	err := mw.RequireAuth(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })(
		e.NewContext(httptest.NewRequest(http.MethodGet, "/user/list", nil), rec))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
