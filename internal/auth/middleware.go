package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	// ContextKeyClaims is the key for storing JWT claims in context
	ContextKeyClaims = "claims"
)

// Middleware is the authentication middleware
type Middleware struct {
	jwtService *JWTService
	enabled    bool
	skipper    middleware.Skipper
}

// NewMiddleware creates a new authentication middleware. Requests for which
// skipper returns true pass without a token.
func NewMiddleware(jwtService *JWTService, enabled bool, skipper middleware.Skipper) *Middleware {
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}
	return &Middleware{
		jwtService: jwtService,
		enabled:    enabled,
		skipper:    skipper,
	}
}

// RequireAuth is middleware that requires JWT authentication. Missing and
// invalid tokens are rejected with 403.
func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !m.enabled || m.skipper(c) {
			return next(c)
		}

		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusForbidden, "Token is missing")
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		claims, err := m.jwtService.ValidateToken(tokenString)
		if err != nil {
			if err == ErrExpiredToken {
				return echo.NewHTTPError(http.StatusForbidden, "Token has expired")
			}
			return echo.NewHTTPError(http.StatusForbidden, "Invalid or expired token")
		}

		c.Set(ContextKeyClaims, claims)

		return next(c)
	}
}

// GetClaims extracts JWT claims from Echo context
func GetClaims(c echo.Context) (*Claims, bool) {
	claims, ok := c.Get(ContextKeyClaims).(*Claims)
	return claims, ok
}
