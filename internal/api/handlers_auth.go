package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"evalgo.org/deployhub/internal/auth"
	"evalgo.org/deployhub/models"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Identifier    string `json:"identifier"`
	Credential    string `json:"credential"`
	TwoFactorCode string `json:"two_factor_code"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	UserID int    `json:"user_id"`
	Token  string `json:"token"`
}

// TwoFactorVerifyRequest is the body of POST /2fa/verify.
type TwoFactorVerifyRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

// login handles POST /auth/login
func (s *Server) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if req.Identifier == "" || req.Credential == "" {
		return BadRequestError("Login failed", "identifier and credential are required")
	}

	user, err := s.users.Authenticate(req.Identifier, req.Credential)
	if err != nil {
		s.logger.Warn().Str("username", req.Identifier).Err(err).Msg("login rejected")
		return err
	}

	if s.sysconfig.Bool(models.ConfigEnable2FA, false) {
		if user.TwoFactorSecret == "" {
			return BadRequestError("Login failed", "two-factor authentication is enabled but no authenticator is bound to this account")
		}
		if strings.TrimSpace(req.TwoFactorCode) == "" {
			return BadRequestError("Login failed", "two-factor code is required")
		}
		if !s.totp.Verify(user.TwoFactorSecret, strings.TrimSpace(req.TwoFactorCode)) {
			s.logger.Warn().Str("username", user.Username).Msg("login rejected: wrong two-factor code")
			return auth.ErrInvalid2FA
		}
	}

	token, err := s.jwt.GenerateToken(&user, s.tokenTTL())
	if err != nil {
		return err
	}

	s.logger.Info().Int("user_id", user.ID).Str("username", user.Username).Msg("user logged in")
	return c.JSON(http.StatusOK, models.OK("login successful", LoginResponse{UserID: user.ID, Token: token}))
}

// tokenTTL reads token_expiration_hours, falling back to the configured lifetime.
func (s *Server) tokenTTL() time.Duration {
	def := int(s.config.Security.TokenExpiration / time.Hour)
	if def < 1 {
		def = 24
	}
	hours := s.sysconfig.Int(models.ConfigTokenExpirationHours, def)
	if hours < 1 {
		hours = def
	}
	return time.Duration(hours) * time.Hour
}

// logout handles POST /auth/logout. Tokens are stateless, so there is
// nothing to revoke.
func (s *Server) logout(c echo.Context) error {
	return c.JSON(http.StatusOK, models.OK("logout successful", nil))
}

// setupTwoFactor handles GET /2fa/setup/:username. It binds a fresh secret
// to the account. Accounts that already have one can only be rebound by
// the account owner or an administrator.
func (s *Server) setupTwoFactor(c echo.Context) error {
	username := c.Param("username")
	user, ok := s.users.GetByUsername(username)
	if !ok {
		return NotFoundError("User", username)
	}

	if user.TwoFactorSecret != "" && s.config.Security.AuthEnabled {
		caller, err := s.callerFromHeader(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusForbidden, "an authenticator is already bound to this account")
		}
		if caller.ID != user.ID && caller.Role != models.RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "only the account owner or an administrator can rebind two-factor authentication")
		}
	}

	setup, err := s.totp.Generate(user.Username)
	if err != nil {
		return err
	}
	if err := s.users.SetTwoFactorSecret(user.ID, setup.Secret); err != nil {
		return err
	}

	s.logger.Info().Int("user_id", user.ID).Msg("two-factor secret bound")
	return c.JSON(http.StatusOK, models.OK(nil, setup))
}

// verifyTwoFactor handles POST /2fa/verify.
func (s *Server) verifyTwoFactor(c echo.Context) error {
	var req TwoFactorVerifyRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	user, ok := s.users.GetByUsername(req.Username)
	if !ok {
		return NotFoundError("User", req.Username)
	}
	valid := user.TwoFactorSecret != "" && s.totp.Verify(user.TwoFactorSecret, strings.TrimSpace(req.Code))
	return c.JSON(http.StatusOK, models.OK(nil, valid))
}

// twoFactorStatus handles GET /2fa/status/:username.
func (s *Server) twoFactorStatus(c echo.Context) error {
	username := c.Param("username")
	user, ok := s.users.GetByUsername(username)
	if !ok {
		return NotFoundError("User", username)
	}
	return c.JSON(http.StatusOK, models.OK(nil, user.TwoFactorSecret != ""))
}

// callerFromHeader validates the bearer token on routes the guard skips.
func (s *Server) callerFromHeader(c echo.Context) (*models.User, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return nil, auth.ErrInvalidToken
	}
	claims, err := s.jwt.ValidateToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
	if err != nil {
		return nil, err
	}
	user, ok := s.users.Get(claims.UserID)
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &user, nil
}

// currentUser returns the authenticated user, or nil when auth is disabled.
func (s *Server) currentUser(c echo.Context) (*models.User, error) {
	claims, ok := auth.GetClaims(c)
	if !ok {
		if s.config.Security.AuthEnabled {
			return nil, echo.NewHTTPError(http.StatusForbidden, "Token is missing")
		}
		return nil, nil
	}
	user, ok := s.users.Get(claims.UserID)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusForbidden, "token user no longer exists")
	}
	if user.Status != models.UserEnabled {
		return nil, echo.NewHTTPError(http.StatusForbidden, auth.ErrUserDisabled.Error())
	}
	return &user, nil
}
