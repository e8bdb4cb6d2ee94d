// Package api provides the Center HTTP server for DeployHub.
// It uses the Echo framework to serve operator login, user and system
// config management, the agent directory and the call-api proxy.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"evalgo.org/deployhub/internal/agents"
	"evalgo.org/deployhub/internal/auth"
	"evalgo.org/deployhub/internal/config"
	"evalgo.org/deployhub/internal/sysconfig"
	"evalgo.org/deployhub/internal/users"
	"evalgo.org/deployhub/internal/version"
)

// BasePath prefixes every Center route.
const BasePath = "/api/deploy-center"

// Deps are the services the Center server exposes.
type Deps struct {
	Users     *users.Service
	SysConfig *sysconfig.Service
	Agents    *agents.Registry
	Forwarder *agents.Forwarder
	JWT       *auth.JWTService
	TOTP      *auth.TOTP
	Logger    zerolog.Logger
}

// Server represents the DeployHub Center API server.
type Server struct {
	echo       *echo.Echo
	config     *config.Config
	users      *users.Service
	sysconfig  *sysconfig.Service
	agents     *agents.Registry
	forwarder  *agents.Forwarder
	jwt        *auth.JWTService
	totp       *auth.TOTP
	authMiddle *auth.Middleware
	logger     zerolog.Logger
}

// New creates a new Center server instance.
func New(cfg *config.Config, deps Deps) *Server {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Center.Debug
	e.HTTPErrorHandler = HTTPErrorHandler

	s := &Server{
		echo:      e,
		config:    cfg,
		users:     deps.Users,
		sysconfig: deps.SysConfig,
		agents:    deps.Agents,
		forwarder: deps.Forwarder,
		jwt:       deps.JWT,
		totp:      deps.TOTP,
		logger:    deps.Logger.With().Str("component", "center").Logger(),
	}
	s.authMiddle = auth.NewMiddleware(deps.JWT, cfg.Security.AuthEnabled, publicRoute)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// publicRoute reports the routes reachable without a token.
func publicRoute(c echo.Context) bool {
	path := strings.TrimPrefix(c.Path(), BasePath)
	switch {
	case path == "/auth/login", path == "/auth/logout", path == "/health":
		return true
	case strings.HasPrefix(path, "/2fa/"):
		return true
	}
	return false
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(RequestLogger(s.logger))
	s.echo.Use(SecurityHeaders)

	if len(s.config.Security.AllowedOrigins) > 0 {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.Security.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	if s.config.Security.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.config.Security.RateLimit),
		)))
	}

	s.echo.Use(IPAllowList(s.sysconfig, s.logger))
	s.echo.Use(s.authMiddle.RequireAuth)
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	g := s.echo.Group(BasePath)

	g.GET("/health", s.healthCheck)

	authRoutes := g.Group("/auth")
	authRoutes.POST("/login", s.login)
	authRoutes.POST("/logout", s.logout)

	twoFA := g.Group("/2fa")
	twoFA.GET("/setup/:username", s.setupTwoFactor)
	twoFA.POST("/verify", s.verifyTwoFactor)
	twoFA.GET("/status/:username", s.twoFactorStatus)

	userRoutes := g.Group("/user")
	userRoutes.GET("/list", s.listUsers)
	userRoutes.GET("/:id", s.getUser, ValidateIDParam)
	userRoutes.POST("/create", s.createUser)
	userRoutes.PUT("/:id", s.updateUser, ValidateIDParam)
	userRoutes.PUT("/:id/change-status", s.changeUserStatus, ValidateIDParam)
	userRoutes.DELETE("/:id", s.deleteUser, ValidateIDParam)

	cfgRoutes := g.Group("/system-config")
	cfgRoutes.GET("/list", s.listSystemConfig)
	cfgRoutes.GET("/:config_key", s.getSystemConfig)
	cfgRoutes.POST("", s.createSystemConfig)
	cfgRoutes.PUT("/:config_key", s.updateSystemConfig)
	cfgRoutes.DELETE("/:config_key", s.deleteSystemConfig)

	agentRoutes := g.Group("/agent")
	agentRoutes.GET("/list", s.listAgents)
	agentRoutes.GET("/:id", s.getAgent, ValidateIDParam)
	agentRoutes.POST("/register", s.registerAgent)
	agentRoutes.PUT("/:id", s.updateAgent, ValidateIDParam)
	agentRoutes.DELETE("/:id", s.deleteAgent, ValidateIDParam)
	agentRoutes.POST("/:id/call-api", s.callAgentAPI, ValidateIDParam)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Center.Host, s.config.Center.Port)

	s.logger.Info().
		Str("address", addr).
		Str("version", version.Version).
		Bool("auth", s.config.Security.AuthEnabled).
		Bool("debug", s.config.Center.Debug).
		Msg("starting deployhub center")

	s.echo.Server.ReadTimeout = s.config.Center.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Center.WriteTimeout

	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down deployhub center")
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

// healthCheck handles health check requests.
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "deployhub-center",
		"version": version.Version,
		"agents":  len(s.agents.List()),
		"time":    time.Now().Format(time.RFC3339),
	})
}

// ServeHTTP allows Server to implement http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
