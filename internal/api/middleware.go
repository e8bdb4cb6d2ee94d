package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"evalgo.org/deployhub/models"
)

// Settings is the subset of the system config read by middleware and handlers.
type Settings interface {
	Bool(key string, def bool) bool
	Int(key string, def int) int
	Strings(key string) []string
}

// IPAllowList rejects clients whose address matches no rule of the
// ip_allow_list setting. It is only active while enable_ip_allow_list is
// true. Settings are read per request so changes apply immediately.
func IPAllowList(settings Settings, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !settings.Bool(models.ConfigEnableIPAllowList, false) {
				return next(c)
			}

			ip := clientIP(c.Request())
			for _, rule := range settings.Strings(models.ConfigIPAllowList) {
				if matchIP(ip, rule) {
					return next(c)
				}
			}

			logger.Warn().Str("ip", ip).Str("path", c.Request().URL.Path).Msg("request rejected by ip allow list")
			return echo.NewHTTPError(http.StatusForbidden, "IP address "+ip+" is not allowed")
		}
	}
}

// clientIP prefers the first X-Forwarded-For entry over the peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get(echo.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// matchIP checks ip against one rule: a CIDR block, a prefix ending in *,
// or an exact address.
func matchIP(ip, rule string) bool {
	rule = strings.TrimSpace(rule)
	switch {
	case rule == "":
		return false
	case strings.Contains(rule, "*"):
		prefix, _, _ := strings.Cut(rule, "*")
		return strings.HasPrefix(ip, prefix)
	case strings.Contains(rule, "/"):
		_, network, err := net.ParseCIDR(rule)
		if err != nil {
			return false
		}
		parsed := net.ParseIP(ip)
		return parsed != nil && network.Contains(parsed)
	default:
		return ip == rule
	}
}

// RequestLogger logs each request through zerolog.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

// ValidateIDParam rejects :id path parameters that are not positive integers.
func ValidateIDParam(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if id == "" {
			return next(c)
		}
		if n, err := strconv.Atoi(id); err != nil || n < 1 {
			return BadRequestError("Invalid ID format", "ID must be a positive integer. Got: "+id)
		}
		return next(c)
	}
}

// SecurityHeaders middleware adds security headers to responses
func SecurityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("X-Content-Type-Options", "nosniff")
		c.Response().Header().Set("X-Frame-Options", "DENY")
		c.Response().Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		return next(c)
	}
}
