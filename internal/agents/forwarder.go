package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/models"
)

// UserHeader carries the caller's profile JSON to an agent.
const UserHeader = "X-User"

// ErrInvalidCall is returned for a malformed api_path or method.
var ErrInvalidCall = errors.New("invalid agent call")

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// hop-by-hop headers that must not be copied onto the forwarded request
var skipHeaders = map[string]bool{
	"Host":              true,
	"Connection":        true,
	"Keep-Alive":        true,
	"Proxy-Connection":  true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Te":                true,
	"Trailer":           true,
	"Content-Length":    true,
}

// Call describes one forwarded request.
type Call struct {
	AgentID  int
	APIPath  string
	Method   string
	Header   http.Header
	Body     io.Reader
	Operator *models.UserProfile

	// ContentLength is the inbound body size; -1 when unknown. A zero
	// length drops bodies that cannot report their own size.
	ContentLength int64
}

// Forwarder relays Center requests to an agent's API.
type Forwarder struct {
	registry *Registry
	client   *http.Client
	logger   zerolog.Logger
}

// NewForwarder returns a forwarder whose calls are bounded by timeout.
func NewForwarder(registry *Registry, timeout time.Duration, logger zerolog.Logger) *Forwarder {
	return &Forwarder{
		registry: registry,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "forwarder").Logger(),
	}
}

// Forward sends c to its agent and wraps the agent's JSON reply in a
// success envelope. Transport failures and non-2xx replies produce a 500
// failure envelope; only an unknown agent or a malformed call is returned
// as an error.
func (f *Forwarder) Forward(ctx context.Context, c Call) (models.HttpResult, error) {
	agent, ok := f.registry.Get(c.AgentID)
	if !ok {
		return models.HttpResult{}, fmt.Errorf("%w: agent %d", storage.ErrNotFound, c.AgentID)
	}

	method := strings.ToUpper(strings.TrimSpace(c.Method))
	if !allowedMethods[method] {
		return models.HttpResult{}, fmt.Errorf("%w: unsupported method %q", ErrInvalidCall, c.Method)
	}
	if !strings.HasPrefix(c.APIPath, "/") {
		return models.HttpResult{}, fmt.Errorf("%w: api_path must start with /", ErrInvalidCall)
	}

	url := strings.TrimRight(agent.ServiceURL, "/") + c.APIPath
	logger := f.logger.With().Int("agent_id", agent.ID).Str("method", method).Str("url", url).Logger()

	body := c.Body
	if c.ContentLength == 0 && c.Body != nil {
		if _, sized := c.Body.(interface{ Len() int }); !sized {
			body = nil
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return models.HttpResult{}, fmt.Errorf("%w: %v", ErrInvalidCall, err)
	}
	if c.ContentLength > 0 {
		req.ContentLength = c.ContentLength
	}
	for k, vs := range c.Header {
		if skipHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Del(UserHeader)
	if c.Operator != nil {
		profile, err := json.Marshal(c.Operator)
		if err != nil {
			return models.HttpResult{}, fmt.Errorf("encode operator: %w", err)
		}
		req.Header.Set(UserHeader, string(profile))
	}

	logger.Info().Msg("calling agent api")
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("agent request failed")
		return models.Failed(http.StatusInternalServerError, fmt.Sprintf("Request error: %v", err)), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error().Err(err).Msg("read agent response")
		return models.Failed(http.StatusInternalServerError, fmt.Sprintf("Request error: %v", err)), nil
	}
	logger.Info().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("agent api returned")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Failed(http.StatusInternalServerError,
			fmt.Sprintf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))), nil
	}

	var data any
	if err := json.Unmarshal(respBody, &data); err != nil {
		logger.Error().Err(err).Msg("agent response is not JSON")
		return models.Failed(http.StatusInternalServerError, "agent returned a non-JSON response"), nil
	}
	return models.OK("Agent API call succeeded", data), nil
}
