// Package agent is the per-host DeployHub deployment agent.
//
// The agent owns the project registry, deploy history, templates and system
// config of one Docker host and exposes them under /api/deploy-agent:
//   - project CRUD and the Java, Python and Web deploy pipelines
//   - deploy history and deploy log browsing
//   - Docker engine, host and project status inspection
//   - Prometheus metrics at /metrics
//
// The Center proxies operator calls to the agent and identifies the acting
// user with a JSON profile in the X-User header. The agent trusts that
// header; it does not validate Center tokens itself.
//
// Example usage:
//
//	a := agent.New(cfg, agent.Deps{...})
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	if err := a.Run(ctx); err != nil {
//	    log.Fatal().Err(err).Msg("agent stopped")
//	}
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"evalgo.org/deployhub/internal/config"
	"evalgo.org/deployhub/internal/dockerx"
	"evalgo.org/deployhub/internal/ledger"
	"evalgo.org/deployhub/internal/pipeline"
	"evalgo.org/deployhub/internal/registry"
	"evalgo.org/deployhub/internal/sysconfig"
	"evalgo.org/deployhub/internal/templates"
)

// BasePath prefixes every agent route.
const BasePath = "/api/deploy-agent"

// Deps are the services an Agent serves.
type Deps struct {
	Projects  *registry.Registry
	Ledger    *ledger.Ledger
	Templates *templates.Service
	SysConfig *sysconfig.Service
	Engine    dockerx.Engine
	Pipeline  *pipeline.Pipeline

	// Registry receives the HTTP metrics and Gatherer serves /metrics.
	// Both default to the Prometheus default registry.
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer

	Logger zerolog.Logger
}

// Agent serves the deployment API of one host.
type Agent struct {
	cfg       *config.Config
	projects  *registry.Registry
	ledger    *ledger.Ledger
	templates *templates.Service
	sysconfig *sysconfig.Service
	engine    dockerx.Engine
	pipeline  *pipeline.Pipeline
	gatherer  prometheus.Gatherer
	http      *httpMetrics
	probe     *http.Client
	logger    zerolog.Logger
	startTime time.Time
	handler   http.Handler
}

// New creates an agent. Call Handler or Run to serve it.
func New(cfg *config.Config, deps Deps) *Agent {
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	a := &Agent{
		cfg:       cfg,
		projects:  deps.Projects,
		ledger:    deps.Ledger,
		templates: deps.Templates,
		sysconfig: deps.SysConfig,
		engine:    deps.Engine,
		pipeline:  deps.Pipeline,
		gatherer:  gatherer,
		http:      newHTTPMetrics(reg),
		probe:     &http.Client{Timeout: accessibilityTimeout},
		logger:    deps.Logger.With().Str("component", "agent").Logger(),
		startTime: time.Now(),
	}
	a.handler = a.routes()
	return a
}

// Handler returns the agent's HTTP handler.
func (a *Agent) Handler() http.Handler {
	return a.handler
}

// Run serves the agent until ctx is cancelled, then shuts down gracefully.
func (a *Agent) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.cfg.Agent.Host, a.cfg.Agent.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	a.logger.Info().Str("address", addr).Bool("require_user", a.cfg.Agent.RequireUser).Msg("starting deployhub agent")

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("agent http server: %w", err)
	case <-ctx.Done():
	}

	timeout := a.cfg.Agent.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.logger.Info().Msg("shutting down deployhub agent")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("agent http server shutdown: %w", err)
	}
	return nil
}
