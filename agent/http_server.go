package agent

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evalgo.org/deployhub/internal/auth"
	"evalgo.org/deployhub/internal/ledger"
	"evalgo.org/deployhub/internal/pipeline"
	"evalgo.org/deployhub/internal/registry"
	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/sysconfig"
	"evalgo.org/deployhub/internal/templates"
	"evalgo.org/deployhub/models"
)

// UserHeader carries the acting user's profile JSON, set by the Center.
const UserHeader = "X-User"

// routes builds the agent router. The outer middleware wraps the router
// itself so that it also sees requests no route matches, such as CORS
// preflights.
func (a *Agent) routes() http.Handler {
	router := mux.NewRouter()

	router.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix(BasePath).Subrouter()
	api.Use(a.http.instrument)

	api.HandleFunc("/index", a.handleIndex).Methods(http.MethodGet)
	api.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/inspect/info", a.handleInspectInfo).Methods(http.MethodGet)
	api.HandleFunc("/inspect/agent-version", a.handleAgentVersion).Methods(http.MethodGet)

	api.HandleFunc("/server/system_info", a.handleSystemInfo).Methods(http.MethodGet)
	api.HandleFunc("/server/memory_info", a.handleMemoryInfo).Methods(http.MethodGet)
	api.HandleFunc("/server/cpu_usage", a.handleCPUUsage).Methods(http.MethodGet)
	api.HandleFunc("/server/disk_info", a.handleDiskInfo).Methods(http.MethodGet)

	api.HandleFunc("/project/list", a.handleProjectList).Methods(http.MethodGet)
	api.HandleFunc("/project/support/render-template-content", a.handleRenderTemplate).Methods(http.MethodGet)
	api.HandleFunc("/project/check-web-project-accessibility", a.handleCheckAccessibility).Methods(http.MethodGet)
	api.HandleFunc("/project/{kind:java|python|web}/get/{id}", a.handleProjectGet).Methods(http.MethodGet)
	api.HandleFunc("/project/{kind:java|python|web}/add", a.handleProjectAdd).Methods(http.MethodPost)
	api.HandleFunc("/project/{kind:java|python|web}/update", a.handleProjectUpdate).Methods(http.MethodPut)
	api.HandleFunc("/project/{kind:java|python|web}/deploy", a.handleProjectDeploy).Methods(http.MethodPost)
	api.HandleFunc("/project/{kind:java|python|web}/delete/{id}", a.handleProjectDelete).Methods(http.MethodDelete)

	api.HandleFunc("/deploy-history/list", a.handleHistoryList).Methods(http.MethodGet)
	api.HandleFunc("/deploy-history/project/{id}", a.handleHistoryByProject).Methods(http.MethodGet)
	api.HandleFunc("/deploy-history/{id}", a.handleHistoryDelete).Methods(http.MethodDelete)

	api.HandleFunc("/deploy-log/list", a.handleLogList).Methods(http.MethodGet)
	api.HandleFunc("/deploy-log/{filename}", a.handleLogContent).Methods(http.MethodGet)

	api.HandleFunc("/docker/container-status", a.handleContainerStatus).Methods(http.MethodGet)
	api.HandleFunc("/docker/container-summary", a.handleContainerSummary).Methods(http.MethodGet)
	api.HandleFunc("/docker/containers", a.handleContainers).Methods(http.MethodGet)
	api.HandleFunc("/docker/images", a.handleImages).Methods(http.MethodGet)
	api.HandleFunc("/docker/info", a.handleDockerInfo).Methods(http.MethodGet)

	api.HandleFunc("/statistics/project-status", a.handleProjectStatistics).Methods(http.MethodGet)

	api.HandleFunc("/template/list", a.handleTemplateList).Methods(http.MethodGet)
	api.HandleFunc("/template/content/{id}", a.handleTemplateContent).Methods(http.MethodGet)
	api.HandleFunc("/template/{id}", a.handleTemplateGet).Methods(http.MethodGet)
	api.HandleFunc("/template", a.handleTemplateCreate).Methods(http.MethodPost)
	api.HandleFunc("/template/{id}", a.handleTemplateUpdate).Methods(http.MethodPut)
	api.HandleFunc("/template/{id}", a.handleTemplateDelete).Methods(http.MethodDelete)

	api.HandleFunc("/system-config/list", a.handleConfigList).Methods(http.MethodGet)
	api.HandleFunc("/system-config", a.handleConfigCreate).Methods(http.MethodPost)
	api.HandleFunc("/system-config/{config_key}", a.handleConfigGet).Methods(http.MethodGet)
	api.HandleFunc("/system-config/{config_key}", a.handleConfigUpdate).Methods(http.MethodPut)
	api.HandleFunc("/system-config/{config_key}", a.handleConfigDelete).Methods(http.MethodDelete)

	return a.recoverer(a.requestLogger(a.cors(a.identify(router))))
}

// identify parses X-User into the request context. A malformed header is
// treated as anonymous. With require_user set, requests other than probes
// must carry the header.
func (a *Agent) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserHeader)
		if raw == "" {
			if a.cfg.Agent.RequireUser && !probePath(r.URL.Path) {
				writeJSON(w, http.StatusUnauthorized, models.Failed(http.StatusUnauthorized, "Invalid Request"))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		var profile models.UserProfile
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			a.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("malformed X-User header, continuing anonymously")
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithOperator(r.Context(), &profile)))
	})
}

func probePath(path string) bool {
	switch path {
	case "/metrics", BasePath + "/health", BasePath + "/index":
		return true
	}
	return false
}

func (a *Agent) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				writeJSON(w, http.StatusInternalServerError, models.Failed(http.StatusInternalServerError, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (a *Agent) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info().
			Str("method", r.Method).
			Str("uri", r.URL.RequestURI()).
			Int("status", rec.status).
			Dur("latency", time.Since(start)).
			Str("remote_ip", r.RemoteAddr).
			Msg("request")
	})
}

// cors allows any origin, method and header.
func (a *Agent) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// httpMetrics counts agent API requests by route template.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deployhub_agent_http_requests_total",
			Help: "Agent API requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deployhub_agent_http_request_duration_seconds",
			Help:    "Agent API request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.requests = registerOrExisting(reg, m.requests)
	m.duration = registerOrExisting(reg, m.duration)
	return m
}

func registerOrExisting[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *httpMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// writeJSON writes v with status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ok writes a success envelope.
func ok(w http.ResponseWriter, msg any, data any) {
	writeJSON(w, http.StatusOK, models.OK(msg, data))
}

// fail writes a failure envelope.
func fail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, models.Failed(code, msg))
}

// writeError maps a service error onto a status code.
func (a *Agent) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	if code >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	fail(w, code, err.Error())
}

func errorStatus(err error) int {
	var unknown *pipeline.ProjectNotFoundError
	switch {
	case errors.As(err, &unknown):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrDeployInProgress),
		errors.Is(err, registry.ErrDuplicateCode),
		errors.Is(err, sysconfig.ErrDuplicateKey),
		errors.Is(err, ledger.ErrTerminalStatus):
		return http.StatusConflict
	case errors.Is(err, registry.ErrWrongType),
		errors.Is(err, registry.ErrInvalidProject),
		errors.Is(err, pipeline.ErrWrongType),
		errors.Is(err, pipeline.ErrNoArtifact),
		errors.Is(err, pipeline.ErrNoDockerfile),
		errors.Is(err, templates.ErrInvalidTemplate),
		errors.Is(err, templates.ErrPathEscapes),
		errors.Is(err, sysconfig.ErrInvalidConfig),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// errBadRequest marks malformed input detected by a handler.
var errBadRequest = errors.New("bad request")

// decodeJSON reads the request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
