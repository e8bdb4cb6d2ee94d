package agent

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"evalgo.org/deployhub/internal/version"
)

const cpuSampleInterval = time.Second

func (a *Agent) handleIndex(w http.ResponseWriter, r *http.Request) {
	ok(w, nil, "Deploy Agent Ready!")
}

func (a *Agent) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok(w, nil, "healthy")
}

func (a *Agent) handleInspectInfo(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()

	dockerVersion, err := a.engine.Version(r.Context())
	if err != nil {
		a.logger.Warn().Err(err).Msg("docker version unavailable")
		dockerVersion = "unavailable: " + err.Error()
	}

	ok(w, nil, map[string]any{
		"status":         "healthy",
		"agent_version":  version.Version,
		"hostname":       hostname,
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"go_version":     runtime.Version(),
		"docker_version": dockerVersion,
		"uptime":         time.Since(a.startTime).Round(time.Second).String(),
		"fetched_at":     time.Now().Format(time.RFC3339),
	})
}

func (a *Agent) handleAgentVersion(w http.ResponseWriter, r *http.Request) {
	ok(w, nil, version.Version)
}

func (a *Agent) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	ok(w, nil, systemInfo())
}

func (a *Agent) handleMemoryInfo(w http.ResponseWriter, r *http.Request) {
	info, err := memoryInfo()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, nil, info)
}

func (a *Agent) handleCPUUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := cpuUsage(cpuSampleInterval)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, nil, usage)
}

func (a *Agent) handleDiskInfo(w http.ResponseWriter, r *http.Request) {
	info, err := diskInfo("/")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, nil, info)
}
