package agent

import (
	"net/http"
	"os"
	"strings"
	"time"

	"evalgo.org/deployhub/internal/dockerx"
	"evalgo.org/deployhub/models"
)

// containerAwaiting is reported for a project whose container does not exist yet.
const containerAwaiting = "Awaiting Deployment"

// ProjectStatistics counts projects by runtime state.
type ProjectStatistics struct {
	Total              int    `json:"total"`
	Running            int    `json:"running"`
	Exited             int    `json:"exited"`
	Restarting         int    `json:"restarting"`
	Unknown            int    `json:"unknown"`
	AwaitingDeployment int    `json:"awaiting_deployment"`
	CheckTime          string `json:"check_time"`
}

// ContainerSummary counts the host's containers by state.
type ContainerSummary struct {
	Running    int `json:"running"`
	Exited     int `json:"exited"`
	Restarting int `json:"restarting"`
	Total      int `json:"total"`
}

func (a *Agent) handleContainerStatus(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("container_name"))
	if name == "" {
		fail(w, http.StatusBadRequest, "container_name is required")
		return
	}

	containers, err := a.engine.Containers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	data := map[string]any{
		"container_name": name,
		"check_time":     time.Now().UTC().Format(time.RFC3339),
	}
	for _, c := range containers {
		if c.Name == name {
			data["container_status"] = c.Status
			data["container_state"] = c.State
			ok(w, nil, data)
			return
		}
	}
	data["container_status"] = containerAwaiting
	ok(w, "container not found", data)
}

func (a *Agent) handleContainerSummary(w http.ResponseWriter, r *http.Request) {
	containers, err := a.engine.Containers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, nil, summarizeContainers(containers))
}

func (a *Agent) handleContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := a.engine.Containers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, nil, containers)
}

func (a *Agent) handleImages(w http.ResponseWriter, r *http.Request) {
	images, err := a.engine.Images(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, nil, images)
}

func (a *Agent) handleDockerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.engine.Info(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, nil, info)
}

func (a *Agent) handleProjectStatistics(w http.ResponseWriter, r *http.Request) {
	containers, err := a.engine.Containers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	stats := projectStatistics(a.projects.List(), containers)
	stats.CheckTime = time.Now().UTC().Format(time.RFC3339)
	ok(w, nil, stats)
}

func summarizeContainers(containers []dockerx.ContainerSummary) ContainerSummary {
	s := ContainerSummary{Total: len(containers)}
	for _, c := range containers {
		switch c.State {
		case "running":
			s.Running++
		case "exited":
			s.Exited++
		case "restarting":
			s.Restarting++
		}
	}
	return s
}

// projectStatistics classifies every project. A containerized project is
// matched to the container named after its project code; a web project
// counts as running once its deploy root holds site content.
func projectStatistics(projects []models.Project, containers []dockerx.ContainerSummary) ProjectStatistics {
	states := make(map[string]string, len(containers))
	for _, c := range containers {
		states[c.Name] = c.State
	}

	stats := ProjectStatistics{Total: len(projects)}
	for _, p := range projects {
		if !p.ProjectType.Containerized() {
			if hasSiteContent(p.ContainerProjectPath) {
				stats.Running++
			} else {
				stats.AwaitingDeployment++
			}
			continue
		}

		state, found := states[p.ContainerName()]
		switch {
		case !found:
			stats.AwaitingDeployment++
		case state == "running":
			stats.Running++
		case state == "exited":
			stats.Exited++
		case state == "restarting":
			stats.Restarting++
		default:
			stats.Unknown++
		}
	}
	return stats
}

// hasSiteContent ignores the logs directory every deploy attempt stages,
// so a failed first deploy still counts as awaiting.
func hasSiteContent(path string) bool {
	if path == "" {
		return false
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() && e.Name() == "logs" {
			continue
		}
		return true
	}
	return false
}
