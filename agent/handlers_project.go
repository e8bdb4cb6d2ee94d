package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"evalgo.org/deployhub/internal/auth"
	"evalgo.org/deployhub/internal/pipeline"
	"evalgo.org/deployhub/internal/registry"
	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/version"
	"evalgo.org/deployhub/models"
)

const (
	accessibilityTimeout = 3 * time.Second

	// maxUploadMemory is the part of a deploy upload kept in memory; the
	// rest spills to temporary files.
	maxUploadMemory = 32 << 20
)

// Web project reachability as reported by the accessibility probe.
const (
	runtimeAccessible   = "Accessible"
	runtimeInaccessible = "Inaccessible"
	runtimeUnknown      = "Unknown"
)

// projectUpdate is the body of an update call: the target id plus the
// fields to change.
type projectUpdate struct {
	ID string `json:"id"`
	registry.UpdateRequest
}

func projectKind(r *http.Request) models.ProjectType {
	kind, _ := models.ParseProjectType(mux.Vars(r)["kind"])
	return kind
}

func (a *Agent) handleProjectList(w http.ResponseWriter, r *http.Request) {
	ok(w, nil, a.projects.ListPermitted(auth.OperatorFrom(r.Context())))
}

func (a *Agent) handleProjectGet(w http.ResponseWriter, r *http.Request) {
	p, err := a.projects.GetTyped(projectKind(r), mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, nil, p)
}

func (a *Agent) handleProjectAdd(w http.ResponseWriter, r *http.Request) {
	var req registry.AddRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.projects.Add(projectKind(r), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, p.ID, p)
}

func (a *Agent) handleProjectUpdate(w http.ResponseWriter, r *http.Request) {
	var req projectUpdate
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.ID == "" {
		fail(w, http.StatusBadRequest, "id is required")
		return
	}
	p, err := a.projects.Update(projectKind(r), req.ID, req.UpdateRequest)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "project updated", p)
}

func (a *Agent) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := a.projects.GetTyped(projectKind(r), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.projects.Delete(id); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "project deleted", nil)
}

// handleProjectDeploy runs the pipeline within the request. The form carries
// the project id, the artifact upload and the Dockerfile and docker command
// contents.
func (a *Agent) handleProjectDeploy(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		fail(w, http.StatusBadRequest, fmt.Sprintf("invalid deploy form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	id := strings.TrimSpace(r.FormValue("id"))
	if id == "" {
		fail(w, http.StatusBadRequest, "id is required")
		return
	}

	req := pipeline.Request{
		ProjectID:  id,
		Kind:       projectKind(r),
		Dockerfile: r.FormValue("dockerfile_content"),
		Command:    r.FormValue("dockercommand_content"),
		Operator:   auth.OperatorFrom(r.Context()),
	}

	file, _, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		req.Artifact = file
	case !errors.Is(err, http.ErrMissingFile):
		fail(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return
	}

	// A dropped client connection must not abort a half-done deployment.
	res, err := a.pipeline.Deploy(context.WithoutCancel(r.Context()), req)
	if err != nil {
		var deployErr *pipeline.DeployError
		if errors.As(err, &deployErr) {
			fail(w, http.StatusInternalServerError, deployErr.Error())
			return
		}
		a.writeError(w, r, err)
		return
	}
	ok(w, res.Message, res)
}

func (a *Agent) handleRenderTemplate(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	templateID := r.URL.Query().Get("template_id")
	if projectID == "" || templateID == "" {
		fail(w, http.StatusBadRequest, "project_id and template_id are required")
		return
	}

	p, found := a.projects.Get(projectID)
	if !found {
		a.writeError(w, r, fmt.Errorf("%w: project %s", storage.ErrNotFound, projectID))
		return
	}
	content, err := a.templates.Render(templateID, p)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, nil, content)
}

// handleCheckAccessibility probes a web project URL. The outcome is always
// reported in a success envelope.
func (a *Agent) handleCheckAccessibility(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		fail(w, http.StatusBadRequest, "url is required")
		return
	}
	ok(w, nil, a.probeURL(r.Context(), target))
}

func (a *Agent) probeURL(ctx context.Context, target string) map[string]any {
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "http://" + target
	}
	result := map[string]any{"check_time": time.Now().UTC().Format(time.RFC3339)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result["runtime_status"] = runtimeUnknown
		result["error"] = err.Error()
		return result
	}
	req.Header.Set("User-Agent", version.UserAgent("agent"))

	resp, err := a.probe.Do(req)
	if err != nil {
		result["runtime_status"] = runtimeInaccessible
		result["error"] = err.Error()
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	status := runtimeInaccessible
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		status = runtimeAccessible
	}
	result["runtime_status"] = status
	result["status_code"] = resp.StatusCode
	result["reason_phrase"] = http.StatusText(resp.StatusCode)
	return result
}
