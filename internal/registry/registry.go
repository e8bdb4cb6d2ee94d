// Package registry manages the Java, Python and Web project descriptors
// deployed by an agent.
package registry

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"

	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/validation"
	"evalgo.org/deployhub/models"
)

// Project statuses written by the registry and the pipeline.
const (
	StatusCreated = "created"
	StatusRunning = "running"
)

var (
	// ErrDuplicateCode is returned when another project already uses the code.
	ErrDuplicateCode = errors.New("project code already in use")

	// ErrWrongType is returned when a request addresses a project through
	// the routes of another project type.
	ErrWrongType = errors.New("project type mismatch")

	// ErrInvalidProject wraps validation failures.
	ErrInvalidProject = errors.New("invalid project")
)

// AddRequest carries the fields of a new project. Fields that do not apply
// to the requested type are ignored.
type AddRequest struct {
	ProjectCode          string `json:"project_code" validate:"required"`
	ProjectName          string `json:"project_name" validate:"required"`
	ProjectGroup         string `json:"project_group"`
	GitRepository        string `json:"git_repository"`
	HostProjectPath      string `json:"host_project_path" validate:"required"`
	ContainerProjectPath string `json:"container_project_path" validate:"required"`

	DockerImageName string `json:"docker_image_name"`
	DockerImageTag  string `json:"docker_image_tag"`
	ExternalPort    int    `json:"external_port"`
	InternalPort    int    `json:"internal_port"`
	Network         string `json:"network"`

	JDKVersion    int    `json:"jdk_version"`
	PythonVersion string `json:"python_version"`

	AccessURL string `json:"access_url"`
}

// UpdateRequest is a partial update. Nil fields are left untouched.
type UpdateRequest struct {
	ProjectCode          *string `json:"project_code"`
	ProjectName          *string `json:"project_name"`
	ProjectGroup         *string `json:"project_group"`
	GitRepository        *string `json:"git_repository"`
	HostProjectPath      *string `json:"host_project_path"`
	ContainerProjectPath *string `json:"container_project_path"`
	Status               *string `json:"status"`

	DockerImageName *string `json:"docker_image_name"`
	DockerImageTag  *string `json:"docker_image_tag"`
	ExternalPort    *int    `json:"external_port"`
	InternalPort    *int    `json:"internal_port"`
	Network         *string `json:"network"`

	JDKVersion    *int    `json:"jdk_version"`
	PythonVersion *string `json:"python_version"`

	AccessURL *string `json:"access_url"`
}

// Registry is the project store of one agent.
type Registry struct {
	store    *storage.Store[models.Project]
	validate *validation.Validator
	logger   zerolog.Logger
	now      func() time.Time
}

// New returns a registry over store.
func New(store *storage.Store[models.Project], logger zerolog.Logger) *Registry {
	return &Registry{
		store:    store,
		validate: validation.New(),
		logger:   logger.With().Str("component", "registry").Logger(),
		now:      time.Now,
	}
}

// Add creates a project of the given type with a fresh id and status "created".
func (r *Registry) Add(kind models.ProjectType, req AddRequest) (models.Project, error) {
	if err := r.validate.Struct(req); err != nil {
		return models.Project{}, fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}

	p := models.Project{
		ID:                   models.ShortID(),
		ProjectType:          kind,
		ProjectCode:          req.ProjectCode,
		ProjectName:          req.ProjectName,
		ProjectGroup:         req.ProjectGroup,
		GitRepository:        req.GitRepository,
		HostProjectPath:      req.HostProjectPath,
		ContainerProjectPath: req.ContainerProjectPath,
		Status:               StatusCreated,
		CreatedAt:            models.At(r.now()),
	}
	switch kind {
	case models.ProjectJava:
		p.ContainerSpec = containerSpec(req)
		p.JavaRuntime = &models.JavaRuntime{JDKVersion: req.JDKVersion}
	case models.ProjectPython:
		p.ContainerSpec = containerSpec(req)
		p.PythonRuntime = &models.PythonRuntime{PythonVersion: req.PythonVersion}
	case models.ProjectWeb:
		p.WebSpec = &models.WebSpec{AccessURL: req.AccessURL}
	default:
		return models.Project{}, fmt.Errorf("%w: unknown type %q", ErrInvalidProject, kind)
	}

	if err := r.check(&p); err != nil {
		return models.Project{}, err
	}

	err := r.store.Mutate(func(projects []models.Project) ([]models.Project, error) {
		if codeTaken(projects, p.ProjectCode, "") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, p.ProjectCode)
		}
		return append(projects, p), nil
	})
	if err != nil {
		return models.Project{}, err
	}

	r.logger.Info().
		Str("project_id", p.ID).
		Str("project_code", p.ProjectCode).
		Str("project_type", string(kind)).
		Msg("project added")
	return p, nil
}

// Update merges req into the project with id. The project must be of the
// given type.
func (r *Registry) Update(kind models.ProjectType, id string, req UpdateRequest) (models.Project, error) {
	var updated models.Project
	err := r.store.Mutate(func(projects []models.Project) ([]models.Project, error) {
		for i := range projects {
			if projects[i].ID != id {
				continue
			}
			p := projects[i]
			if p.ProjectType != kind {
				return nil, fmt.Errorf("%w: %s is a %s project", ErrWrongType, id, p.ProjectType)
			}
			apply(&p, req)
			if err := r.check(&p); err != nil {
				return nil, err
			}
			if codeTaken(projects, p.ProjectCode, p.ID) {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, p.ProjectCode)
			}
			p.Touch(r.now())
			projects[i] = p
			updated = p
			return projects, nil
		}
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	})
	if err != nil {
		return models.Project{}, err
	}
	return updated, nil
}

// MarkDeployed stamps last_deployed_at after a successful deployment and,
// for containerized projects, sets the status to running.
func (r *Registry) MarkDeployed(id string) error {
	at := models.Stamp(r.now())
	_, err := r.store.Update(id, func(p *models.Project) error {
		p.LastDeployedAt = at
		if p.ProjectType.Containerized() {
			p.Status = StatusRunning
		}
		return nil
	})
	return err
}

// Get returns the project with id.
func (r *Registry) Get(id string) (models.Project, bool) {
	return r.store.Get(id)
}

// GetTyped returns the project with id when it has the given type.
func (r *Registry) GetTyped(kind models.ProjectType, id string) (models.Project, error) {
	p, ok := r.store.Get(id)
	if !ok {
		return models.Project{}, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if p.ProjectType != kind {
		return models.Project{}, fmt.Errorf("%w: %s is a %s project", ErrWrongType, id, p.ProjectType)
	}
	return p, nil
}

// Delete removes the project record. Files and Docker resources stay.
func (r *Registry) Delete(id string) error {
	if err := r.store.Delete(id); err != nil {
		return err
	}
	r.logger.Info().Str("project_id", id).Msg("project deleted")
	return nil
}

// List returns every project.
func (r *Registry) List() []models.Project {
	return r.store.List()
}

// ListByType returns the projects of one type.
func (r *Registry) ListByType(kind models.ProjectType) []models.Project {
	var out []models.Project
	for _, p := range r.store.List() {
		if p.ProjectType == kind {
			out = append(out, p)
		}
	}
	return out
}

// ListPermitted returns the projects the operator may see. A nil operator
// or a nil permission list sees everything.
func (r *Registry) ListPermitted(operator *models.UserProfile) []models.Project {
	all := r.store.List()
	out := make([]models.Project, 0, len(all))
	for _, p := range all {
		if operator.CanAccessProject(p.ProjectCode) {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) check(p *models.Project) error {
	if p.ContainerSpec != nil {
		if err := r.validate.Struct(p.ContainerSpec); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProject, err)
		}
		if _, _, err := nat.ParsePortSpecs([]string{PortSpec(p)}); err != nil {
			return fmt.Errorf("%w: port mapping: %v", ErrInvalidProject, err)
		}
	}
	if p.JavaRuntime != nil {
		if err := r.validate.Struct(p.JavaRuntime); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProject, err)
		}
	}
	if p.PythonRuntime != nil {
		if err := r.validate.Struct(p.PythonRuntime); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProject, err)
		}
	}
	return nil
}

// PortSpec renders the project's port mapping in docker's
// "external:internal/tcp" notation. It is empty for Web projects.
func PortSpec(p *models.Project) string {
	if p.ContainerSpec == nil {
		return ""
	}
	return strconv.Itoa(p.ExternalPort) + ":" + strconv.Itoa(p.InternalPort) + "/tcp"
}

func containerSpec(req AddRequest) *models.ContainerSpec {
	return &models.ContainerSpec{
		DockerImageName: req.DockerImageName,
		DockerImageTag:  req.DockerImageTag,
		ExternalPort:    req.ExternalPort,
		InternalPort:    req.InternalPort,
		Network:         req.Network,
	}
}

func codeTaken(projects []models.Project, code, exceptID string) bool {
	for _, p := range projects {
		if p.ProjectCode == code && p.ID != exceptID {
			return true
		}
	}
	return false
}

func apply(p *models.Project, req UpdateRequest) {
	set(&p.ProjectCode, req.ProjectCode)
	set(&p.ProjectName, req.ProjectName)
	set(&p.ProjectGroup, req.ProjectGroup)
	set(&p.GitRepository, req.GitRepository)
	set(&p.HostProjectPath, req.HostProjectPath)
	set(&p.ContainerProjectPath, req.ContainerProjectPath)
	set(&p.Status, req.Status)

	if p.ContainerSpec != nil {
		spec := *p.ContainerSpec
		set(&spec.DockerImageName, req.DockerImageName)
		set(&spec.DockerImageTag, req.DockerImageTag)
		set(&spec.ExternalPort, req.ExternalPort)
		set(&spec.InternalPort, req.InternalPort)
		set(&spec.Network, req.Network)
		p.ContainerSpec = &spec
	}
	if p.JavaRuntime != nil {
		rt := *p.JavaRuntime
		set(&rt.JDKVersion, req.JDKVersion)
		p.JavaRuntime = &rt
	}
	if p.PythonRuntime != nil {
		rt := *p.PythonRuntime
		set(&rt.PythonVersion, req.PythonVersion)
		p.PythonRuntime = &rt
	}
	if p.WebSpec != nil {
		web := *p.WebSpec
		set(&web.AccessURL, req.AccessURL)
		p.WebSpec = &web
	}
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
