package models

import (
	"fmt"
	"strings"
	"time"
)

// ProjectType tags the kind of a Project.
type ProjectType string

const (
	ProjectJava   ProjectType = "Java"
	ProjectPython ProjectType = "Python"
	ProjectWeb    ProjectType = "Web"
)

// ParseProjectType accepts the route spelling ("java") as well as the stored one ("Java").
func ParseProjectType(s string) (ProjectType, error) {
	switch strings.ToLower(s) {
	case "java":
		return ProjectJava, nil
	case "python":
		return ProjectPython, nil
	case "web":
		return ProjectWeb, nil
	}
	return "", fmt.Errorf("unknown project type %q", s)
}

// Containerized reports whether projects of this type run as a Docker container.
func (t ProjectType) Containerized() bool {
	return t == ProjectJava || t == ProjectPython
}

// Project is a deployable unit on an agent. The embedded pointers carry the
// kind-specific attributes and are flattened into the stored JSON object;
// exactly the ones matching ProjectType are set.
type Project struct {
	ID                   string      `json:"id"`
	ProjectType          ProjectType `json:"project_type"`
	ProjectCode          string      `json:"project_code"`
	ProjectName          string      `json:"project_name"`
	ProjectGroup         string      `json:"project_group"`
	GitRepository        string      `json:"git_repository,omitempty"`
	HostProjectPath      string      `json:"host_project_path"`
	ContainerProjectPath string      `json:"container_project_path"`
	Status               string      `json:"status"`
	CreatedAt            Timestamp   `json:"created_at"`
	UpdatedAt            *Timestamp  `json:"updated_at"`
	LastDeployedAt       *Timestamp  `json:"last_deployed_at"`

	*ContainerSpec
	*JavaRuntime
	*PythonRuntime
	*WebSpec
}

// ContainerSpec holds the Docker attributes shared by Java and Python projects.
type ContainerSpec struct {
	DockerImageName string `json:"docker_image_name" validate:"required"`
	DockerImageTag  string `json:"docker_image_tag" validate:"required"`
	ExternalPort    int    `json:"external_port" validate:"min=1,max=65535"`
	InternalPort    int    `json:"internal_port" validate:"min=1,max=65535"`
	Network         string `json:"network"`
}

// JavaRuntime is the Java-specific runtime version.
type JavaRuntime struct {
	JDKVersion int `json:"jdk_version" validate:"required"`
}

// PythonRuntime is the Python-specific runtime version.
type PythonRuntime struct {
	PythonVersion string `json:"python_version" validate:"required"`
}

// WebSpec holds the attributes of a static web project.
type WebSpec struct {
	AccessURL string `json:"access_url"`
}

func (p Project) RecordID() string { return p.ID }

func (p *Project) Touch(t time.Time) { p.UpdatedAt = Stamp(t) }

// ImageRef returns "name:tag" for containerized projects and "" otherwise.
func (p *Project) ImageRef() string {
	if p.ContainerSpec == nil {
		return ""
	}
	return p.DockerImageName + ":" + p.DockerImageTag
}

// ContainerName is the container a deployment (re)creates. It is the project code.
func (p *Project) ContainerName() string {
	return p.ProjectCode
}
