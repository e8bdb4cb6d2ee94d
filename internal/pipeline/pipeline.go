// Package pipeline deploys projects on the local host.
//
// A deployment runs synchronously in the caller's goroutine:
//
//	1 stage      create the project root and the kind's subdirectories
//	2 artifact   place the uploaded jar or archive
//	3 context    write the Dockerfile (containerized kinds)
//	4 cleanup    remove the old container and image, warnings only
//	5 build      build name:tag from the project root
//	6 run        run the operator's docker command
//	7 record     stamp the project and log SUCCESS
//
// Every attempt gets a fresh history id. Fatal steps write a FAILED row
// whose failed_reason is the returned error's message. Nothing is rolled
// back.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"evalgo.org/deployhub/internal/dockerx"
	"evalgo.org/deployhub/models"
)

const (
	stepStage = iota + 1
	stepArtifact
	stepContext
	stepCleanup
	stepBuild
	stepRun
	stepRecord
)

// ProjectStore is the registry view the pipeline needs.
type ProjectStore interface {
	Get(id string) (models.Project, bool)
	MarkDeployed(id string) error
}

// HistoryLog is the ledger view the pipeline needs.
type HistoryLog interface {
	LogDeployResult(historyID, projectID string, status models.DeployStatus, reason string, operator *models.UserProfile) error
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Projects ProjectStore
	Ledger   HistoryLog
	Engine   dockerx.Engine
	Metrics  *Metrics
	Logger   zerolog.Logger

	// Kinds overrides DefaultKinds.
	Kinds map[models.ProjectType]Steps
}

// Request describes one deployment.
type Request struct {
	ProjectID string

	// Kind, when set, must match the project's type.
	Kind models.ProjectType

	// Artifact is the uploaded jar (Java) or zip archive (Python, Web).
	Artifact io.Reader

	// Dockerfile is written to the project root. Python projects prefer a
	// Dockerfile shipped at the root of their archive.
	Dockerfile string

	// Command starts the container, typically a "docker run" invocation.
	Command string

	// Operator is the acting user; nil for anonymous callers.
	Operator *models.UserProfile
}

// Result is returned for a successful deployment.
type Result struct {
	HistoryID string   `json:"history_id"`
	Message   string   `json:"message"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Run is the state of one deployment attempt handed to the kind steps.
type Run struct {
	HistoryID  string
	Project    models.Project
	Root       string
	Artifact   io.Reader
	Dockerfile string
	Logger     zerolog.Logger

	archiveDockerfile bool
}

// Pipeline runs deployments.
type Pipeline struct {
	projects ProjectStore
	ledger   HistoryLog
	engine   dockerx.Engine
	metrics  *Metrics
	kinds    map[models.ProjectType]Steps
	logger   zerolog.Logger

	locks sync.Map
}

// New creates a pipeline.
func New(deps Deps) *Pipeline {
	kinds := deps.Kinds
	if kinds == nil {
		kinds = DefaultKinds()
	}
	return &Pipeline{
		projects: deps.Projects,
		ledger:   deps.Ledger,
		engine:   deps.Engine,
		metrics:  deps.Metrics,
		kinds:    kinds,
		logger:   deps.Logger.With().Str("component", "pipeline").Logger(),
	}
}

// Deploy runs the pipeline for req.ProjectID. At most one deployment per
// project runs at a time; a concurrent call gets ErrDeployInProgress.
func (p *Pipeline) Deploy(ctx context.Context, req Request) (*Result, error) {
	project, ok := p.projects.Get(req.ProjectID)
	if !ok {
		return nil, &ProjectNotFoundError{ID: req.ProjectID}
	}
	if req.Kind != "" && req.Kind != project.ProjectType {
		return nil, fmt.Errorf("%w: %s is a %s project", ErrWrongType, project.ID, project.ProjectType)
	}
	steps, ok := p.kinds[project.ProjectType]
	if !ok {
		return nil, fmt.Errorf("%w: no deploy steps for %s projects", ErrWrongType, project.ProjectType)
	}

	unlock, err := p.lock(project.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	started := time.Now()
	run := &Run{
		HistoryID:  models.ShortID(),
		Project:    project,
		Root:       project.ContainerProjectPath,
		Artifact:   req.Artifact,
		Dockerfile: req.Dockerfile,
	}
	run.Logger = p.logger.With().
		Str("history_id", run.HistoryID).
		Str("project_id", project.ID).
		Str("project_code", project.ProjectCode).
		Logger()

	run.Logger.Info().Str("project_type", string(project.ProjectType)).Msg("deployment started")
	if err := p.ledger.LogDeployResult(run.HistoryID, project.ID, models.StatusStart, "", req.Operator); err != nil {
		run.Logger.Error().Err(err).Msg("failed to record deployment start")
	}

	result := &Result{HistoryID: run.HistoryID}
	if derr := p.execute(ctx, steps, run, req.Command, result); derr != nil {
		run.Logger.Error().Int("step", derr.Step).Msg(derr.Error())
		if err := p.ledger.LogDeployResult(run.HistoryID, project.ID, models.StatusFailed, derr.Error(), req.Operator); err != nil {
			run.Logger.Error().Err(err).Msg("failed to record deployment failure")
		}
		p.metrics.observe(string(project.ProjectType), string(models.StatusFailed), time.Since(started))
		return nil, derr
	}

	p.record(run, req.Operator)
	p.metrics.observe(string(project.ProjectType), string(models.StatusSuccess), time.Since(started))

	if project.ProjectType.Containerized() {
		result.Message = fmt.Sprintf("project %s (%s) deployed, container %s started from image %s",
			project.ProjectCode, project.ProjectName, project.ContainerName(), project.ImageRef())
	} else {
		result.Message = fmt.Sprintf("project %s deployed to %s", project.ProjectName, run.Root)
	}
	run.Logger.Info().Dur("elapsed", time.Since(started)).Int("warnings", len(result.Warnings)).Msg(result.Message)
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, steps Steps, run *Run, command string, result *Result) *DeployError {
	if err := stage(run.Root, steps.Dirs()); err != nil {
		return stepError(stepStage, err, "failed to stage project directory %s", run.Root)
	}
	run.Logger.Info().Msgf("%d - SUCCESS - project directory ready: %s", stepStage, run.Root)

	if run.Artifact == nil {
		return stepError(stepArtifact, ErrNoArtifact, "failed to place artifact")
	}
	if err := steps.PlaceArtifact(run); err != nil {
		return stepError(stepArtifact, err, "failed to place artifact")
	}
	run.Logger.Info().Msgf("%d - SUCCESS - artifact placed", stepArtifact)

	builder, ok := steps.(Containerized)
	if !ok {
		return nil
	}

	if err := builder.BuildContext(run); err != nil {
		return stepError(stepContext, err, "failed to prepare build context")
	}
	run.Logger.Info().Msgf("%d - SUCCESS - build context ready", stepContext)

	result.Warnings = p.cleanup(ctx, run)

	ref := run.Project.ImageRef()
	if err := p.engine.BuildImage(ctx, run.Root, ref); err != nil {
		return &DeployError{
			Step:   stepBuild,
			Reason: fmt.Sprintf("image build failed: %s, error: %v", ref, err),
			Err:    err,
		}
	}
	run.Logger.Info().Msgf("%d - SUCCESS - image %s built", stepBuild, ref)

	cmd := NormalizeCommand(command)
	if cmd == "" {
		return stepError(stepRun, nil, "container start failed: docker command is empty")
	}
	if _, err := p.engine.RunShell(ctx, run.Root, cmd); err != nil {
		return &DeployError{
			Step:   stepRun,
			Reason: fmt.Sprintf("container start failed: %s, error: %v", run.Project.ContainerName(), err),
			Err:    err,
		}
	}
	run.Logger.Info().Msgf("%d - SUCCESS - container %s started", stepRun, run.Project.ContainerName())
	return nil
}

// cleanup removes the previous container and image. Problems are returned
// as warnings and never stop the deployment.
func (p *Pipeline) cleanup(ctx context.Context, run *Run) []string {
	var warnings []string
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf("%d - WARN - ", stepCleanup) + fmt.Sprintf(format, args...)
		run.Logger.Warn().Msg(msg)
		warnings = append(warnings, msg)
	}

	name := run.Project.ContainerName()
	if exists, err := p.engine.ContainerExists(ctx, name); err != nil {
		warn("container lookup failed: %s, error: %v", name, err)
	} else if exists {
		if err := p.engine.RemoveContainer(ctx, name); err != nil {
			warn("container removal failed: %s, error: %v", name, err)
		} else {
			run.Logger.Info().Msgf("%d - SUCCESS - old container %s removed", stepCleanup, name)
		}
	}

	ref := run.Project.ImageRef()
	if exists, err := p.engine.ImageExists(ctx, ref); err != nil {
		warn("image lookup failed: %s, error: %v", ref, err)
	} else if exists {
		if err := p.engine.RemoveImage(ctx, ref); err != nil {
			warn("image removal failed: %s, error: %v", ref, err)
		} else {
			run.Logger.Info().Msgf("%d - SUCCESS - old image %s removed", stepCleanup, ref)
		}
	}
	return warnings
}

// record performs the two success writes. Each is attempted regardless of
// the other and neither changes the outcome.
func (p *Pipeline) record(run *Run, operator *models.UserProfile) {
	if err := p.projects.MarkDeployed(run.Project.ID); err != nil {
		run.Logger.Error().Err(err).Msgf("%d - ERROR - project update failed", stepRecord)
	}
	if err := p.ledger.LogDeployResult(run.HistoryID, run.Project.ID, models.StatusSuccess, "", operator); err != nil {
		run.Logger.Error().Err(err).Msgf("%d - ERROR - deploy history update failed", stepRecord)
	}
}

func (p *Pipeline) lock(projectID string) (func(), error) {
	v, _ := p.locks.LoadOrStore(projectID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, ErrDeployInProgress
	}
	return mu.Unlock, nil
}

func stage(root string, dirs []string) error {
	if root == "" {
		return errors.New("container_project_path is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return err
		}
	}
	return nil
}
