package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrDeployInProgress is returned when the project already has a
	// deployment running.
	ErrDeployInProgress = errors.New("a deployment of this project is already in progress")

	// ErrNoDockerfile is returned when neither the upload nor the request
	// provides a Dockerfile.
	ErrNoDockerfile = errors.New("no Dockerfile in the archive root and no dockerfile content supplied")

	// ErrNoArtifact is returned when the request carries no upload.
	ErrNoArtifact = errors.New("no artifact uploaded")

	// ErrWrongType is returned when a deployment is requested through the
	// routes of another project type.
	ErrWrongType = errors.New("project type mismatch")
)

// ProjectNotFoundError reports a deployment request for an unknown project.
// No history row exists for such a request.
type ProjectNotFoundError struct {
	ID string
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("no project with id %s", e.ID)
}

// DeployError is a fatal step failure. Its message is the failed_reason
// written to the deploy history.
type DeployError struct {
	Step   int
	Reason string
	Err    error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("%d - ERROR - %s", e.Step, e.Reason)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

func stepError(step int, err error, format string, args ...any) *DeployError {
	reason := fmt.Sprintf(format, args...)
	if err != nil {
		reason = fmt.Sprintf("%s: %v", reason, err)
	}
	return &DeployError{Step: step, Reason: reason, Err: err}
}
