package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"evalgo.org/deployhub/models"
)

// Steps is implemented by every project kind.
type Steps interface {
	// Dirs lists the subdirectories staged under the project root.
	Dirs() []string

	// PlaceArtifact writes the upload into the staged directory.
	PlaceArtifact(r *Run) error
}

// Containerized is implemented by kinds that are built into an image and
// run as a container. Kinds without it stop after PlaceArtifact.
type Containerized interface {
	Steps

	// BuildContext writes the Dockerfile the image is built from.
	BuildContext(r *Run) error
}

// DefaultKinds returns the built-in Java, Python and Web steps.
func DefaultKinds() map[models.ProjectType]Steps {
	return map[models.ProjectType]Steps{
		models.ProjectJava:   javaSteps{},
		models.ProjectPython: pythonSteps{},
		models.ProjectWeb:    webSteps{},
	}
}

type javaSteps struct{}

func (javaSteps) Dirs() []string { return []string{"logs", "jars"} }

func (javaSteps) PlaceArtifact(r *Run) error {
	jar := filepath.Join(r.Root, "jars", r.Project.ProjectCode+".jar")
	if err := saveFile(jar, r.Artifact, r.Logger); err != nil {
		return fmt.Errorf("save %s: %w", jar, err)
	}
	r.Logger.Debug().Str("path", jar).Msg("jar placed")
	return nil
}

func (javaSteps) BuildContext(r *Run) error {
	if r.Dockerfile == "" {
		return ErrNoDockerfile
	}
	return writeDockerfile(r)
}

type pythonSteps struct{}

func (pythonSteps) Dirs() []string { return []string{"logs", "app"} }

func (pythonSteps) PlaceArtifact(r *Run) error {
	archive := filepath.Join(r.Root, "app", "project.zip")
	entries, err := unpack(r, archive)
	if err != nil {
		return err
	}
	r.archiveDockerfile = slices.Contains(entries, "Dockerfile")
	return nil
}

func (pythonSteps) BuildContext(r *Run) error {
	if r.archiveDockerfile {
		r.Logger.Info().Msg("using the Dockerfile shipped in the archive")
		return nil
	}
	if r.Dockerfile == "" {
		return ErrNoDockerfile
	}
	return writeDockerfile(r)
}

type webSteps struct{}

func (webSteps) Dirs() []string { return []string{"logs"} }

func (webSteps) PlaceArtifact(r *Run) error {
	archive := filepath.Join(r.Root, r.Project.ProjectCode+".zip")
	_, err := unpack(r, archive)
	return err
}

// unpack saves the upload to archive, extracts it into the project root and
// removes the archive.
func unpack(r *Run, archive string) ([]string, error) {
	if err := saveFile(archive, r.Artifact, r.Logger); err != nil {
		return nil, fmt.Errorf("save %s: %w", archive, err)
	}
	entries, err := extractZip(archive, r.Root, r.Logger)
	if err != nil {
		os.Remove(archive)
		return nil, fmt.Errorf("extract %s: %w", archive, err)
	}
	if err := os.Remove(archive); err != nil {
		return nil, fmt.Errorf("remove %s: %w", archive, err)
	}
	r.Logger.Debug().Str("root", r.Root).Int("entries", len(entries)).Msg("archive extracted")
	return entries, nil
}

func writeDockerfile(r *Run) error {
	path := filepath.Join(r.Root, "Dockerfile")
	if _, err := os.Stat(path); err == nil {
		r.Logger.Warn().Str("path", path).Msg("overwriting existing Dockerfile")
	}
	if err := os.WriteFile(path, []byte(r.Dockerfile), 0o644); err != nil {
		return fmt.Errorf("write Dockerfile: %w", err)
	}
	return nil
}
