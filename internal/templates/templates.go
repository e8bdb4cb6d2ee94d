// Package templates stores the Dockerfile and docker command templates an
// agent offers to operators and renders them for a project.
//
// Metadata lives in the template store; the template text lives in a file
// under the template directory at the record's relative_path.
package templates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/rs/zerolog"

	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/validation"
	"evalgo.org/deployhub/models"
)

func init() {
	// Dockerfiles and shell commands are not HTML.
	pongo2.SetAutoescape(false)
}

var (
	// ErrInvalidTemplate wraps validation failures.
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrPathEscapes is returned for a relative_path outside the template directory.
	ErrPathEscapes = errors.New("template path escapes the template directory")
)

// CreateRequest is the body of a new template.
type CreateRequest struct {
	TemplateName string `json:"template_name" validate:"required"`
	RelativePath string `json:"relative_path" validate:"required"`
	TemplateType string `json:"template_type" validate:"required"`
	ProjectType  string `json:"project_type"`
	Description  string `json:"description"`
	Content      string `json:"content"`
}

// UpdateRequest changes the content and/or description of a template.
type UpdateRequest struct {
	Content     *string `json:"content"`
	Description *string `json:"description"`
}

// Service manages templates.
type Service struct {
	store    *storage.Store[models.Template]
	dir      string
	validate *validation.Validator
	logger   zerolog.Logger
	now      func() time.Time
}

// New returns a service storing template files under dir.
func New(store *storage.Store[models.Template], dir string, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		dir:      dir,
		validate: validation.New(),
		logger:   logger.With().Str("component", "templates").Logger(),
		now:      time.Now,
	}
}

// List returns every template, or those of one type when templateType is set.
func (s *Service) List(templateType string) []models.Template {
	all := s.store.List()
	if templateType == "" {
		return all
	}
	out := make([]models.Template, 0, len(all))
	for _, t := range all {
		if t.TemplateType == templateType {
			out = append(out, t)
		}
	}
	return out
}

// Get returns the template metadata with id.
func (s *Service) Get(id string) (models.Template, bool) {
	return s.store.Get(id)
}

// Content returns the template text.
func (s *Service) Content(id string) (string, error) {
	t, ok := s.store.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: template %s", storage.ErrNotFound, id)
	}
	path, err := s.path(t.RelativePath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", id, err)
	}
	return string(data), nil
}

// Create writes the template file and records its metadata.
func (s *Service) Create(req CreateRequest) (models.Template, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.Template{}, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	path, err := s.path(req.RelativePath)
	if err != nil {
		return models.Template{}, err
	}
	if err := writeFile(path, req.Content); err != nil {
		return models.Template{}, err
	}

	now := s.now()
	t := models.Template{
		ID:           models.ShortID(),
		TemplateName: req.TemplateName,
		RelativePath: req.RelativePath,
		TemplateType: req.TemplateType,
		ProjectType:  req.ProjectType,
		Description:  req.Description,
		CreatedAt:    models.At(now),
		UpdatedAt:    models.Stamp(now),
	}
	if err := s.store.Create(t); err != nil {
		return models.Template{}, err
	}
	s.logger.Info().Str("template_id", t.ID).Str("path", req.RelativePath).Msg("template created")
	return t, nil
}

// Update rewrites the content and/or description of a template.
func (s *Service) Update(id string, req UpdateRequest) (models.Template, error) {
	return s.store.Update(id, func(t *models.Template) error {
		if req.Content != nil {
			path, err := s.path(t.RelativePath)
			if err != nil {
				return err
			}
			if err := writeFile(path, *req.Content); err != nil {
				return err
			}
		}
		if req.Description != nil {
			t.Description = *req.Description
		}
		return nil
	})
}

// Delete removes the template record and its file.
func (s *Service) Delete(id string) error {
	t, ok := s.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: template %s", storage.ErrNotFound, id)
	}
	if path, err := s.path(t.RelativePath); err == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove template file: %w", err)
		}
	}
	return s.store.Delete(id)
}

// Render executes the template text against the project's JSON fields.
// Templates use Jinja2 syntax, so {{ project_code }} and
// {% if network %}...{% endif %} resolve against the stored project.
func (s *Service) Render(id string, project models.Project) (string, error) {
	content, err := s.Content(id)
	if err != nil {
		return "", err
	}
	return RenderProject(content, project)
}

// RenderProject renders content against project. Unknown variables render
// as empty strings.
func RenderProject(content string, project models.Project) (string, error) {
	data, err := json.Marshal(project)
	if err != nil {
		return "", err
	}
	fields := pongo2.Context{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return "", err
	}
	for k, v := range fields {
		if n, ok := v.(json.Number); ok {
			fields[k] = number(n)
		}
	}

	tpl, err := pongo2.FromString(content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	out, err := tpl.Execute(fields)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// number keeps integral values integral so ports and versions print
// without a decimal part.
func number(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func (s *Service) path(rel string) (string, error) {
	root, err := filepath.Abs(s.dir)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, rel)
	}
	return full, nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create template dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
