package models

import "time"

// Template describes a Dockerfile or docker command template file kept under
// the agent's template directory.
type Template struct {
	ID           string     `json:"id"`
	TemplateName string     `json:"template_name"`
	RelativePath string     `json:"relative_path"`
	TemplateType string     `json:"template_type"`
	ProjectType  string     `json:"project_type"`
	Description  string     `json:"description"`
	CreatedAt    Timestamp  `json:"created_at"`
	UpdatedAt    *Timestamp `json:"updated_at"`
}

func (t Template) RecordID() string { return t.ID }

func (t *Template) Touch(now time.Time) { t.UpdatedAt = Stamp(now) }
