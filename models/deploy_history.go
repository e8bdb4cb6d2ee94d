package models

import "time"

// DeployHistory is one row per deployment attempt.
type DeployHistory struct {
	ID           string       `json:"id"`
	ProjectID    string       `json:"project_id"`
	Status       DeployStatus `json:"status"`
	FailedReason *string      `json:"failed_reason"`
	OperatorName *string      `json:"operator_name"`
	CreatedBy    *int         `json:"created_by"`
	CreatedAt    Timestamp    `json:"created_at"`
	UpdatedAt    *Timestamp   `json:"updated_at"`
}

func (h DeployHistory) RecordID() string { return h.ID }

func (h *DeployHistory) Touch(t time.Time) { h.UpdatedAt = Stamp(t) }

// DeployHistoryView is a history row joined with its project for listings.
type DeployHistoryView struct {
	DeployHistory
	ProjectCode string `json:"project_code"`
	ProjectName string `json:"project_name"`
}
