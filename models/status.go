package models

import "strings"

// DeployStatus is the closed vocabulary of deployment attempt states.
type DeployStatus string

const (
	StatusNotStarted DeployStatus = "NOT_STARTED"
	StatusInProgress DeployStatus = "IN_PROGRESS"
	// StatusStart is the pipeline's name for an attempt that is in progress.
	StatusStart     DeployStatus = "START"
	StatusCompleted DeployStatus = "COMPLETED"
	StatusSuccess   DeployStatus = "SUCCESS"
	StatusFailed    DeployStatus = "FAILED"
)

// IsTerminal reports whether no further transition is expected.
func (s DeployStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// IsSuccessful is true only for SUCCESS.
func (s DeployStatus) IsSuccessful() bool {
	return s == StatusSuccess
}

// ParseDeployStatus normalizes a stored status. Older ledgers contain the
// lowercase "failed" spelling.
func ParseDeployStatus(s string) DeployStatus {
	switch up := DeployStatus(strings.ToUpper(strings.TrimSpace(s))); up {
	case StatusNotStarted, StatusInProgress, StatusStart, StatusCompleted, StatusSuccess, StatusFailed:
		return up
	}
	return DeployStatus(s)
}

// UnmarshalText normalizes statuses read from JSON.
func (s *DeployStatus) UnmarshalText(b []byte) error {
	*s = ParseDeployStatus(string(b))
	return nil
}
