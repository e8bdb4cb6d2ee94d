// Package ledger records deployment attempts.
//
// The ledger is keyed by deploy attempt id, not by log event: the first
// write for an id creates the row, later writes overwrite its status and
// failed_reason in place. Once a row reaches a terminal status it is frozen.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/models"
)

// ErrTerminalStatus is returned when a write targets a row that already
// reached SUCCESS, FAILED or COMPLETED.
var ErrTerminalStatus = errors.New("deploy history already has a terminal status")

// Ledger is the deploy history store.
type Ledger struct {
	history  *storage.Store[models.DeployHistory]
	projects *storage.Store[models.Project]
	logger   zerolog.Logger
	now      func() time.Time
}

// New returns a ledger over the history store. The project store is only
// read, to join code and name into listings.
func New(history *storage.Store[models.DeployHistory], projects *storage.Store[models.Project], logger zerolog.Logger) *Ledger {
	return &Ledger{
		history:  history,
		projects: projects,
		logger:   logger.With().Str("component", "ledger").Logger(),
		now:      time.Now,
	}
}

// LogDeployResult creates the row for historyID or updates its status and
// reason. An empty reason is stored as null. The operator is only recorded
// on creation; nil means an anonymous caller.
func (l *Ledger) LogDeployResult(historyID, projectID string, status models.DeployStatus, reason string, operator *models.UserProfile) error {
	var failedReason *string
	if reason != "" {
		failedReason = &reason
	}

	err := l.history.Mutate(func(rows []models.DeployHistory) ([]models.DeployHistory, error) {
		now := l.now()
		for i := range rows {
			if rows[i].ID != historyID {
				continue
			}
			if rows[i].Status.IsTerminal() {
				return nil, fmt.Errorf("%w: %s is %s", ErrTerminalStatus, historyID, rows[i].Status)
			}
			rows[i].Status = status
			rows[i].FailedReason = failedReason
			rows[i].UpdatedAt = models.Stamp(now)
			return rows, nil
		}

		row := models.DeployHistory{
			ID:           historyID,
			ProjectID:    projectID,
			Status:       status,
			FailedReason: failedReason,
			CreatedAt:    models.At(now),
			UpdatedAt:    models.Stamp(now),
		}
		if operator != nil {
			name, id := operator.Nickname, operator.ID
			if name == "" {
				name = operator.Username
			}
			row.OperatorName = &name
			row.CreatedBy = &id
		}
		return append(rows, row), nil
	})
	if err != nil {
		return err
	}

	l.logger.Debug().
		Str("history_id", historyID).
		Str("project_id", projectID).
		Str("status", string(status)).
		Msg("deploy result logged")
	return nil
}

// Get returns the row with id.
func (l *Ledger) Get(id string) (models.DeployHistory, bool) {
	return l.history.Get(id)
}

// List returns every attempt joined with its project, newest first. Rows
// whose project no longer exists are left out.
func (l *Ledger) List() []models.DeployHistoryView {
	projects := make(map[string]models.Project)
	for _, p := range l.projects.List() {
		projects[p.ID] = p
	}

	rows := l.history.List()
	views := make([]models.DeployHistoryView, 0, len(rows))
	for _, h := range rows {
		p, ok := projects[h.ProjectID]
		if !ok {
			continue
		}
		views = append(views, models.DeployHistoryView{
			DeployHistory: h,
			ProjectCode:   p.ProjectCode,
			ProjectName:   p.ProjectName,
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt.Time)
	})
	return views
}

// ListByProject returns the attempts of one project, newest first.
func (l *Ledger) ListByProject(projectID string) []models.DeployHistoryView {
	all := l.List()
	out := all[:0]
	for _, v := range all {
		if v.ProjectID == projectID {
			out = append(out, v)
		}
	}
	return out
}

// Delete removes a row. Deleting an unknown id is not an error.
func (l *Ledger) Delete(id string) error {
	return l.history.Delete(id)
}
