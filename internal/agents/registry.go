// Package agents holds the Center's view of remote deployment agents: the
// registration directory and the call-api forwarder.
package agents

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/validation"
	"evalgo.org/deployhub/models"
)

// ErrInvalidAgent wraps validation failures on registration.
var ErrInvalidAgent = errors.New("invalid agent")

// RegisterRequest is the body of POST /agent/register.
type RegisterRequest struct {
	Name       string `json:"name" validate:"required"`
	IP         string `json:"ip" validate:"omitempty,ip|hostname"`
	Port       int    `json:"port" validate:"omitempty,min=1,max=65535"`
	ServiceURL string `json:"service_url" validate:"required,url"`
	OS         string `json:"os"`
	Type       string `json:"type"`
}

// UpdateRequest carries changed agent fields. Empty values are ignored.
type UpdateRequest struct {
	Name       string `json:"name"`
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	ServiceURL string `json:"service_url" validate:"omitempty,url"`
	OS         string `json:"os"`
	Type       string `json:"type"`
	Status     string `json:"status"`
}

// Registry manages agent registrations.
type Registry struct {
	store    *storage.Store[models.Agent]
	validate *validation.Validator
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRegistry returns a registry over store.
func NewRegistry(store *storage.Store[models.Agent], logger zerolog.Logger) *Registry {
	return &Registry{
		store:    store,
		validate: validation.New(),
		logger:   logger.With().Str("component", "agents").Logger(),
		now:      time.Now,
	}
}

// Register stores a new agent with the next sequential id and status online.
func (r *Registry) Register(req RegisterRequest) (models.Agent, error) {
	if err := r.validate.Struct(req); err != nil {
		return models.Agent{}, fmt.Errorf("%w: %v", ErrInvalidAgent, err)
	}

	now := r.now()
	agent := models.Agent{
		Name:       req.Name,
		IP:         req.IP,
		Port:       req.Port,
		ServiceURL: req.ServiceURL,
		OS:         req.OS,
		Type:       req.Type,
		Status:     models.AgentOnline,
		CreatedAt:  models.At(now),
		UpdatedAt:  models.Stamp(now),
	}
	err := r.store.Mutate(func(all []models.Agent) ([]models.Agent, error) {
		maxID := 0
		for _, a := range all {
			maxID = max(maxID, a.ID)
		}
		agent.ID = maxID + 1
		return append(all, agent), nil
	})
	if err != nil {
		return models.Agent{}, err
	}

	r.logger.Info().Int("agent_id", agent.ID).Str("service_url", agent.ServiceURL).Msg("agent registered")
	return agent, nil
}

// Get returns the agent with id.
func (r *Registry) Get(id int) (models.Agent, bool) {
	return r.store.Get(strconv.Itoa(id))
}

// List returns every registered agent.
func (r *Registry) List() []models.Agent {
	return r.store.List()
}

// Update copies the non-empty fields of req onto the agent with id.
func (r *Registry) Update(id int, req UpdateRequest) (models.Agent, error) {
	if err := r.validate.Struct(req); err != nil {
		return models.Agent{}, fmt.Errorf("%w: %v", ErrInvalidAgent, err)
	}
	return r.store.Update(strconv.Itoa(id), func(a *models.Agent) error {
		setString(&a.Name, req.Name)
		setString(&a.IP, req.IP)
		setString(&a.ServiceURL, req.ServiceURL)
		setString(&a.OS, req.OS)
		setString(&a.Type, req.Type)
		setString(&a.Status, req.Status)
		if req.Port != 0 {
			a.Port = req.Port
		}
		return nil
	})
}

// Delete removes the agent with id. Unknown ids are ignored.
func (r *Registry) Delete(id int) error {
	return r.store.Delete(strconv.Itoa(id))
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
