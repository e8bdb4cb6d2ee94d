// Package sysconfig manages the runtime key/value settings edited by
// operators, such as the 2FA switch and the IP allow list.
package sysconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/validation"
	"evalgo.org/deployhub/models"
)

// ErrDuplicateKey is returned when creating a key that already exists.
var ErrDuplicateKey = errors.New("config key already exists")

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid system config")

// CreateRequest is the body of a new setting.
type CreateRequest struct {
	ConfigName   string `json:"config_name" validate:"required"`
	ConfigKey    string `json:"config_key" validate:"required"`
	ConfigValue  any    `json:"config_value"`
	ConfigRemark string `json:"config_remark"`
	ConfigGroup  string `json:"config_group"`
}

// UpdateRequest changes the present fields of a setting. ConfigValue is
// kept raw so that an explicit null can be told apart from an absent field.
type UpdateRequest struct {
	ConfigName   *string         `json:"config_name"`
	ConfigValue  json.RawMessage `json:"config_value"`
	ConfigRemark *string         `json:"config_remark"`
	ConfigGroup  *string         `json:"config_group"`
}

// Service is the system config store.
type Service struct {
	store    *storage.Store[models.SystemConfig]
	validate *validation.Validator
	logger   zerolog.Logger
	now      func() time.Time
}

// New returns a service over store.
func New(store *storage.Store[models.SystemConfig], logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		validate: validation.New(),
		logger:   logger.With().Str("component", "sysconfig").Logger(),
		now:      time.Now,
	}
}

// List returns every setting.
func (s *Service) List() []models.SystemConfig {
	return s.store.List()
}

// Get returns the setting with key.
func (s *Service) Get(key string) (models.SystemConfig, bool) {
	return s.store.Get(key)
}

// Create adds a setting. Ids are assigned as max+1.
func (s *Service) Create(req CreateRequest) (models.SystemConfig, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.SystemConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var created models.SystemConfig
	err := s.store.Mutate(func(configs []models.SystemConfig) ([]models.SystemConfig, error) {
		maxID := 0
		for _, c := range configs {
			if c.ConfigKey == req.ConfigKey {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, req.ConfigKey)
			}
			maxID = max(maxID, c.ID)
		}
		now := s.now()
		created = models.SystemConfig{
			ID:           maxID + 1,
			ConfigName:   req.ConfigName,
			ConfigKey:    req.ConfigKey,
			ConfigValue:  req.ConfigValue,
			ConfigRemark: req.ConfigRemark,
			ConfigGroup:  req.ConfigGroup,
			CreatedAt:    models.At(now),
			UpdatedAt:    models.Stamp(now),
		}
		return append(configs, created), nil
	})
	if err != nil {
		return models.SystemConfig{}, err
	}
	s.logger.Info().Str("config_key", req.ConfigKey).Msg("system config created")
	return created, nil
}

// Update applies req to the setting with key.
func (s *Service) Update(key string, req UpdateRequest) (models.SystemConfig, error) {
	var value any
	if len(req.ConfigValue) > 0 {
		if err := json.Unmarshal(req.ConfigValue, &value); err != nil {
			return models.SystemConfig{}, fmt.Errorf("%w: config_value: %v", ErrInvalidConfig, err)
		}
	}

	updated, err := s.store.Update(key, func(c *models.SystemConfig) error {
		if req.ConfigName != nil {
			c.ConfigName = *req.ConfigName
		}
		if len(req.ConfigValue) > 0 {
			c.ConfigValue = value
		}
		if req.ConfigRemark != nil {
			c.ConfigRemark = *req.ConfigRemark
		}
		if req.ConfigGroup != nil {
			c.ConfigGroup = *req.ConfigGroup
		}
		return nil
	})
	if err != nil {
		return models.SystemConfig{}, err
	}
	s.logger.Info().Str("config_key", key).Msg("system config updated")
	return updated, nil
}

// Delete removes the setting with key. Unknown keys are ignored.
func (s *Service) Delete(key string) error {
	return s.store.Delete(key)
}

// Bool reads a boolean setting. Both true and "true" count as set.
func (s *Service) Bool(key string, def bool) bool {
	c, ok := s.store.Get(key)
	if !ok || c.ConfigValue == nil {
		return def
	}
	switch v := c.ConfigValue.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	case float64:
		return v != 0
	}
	return def
}

// Int reads an integer setting stored as a number or a numeric string.
func (s *Service) Int(key string, def int) int {
	c, ok := s.store.Get(key)
	if !ok || c.ConfigValue == nil {
		return def
	}
	switch v := c.ConfigValue.(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return n
	}
	return def
}

// String reads a setting as text.
func (s *Service) String(key, def string) string {
	c, ok := s.store.Get(key)
	if !ok || c.ConfigValue == nil {
		return def
	}
	switch v := c.ConfigValue.(type) {
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Strings reads a list setting stored either as a JSON array or as a
// string separated by commas or newlines. Blank items are dropped.
func (s *Service) Strings(key string) []string {
	c, ok := s.store.Get(key)
	if !ok || c.ConfigValue == nil {
		return nil
	}

	var raw []string
	switch v := c.ConfigValue.(type) {
	case []any:
		for _, item := range v {
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		raw = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	default:
		raw = []string{fmt.Sprint(v)}
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
