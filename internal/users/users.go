// Package users is the Center's operator directory.
package users

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"evalgo.org/deployhub/internal/auth"
	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/validation"
	"evalgo.org/deployhub/models"
)

var (
	// ErrDuplicateUsername is returned when the username is taken.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrOwnStatus is returned when an operator tries to enable or disable
	// their own account.
	ErrOwnStatus = errors.New("cannot change the status of your own account")

	// ErrInvalidUser wraps validation failures.
	ErrInvalidUser = errors.New("invalid user")
)

// CreateRequest is the body of a new user.
type CreateRequest struct {
	Username    string   `json:"username" validate:"required"`
	Password    string   `json:"password" validate:"required,min=6"`
	Nickname    string   `json:"nickname" validate:"required"`
	Email       string   `json:"email" validate:"omitempty,email"`
	Avatar      string   `json:"avatar"`
	Role        string   `json:"role" validate:"omitempty,oneof=admin user"`
	Permissions []string `json:"permissions"`
	Status      string   `json:"status" validate:"omitempty,oneof=ENABLED DISABLED"`
}

// UpdateRequest changes the present fields of a user.
type UpdateRequest struct {
	Password    *string   `json:"password" validate:"omitempty,min=6"`
	Nickname    *string   `json:"nickname"`
	Email       *string   `json:"email" validate:"omitempty,email"`
	Avatar      *string   `json:"avatar"`
	Role        *string   `json:"role" validate:"omitempty,oneof=admin user"`
	Permissions *[]string `json:"permissions"`
	Status      *string   `json:"status" validate:"omitempty,oneof=ENABLED DISABLED"`
}

// Service manages users.
type Service struct {
	store    *storage.Store[models.User]
	validate *validation.Validator
	logger   zerolog.Logger
	now      func() time.Time
}

// New returns a service over store.
func New(store *storage.Store[models.User], logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		validate: validation.New(),
		logger:   logger.With().Str("component", "users").Logger(),
		now:      time.Now,
	}
}

// List returns every user without secrets.
func (s *Service) List() []*models.UserProfile {
	all := s.store.List()
	out := make([]*models.UserProfile, 0, len(all))
	for i := range all {
		out = append(out, all[i].Profile())
	}
	return out
}

// Get returns the user with id.
func (s *Service) Get(id int) (models.User, bool) {
	return s.store.Get(strconv.Itoa(id))
}

// GetByUsername returns the user with username.
func (s *Service) GetByUsername(username string) (models.User, bool) {
	return s.store.Find(func(u models.User) bool { return u.Username == username })
}

// Create adds a user. The id is max+1, the password is hashed, the avatar
// and status get defaults when empty.
func (s *Service) Create(req CreateRequest) (models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Username:    req.Username,
		Password:    hash,
		Nickname:    req.Nickname,
		Email:       req.Email,
		Avatar:      req.Avatar,
		Role:        req.Role,
		Permissions: req.Permissions,
		Status:      req.Status,
		CreatedAt:   models.At(s.now()),
	}
	if user.Avatar == "" {
		user.Avatar = models.DefaultAvatar
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.Status == "" {
		user.Status = models.UserEnabled
	}

	err = s.store.Mutate(func(all []models.User) ([]models.User, error) {
		maxID := 0
		for _, u := range all {
			if u.Username == user.Username {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateUsername, user.Username)
			}
			maxID = max(maxID, u.ID)
		}
		user.ID = maxID + 1
		return append(all, user), nil
	})
	if err != nil {
		return models.User{}, err
	}

	s.logger.Info().Int("user_id", user.ID).Str("username", user.Username).Msg("user created")
	return user, nil
}

// Update applies req to the user with id.
func (s *Service) Update(id int, req UpdateRequest) (models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	var hash string
	if req.Password != nil {
		h, err := auth.HashPassword(*req.Password)
		if err != nil {
			return models.User{}, err
		}
		hash = h
	}

	return s.store.Update(strconv.Itoa(id), func(u *models.User) error {
		if hash != "" {
			u.Password = hash
		}
		if req.Nickname != nil {
			u.Nickname = *req.Nickname
		}
		if req.Email != nil {
			u.Email = *req.Email
		}
		if req.Avatar != nil {
			u.Avatar = *req.Avatar
		}
		if req.Role != nil {
			u.Role = *req.Role
		}
		if req.Permissions != nil {
			u.Permissions = *req.Permissions
		}
		if req.Status != nil {
			u.Status = *req.Status
		}
		return nil
	})
}

// ChangeStatus enables or disables the user with id on behalf of actorID.
func (s *Service) ChangeStatus(actorID, id int, status string) (models.User, error) {
	if actorID == id {
		return models.User{}, ErrOwnStatus
	}
	if status != models.UserEnabled && status != models.UserDisabled {
		return models.User{}, fmt.Errorf("%w: status must be %s or %s", ErrInvalidUser, models.UserEnabled, models.UserDisabled)
	}
	user, err := s.store.Update(strconv.Itoa(id), func(u *models.User) error {
		u.Status = status
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	s.logger.Info().Int("actor_id", actorID).Int("user_id", id).Str("status", status).Msg("user status changed")
	return user, nil
}

// SetTwoFactorSecret binds a TOTP secret to the user.
func (s *Service) SetTwoFactorSecret(id int, secret string) error {
	_, err := s.store.Update(strconv.Itoa(id), func(u *models.User) error {
		u.TwoFactorSecret = secret
		return nil
	})
	return err
}

// Delete removes the user with id. Unknown ids are ignored.
func (s *Service) Delete(id int) error {
	return s.store.Delete(strconv.Itoa(id))
}

// Authenticate checks a username and password. Accounts imported with a
// plain-text password are upgraded to a bcrypt hash on first login.
func (s *Service) Authenticate(username, password string) (models.User, error) {
	user, ok := s.GetByUsername(username)
	if !ok {
		return models.User{}, fmt.Errorf("%w: unknown user %s", auth.ErrInvalidCredentials, username)
	}

	if isBcrypt(user.Password) {
		if err := auth.ComparePassword(password, user.Password); err != nil {
			return models.User{}, err
		}
	} else {
		if user.Password == "" || user.Password != password {
			return models.User{}, auth.ErrInvalidCredentials
		}
		if hash, err := auth.HashPassword(password); err == nil {
			if _, err := s.store.Update(strconv.Itoa(user.ID), func(u *models.User) error {
				u.Password = hash
				return nil
			}); err != nil {
				s.logger.Warn().Err(err).Int("user_id", user.ID).Msg("failed to upgrade password hash")
			}
		}
	}

	if user.Status != models.UserEnabled {
		return models.User{}, auth.ErrUserDisabled
	}
	return user, nil
}

// EnsureAdmin seeds an administrator when the directory is empty. When no
// password is configured a random one is generated and logged once.
func (s *Service) EnsureAdmin(username, password string) (bool, error) {
	if len(s.store.List()) > 0 {
		return false, nil
	}
	generated := false
	if password == "" {
		p, err := randomPassword()
		if err != nil {
			return false, err
		}
		password, generated = p, true
	}

	user, err := s.Create(CreateRequest{
		Username: username,
		Password: password,
		Nickname: username,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("seed admin user: %w", err)
	}

	ev := s.logger.Warn().Int("user_id", user.ID).Str("username", username)
	if generated {
		ev = ev.Str("password", password)
	}
	ev.Msg("seeded administrator account, change its password")
	return true, nil
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func randomPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
