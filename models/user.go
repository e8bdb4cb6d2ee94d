package models

import (
	"strconv"
	"time"
)

const (
	UserEnabled  = "ENABLED"
	UserDisabled = "DISABLED"

	RoleAdmin = "admin"
	RoleUser  = "user"

	// DefaultAvatar is assigned to users created without one.
	DefaultAvatar = "/avatar/default.png"
)

// User is an operator account stored by the Center.
type User struct {
	ID              int        `json:"id"`
	Username        string     `json:"username"`
	Password        string     `json:"password"`
	Nickname        string     `json:"nickname"`
	Email           string     `json:"email"`
	Avatar          string     `json:"avatar"`
	Role            string     `json:"role"`
	Permissions     []string   `json:"permissions"`
	TwoFactorSecret string     `json:"two_factor_secret,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       Timestamp  `json:"created_at"`
	UpdatedAt       *Timestamp `json:"updated_at"`
}

func (u User) RecordID() string { return strconv.Itoa(u.ID) }

func (u *User) Touch(t time.Time) { u.UpdatedAt = Stamp(t) }

// Profile returns the user without the password and 2FA secret.
func (u *User) Profile() *UserProfile {
	return &UserProfile{
		ID:          u.ID,
		Username:    u.Username,
		Nickname:    u.Nickname,
		Email:       u.Email,
		Avatar:      u.Avatar,
		Role:        u.Role,
		Permissions: u.Permissions,
		Status:      u.Status,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// UserProfile is the non-secret view of a user. The Center sends it to agents
// in the X-User header and agents attribute deployments to it.
type UserProfile struct {
	ID          int        `json:"id"`
	Username    string     `json:"username"`
	Nickname    string     `json:"nickname"`
	Email       string     `json:"email"`
	Avatar      string     `json:"avatar"`
	Role        string     `json:"role"`
	Permissions []string   `json:"permissions"`
	Status      string     `json:"status"`
	CreatedAt   Timestamp  `json:"created_at"`
	UpdatedAt   *Timestamp `json:"updated_at,omitempty"`
}

// CanAccessProject reports whether the profile may see a project code.
// A nil permission list means unrestricted.
func (p *UserProfile) CanAccessProject(code string) bool {
	if p == nil || p.Permissions == nil {
		return true
	}
	for _, c := range p.Permissions {
		if c == code {
			return true
		}
	}
	return false
}
