package login

import (
	"time"
)

// UserState is the lifecycle state of an account.
type UserState string

const (
	UserStateDisabled UserState = "disabled"
	UserStateEnabled  UserState = "enabled"
)

// CapabilitySiteLogin is the capability checked after a successful login to
// decide whether the session counts as authenticated.
const CapabilitySiteLogin = "site.login"

// User is an account. Username is the unique storage key and never changes.
type User struct {
	Username        string          `json:"username"`
	PasswordHash    string          `json:"-"`
	Email           string          `json:"email,omitempty"`
	FullName        string          `json:"fullname,omitempty"`
	State           UserState       `json:"state"`
	ActivationToken string          `json:"-"`
	Access          map[string]bool `json:"access,omitempty"`
	Fields          map[string]any  `json:"fields,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Authenticated is transient and never persisted.
	Authenticated bool `json:"-"`
}

// Enabled reports whether the account may log in.
func (u *User) Enabled() bool {
	return u != nil && u.State == UserStateEnabled
}

// Authorize returns the stored value for capability rule. Disabled accounts
// have no capabilities.
func (u *User) Authorize(rule string) bool {
	if !u.Enabled() {
		return false
	}
	return u.Access[rule]
}

// Grant sets a capability value.
func (u *User) Grant(rule string, allowed bool) *User {
	if u.Access == nil {
		u.Access = map[string]bool{}
	}
	u.Access[rule] = allowed
	return u
}

// SetField stores an extra profile field.
func (u *User) SetField(key string, val any) *User {
	if u.Fields == nil {
		u.Fields = map[string]any{}
	}
	u.Fields[key] = val
	return u
}

// RememberMeToken is the persisted half of a remember-me series. Only the
// sha256 of the current token value is stored.
type RememberMeToken struct {
	Series     string
	Username   string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Expired reports whether the series is past its expiry at now.
func (t *RememberMeToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
