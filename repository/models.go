package repository

import (
	"time"

	login "github.com/goliatone/go-login"
	"github.com/uptrace/bun"
)

// UserModel is the Bun model for users.
type UserModel struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	Username        string          `bun:"username,pk"`
	PasswordHash    string          `bun:"password_hash,notnull"`
	Email           string          `bun:"email"`
	FullName        string          `bun:"fullname"`
	State           string          `bun:"state,notnull"`
	ActivationToken string          `bun:"activation_token"`
	Access          map[string]bool `bun:"access,type:jsonb"`
	Fields          map[string]any  `bun:"fields,type:jsonb"`
	CreatedAt       time.Time       `bun:"created_at,notnull"`
	UpdatedAt       time.Time       `bun:"updated_at,notnull"`
}

// RememberMeModel is the Bun model for remember-me series.
type RememberMeModel struct {
	bun.BaseModel `bun:"table:remember_me_tokens,alias:rmt"`

	Series     string    `bun:"series,pk"`
	Username   string    `bun:"username,notnull"`
	TokenHash  string    `bun:"token_hash,notnull"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	LastUsedAt time.Time `bun:"last_used_at,notnull"`
}

func toUser(m *UserModel) *login.User {
	return &login.User{
		Username:        m.Username,
		PasswordHash:    m.PasswordHash,
		Email:           m.Email,
		FullName:        m.FullName,
		State:           login.UserState(m.State),
		ActivationToken: m.ActivationToken,
		Access:          m.Access,
		Fields:          m.Fields,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func fromUser(u *login.User) *UserModel {
	access := u.Access
	if access == nil {
		access = map[string]bool{}
	}
	fields := u.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return &UserModel{
		Username:        u.Username,
		PasswordHash:    u.PasswordHash,
		Email:           u.Email,
		FullName:        u.FullName,
		State:           string(u.State),
		ActivationToken: u.ActivationToken,
		Access:          access,
		Fields:          fields,
		CreatedAt:       u.CreatedAt.UTC(),
		UpdatedAt:       u.UpdatedAt.UTC(),
	}
}

func toRememberMe(m *RememberMeModel) *login.RememberMeToken {
	return &login.RememberMeToken{
		Series:     m.Series,
		Username:   m.Username,
		TokenHash:  m.TokenHash,
		ExpiresAt:  m.ExpiresAt,
		CreatedAt:  m.CreatedAt,
		LastUsedAt: m.LastUsedAt,
	}
}

func fromRememberMe(t *login.RememberMeToken) *RememberMeModel {
	return &RememberMeModel{
		Series:     t.Series,
		Username:   t.Username,
		TokenHash:  t.TokenHash,
		ExpiresAt:  t.ExpiresAt.UTC(),
		CreatedAt:  t.CreatedAt.UTC(),
		LastUsedAt: t.LastUsedAt.UTC(),
	}
}
