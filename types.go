package login

import (
	"context"
	"time"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the logging surface used across the package. glog loggers
// satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CredentialStore persists users keyed by username.
type CredentialStore interface {
	// GetUser returns ErrUserNotFound when the username is unknown.
	GetUser(ctx context.Context, username string) (*User, error)
	UserExists(ctx context.Context, username string) (bool, error)
	// CreateUser returns ErrUsernameTaken when the username already exists.
	CreateUser(ctx context.Context, user *User) error
	SaveUser(ctx context.Context, user *User) error
}

// RememberMeRepository persists remember-me series.
type RememberMeRepository interface {
	Create(ctx context.Context, token *RememberMeToken) error
	// FindBySeries returns ErrRememberMeNotFound for unknown series.
	FindBySeries(ctx context.Context, series string) (*RememberMeToken, error)
	// Rotate replaces the token hash only if the stored hash still equals
	// currentHash. It reports whether the swap happened.
	Rotate(ctx context.Context, series, currentHash, nextHash string, expiresAt, usedAt time.Time) (bool, error)
	Delete(ctx context.Context, series string) error
	DeleteByUsername(ctx context.Context, username string) (int64, error)
}

// Mailer delivers an HTML message. It returns the number of accepted
// recipients.
type Mailer interface {
	Send(ctx context.Context, subject, htmlBody string, to ...string) (int, error)
}

// Clock returns the current time.
type Clock func() time.Time

func normalizeClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

var defaultLogger Logger = glog.NewLogger(
	glog.WithName("login"),
	glog.WithAddSource(false),
).GetLogger("login")

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defaultLogger
	}
	return l
}
