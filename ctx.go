package login

import (
	"context"

	"github.com/goliatone/go-router"
)

// SessionLocalsKey is the router locals key holding the *Session.
const SessionLocalsKey = "login_session"

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSession stores the session in ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

// SessionFromContext returns the session stored by WithSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionCtxKey).(*Session)
	return sess, ok && sess != nil
}

// UserFromContext returns the current user, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	sess, ok := SessionFromContext(ctx)
	if !ok || sess.User == nil {
		return nil, false
	}
	return sess.User, true
}

// GetRouterSession returns the session attached by Controller.SessionMiddleware.
// Requests that skipped the middleware get a fresh anonymous session.
func GetRouterSession(c router.Context) *Session {
	if sess, ok := c.Locals(SessionLocalsKey).(*Session); ok && sess != nil {
		return sess
	}
	return NewSession()
}

// Can reports whether the user in ctx holds capability rule.
func Can(ctx context.Context, rule string) bool {
	user, ok := UserFromContext(ctx)
	if !ok {
		return false
	}
	return user.Authorize(rule)
}
