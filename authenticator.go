package login

import (
	"context"
	"errors"
	"strings"
)

// Credentials is an interactive login attempt.
type Credentials struct {
	Username   string
	Password   string
	Nonce      string
	RememberMe bool
}

// ExternalIdentity is an identity already verified by an external provider,
// for example at the end of an OAuth handshake.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Username string
	Email    string
	FullName string
}

// SessionAuthenticator moves sessions between Anonymous, AuthenticatedActive,
// AuthenticatedRemembered and Denied.
type SessionAuthenticator struct {
	store      CredentialStore
	nonces     *NonceService
	rememberMe *RememberMe
	logger     Logger
	activity   recorder
}

// NewSessionAuthenticator returns an authenticator without remember-me
// support. Use WithRememberMe to enable it.
func NewSessionAuthenticator(store CredentialStore, nonces *NonceService) *SessionAuthenticator {
	return &SessionAuthenticator{
		store:    store,
		nonces:   nonces,
		logger:   defaultLogger,
		activity: recorder{sink: noopActivitySink{}, logger: defaultLogger},
	}
}

func (a *SessionAuthenticator) WithLogger(logger Logger) *SessionAuthenticator {
	a.logger = normalizeLogger(logger)
	a.activity.logger = a.logger
	return a
}

// WithRememberMe enables persistent login. Passing nil disables it.
func (a *SessionAuthenticator) WithRememberMe(rm *RememberMe) *SessionAuthenticator {
	a.rememberMe = rm
	return a
}

// WithActivitySink configures an ActivitySink for emitting login events.
func (a *SessionAuthenticator) WithActivitySink(sink ActivitySink) *SessionAuthenticator {
	a.activity.sink = normalizeActivitySink(sink)
	return a
}

func (a *SessionAuthenticator) WithClock(now Clock) *SessionAuthenticator {
	a.activity.now = now
	return a
}

// RememberMeEnabled reports whether persistent login is configured.
func (a *SessionAuthenticator) RememberMeEnabled() bool {
	return a.rememberMe != nil
}

// Login verifies the login nonce and the credentials. A failed nonce returns
// StateDenied and leaves the session untouched.
func (a *SessionAuthenticator) Login(ctx context.Context, sess *Session, creds Credentials) (SessionState, error) {
	if !a.nonces.Verify(creds.Nonce, NonceActionLogin) {
		a.logger.Info("login rejected, invalid nonce", "username", creds.Username)
		a.activity.emit(ctx, ActivityEventNonceRejected, creds.Username, NonceActionLogin, nil)
		return StateDenied, ErrInvalidRequest
	}

	username := strings.TrimSpace(creds.Username)

	user, err := a.store.GetUser(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			a.logger.Error("login failed to load user", "username", username, "error", err)
			return sess.State, wrapInternal(err, "failed to load user")
		}
		compareDummyHash(creds.Password)
		a.activity.emit(ctx, ActivityEventLoginFailure, username, "unknown_user", nil)
		return sess.State, ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(creds.Password, user.PasswordHash); err != nil {
		a.activity.emit(ctx, ActivityEventLoginFailure, username, "bad_password", nil)
		return sess.State, ErrInvalidCredentials
	}

	if !user.Enabled() {
		a.activity.emit(ctx, ActivityEventLoginFailure, username, "account_disabled", nil)
		return sess.State, ErrAccountDisabled
	}

	a.dropSeries(ctx, sess)

	a.establish(sess, user, StateAuthenticatedActive)

	if creds.RememberMe && a.rememberMe != nil {
		cookie, err := a.rememberMe.Issue(ctx, user.Username)
		if err != nil {
			// the login itself stands
			a.logger.Error("failed to issue remember me series", "username", user.Username, "error", err)
		} else {
			sess.RememberMe = cookie
		}
	}

	a.logger.Info("user logged in", "username", user.Username, "remember_me", sess.RememberMe != nil)
	a.activity.emit(ctx, ActivityEventLoginSuccess, user.Username, "", map[string]any{
		"remember_me":   sess.RememberMe != nil,
		"authenticated": user.Authenticated,
	})

	return sess.State, nil
}

// Logout verifies the logout nonce, revokes the attached series and clears
// the session.
func (a *SessionAuthenticator) Logout(ctx context.Context, sess *Session, nonce string) error {
	if !a.nonces.Verify(nonce, NonceActionLogout) {
		a.activity.emit(ctx, ActivityEventNonceRejected, sess.Username(), NonceActionLogout, nil)
		return ErrInvalidRequest
	}

	username := sess.Username()
	a.dropSeries(ctx, sess)
	sess.clear()

	a.logger.Info("user logged out", "username", username)
	a.activity.emit(ctx, ActivityEventLogout, username, "", nil)
	return nil
}

// ResumeFromRememberMe performs the passive login. It is a no-op when the
// session already has a user or remember-me is disabled. ErrTheftDetected is
// returned when the cookie was replayed; the session stays anonymous.
func (a *SessionAuthenticator) ResumeFromRememberMe(ctx context.Context, sess *Session, cookie *RememberMeCookie) (SessionState, error) {
	if sess.User != nil || a.rememberMe == nil || cookie == nil {
		return sess.State, nil
	}

	username, next, err := a.rememberMe.Validate(ctx, cookie.Series, cookie.Token)
	if err != nil {
		switch {
		case errors.Is(err, ErrTheftDetected):
			a.logger.Warn("remember me theft detected", "username", username, "series", cookie.Series)
			a.activity.emit(ctx, ActivityEventRememberMeTheft, username, "", map[string]any{
				"series": cookie.Series,
			})
		case errors.Is(err, ErrRememberMeInvalid):
			a.activity.emit(ctx, ActivityEventRememberMeRejected, "", "invalid", nil)
		default:
			a.logger.Error("remember me validation failed", "error", err)
		}
		return sess.State, err
	}

	user, err := a.store.GetUser(ctx, username)
	if err != nil || !user.Enabled() {
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return sess.State, wrapInternal(err, "failed to load user")
		}
		// the account went away or was disabled after the series was issued
		if rerr := a.rememberMe.Revoke(ctx, cookie.Series); rerr != nil {
			a.logger.Error("failed to revoke orphan remember me series", "series", cookie.Series, "error", rerr)
		}
		a.activity.emit(ctx, ActivityEventRememberMeRejected, username, "user_unavailable", nil)
		return sess.State, ErrRememberMeInvalid
	}

	a.establish(sess, user, StateAuthenticatedRemembered)
	sess.RememberMe = next

	a.logger.Debug("user resumed from remember me", "username", user.Username)
	a.activity.emit(ctx, ActivityEventRememberMeLogin, user.Username, "", nil)

	return sess.State, nil
}

// Establish attaches user to the session without checking credentials. It
// backs login after registration or activation. Passive logins end in
// StateAuthenticatedRemembered.
func (a *SessionAuthenticator) Establish(ctx context.Context, sess *Session, user *User, passive bool) SessionState {
	a.dropSeries(ctx, sess)

	state := StateAuthenticatedActive
	if passive {
		state = StateAuthenticatedRemembered
	}
	a.establish(sess, user, state)

	a.activity.emit(ctx, ActivityEventLoginSuccess, user.Username, "established", map[string]any{
		"passive": passive,
	})
	return sess.State
}

// LoginExternal turns an externally verified identity into a local session.
// Unknown usernames are provisioned as enabled accounts with a random
// password.
func (a *SessionAuthenticator) LoginExternal(ctx context.Context, sess *Session, identity ExternalIdentity) (SessionState, error) {
	username := strings.ToLower(strings.TrimSpace(identity.Username))
	if username == "" || identity.Provider == "" {
		return sess.State, ErrInvalidRequest
	}

	user, err := a.store.GetUser(ctx, username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		user = &User{
			Username:     username,
			Email:        identity.Email,
			FullName:     identity.FullName,
			PasswordHash: RandomPasswordHash(),
			State:        UserStateEnabled,
		}
		user.Grant(CapabilitySiteLogin, true)
		user.SetField("provider", identity.Provider)
		user.SetField("provider_subject", identity.Subject)

		if err := a.store.CreateUser(ctx, user); err != nil {
			if errors.Is(err, ErrUsernameTaken) {
				return sess.State, err
			}
			return sess.State, wrapInternal(err, "failed to provision external user")
		}
		a.logger.Info("provisioned user from external identity", "username", username, "provider", identity.Provider)
	case err != nil:
		return sess.State, wrapInternal(err, "failed to load user")
	}

	if !user.Enabled() {
		a.activity.emit(ctx, ActivityEventLoginFailure, username, "account_disabled", nil)
		return sess.State, ErrAccountDisabled
	}

	a.dropSeries(ctx, sess)
	a.establish(sess, user, StateAuthenticatedActive)

	a.activity.emit(ctx, ActivityEventExternalLogin, username, "", map[string]any{
		"provider": identity.Provider,
	})
	return sess.State, nil
}

func (a *SessionAuthenticator) establish(sess *Session, user *User, state SessionState) {
	user.Authenticated = user.Authorize(CapabilitySiteLogin)
	sess.User = user
	sess.State = state
}

func (a *SessionAuthenticator) dropSeries(ctx context.Context, sess *Session) {
	if sess.RememberMe == nil || a.rememberMe == nil {
		sess.RememberMe = nil
		return
	}
	if err := a.rememberMe.Revoke(ctx, sess.RememberMe.Series); err != nil {
		a.logger.Error("failed to revoke remember me series", "series", sess.RememberMe.Series, "error", err)
	}
	sess.RememberMe = nil
}
