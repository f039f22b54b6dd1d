package login

// SessionState is the authentication state of a browser session.
type SessionState string

const (
	StateAnonymous               SessionState = "anonymous"
	StateAuthenticatedActive     SessionState = "authenticated"
	StateAuthenticatedRemembered SessionState = "remembered"
	StateDenied                  SessionState = "denied"
)

// Session is the per client state the authenticator works on. The hosting
// runtime owns its lifetime; the HTTP adapter restores it from a signed
// cookie on every request.
type Session struct {
	User       *User
	RememberMe *RememberMeCookie
	State      SessionState
}

// NewSession returns an anonymous session.
func NewSession() *Session {
	return &Session{State: StateAnonymous}
}

// Authenticated reports whether the session carries a user that passed the
// site login capability check.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != nil && s.User.Authenticated
}

// Passive reports whether the user was restored from a remember-me cookie
// rather than an interactive login.
func (s *Session) Passive() bool {
	return s != nil && s.State == StateAuthenticatedRemembered
}

// Username returns the current username or an empty string.
func (s *Session) Username() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.Username
}

func (s *Session) clear() {
	s.User = nil
	s.RememberMe = nil
	s.State = StateAnonymous
}
