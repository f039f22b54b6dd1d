package login

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultActivationTTL is how long an activation link stays redeemable.
const DefaultActivationTTL = 7 * 24 * time.Hour

const activationTokenSep = "::"

// ActivationLink is what gets mailed to a new account.
type ActivationLink struct {
	Username  string
	Token     string
	Nonce     string
	ExpiresAt time.Time
	URL       string
}

// ActivationRequest is a presented activation link.
type ActivationRequest struct {
	Username string
	Token    string
	Nonce    string
}

// ActivationService issues and redeems account activation tokens.
type ActivationService struct {
	store CredentialStore
	// nonces mints and checks the nonce carried by mailed links. Its window
	// matches the token lifetime.
	nonces   *NonceService
	notifier *Notifier
	auth     *SessionAuthenticator

	ttl     time.Duration
	baseURL string
	route   string

	sendWelcome      bool
	sendNotification bool
	loginAfter       bool

	now      Clock
	logger   Logger
	activity recorder
}

// ActivationOption configures an ActivationService.
type ActivationOption func(*ActivationService)

func WithActivationTTL(ttl time.Duration) ActivationOption {
	return func(s *ActivationService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithActivationRoute sets the absolute base URL and route used to build
// activation links.
func WithActivationRoute(baseURL, route string) ActivationOption {
	return func(s *ActivationService) {
		s.baseURL = strings.TrimRight(baseURL, "/")
		s.route = "/" + strings.Trim(route, "/")
	}
}

func WithActivationNotifier(n *Notifier) ActivationOption {
	return func(s *ActivationService) {
		s.notifier = n
	}
}

// WithActivationFollowUp sets which emails are sent once an account is
// activated.
func WithActivationFollowUp(welcome, notification bool) ActivationOption {
	return func(s *ActivationService) {
		s.sendWelcome = welcome
		s.sendNotification = notification
	}
}

// WithLoginAfterActivation logs the user in once the account is enabled.
func WithLoginAfterActivation(auth *SessionAuthenticator) ActivationOption {
	return func(s *ActivationService) {
		s.auth = auth
		s.loginAfter = auth != nil
	}
}

func WithActivationClock(now Clock) ActivationOption {
	return func(s *ActivationService) {
		s.now = normalizeClock(now)
		s.activity.now = s.now
	}
}

func WithActivationLogger(logger Logger) ActivationOption {
	return func(s *ActivationService) {
		s.logger = normalizeLogger(logger)
		s.activity.logger = s.logger
	}
}

func WithActivationActivitySink(sink ActivitySink) ActivationOption {
	return func(s *ActivationService) {
		s.activity.sink = normalizeActivitySink(sink)
	}
}

// NewActivationService returns a service storing tokens through store.
func NewActivationService(store CredentialStore, nonces *NonceService, opts ...ActivationOption) *ActivationService {
	s := &ActivationService{
		store:    store,
		ttl:      DefaultActivationTTL,
		route:    "/activate",
		now:      time.Now,
		logger:   defaultLogger,
		activity: recorder{sink: noopActivitySink{}, logger: defaultLogger},
	}

	for _, opt := range opts {
		opt(s)
	}

	if nonces == nil {
		nonces = NewNonceService(nil)
	}
	s.nonces = nonces.WithWindow(s.ttl)

	return s
}

// Issue stores a fresh activation token on user and returns the link
// payload. Any previous token is replaced.
func (s *ActivationService) Issue(ctx context.Context, user *User) (*ActivationLink, error) {
	opaque, err := randomToken()
	if err != nil {
		return nil, wrapInternal(err, "failed to generate activation token")
	}

	now := s.now()
	expiresAt := time.Unix(now.Add(s.ttl).Unix(), 0).UTC()

	user.ActivationToken = opaque + activationTokenSep + strconv.FormatInt(expiresAt.Unix(), 10)
	user.UpdatedAt = now.UTC()

	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, wrapInternal(err, "failed to store activation token")
	}

	link := &ActivationLink{
		Username:  user.Username,
		Token:     opaque,
		Nonce:     s.nonces.Generate(NonceActionActivation),
		ExpiresAt: expiresAt,
	}
	link.URL = s.linkURL(link)

	return link, nil
}

// SendActivationEmail issues a token and mails the link to user.
func (s *ActivationService) SendActivationEmail(ctx context.Context, user *User) (*ActivationLink, error) {
	if user.Email == "" {
		return nil, ErrUserNeedsEmail
	}

	if !s.notifier.Configured() {
		return nil, ErrEmailNotConfigured
	}

	link, err := s.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendActivation(ctx, user, link); err != nil {
		return link, err
	}

	s.activity.emit(ctx, ActivityEventActivationSent, user.Username, "", map[string]any{
		"expires_at": link.ExpiresAt,
	})
	return link, nil
}

// Redeem enables the account named in req. The nonce is checked before any
// lookup and stays valid for at least the token lifetime, so an expired
// link reports ErrActivationExpired. A returned user together with an error means the account was
// activated but a follow up email failed.
func (s *ActivationService) Redeem(ctx context.Context, sess *Session, req ActivationRequest) (*User, error) {
	if !s.nonces.Verify(req.Nonce, NonceActionActivation) {
		s.fail(ctx, req.Username, "invalid_nonce")
		return nil, ErrInvalidRequest
	}

	user, err := s.store.GetUser(ctx, req.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.fail(ctx, req.Username, "unknown_user")
			return nil, ErrInvalidRequest
		}
		return nil, wrapInternal(err, "failed to load user")
	}

	if user.ActivationToken == "" {
		s.fail(ctx, user.Username, "not_pending")
		return nil, ErrActivationNotPending
	}

	opaque, expiresAt, ok := parseActivationToken(user.ActivationToken)
	if !ok {
		s.logger.Warn("stored activation token is malformed", "username", user.Username)
		s.fail(ctx, user.Username, "malformed")
		return nil, ErrInvalidRequest
	}

	if subtle.ConstantTimeCompare([]byte(opaque), []byte(req.Token)) != 1 {
		s.fail(ctx, user.Username, "mismatch")
		return nil, ErrActivationMismatch
	}

	now := s.now()
	if now.Unix() > expiresAt {
		s.fail(ctx, user.Username, "expired")
		return nil, ErrActivationExpired
	}

	user.State = UserStateEnabled
	user.ActivationToken = ""
	user.UpdatedAt = now.UTC()

	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, wrapInternal(err, "failed to activate user")
	}

	s.logger.Info("user activated", "username", user.Username)
	s.activity.emit(ctx, ActivityEventActivated, user.Username, "", nil)

	followUpErr := s.followUp(ctx, user)

	if s.loginAfter && sess != nil {
		s.auth.Establish(ctx, sess, user, true)
	}

	return user, followUpErr
}

// followUp sends the post activation emails. A nil notifier reports
// ErrEmailNotConfigured for each enabled email.
func (s *ActivationService) followUp(ctx context.Context, user *User) error {
	var first error
	if s.sendWelcome {
		if err := s.notifier.SendWelcome(ctx, user); err != nil {
			s.logger.Error("failed to send welcome email", "username", user.Username, "error", err)
			first = err
		}
	}
	if s.sendNotification {
		if err := s.notifier.SendNotification(ctx, user); err != nil {
			s.logger.Error("failed to send notification email", "username", user.Username, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (s *ActivationService) fail(ctx context.Context, username, reason string) {
	s.activity.emit(ctx, ActivityEventActivationFailure, username, reason, nil)
}

func (s *ActivationService) linkURL(link *ActivationLink) string {
	return fmt.Sprintf("%s%s/%s/%s/%s",
		s.baseURL,
		s.route,
		url.PathEscape(link.Username),
		link.Token,
		link.Nonce,
	)
}

func parseActivationToken(stored string) (string, int64, bool) {
	opaque, rawExpiry, ok := strings.Cut(stored, activationTokenSep)
	if !ok || opaque == "" {
		return "", 0, false
	}
	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return opaque, expiry, true
}
