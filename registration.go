package login

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Registration form keys with fixed meaning.
const (
	FieldUsername  = "username"
	FieldPassword  = "password"
	FieldPassword1 = "password1"
	FieldPassword2 = "password2"
	FieldEmail     = "email"
	FieldFullName  = "fullname"
	FieldNonce     = "registration-nonce"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_-]{3,16}$`)

// RegistrationForm is the submitted registration payload.
type RegistrationForm map[string]string

// RegistrationResult describes what happened after the account was stored.
type RegistrationResult struct {
	User       *User
	Activation *ActivationLink
	LoggedIn   bool
	Redirect   string
}

// RegistrationWorkflow validates and stores new accounts.
type RegistrationWorkflow struct {
	store      CredentialStore
	cfg        RegistrationConfig
	nonces     *NonceService
	activation *ActivationService
	notifier   *Notifier
	auth       *SessionAuthenticator

	now      Clock
	logger   Logger
	activity recorder
}

// RegistrationOption configures a RegistrationWorkflow.
type RegistrationOption func(*RegistrationWorkflow)

// WithRegistrationNonces requires a valid registration-nonce on every form.
func WithRegistrationNonces(nonces *NonceService) RegistrationOption {
	return func(w *RegistrationWorkflow) {
		w.nonces = nonces
	}
}

func WithRegistrationActivation(activation *ActivationService) RegistrationOption {
	return func(w *RegistrationWorkflow) {
		w.activation = activation
	}
}

func WithRegistrationNotifier(n *Notifier) RegistrationOption {
	return func(w *RegistrationWorkflow) {
		w.notifier = n
	}
}

func WithRegistrationAuthenticator(auth *SessionAuthenticator) RegistrationOption {
	return func(w *RegistrationWorkflow) {
		w.auth = auth
	}
}

func WithRegistrationClock(now Clock) RegistrationOption {
	return func(w *RegistrationWorkflow) {
		w.now = normalizeClock(now)
		w.activity.now = w.now
	}
}

func WithRegistrationLogger(logger Logger) RegistrationOption {
	return func(w *RegistrationWorkflow) {
		w.logger = normalizeLogger(logger)
		w.activity.logger = w.logger
	}
}

func WithRegistrationActivitySink(sink ActivitySink) RegistrationOption {
	return func(w *RegistrationWorkflow) {
		w.activity.sink = normalizeActivitySink(sink)
	}
}

// NewRegistrationWorkflow returns a workflow driven by cfg.
func NewRegistrationWorkflow(store CredentialStore, cfg RegistrationConfig, opts ...RegistrationOption) *RegistrationWorkflow {
	w := &RegistrationWorkflow{
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		logger:   defaultLogger,
		activity: recorder{sink: noopActivitySink{}, logger: defaultLogger},
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Enabled reports whether self registration is open.
func (w *RegistrationWorkflow) Enabled() bool {
	return w.cfg.Enabled
}

// Register validates form, stores the account and runs the configured
// follow ups. Validation stops at the first failing field and nothing is
// stored. When the account was stored but a follow up failed, the result is
// returned together with the error.
func (w *RegistrationWorkflow) Register(ctx context.Context, sess *Session, form RegistrationForm) (*RegistrationResult, error) {
	if !w.cfg.Enabled {
		return nil, ErrRegistrationDisabled
	}

	if w.nonces != nil && !w.nonces.Verify(form[FieldNonce], NonceActionRegister) {
		w.fail(ctx, form[FieldUsername], "invalid_nonce")
		return nil, ErrInvalidRequest
	}

	if err := w.validate(ctx, form); err != nil {
		w.fail(ctx, form[FieldUsername], FieldOf(err))
		return nil, err
	}

	user, err := w.assemble(form)
	if err != nil {
		return nil, err
	}

	if err := w.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			w.fail(ctx, user.Username, FieldUsername)
			return nil, fieldError(FieldUsername, ErrUsernameTaken)
		}
		return nil, wrapInternal(err, "failed to store user")
	}

	w.logger.Info("user registered", "username", user.Username, "state", string(user.State))
	w.activity.emit(ctx, ActivityEventRegistered, user.Username, "", map[string]any{
		"state": string(user.State),
	})

	result := &RegistrationResult{
		User:     user,
		Redirect: w.cfg.RedirectAfterRegistration,
	}

	opts := w.cfg.Options
	if user.Enabled() && opts.LoginAfterRegistration && w.auth != nil && sess != nil {
		w.auth.Establish(ctx, sess, user, false)
		result.LoggedIn = true
	}

	if opts.SendActivationEmail {
		if w.activation == nil {
			return result, ErrEmailNotConfigured
		}
		link, err := w.activation.SendActivationEmail(ctx, user)
		result.Activation = link
		return result, err
	}

	var followUpErr error
	if opts.SendWelcomeEmail {
		followUpErr = w.notifier.SendWelcome(ctx, user)
	}
	if opts.SendNotificationEmail {
		if err := w.notifier.SendNotification(ctx, user); err != nil && followUpErr == nil {
			followUpErr = err
		}
	}

	return result, followUpErr
}

func (w *RegistrationWorkflow) validate(ctx context.Context, form RegistrationForm) error {
	username := form[FieldUsername]

	if err := validation.Validate(username,
		validation.Required,
		validation.Match(usernamePattern),
	); err != nil {
		return fieldError(FieldUsername, ErrUsernameInvalid)
	}

	exists, err := w.store.UserExists(ctx, username)
	if err != nil {
		return wrapInternal(err, "failed to check username availability")
	}
	if exists {
		return fieldError(FieldUsername, ErrUsernameTaken)
	}

	opts := w.cfg.Options

	if opts.ValidatePassword1AndPassword2 {
		if err := validatePassword(form[FieldPassword1]); err != nil {
			return fieldError(FieldPassword1, err)
		}
		if form[FieldPassword1] != form[FieldPassword2] {
			return fieldError(FieldPassword2, ErrPasswordMismatch)
		}
	}

	if opts.ValidatePassword {
		if err := validatePassword(form[FieldPassword]); err != nil {
			return fieldError(FieldPassword, err)
		}
	}

	if w.password(form) == "" {
		return fieldError(w.passwordField(), ErrPasswordWeak)
	}

	if err := validation.Validate(form[FieldEmail], is.Email); err != nil {
		return fieldError(FieldEmail, ErrEmailInvalid)
	}

	return nil
}

func (w *RegistrationWorkflow) assemble(form RegistrationForm) (*User, error) {
	hash, err := HashPassword(w.password(form))
	if err != nil {
		return nil, wrapInternal(err, "failed to hash password")
	}

	now := w.now().UTC()
	user := &User{
		Username:     form[FieldUsername],
		PasswordHash: hash,
		State:        UserStateEnabled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if w.cfg.Options.SetUserDisabled {
		user.State = UserStateDisabled
	}

	for rule, allowed := range w.cfg.Access {
		user.Grant(rule, allowed)
	}

	for field, value := range w.fields(form) {
		switch field {
		case FieldEmail:
			user.Email = firstValue(value)
		case FieldFullName:
			user.FullName = firstValue(value)
		default:
			user.SetField(field, value)
		}
	}

	return user, nil
}

// fields applies the allow list. Configured default values win over
// submitted ones and are split on commas.
func (w *RegistrationWorkflow) fields(form RegistrationForm) map[string]any {
	out := map[string]any{}
	for _, field := range w.cfg.Fields {
		switch field {
		case FieldUsername, FieldPassword, FieldPassword1, FieldPassword2, FieldNonce:
			continue
		}

		if def, ok := w.cfg.DefaultValues[field]; ok {
			out[field] = splitValues(def)
			continue
		}

		if v := strings.TrimSpace(form[field]); v != "" {
			out[field] = v
		}
	}
	return out
}

func (w *RegistrationWorkflow) password(form RegistrationForm) string {
	return form[w.passwordField()]
}

func (w *RegistrationWorkflow) passwordField() string {
	if w.cfg.Options.ValidatePassword1AndPassword2 {
		return FieldPassword1
	}
	return FieldPassword
}

func (w *RegistrationWorkflow) fail(ctx context.Context, username, reason string) {
	w.activity.emit(ctx, ActivityEventRegisterFailure, username, reason, nil)
}

// validatePassword requires a digit, a lowercase and an uppercase ASCII
// letter, and at least 8 characters.
func validatePassword(password string) error {
	err := validation.Validate(password,
		validation.Required,
		validation.By(func(value any) error {
			s, _ := value.(string)
			if !passwordComplex(s) {
				return ErrPasswordWeak
			}
			return nil
		}),
	)
	if err != nil {
		return ErrPasswordWeak
	}
	return nil
}

func passwordComplex(s string) bool {
	if len([]rune(s)) < 8 {
		return false
	}
	var digit, lower, upper bool
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		}
	}
	return digit && lower && upper
}

func splitValues(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		if len(t) > 0 {
			return t[0]
		}
	}
	return ""
}
