package login

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// RegisterRoutes mounts the login, registration and activation routes.
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	app.Get(c.Routes.Login, c.LoginShow).
		SetName("login.get")

	app.Post(c.Routes.Login, c.LoginPost).
		SetName("login.post")

	app.Get(c.Routes.Register, c.RegistrationShow).
		SetName("register.get")

	app.Post(c.Routes.Register, c.RegistrationCreate).
		SetName("register.post")

	app.Get(fmt.Sprintf("%s/:username/:token/:nonce", c.Routes.Activate), c.Activate).
		SetName("activate.get")
}

type ControllerViews struct {
	Login    string
	Register string
	Denied   string
	Error    string
}

// Controller is the HTTP adapter over the login services.
type Controller struct {
	Logger       Logger
	Routes       RoutesConfig
	Views        *ControllerViews
	Store        CredentialStore
	Nonces       *NonceService
	Auth         *SessionAuthenticator
	Activation   *ActivationService
	Registration *RegistrationWorkflow
	Sessions     *SessionTokens
	Gate         AuthorizationGate
	ErrorHandler router.ErrorHandler

	SessionCookie    string
	RememberMeCookie string
	RedirectCookie   string
	SecureCookies    bool

	now      Clock
	activity recorder
}

type ControllerOption func(*Controller) *Controller

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func WithControllerStore(store CredentialStore) ControllerOption {
	return func(c *Controller) *Controller {
		c.Store = store
		return c
	}
}

func WithControllerServices(nonces *NonceService, auth *SessionAuthenticator, activation *ActivationService, registration *RegistrationWorkflow) ControllerOption {
	return func(c *Controller) *Controller {
		c.Nonces = nonces
		c.Auth = auth
		c.Activation = activation
		c.Registration = registration
		return c
	}
}

func WithControllerSessions(sessions *SessionTokens) ControllerOption {
	return func(c *Controller) *Controller {
		c.Sessions = sessions
		return c
	}
}

// WithControllerConfig applies routes and cookie settings from cfg.
func WithControllerConfig(cfg Config) ControllerOption {
	return func(c *Controller) *Controller {
		c.Routes = cfg.Routes
		c.SessionCookie = cfg.Session.CookieName
		c.RememberMeCookie = cfg.RememberMe.CookieName
		c.SecureCookies = cfg.Session.Secure
		return c
	}
}

func WithControllerViews(views *ControllerViews) ControllerOption {
	return func(c *Controller) *Controller {
		if views != nil {
			c.Views = views
		}
		return c
	}
}

// WithControllerActivitySink records access.denied events raised by Protect.
func WithControllerActivitySink(sink ActivitySink) ControllerOption {
	return func(c *Controller) *Controller {
		c.activity.sink = normalizeActivitySink(sink)
		return c
	}
}

func WithControllerClock(now Clock) ControllerOption {
	return func(c *Controller) *Controller {
		c.now = normalizeClock(now)
		return c
	}
}

// NewController builds the HTTP adapter. It panics when a required service
// is missing.
func NewController(opts ...ControllerOption) *Controller {
	def := DefaultConfig()
	c := &Controller{
		Logger:           defaultLogger,
		Routes:           def.Routes,
		SessionCookie:    def.Session.CookieName,
		RememberMeCookie: def.RememberMe.CookieName,
		RedirectCookie:   "login-redirect",
		SecureCookies:    true,
		Views: &ControllerViews{
			Login:    "login",
			Register: "register",
			Denied:   "access_denied",
			Error:    "errors/500",
		},
		now:      time.Now,
		activity: recorder{sink: noopActivitySink{}},
	}
	c.ErrorHandler = c.defaultErrHandler

	for _, opt := range opts {
		c = opt(c)
	}

	c.activity.logger = c.Logger
	c.activity.now = c.now

	if c.Store == nil {
		panic("missing CredentialStore in login controller")
	}

	if c.Nonces == nil || c.Auth == nil {
		panic("missing NonceService or SessionAuthenticator in login controller")
	}

	if c.Sessions == nil {
		panic("missing SessionTokens in login controller")
	}

	return c
}

// SessionMiddleware restores the session from its cookie, performs the
// remember-me passive login once when no user is present, and writes the
// cookies back after the handler ran.
func (c *Controller) SessionMiddleware() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			hadSession := ctx.Cookies(c.SessionCookie) != ""
			hadRememberMe := ctx.Cookies(c.RememberMeCookie) != ""

			sess := c.restore(ctx)
			ctx.Locals(SessionLocalsKey, sess)

			err := ctx.Next()

			c.persist(ctx, sess, hadSession, hadRememberMe)
			return err
		}
	}
}

// Protect runs the AuthorizationGate for rules before the handler.
func (c *Controller) Protect(rules AccessRules) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			sess := GetRouterSession(ctx)

			switch c.Gate.Decide(sess.User, rules) {
			case DecisionAllow:
				return ctx.Next()
			case DecisionRedirectLogin:
				c.Logger.Debug("protected page, redirecting to login", "path", ctx.OriginalURL())
				c.activity.emit(ctx.Context(), ActivityEventAccessDenied, sess.Username(), "login_required", map[string]any{
					"path": ctx.OriginalURL(),
				})
				return c.redirectToLogin(ctx)
			default:
				c.Logger.Info("access denied", "username", sess.Username(), "path", ctx.OriginalURL())
				c.activity.emit(ctx.Context(), ActivityEventAccessDenied, sess.Username(), "capability_missing", map[string]any{
					"path": ctx.OriginalURL(),
				})
				return flash.WithError(ctx, router.ViewContext{
					"error_message":  MessageOf(ErrAccessDenied),
					"system_message": "Access denied",
				}).Status(http.StatusForbidden).Render(c.Views.Denied, withHelpers(c.Nonces, sess, router.ViewContext{
					"not_authorized": true,
				}))
			}
		}
	}
}

func (c *Controller) restore(ctx router.Context) *Session {
	sess := NewSession()

	if raw := ctx.Cookies(c.SessionCookie); raw != "" {
		if claims, err := c.Sessions.Decode(raw); err == nil {
			user, err := c.Store.GetUser(ctx.Context(), claims.Subject)
			switch {
			case err == nil && user.Enabled():
				user.Authenticated = user.Authorize(CapabilitySiteLogin)
				sess.User = user
				sess.State = StateAuthenticatedActive
				if claims.Passive {
					sess.State = StateAuthenticatedRemembered
				}
			case err != nil && !errors.Is(err, ErrUserNotFound):
				c.Logger.Error("failed to restore session user", "username", claims.Subject, "error", err)
			}
		}
	}

	raw := ctx.Cookies(c.RememberMeCookie)
	if raw == "" {
		return sess
	}

	cookie, err := ParseRememberMeCookie(raw)
	if sess.User != nil {
		if err == nil {
			sess.RememberMe = cookie
		}
		return sess
	}

	if err == nil {
		_, err = c.Auth.ResumeFromRememberMe(ctx.Context(), sess, cookie)
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrTheftDetected):
		flash.WithError(ctx, router.ViewContext{
			"error_message":  MessageOf(ErrTheftDetected),
			"system_message": "Remember me cookie was stolen",
		})
	case !IsRecoverable(err):
		c.Logger.Error("remember me login failed", "error", err)
	}

	return sess
}

func (c *Controller) persist(ctx router.Context, sess *Session, hadSession, hadRememberMe bool) {
	if sess.User != nil {
		token, expiresAt, err := c.Sessions.Encode(sess)
		if err != nil {
			c.Logger.Error("failed to encode session", "error", err)
		} else {
			c.cookieSet(ctx, c.SessionCookie, token, expiresAt)
		}
	} else if hadSession {
		c.cookieDel(ctx, c.SessionCookie)
	}

	switch {
	case sess.RememberMe != nil && !sess.RememberMe.ExpiresAt.IsZero():
		c.cookieSet(ctx, c.RememberMeCookie, sess.RememberMe.String(), sess.RememberMe.ExpiresAt)
	case sess.RememberMe == nil && hadRememberMe:
		c.cookieDel(ctx, c.RememberMeCookie)
	}
}

// LoginRequest is the login form. Task carries "login" or "logout".
type LoginRequest struct {
	Task        string `form:"task" json:"task"`
	Username    string `form:"username" json:"username"`
	Password    string `form:"password" json:"password"`
	RememberMe  bool   `form:"rememberme" json:"rememberme"`
	LoginNonce  string `form:"login-form-nonce" json:"login-form-nonce"`
	LogoutNonce string `form:"logout-nonce" json:"logout-nonce"`
}

// LoginShow renders the login form. A logout link (task=logout) is handled
// here as well.
func (c *Controller) LoginShow(ctx router.Context) error {
	sess := GetRouterSession(ctx)

	if resolveTask(ctx.Query("task")) == TaskLogout {
		return c.logout(ctx, sess, ctx.Query("logout-nonce"))
	}

	return ctx.Render(c.Views.Login, withHelpers(c.Nonces, sess, router.ViewContext{
		"record":               nil,
		"remember_me_enabled":  c.Auth.RememberMeEnabled(),
		"registration_enabled": c.Registration != nil && c.Registration.Enabled(),
		"route_register":       c.Routes.Register,
	}))
}

func (c *Controller) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	sess := GetRouterSession(ctx)

	if err := ctx.Bind(payload); err != nil {
		c.Logger.Error("login parse payload", "error", err)
		return c.ErrorHandler(ctx, err)
	}

	switch resolveTask(payload.Task, ctx.Query("task")) {
	case TaskLogout:
		return c.logout(ctx, sess, firstNonEmpty(payload.LogoutNonce, ctx.Query("logout-nonce")))
	case TaskLogin:
	default:
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  MessageOf(ErrInvalidRequest),
			"system_message": "Unknown login task",
		}).Redirect(c.Routes.Login, http.StatusSeeOther)
	}

	_, err := c.Auth.Login(ctx.Context(), sess, Credentials{
		Username:   payload.Username,
		Password:   payload.Password,
		Nonce:      payload.LoginNonce,
		RememberMe: payload.RememberMe,
	})
	if err != nil {
		if !IsRecoverable(err) {
			return c.ErrorHandler(ctx, err)
		}

		status := http.StatusUnauthorized
		if errors.Is(err, ErrInvalidRequest) {
			status = http.StatusForbidden
		}

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  MessageOf(err),
			"system_message": "Login failed",
		}).Status(status).Render(c.Views.Login, withHelpers(c.Nonces, sess, router.ViewContext{
			"record":              router.ViewContext{"username": payload.Username},
			"remember_me_enabled": c.Auth.RememberMeEnabled(),
			"not_authorized":      errors.Is(err, ErrInvalidRequest),
		}))
	}

	redirect := c.GetRedirect(ctx, c.Routes.Home)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "You have been successfully logged in",
	}).Redirect(redirect, http.StatusSeeOther)
}

func (c *Controller) logout(ctx router.Context, sess *Session, nonce string) error {
	if err := c.Auth.Logout(ctx.Context(), sess, nonce); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  MessageOf(err),
			"system_message": "Logout failed",
		}).Redirect(c.Routes.Home, http.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "You have been successfully logged out",
	}).Redirect(c.Routes.Home, http.StatusSeeOther)
}

// Activate redeems /activate/:username/:token/:nonce.
func (c *Controller) Activate(ctx router.Context) error {
	if c.Activation == nil {
		return ctx.Redirect(c.Routes.Home, http.StatusSeeOther)
	}

	sess := GetRouterSession(ctx)
	user, err := c.Activation.Redeem(ctx.Context(), sess, ActivationRequest{
		Username: ctx.Param("username"),
		Token:    ctx.Param("token"),
		Nonce:    ctx.Param("nonce"),
	})

	if user == nil {
		if !IsRecoverable(err) {
			return c.ErrorHandler(ctx, err)
		}
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  MessageOf(err),
			"system_message": "Activation failed",
		}).Redirect(c.Routes.Home, http.StatusSeeOther)
	}

	if err != nil {
		c.Logger.Warn("user activated but follow up email failed", "username", user.Username, "error", err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "User account activated successfully",
	}).Redirect(c.Routes.Home, http.StatusSeeOther)
}

// RegistrationRequest is the registration form.
type RegistrationRequest struct {
	Username  string `form:"username" json:"username"`
	Password  string `form:"password" json:"password"`
	Password1 string `form:"password1" json:"password1"`
	Password2 string `form:"password2" json:"password2"`
	Email     string `form:"email" json:"email"`
	FullName  string `form:"fullname" json:"fullname"`
	Title     string `form:"title" json:"title"`
	Nonce     string `form:"registration-nonce" json:"registration-nonce"`
}

// Form converts the request to the workflow payload.
func (r RegistrationRequest) Form() RegistrationForm {
	form := RegistrationForm{
		FieldUsername:  strings.TrimSpace(r.Username),
		FieldPassword:  r.Password,
		FieldPassword1: r.Password1,
		FieldPassword2: r.Password2,
		FieldEmail:     strings.TrimSpace(r.Email),
		FieldFullName:  strings.TrimSpace(r.FullName),
		"title":        strings.TrimSpace(r.Title),
		FieldNonce:     r.Nonce,
	}
	return form
}

func (c *Controller) RegistrationShow(ctx router.Context) error {
	if c.Registration == nil || !c.Registration.Enabled() {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": MessageOf(ErrRegistrationDisabled),
		}).Redirect(c.Routes.Home, http.StatusSeeOther)
	}

	return ctx.Render(c.Views.Register, withHelpers(c.Nonces, GetRouterSession(ctx), router.ViewContext{
		"record": nil,
	}))
}

func (c *Controller) RegistrationCreate(ctx router.Context) error {
	if c.Registration == nil {
		return ctx.Redirect(c.Routes.Home, http.StatusSeeOther)
	}

	payload := new(RegistrationRequest)
	sess := GetRouterSession(ctx)

	if err := ctx.Bind(payload); err != nil {
		c.Logger.Error("register user parse payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(http.StatusBadRequest).Render(c.Views.Register, withHelpers(c.Nonces, sess, router.ViewContext{
			"validation": map[string]string{"form": "Failed to parse form"},
		}))
	}

	result, err := c.Registration.Register(ctx.Context(), sess, payload.Form())
	if result == nil {
		if !IsRecoverable(err) {
			return c.ErrorHandler(ctx, err)
		}

		validation := map[string]string{}
		if field := FieldOf(err); field != "" {
			validation[field] = MessageOf(err)
		}

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  MessageOf(err),
			"system_message": "Error validating payload",
		}).Status(http.StatusBadRequest).Render(c.Views.Register, withHelpers(c.Nonces, sess, router.ViewContext{
			"record":     router.ViewContext{"username": payload.Username, "email": payload.Email, "fullname": payload.FullName},
			"validation": validation,
		}))
	}

	if err != nil {
		if !IsRecoverable(err) {
			return c.ErrorHandler(ctx, err)
		}
		c.Logger.Warn("user registered but follow up failed", "username", result.User.Username, "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  MessageOf(err),
			"system_message": "Registration completed with errors",
		}).Redirect(c.Routes.Home, http.StatusSeeOther)
	}

	message := "Successful user registration"
	if result.Activation != nil {
		message = "Check your email to activate your account"
	}

	redirect := firstNonEmpty(result.Redirect, c.Routes.Home)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": message,
	}).Redirect(redirect, http.StatusSeeOther)
}
