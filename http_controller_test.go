package login_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	login "github.com/goliatone/go-login"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type controllerFixture struct {
	store      *memoryStore
	repo       *memoryRememberMe
	rememberMe *login.RememberMe
	nonces     *login.NonceService
	auth       *login.SessionAuthenticator
	sink       *recordingSink
	ctrl       *login.Controller
}

func newControllerFixture(t *testing.T, users ...*login.User) *controllerFixture {
	t.Helper()

	f := &controllerFixture{
		store:  newMemoryStore(users...),
		repo:   newMemoryRememberMe(),
		nonces: login.NewNonceService([]byte("test-secret")),
		sink:   &recordingSink{},
	}
	f.rememberMe = login.NewRememberMe(f.repo)
	f.auth = login.NewSessionAuthenticator(f.store, f.nonces).
		WithRememberMe(f.rememberMe).
		WithActivitySink(f.sink)

	f.ctrl = login.NewController(
		login.WithControllerStore(f.store),
		login.WithControllerServices(f.nonces, f.auth, nil, nil),
		login.WithControllerSessions(login.NewSessionTokens([]byte("session-key"), time.Hour)),
		login.WithControllerActivitySink(f.sink),
	)
	return f
}

func (f *controllerFixture) events(kind login.ActivityEventType) []login.ActivityEvent {
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	var out []login.ActivityEvent
	for _, e := range f.sink.events {
		if e.EventType == kind {
			out = append(out, e)
		}
	}
	return out
}

func newRequestContext(sess *login.Session) *router.MockContext {
	ctx := router.NewMockContext()
	if sess != nil {
		ctx.LocalsMock[login.SessionLocalsKey] = sess
	}
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("Locals", mock.Anything, mock.Anything).Return(nil).Maybe()
	return ctx
}

func authenticatedSession(user *login.User) *login.Session {
	user.Authenticated = true
	sess := login.NewSession()
	sess.User = user
	sess.State = login.StateAuthenticatedActive
	return sess
}

func noopHandler(router.Context) error { return nil }

func TestNewControllerRequiresServices(t *testing.T) {
	require.Panics(t, func() {
		login.NewController()
	})

	require.Panics(t, func() {
		login.NewController(login.WithControllerStore(newMemoryStore()))
	})
}

func TestProtectAllowsGrantedCapability(t *testing.T) {
	f := newControllerFixture(t)
	ctx := newRequestContext(authenticatedSession(newEnabledUser("alice", "Passw0rd")))

	err := f.ctrl.Protect(login.AccessRules{login.CapabilitySiteLogin: true})(noopHandler)(ctx)
	require.NoError(t, err)
	require.True(t, ctx.NextCalled)
	require.Empty(t, f.events(login.ActivityEventAccessDenied))
}

func TestProtectRedirectsAnonymousToLogin(t *testing.T) {
	f := newControllerFixture(t)
	ctx := newRequestContext(login.NewSession())

	ctx.On("OriginalURL").Return("/account?tab=profile")
	ctx.On("Method").Return("GET")
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Redirect", f.ctrl.Routes.Login, []int{http.StatusFound}).Return(nil)

	err := f.ctrl.Protect(login.AccessRules{login.CapabilitySiteLogin: true})(noopHandler)(ctx)
	require.NoError(t, err)
	require.False(t, ctx.NextCalled)

	ctx.AssertCalled(t, "Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == f.ctrl.RedirectCookie &&
			c.Value == "/account?tab=profile" &&
			c.Expires.After(time.Now())
	}))
	require.Equal(t, "/account?tab=profile", ctx.CookiesM[f.ctrl.RedirectCookie])
	ctx.AssertExpectations(t)

	denied := f.events(login.ActivityEventAccessDenied)
	require.Len(t, denied, 1)
	require.Equal(t, "login_required", denied[0].Reason)
	require.Empty(t, denied[0].Username)
	require.Equal(t, "/account?tab=profile", denied[0].Metadata["path"])
}

func TestProtectRedirectsFormPostWithSeeOther(t *testing.T) {
	f := newControllerFixture(t)
	ctx := newRequestContext(nil)

	ctx.On("OriginalURL").Return("/account")
	ctx.On("Method").Return("POST")
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Redirect", f.ctrl.Routes.Login, []int{http.StatusSeeOther}).Return(nil)

	err := f.ctrl.Protect(login.AccessRules{login.CapabilitySiteLogin: true})(noopHandler)(ctx)
	require.NoError(t, err)
	require.Equal(t, http.StatusSeeOther, ctx.StatusCodeM)
	ctx.AssertExpectations(t)
}

func TestProtectRendersDeniedWithoutCapability(t *testing.T) {
	f := newControllerFixture(t)
	ctx := newRequestContext(authenticatedSession(newEnabledUser("alice", "Passw0rd")))

	ctx.On("OriginalURL").Return("/admin")
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Status", http.StatusForbidden).Return()
	ctx.On("Render", f.ctrl.Views.Denied, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		view, ok := args.Get(1).(router.ViewContext)
		require.True(t, ok, "expected router.ViewContext")
		require.Equal(t, true, view["not_authorized"])
		require.NotEmpty(t, view["logout_nonce"])
	})

	err := f.ctrl.Protect(login.AccessRules{"admin.super": true})(noopHandler)(ctx)
	require.NoError(t, err)
	require.False(t, ctx.NextCalled)
	require.Equal(t, http.StatusForbidden, ctx.StatusCodeM)
	ctx.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)
	ctx.AssertExpectations(t)

	denied := f.events(login.ActivityEventAccessDenied)
	require.Len(t, denied, 1)
	require.Equal(t, "alice", denied[0].Username)
	require.Equal(t, "capability_missing", denied[0].Reason)
	require.Equal(t, "/admin", denied[0].Metadata["path"])
}

func TestSessionMiddlewareDropsReplayedRememberMe(t *testing.T) {
	f := newControllerFixture(t, newEnabledUser("alice", "Passw0rd"))

	issued, err := f.rememberMe.Issue(context.Background(), "alice")
	require.NoError(t, err)

	// the legitimate browser already rotated the token
	_, err = f.auth.ResumeFromRememberMe(context.Background(), login.NewSession(), issued)
	require.NoError(t, err)

	ctx := newRequestContext(nil)
	ctx.CookiesM[f.ctrl.RememberMeCookie] = issued.String()
	ctx.On("Cookie", mock.Anything).Return()

	err = f.ctrl.SessionMiddleware()(noopHandler)(ctx)
	require.NoError(t, err)
	require.True(t, ctx.NextCalled)

	sess, ok := ctx.LocalsMock[login.SessionLocalsKey].(*login.Session)
	require.True(t, ok)
	require.False(t, sess.Authenticated())
	require.Nil(t, sess.RememberMe)

	ctx.AssertCalled(t, "Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == f.ctrl.RememberMeCookie && c.Value == "" && c.Expires.Before(time.Now())
	}))
	ctx.AssertNotCalled(t, "Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == f.ctrl.SessionCookie
	}))
	_, kept := ctx.CookiesM[f.ctrl.RememberMeCookie]
	require.False(t, kept)

	require.Len(t, f.events(login.ActivityEventRememberMeTheft), 1)
	require.Zero(t, f.repo.count())
}

func TestSessionMiddlewareResumesFromRememberMe(t *testing.T) {
	f := newControllerFixture(t, newEnabledUser("alice", "Passw0rd"))

	issued, err := f.rememberMe.Issue(context.Background(), "alice")
	require.NoError(t, err)

	ctx := newRequestContext(nil)
	ctx.CookiesM[f.ctrl.RememberMeCookie] = issued.String()
	ctx.On("Cookie", mock.Anything).Return()

	err = f.ctrl.SessionMiddleware()(noopHandler)(ctx)
	require.NoError(t, err)

	sess := ctx.LocalsMock[login.SessionLocalsKey].(*login.Session)
	require.Equal(t, login.StateAuthenticatedRemembered, sess.State)
	require.Equal(t, "alice", sess.Username())

	require.NotEmpty(t, ctx.CookiesM[f.ctrl.SessionCookie])
	require.NotEmpty(t, ctx.CookiesM[f.ctrl.RememberMeCookie])
	require.NotEqual(t, issued.String(), ctx.CookiesM[f.ctrl.RememberMeCookie])
}

func TestSessionMiddlewareRestoresSessionCookie(t *testing.T) {
	f := newControllerFixture(t, newEnabledUser("alice", "Passw0rd"))

	sess := login.NewSession()
	_, err := f.auth.Login(context.Background(), sess, login.Credentials{
		Username: "alice",
		Password: "Passw0rd",
		Nonce:    f.nonces.Generate(login.NonceActionLogin),
	})
	require.NoError(t, err)

	token, _, err := f.ctrl.Sessions.Encode(sess)
	require.NoError(t, err)

	ctx := newRequestContext(nil)
	ctx.CookiesM[f.ctrl.SessionCookie] = token
	ctx.On("Cookie", mock.Anything).Return()

	err = f.ctrl.SessionMiddleware()(noopHandler)(ctx)
	require.NoError(t, err)

	restored := ctx.LocalsMock[login.SessionLocalsKey].(*login.Session)
	require.Equal(t, login.StateAuthenticatedActive, restored.State)
	require.Equal(t, "alice", restored.Username())
	require.True(t, restored.Authenticated())
	require.NotEmpty(t, ctx.CookiesM[f.ctrl.SessionCookie])
}

func TestLoginPostRedirectsOnSuccess(t *testing.T) {
	f := newControllerFixture(t, newEnabledUser("alice", "Passw0rd"))
	sess := login.NewSession()
	ctx := newRequestContext(sess)

	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		req := args.Get(0).(*login.LoginRequest)
		req.Task = "login.login"
		req.Username = "alice"
		req.Password = "Passw0rd"
		req.LoginNonce = f.nonces.Generate(login.NonceActionLogin)
	})
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Redirect", f.ctrl.Routes.Home, []int{http.StatusSeeOther}).Return(nil)

	err := f.ctrl.LoginPost(ctx)
	require.NoError(t, err)
	require.True(t, sess.Authenticated())
	ctx.AssertExpectations(t)
}

func TestLoginPostFollowsRedirectCookie(t *testing.T) {
	f := newControllerFixture(t, newEnabledUser("alice", "Passw0rd"))
	ctx := newRequestContext(login.NewSession())
	ctx.CookiesM[f.ctrl.RedirectCookie] = "/account"

	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		req := args.Get(0).(*login.LoginRequest)
		req.Task = login.TaskLogin
		req.Username = "alice"
		req.Password = "Passw0rd"
		req.LoginNonce = f.nonces.Generate(login.NonceActionLogin)
	})
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Redirect", "/account", []int{http.StatusSeeOther}).Return(nil)

	err := f.ctrl.LoginPost(ctx)
	require.NoError(t, err)
	_, kept := ctx.CookiesM[f.ctrl.RedirectCookie]
	require.False(t, kept)
	ctx.AssertExpectations(t)
}

func TestLoginPostRendersFormOnBadPassword(t *testing.T) {
	f := newControllerFixture(t, newEnabledUser("alice", "Passw0rd"))
	sess := login.NewSession()
	ctx := newRequestContext(sess)

	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		req := args.Get(0).(*login.LoginRequest)
		req.Task = login.TaskLogin
		req.Username = "alice"
		req.Password = "wrong"
		req.LoginNonce = f.nonces.Generate(login.NonceActionLogin)
	})
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Status", http.StatusUnauthorized).Return()
	ctx.On("Render", f.ctrl.Views.Login, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		view := args.Get(1).(router.ViewContext)
		require.Equal(t, router.ViewContext{"username": "alice"}, view["record"])
		require.Equal(t, false, view["not_authorized"])
	})

	err := f.ctrl.LoginPost(ctx)
	require.NoError(t, err)
	require.False(t, sess.Authenticated())
	ctx.AssertExpectations(t)
}

func TestLoginPostRejectsUnknownTask(t *testing.T) {
	f := newControllerFixture(t)
	ctx := newRequestContext(login.NewSession())

	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		args.Get(0).(*login.LoginRequest).Task = "reset"
	})
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Redirect", f.ctrl.Routes.Login, []int{http.StatusSeeOther}).Return(nil)

	err := f.ctrl.LoginPost(ctx)
	require.NoError(t, err)
	ctx.AssertExpectations(t)
}

func TestActivateWithoutServiceRedirectsHome(t *testing.T) {
	f := newControllerFixture(t)
	ctx := newRequestContext(nil)
	ctx.On("Redirect", f.ctrl.Routes.Home, []int{http.StatusSeeOther}).Return(nil)

	err := f.ctrl.Activate(ctx)
	require.NoError(t, err)
	ctx.AssertExpectations(t)
}
