package login

import (
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// Login form tasks.
const (
	TaskLogin  = "login"
	TaskLogout = "logout"
)

// resolveTask accepts both "login" and the prefixed "login.login" form.
func resolveTask(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		return strings.TrimPrefix(v, "login.")
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetRedirect returns the path stored by SetRedirect, or def.
func (c *Controller) GetRedirect(ctx router.Context, def string) string {
	r := ctx.Cookies(c.RedirectCookie)
	if r == "" || !strings.HasPrefix(r, "/") || strings.HasPrefix(r, "//") {
		return def
	}
	c.cookieDel(ctx, c.RedirectCookie)
	return r
}

// SetRedirect remembers the current URL so login can send the user back.
func (c *Controller) SetRedirect(ctx router.Context) {
	c.Logger.Debug("setting redirect cookie", "key", c.RedirectCookie, "path", ctx.OriginalURL())
	c.cookieSet(ctx, c.RedirectCookie, ctx.OriginalURL(), c.now().Add(5*time.Minute))
}

func (c *Controller) cookieSet(ctx router.Context, name, value string, expires time.Time) {
	ctx.Cookie(&router.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   c.SecureCookies,
		SameSite: "Lax",
	})
}

func (c *Controller) cookieDel(ctx router.Context, name string) {
	ctx.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  c.now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   c.SecureCookies,
		SameSite: "Lax",
	})
}

func (c *Controller) redirectToLogin(ctx router.Context) error {
	c.SetRedirect(ctx)

	statusCode := http.StatusSeeOther
	if ctx.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return ctx.Redirect(c.Routes.Login, statusCode)
}

func (c *Controller) defaultErrHandler(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	c.Logger.Error(
		"login handler error",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	code := richErr.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}

	return ctx.Status(code).Render(c.Views.Error, router.ViewContext{
		"error": richErr,
	})
}
