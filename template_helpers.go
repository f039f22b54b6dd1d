package login

import (
	"maps"

	"github.com/goliatone/go-router"
)

// TemplateUserKey is the view key holding the current user.
var TemplateUserKey = "current_user"

// TemplateHelpers returns view data for the login, logout and registration
// forms of sess.
//
// In templates:
//
//	<input type="hidden" name="login-form-nonce" value="{{ login_nonce }}">
//	<a href="/login?task=logout&logout-nonce={{ logout_nonce }}">Logout</a>
//	{% if is_authenticated %}{{ current_user.Username }}{% endif %}
func TemplateHelpers(nonces *NonceService, sess *Session) router.ViewContext {
	helpers := router.ViewContext{
		TemplateUserKey:      nil,
		"is_authenticated":   sess.Authenticated(),
		"is_passive_login":   sess.Passive(),
		"login_nonce":        nonces.Generate(NonceActionLogin),
		"logout_nonce":       nonces.Generate(NonceActionLogout),
		"registration_nonce": nonces.Generate(NonceActionRegister),
	}

	if sess != nil && sess.User != nil {
		helpers[TemplateUserKey] = sess.User
	}

	return helpers
}

// withHelpers merges view data over the template helpers.
func withHelpers(nonces *NonceService, sess *Session, data router.ViewContext) router.ViewContext {
	out := TemplateHelpers(nonces, sess)
	maps.Copy(out, data)
	return out
}
