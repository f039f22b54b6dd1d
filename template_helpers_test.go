package login_test

import (
	"testing"

	login "github.com/goliatone/go-login"
	"github.com/stretchr/testify/assert"
)

func TestTemplateHelpers(t *testing.T) {
	nonces := login.NewNonceService([]byte("secret"))

	anon := login.TemplateHelpers(nonces, login.NewSession())
	assert.Equal(t, false, anon["is_authenticated"])
	assert.Nil(t, anon[login.TemplateUserKey])
	assert.True(t, nonces.Verify(anon["login_nonce"].(string), login.NonceActionLogin))
	assert.True(t, nonces.Verify(anon["logout_nonce"].(string), login.NonceActionLogout))
	assert.True(t, nonces.Verify(anon["registration_nonce"].(string), login.NonceActionRegister))

	user := newEnabledUser("alice", "Passw0rd")
	user.Authenticated = true
	sess := login.NewSession()
	sess.User = user
	sess.State = login.StateAuthenticatedRemembered

	helpers := login.TemplateHelpers(nonces, sess)
	assert.Equal(t, true, helpers["is_authenticated"])
	assert.Equal(t, true, helpers["is_passive_login"])
	assert.Same(t, user, helpers[login.TemplateUserKey])
}
