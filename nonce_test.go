package login_test

import (
	"testing"
	"time"

	login "github.com/goliatone/go-login"
	"github.com/stretchr/testify/assert"
)

func TestNonceRoundTrip(t *testing.T) {
	clock := newTestClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	nonces := login.NewNonceService([]byte("secret"), login.WithNonceClock(clock.Now))

	token := nonces.Generate(login.NonceActionLogin)
	assert.NotEmpty(t, token)
	assert.True(t, nonces.Verify(token, login.NonceActionLogin))
	assert.False(t, nonces.Verify(token, login.NonceActionLogout), "nonces are bound to their action")
}

func TestNonceRejectsGarbage(t *testing.T) {
	nonces := login.NewNonceService([]byte("secret"))

	assert.False(t, nonces.Verify("", login.NonceActionLogin))
	assert.False(t, nonces.Verify("not-hex", login.NonceActionLogin))
	assert.False(t, nonces.Verify("abcdef", login.NonceActionLogin))
}

func TestNonceSecretIsolation(t *testing.T) {
	a := login.NewNonceService([]byte("secret-a"))
	b := login.NewNonceService([]byte("secret-b"))

	assert.False(t, b.Verify(a.Generate(login.NonceActionLogin), login.NonceActionLogin))
}

func TestNonceRandomSecretWhenEmpty(t *testing.T) {
	a := login.NewNonceService(nil)
	b := login.NewNonceService(nil)

	token := a.Generate(login.NonceActionRegister)
	assert.True(t, a.Verify(token, login.NonceActionRegister))
	assert.False(t, b.Verify(token, login.NonceActionRegister))
}

func TestNonceWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := newTestClock(start)
	nonces := login.NewNonceService([]byte("secret"),
		login.WithNonceWindow(time.Hour),
		login.WithNonceClock(clock.Now),
	)
	assert.Equal(t, time.Hour, nonces.Window())

	token := nonces.Generate(login.NonceActionLogin)

	clock.Advance(90 * time.Minute)
	assert.True(t, nonces.Verify(token, login.NonceActionLogin), "previous bucket still verifies")

	clock.Advance(time.Hour)
	assert.False(t, nonces.Verify(token, login.NonceActionLogin), "two buckets later the nonce expired")
}

func TestNonceWindowIgnoresSubSecond(t *testing.T) {
	nonces := login.NewNonceService([]byte("secret"), login.WithNonceWindow(time.Millisecond))
	assert.Equal(t, login.DefaultNonceWindow, nonces.Window())
}

func TestNonceWithWindow(t *testing.T) {
	clock := newTestClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	short := login.NewNonceService([]byte("secret"), login.WithNonceClock(clock.Now))
	long := short.WithWindow(7 * 24 * time.Hour)

	assert.Equal(t, login.DefaultNonceWindow, short.Window())
	assert.Equal(t, 7*24*time.Hour, long.Window())

	token := long.Generate(login.NonceActionActivation)
	assert.False(t, short.Verify(token, login.NonceActionActivation), "windows do not share tokens")

	clock.Advance(7*24*time.Hour + time.Second)
	assert.True(t, long.Verify(token, login.NonceActionActivation), "the derived service shares the clock")
}
