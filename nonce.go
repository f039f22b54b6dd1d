package login

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Nonce actions used by the package.
const (
	NonceActionLogin      = "login-form"
	NonceActionLogout     = "logout-form"
	NonceActionActivation = "user-activation"
	NonceActionRegister   = "registration-form"
)

// DefaultNonceWindow is the bucket size. A nonce verifies for the bucket it
// was minted in and the one after, so it lives between one and two windows.
const DefaultNonceWindow = 12 * time.Hour

// NonceService mints and verifies stateless action tokens.
type NonceService struct {
	secret []byte
	window time.Duration
	now    Clock
}

// NonceOption configures a NonceService.
type NonceOption func(*NonceService)

// WithNonceWindow sets the bucket size.
func WithNonceWindow(window time.Duration) NonceOption {
	return func(s *NonceService) {
		if window >= time.Second {
			s.window = window
		}
	}
}

// WithNonceClock sets the time source.
func WithNonceClock(now Clock) NonceOption {
	return func(s *NonceService) {
		s.now = normalizeClock(now)
	}
}

// NewNonceService returns a service keyed by secret. An empty secret gets a
// random one, which means nonces do not survive a restart.
func NewNonceService(secret []byte, opts ...NonceOption) *NonceService {
	s := &NonceService{
		secret: secret,
		window: DefaultNonceWindow,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if len(s.secret) == 0 {
		s.secret = make([]byte, 32)
		if _, err := rand.Read(s.secret); err != nil {
			panic("login: unable to generate nonce secret: " + err.Error())
		}
	}

	return s
}

// Window returns the bucket size.
func (s *NonceService) Window() time.Duration {
	return s.window
}

// WithWindow returns a service sharing the secret and clock of s with a
// different bucket size. Tokens minted under one window never verify under
// another.
func (s *NonceService) WithWindow(window time.Duration) *NonceService {
	derived := *s
	WithNonceWindow(window)(&derived)
	return &derived
}

// Generate returns the token for action in the current bucket.
func (s *NonceService) Generate(action string) string {
	return hex.EncodeToString(s.sign(s.bucket(s.now()), action))
}

// Verify reports whether token was minted for action in the current or the
// previous bucket.
func (s *NonceService) Verify(token, action string) bool {
	if token == "" {
		return false
	}

	raw, err := hex.DecodeString(token)
	if err != nil {
		return false
	}

	current := s.bucket(s.now())
	for _, b := range []int64{current, current - 1} {
		if hmac.Equal(raw, s.sign(b, action)) {
			return true
		}
	}
	return false
}

func (s *NonceService) bucket(t time.Time) int64 {
	return t.Unix() / int64(s.window/time.Second)
}

func (s *NonceService) sign(bucket int64, action string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(int64(s.window/time.Second), 10)))
	mac.Write([]byte{'/'})
	mac.Write([]byte(strconv.FormatInt(bucket, 10)))
	mac.Write([]byte{'|'})
	mac.Write([]byte(action))
	return mac.Sum(nil)
}
