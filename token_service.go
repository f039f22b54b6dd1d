package login

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const sessionIssuer = "go-login"

// SessionClaims is the signed content of the session cookie.
type SessionClaims struct {
	jwt.RegisteredClaims
	Passive bool `json:"passive,omitempty"`
}

// SessionTokens signs and verifies session cookies. The cookie only names
// the user; the record is reloaded on every request so state changes apply
// immediately.
type SessionTokens struct {
	signingKey []byte
	ttl        time.Duration
	now        Clock
	logger     Logger
}

// NewSessionTokens returns a codec signing with HS256.
func NewSessionTokens(signingKey []byte, ttl time.Duration) *SessionTokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionTokens{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
		logger:     defaultLogger,
	}
}

func (ts *SessionTokens) WithClock(now Clock) *SessionTokens {
	ts.now = normalizeClock(now)
	return ts
}

func (ts *SessionTokens) WithLogger(logger Logger) *SessionTokens {
	ts.logger = normalizeLogger(logger)
	return ts
}

// TTL returns the cookie lifetime.
func (ts *SessionTokens) TTL() time.Duration {
	return ts.ttl
}

// Encode signs the session. Sessions without a user have nothing to encode.
func (ts *SessionTokens) Encode(sess *Session) (string, time.Time, error) {
	if sess == nil || sess.User == nil {
		return "", time.Time{}, goerrors.New("session has no user", goerrors.CategoryBadInput)
	}

	now := ts.now()
	expiresAt := now.Add(ts.ttl)
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   sess.User.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Passive: sess.Passive(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session")
	}

	return signed, expiresAt, nil
}

// Decode verifies a session cookie value.
func (ts *SessionTokens) Decode(value string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(value, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("session token with unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, ErrInvalidSession
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidSession
	}

	return claims, nil
}
