package login

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRememberMeTTL is how long a series stays valid without use.
const DefaultRememberMeTTL = 7 * 24 * time.Hour

// RememberMeCookie is the client half of a series. Its wire form is
// "<series>:<token>".
type RememberMeCookie struct {
	Series    string
	Token     string
	ExpiresAt time.Time
}

func (c RememberMeCookie) String() string {
	return c.Series + ":" + c.Token
}

// ParseRememberMeCookie decodes the cookie value.
func ParseRememberMeCookie(value string) (*RememberMeCookie, error) {
	series, token, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || series == "" || token == "" {
		return nil, ErrRememberMeInvalid
	}
	return &RememberMeCookie{Series: series, Token: token}, nil
}

// RememberMe issues, validates and revokes remember-me series.
type RememberMe struct {
	repo             RememberMeRepository
	ttl              time.Duration
	revokeAllOnTheft bool
	now              Clock
	logger           Logger
	locks            *keyedMutex
}

// RememberMeOption configures RememberMe.
type RememberMeOption func(*RememberMe)

// WithRememberMeTTL sets the series lifetime.
func WithRememberMeTTL(ttl time.Duration) RememberMeOption {
	return func(r *RememberMe) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRevokeAllOnTheft makes a detected theft revoke every series owned by
// the victim, not just the compromised one.
func WithRevokeAllOnTheft(enabled bool) RememberMeOption {
	return func(r *RememberMe) {
		r.revokeAllOnTheft = enabled
	}
}

// WithRememberMeClock sets the time source.
func WithRememberMeClock(now Clock) RememberMeOption {
	return func(r *RememberMe) {
		r.now = normalizeClock(now)
	}
}

// WithRememberMeLogger sets the logger.
func WithRememberMeLogger(logger Logger) RememberMeOption {
	return func(r *RememberMe) {
		r.logger = normalizeLogger(logger)
	}
}

// NewRememberMe returns a RememberMe backed by repo.
func NewRememberMe(repo RememberMeRepository, opts ...RememberMeOption) *RememberMe {
	r := &RememberMe{
		repo:   repo,
		ttl:    DefaultRememberMeTTL,
		now:    time.Now,
		logger: defaultLogger,
		locks:  newKeyedMutex(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// TTL returns the series lifetime.
func (r *RememberMe) TTL() time.Duration {
	return r.ttl
}

// Issue creates a new series for username.
func (r *RememberMe) Issue(ctx context.Context, username string) (*RememberMeCookie, error) {
	token, err := randomToken()
	if err != nil {
		return nil, wrapInternal(err, "failed to generate remember me token")
	}

	now := r.now().UTC()
	record := &RememberMeToken{
		Series:     uuid.NewString(),
		Username:   username,
		TokenHash:  hashToken(token),
		ExpiresAt:  now.Add(r.ttl),
		CreatedAt:  now,
		LastUsedAt: now,
	}

	if err := r.repo.Create(ctx, record); err != nil {
		return nil, wrapInternal(err, "failed to store remember me series")
	}

	return &RememberMeCookie{
		Series:    record.Series,
		Token:     token,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Validate checks a presented series/token pair. On success the token is
// rotated and the returned cookie carries the replacement value, so each
// value is accepted at most once.
func (r *RememberMe) Validate(ctx context.Context, series, token string) (string, *RememberMeCookie, error) {
	if series == "" || token == "" {
		return "", nil, ErrRememberMeInvalid
	}

	unlock := r.locks.Lock(series)
	defer unlock()

	record, err := r.repo.FindBySeries(ctx, series)
	if err != nil {
		if errors.Is(err, ErrRememberMeNotFound) {
			return "", nil, ErrRememberMeInvalid
		}
		return "", nil, wrapInternal(err, "failed to load remember me series")
	}

	now := r.now().UTC()
	if record.Expired(now) {
		if err := r.repo.Delete(ctx, series); err != nil {
			r.logger.Warn("failed to delete expired remember me series", "series", series, "error", err)
		}
		return "", nil, ErrRememberMeInvalid
	}

	presented := hashToken(token)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(record.TokenHash)) != 1 {
		r.revokeStolen(ctx, record)
		return record.Username, nil, ErrTheftDetected
	}

	next, err := r.rotate(ctx, record, presented, now)
	if err != nil {
		return "", nil, err
	}

	return record.Username, next, nil
}

// Rotate replaces the token of a live series without a presented value.
func (r *RememberMe) Rotate(ctx context.Context, series string) (*RememberMeCookie, error) {
	unlock := r.locks.Lock(series)
	defer unlock()

	record, err := r.repo.FindBySeries(ctx, series)
	if err != nil {
		if errors.Is(err, ErrRememberMeNotFound) {
			return nil, ErrRememberMeInvalid
		}
		return nil, wrapInternal(err, "failed to load remember me series")
	}

	now := r.now().UTC()
	if record.Expired(now) {
		return nil, ErrRememberMeInvalid
	}

	return r.rotate(ctx, record, record.TokenHash, now)
}

// Revoke deletes a series. Unknown series are ignored.
func (r *RememberMe) Revoke(ctx context.Context, series string) error {
	if series == "" {
		return nil
	}

	unlock := r.locks.Lock(series)
	defer unlock()

	if err := r.repo.Delete(ctx, series); err != nil && !errors.Is(err, ErrRememberMeNotFound) {
		return wrapInternal(err, "failed to revoke remember me series")
	}
	return nil
}

// RevokeAll deletes every series owned by username.
func (r *RememberMe) RevokeAll(ctx context.Context, username string) (int64, error) {
	n, err := r.repo.DeleteByUsername(ctx, username)
	if err != nil {
		return 0, wrapInternal(err, "failed to revoke remember me series")
	}
	return n, nil
}

func (r *RememberMe) rotate(ctx context.Context, record *RememberMeToken, currentHash string, now time.Time) (*RememberMeCookie, error) {
	token, err := randomToken()
	if err != nil {
		return nil, wrapInternal(err, "failed to generate remember me token")
	}

	expiresAt := now.Add(r.ttl)
	swapped, err := r.repo.Rotate(ctx, record.Series, currentHash, hashToken(token), expiresAt, now)
	if err != nil {
		return nil, wrapInternal(err, "failed to rotate remember me token")
	}

	// Another process rotated first: the value we hold is already stale.
	if !swapped {
		r.revokeStolen(ctx, record)
		return nil, ErrTheftDetected
	}

	return &RememberMeCookie{
		Series:    record.Series,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (r *RememberMe) revokeStolen(ctx context.Context, record *RememberMeToken) {
	r.logger.Warn("remember me token mismatch, revoking series",
		"series", record.Series,
		"username", record.Username,
	)

	if err := r.repo.Delete(ctx, record.Series); err != nil && !errors.Is(err, ErrRememberMeNotFound) {
		r.logger.Error("failed to revoke stolen remember me series", "series", record.Series, "error", err)
	}

	if !r.revokeAllOnTheft {
		return
	}

	if _, err := r.repo.DeleteByUsername(ctx, record.Username); err != nil {
		r.logger.Error("failed to revoke remember me series for user", "username", record.Username, "error", err)
	}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// keyedMutex serializes work per key and drops idle entries.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedEntry{}}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
