package login_test

import (
	"context"
	"sync"
	"time"

	login "github.com/goliatone/go-login"
	"github.com/stretchr/testify/mock"
)

// MockMailer implements login.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, subject, htmlBody string, to ...string) (int, error) {
	args := m.Called(ctx, subject, htmlBody, to)
	return args.Int(0), args.Error(1)
}

// MockCredentialStore implements login.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) GetUser(ctx context.Context, username string) (*login.User, error) {
	args := m.Called(ctx, username)
	if u := args.Get(0); u != nil {
		return u.(*login.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCredentialStore) UserExists(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentialStore) CreateUser(ctx context.Context, user *login.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockCredentialStore) SaveUser(ctx context.Context, user *login.User) error {
	return m.Called(ctx, user).Error(0)
}

// memoryStore is an in-memory login.CredentialStore.
type memoryStore struct {
	mu    sync.Mutex
	users map[string]login.User
}

func newMemoryStore(users ...*login.User) *memoryStore {
	s := &memoryStore{users: map[string]login.User{}}
	for _, u := range users {
		s.users[u.Username] = *u
	}
	return s
}

func (s *memoryStore) GetUser(_ context.Context, username string) (*login.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, login.ErrUserNotFound
	}
	return &u, nil
}

func (s *memoryStore) UserExists(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[username]
	return ok, nil
}

func (s *memoryStore) CreateUser(_ context.Context, user *login.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return login.ErrUsernameTaken
	}
	s.users[user.Username] = *user
	return nil
}

func (s *memoryStore) SaveUser(_ context.Context, user *login.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; !ok {
		return login.ErrUserNotFound
	}
	s.users[user.Username] = *user
	return nil
}

func (s *memoryStore) get(username string) login.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[username]
}

// memoryRememberMe is an in-memory login.RememberMeRepository.
type memoryRememberMe struct {
	mu     sync.Mutex
	series map[string]login.RememberMeToken
}

func newMemoryRememberMe() *memoryRememberMe {
	return &memoryRememberMe{series: map[string]login.RememberMeToken{}}
}

func (r *memoryRememberMe) Create(_ context.Context, token *login.RememberMeToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series[token.Series] = *token
	return nil
}

func (r *memoryRememberMe) FindBySeries(_ context.Context, series string) (*login.RememberMeToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.series[series]
	if !ok {
		return nil, login.ErrRememberMeNotFound
	}
	return &t, nil
}

func (r *memoryRememberMe) Rotate(_ context.Context, series, currentHash, nextHash string, expiresAt, usedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.series[series]
	if !ok || t.TokenHash != currentHash {
		return false, nil
	}
	t.TokenHash = nextHash
	t.ExpiresAt = expiresAt
	t.LastUsedAt = usedAt
	r.series[series] = t
	return true, nil
}

func (r *memoryRememberMe) Delete(_ context.Context, series string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.series, series)
	return nil
}

func (r *memoryRememberMe) DeleteByUsername(_ context.Context, username string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, t := range r.series {
		if t.Username == username {
			delete(r.series, k)
			n++
		}
	}
	return n, nil
}

func (r *memoryRememberMe) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.series)
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []login.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event login.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []login.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]login.ActivityEventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newEnabledUser(username, password string) *login.User {
	hash, err := login.HashPassword(password)
	if err != nil {
		panic(err)
	}
	u := &login.User{
		Username:     username,
		PasswordHash: hash,
		Email:        username + "@example.com",
		State:        login.UserStateEnabled,
	}
	u.Grant(login.CapabilitySiteLogin, true)
	return u
}
