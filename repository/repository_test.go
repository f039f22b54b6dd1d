package repository

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	login "github.com/goliatone/go-login"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	applied, err := Migrate(context.Background(), bunDB)
	require.NoError(t, err)
	require.Len(t, applied, 2)

	t.Cleanup(func() {
		_ = bunDB.Close()
	})

	return bunDB
}

func newTestUser(username string) *login.User {
	return &login.User{
		Username:     username,
		PasswordHash: "$2a$10$hash",
		Email:        username + "@example.com",
		FullName:     "Test " + username,
		State:        login.UserStateDisabled,
		Access:       map[string]bool{login.CapabilitySiteLogin: true},
		Fields:       map[string]any{"title": "Dr"},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := setupDB(t)

	applied, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestUsersCreateAndGet(t *testing.T) {
	db := setupDB(t)
	users := NewUsers(db)
	ctx := context.Background()

	require.NoError(t, users.CreateUser(ctx, newTestUser("alice")))

	got, err := users.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, login.UserStateDisabled, got.State)
	assert.True(t, got.Access[login.CapabilitySiteLogin])
	assert.Equal(t, "Dr", got.Fields["title"])
	assert.False(t, got.CreatedAt.IsZero())

	exists, err := users.UserExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = users.UserExists(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUsersGetMissing(t *testing.T) {
	db := setupDB(t)
	users := NewUsers(db)

	_, err := users.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, login.ErrUserNotFound)
}

func TestUsersCreateDuplicate(t *testing.T) {
	db := setupDB(t)
	users := NewUsers(db)
	ctx := context.Background()

	require.NoError(t, users.CreateUser(ctx, newTestUser("alice")))

	err := users.CreateUser(ctx, newTestUser("alice"))
	assert.ErrorIs(t, err, login.ErrUsernameTaken)
}

func TestUsersSave(t *testing.T) {
	db := setupDB(t)
	users := NewUsers(db)
	ctx := context.Background()

	user := newTestUser("alice")
	user.ActivationToken = "abc::123"
	require.NoError(t, users.CreateUser(ctx, user))

	user.State = login.UserStateEnabled
	user.ActivationToken = ""
	require.NoError(t, users.SaveUser(ctx, user))

	got, err := users.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, login.UserStateEnabled, got.State)
	assert.Empty(t, got.ActivationToken)

	err = users.SaveUser(ctx, newTestUser("ghost"))
	assert.ErrorIs(t, err, login.ErrUserNotFound)
}

func TestUsersList(t *testing.T) {
	db := setupDB(t)
	users := NewUsers(db)
	ctx := context.Background()

	bob := newTestUser("bob")
	bob.State = login.UserStateEnabled
	require.NoError(t, users.CreateUser(ctx, bob))
	require.NoError(t, users.CreateUser(ctx, newTestUser("alice")))

	all, err := users.ListUsers(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Username)

	enabled, err := users.ListUsers(ctx, login.UserStateEnabled)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "bob", enabled[0].Username)
}

func createToken(t *testing.T, tokens *RememberMeTokens, series, username, hash string, expiresAt time.Time) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, tokens.Create(context.Background(), &login.RememberMeToken{
		Series:     series,
		Username:   username,
		TokenHash:  hash,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		LastUsedAt: now,
	}))
}

func TestRememberMeCreateAndFind(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, NewUsers(db).CreateUser(context.Background(), newTestUser("alice")))
	tokens := NewRememberMeTokens(db)

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	createToken(t, tokens, "s1", "alice", "h1", expires)

	got, err := tokens.FindBySeries(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "h1", got.TokenHash)
	assert.True(t, expires.Equal(got.ExpiresAt))

	_, err = tokens.FindBySeries(context.Background(), "missing")
	assert.ErrorIs(t, err, login.ErrRememberMeNotFound)
}

func TestRememberMeRotateCompareAndSwap(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, NewUsers(db).CreateUser(ctx, newTestUser("alice")))
	tokens := NewRememberMeTokens(db)

	now := time.Now().UTC()
	createToken(t, tokens, "s1", "alice", "h1", now.Add(time.Hour))

	ok, err := tokens.Rotate(ctx, "s1", "h1", "h2", now.Add(2*time.Hour), now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tokens.Rotate(ctx, "s1", "h1", "h3", now.Add(2*time.Hour), now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := tokens.FindBySeries(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.TokenHash)
}

func TestRememberMeRotateConcurrent(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, NewUsers(db).CreateUser(ctx, newTestUser("alice")))
	tokens := NewRememberMeTokens(db)

	now := time.Now().UTC()
	createToken(t, tokens, "s1", "alice", "h1", now.Add(time.Hour))

	var wg sync.WaitGroup
	results := make(chan bool, 2)
	for _, next := range []string{"a", "b"} {
		wg.Add(1)
		go func(next string) {
			defer wg.Done()
			ok, err := tokens.Rotate(ctx, "s1", "h1", next, now.Add(time.Hour), now)
			assert.NoError(t, err)
			results <- ok
		}(next)
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestRememberMeDelete(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	users := NewUsers(db)
	require.NoError(t, users.CreateUser(ctx, newTestUser("alice")))
	require.NoError(t, users.CreateUser(ctx, newTestUser("bob")))
	tokens := NewRememberMeTokens(db)

	now := time.Now().UTC()
	createToken(t, tokens, "a1", "alice", "h", now.Add(time.Hour))
	createToken(t, tokens, "a2", "alice", "h", now.Add(time.Hour))
	createToken(t, tokens, "b1", "bob", "h", now.Add(time.Hour))

	require.NoError(t, tokens.Delete(ctx, "b1"))
	_, err := tokens.FindBySeries(ctx, "b1")
	assert.ErrorIs(t, err, login.ErrRememberMeNotFound)

	n, err := tokens.DeleteByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRememberMeDeleteExpired(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, NewUsers(db).CreateUser(ctx, newTestUser("alice")))
	tokens := NewRememberMeTokens(db)

	now := time.Now().UTC()
	createToken(t, tokens, "old", "alice", "h", now.Add(-time.Hour))
	createToken(t, tokens, "new", "alice", "h", now.Add(time.Hour))

	n, err := tokens.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = tokens.FindBySeries(ctx, "new")
	assert.NoError(t, err)
}

func TestManagerRunInTx(t *testing.T) {
	db := setupDB(t)
	m := NewManager(db)
	require.NoError(t, m.Validate())
	ctx := context.Background()

	err := m.RunInTx(ctx, nil, func(ctx context.Context, users *Users, tokens *RememberMeTokens) error {
		if err := users.CreateUser(ctx, newTestUser("alice")); err != nil {
			return err
		}
		return users.CreateUser(ctx, newTestUser("alice"))
	})
	assert.ErrorIs(t, err, login.ErrUsernameTaken)

	exists, err := m.Users().UserExists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)
}
