package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	login "github.com/goliatone/go-login"
	"github.com/uptrace/bun"
)

// Users implements login.CredentialStore using Bun.
type Users struct {
	db bun.IDB
}

var _ login.CredentialStore = (*Users)(nil)

// NewUsers creates a new repository.
func NewUsers(db bun.IDB) *Users {
	return &Users{db: db}
}

// GetUser implements login.CredentialStore.
func (r *Users) GetUser(ctx context.Context, username string) (*login.User, error) {
	var model UserModel
	err := r.db.NewSelect().
		Model(&model).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, login.ErrUserNotFound
		}
		return nil, err
	}
	return toUser(&model), nil
}

// UserExists implements login.CredentialStore.
func (r *Users) UserExists(ctx context.Context, username string) (bool, error) {
	return r.db.NewSelect().
		Model((*UserModel)(nil)).
		Where("username = ?", username).
		Exists(ctx)
}

// CreateUser implements login.CredentialStore.
func (r *Users) CreateUser(ctx context.Context, user *login.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := r.db.NewInsert().
		Model(fromUser(user)).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return login.ErrUsernameTaken
		}
		return err
	}
	return nil
}

// SaveUser implements login.CredentialStore.
func (r *Users) SaveUser(ctx context.Context, user *login.User) error {
	user.UpdatedAt = time.Now().UTC()

	res, err := r.db.NewUpdate().
		Model(fromUser(user)).
		ExcludeColumn("created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return login.ErrUserNotFound
	}
	return nil
}

// ListUsers returns users in username order, optionally filtered by state.
func (r *Users) ListUsers(ctx context.Context, state login.UserState) ([]*login.User, error) {
	var models []UserModel
	q := r.db.NewSelect().
		Model(&models).
		Order("username ASC")
	if state != "" {
		q = q.Where("state = ?", string(state))
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []*login.User{}, nil
		}
		return nil, err
	}

	users := make([]*login.User, len(models))
	for i := range models {
		users[i] = toUser(&models[i])
	}
	return users, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
