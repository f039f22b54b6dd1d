package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	login "github.com/goliatone/go-login"
	"github.com/uptrace/bun"
)

// RememberMeTokens implements login.RememberMeRepository using Bun.
type RememberMeTokens struct {
	db bun.IDB
}

var _ login.RememberMeRepository = (*RememberMeTokens)(nil)

// NewRememberMeTokens creates a new repository.
func NewRememberMeTokens(db bun.IDB) *RememberMeTokens {
	return &RememberMeTokens{db: db}
}

// Create implements login.RememberMeRepository.
func (r *RememberMeTokens) Create(ctx context.Context, token *login.RememberMeToken) error {
	_, err := r.db.NewInsert().
		Model(fromRememberMe(token)).
		Exec(ctx)
	return err
}

// FindBySeries implements login.RememberMeRepository.
func (r *RememberMeTokens) FindBySeries(ctx context.Context, series string) (*login.RememberMeToken, error) {
	var model RememberMeModel
	err := r.db.NewSelect().
		Model(&model).
		Where("series = ?", series).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, login.ErrRememberMeNotFound
		}
		return nil, err
	}
	return toRememberMe(&model), nil
}

// Rotate implements login.RememberMeRepository. The update only matches
// while the stored hash still equals currentHash, so two concurrent rotations
// of the same value cannot both succeed.
func (r *RememberMeTokens) Rotate(ctx context.Context, series, currentHash, nextHash string, expiresAt, usedAt time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*RememberMeModel)(nil)).
		Set("token_hash = ?", nextHash).
		Set("expires_at = ?", expiresAt.UTC()).
		Set("last_used_at = ?", usedAt.UTC()).
		Where("series = ?", series).
		Where("token_hash = ?", currentHash).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete implements login.RememberMeRepository.
func (r *RememberMeTokens) Delete(ctx context.Context, series string) error {
	_, err := r.db.NewDelete().
		Model((*RememberMeModel)(nil)).
		Where("series = ?", series).
		Exec(ctx)
	return err
}

// DeleteByUsername implements login.RememberMeRepository.
func (r *RememberMeTokens) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RememberMeModel)(nil)).
		Where("username = ?", username).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired removes series that expired before now.
func (r *RememberMeTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RememberMeModel)(nil)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
