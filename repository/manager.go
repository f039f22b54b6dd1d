package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// Manager groups the login repositories over one database handle.
type Manager struct {
	db         *bun.DB
	users      *Users
	rememberMe *RememberMeTokens
}

// NewManager returns a Manager backed by db.
func NewManager(db *bun.DB) *Manager {
	return &Manager{
		db:         db,
		users:      NewUsers(db),
		rememberMe: NewRememberMeTokens(db),
	}
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.rememberMe == nil {
		return errors.New("repository remember me tokens should be initialized")
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx runs f in a transaction. The repositories passed to f share tx.
func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, users *Users, tokens *RememberMeTokens) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return m.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		return f(ctx, NewUsers(tx), NewRememberMeTokens(tx))
	})
}

func (m *Manager) Users() *Users {
	return m.users
}

func (m *Manager) RememberMe() *RememberMeTokens {
	return m.rememberMe
}
