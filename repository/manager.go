package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// Manager bundles the stores sharing one database.
type Manager struct {
	db       *bun.DB
	identity *IdentityStore
	clients  *ClientStore
}

// NewManager wires an identity store and a client store over db.
func NewManager(db *bun.DB, tokenSecret []byte, opts ...StoreOption) *Manager {
	return &Manager{
		db:       db,
		identity: NewIdentityStore(db, tokenSecret, opts...),
		clients:  NewClientStore(db),
	}
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if len(m.identity.tokens.secret) == 0 {
		return errors.New("repository token secret should not be empty")
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// Migrate creates the schema.
func (m *Manager) Migrate(ctx context.Context) error {
	return CreateSchema(ctx, m.db)
}

func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *Manager) Identity() *IdentityStore {
	return m.identity
}

func (m *Manager) Clients() *ClientStore {
	return m.clients
}
