package repository_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	provision "github.com/goliatone/go-provision"
	"github.com/goliatone/go-provision/repository"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	require.NoError(t, repository.CreateSchema(context.Background(), db))
	return db
}

func newTestStore(t *testing.T, opts ...repository.StoreOption) (*repository.IdentityStore, *bun.DB) {
	t.Helper()
	db := newTestDB(t)
	opts = append([]repository.StoreOption{repository.WithStoreHasher(provision.NewBcryptHasher(4))}, opts...)
	return repository.NewIdentityStore(db, []byte("test-secret"), opts...), db
}

func newUser(t *testing.T, store *repository.IdentityStore, username, password string) *provision.User {
	t.Helper()
	user := &provision.User{Username: username, Email: username + "@example.com"}
	if password != "" {
		hash, err := provision.NewBcryptHasher(4).Hash(user, password)
		require.NoError(t, err)
		user.PasswordHash = hash
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func identityCodes(t *testing.T, err error) []string {
	t.Helper()
	ierrs, ok := provision.AsIdentityErrors(err)
	require.True(t, ok, "expected identity errors, got %v", err)
	return ierrs.Codes()
}

// outbox is a provision.Notifier that keeps every message.
type outbox struct {
	mu   sync.Mutex
	sent []provision.EmailMessage
}

func (o *outbox) SendEmail(_ context.Context, _ string, msg provision.EmailMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last(t *testing.T) provision.EmailMessage {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1]
}

type fixedToken string

func (f fixedToken) GetToken(context.Context) (string, error) {
	return string(f), nil
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
