package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-provision/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestManagerValidate(t *testing.T) {
	db := newTestDB(t)

	assert.NoError(t, repository.NewManager(db, []byte("secret")).Validate())
	assert.Error(t, repository.NewManager(db, nil).Validate())
	assert.Panics(t, func() { repository.NewManager(db, nil).MustValidate() })
}

func TestManagerRunInTx(t *testing.T) {
	m := repository.NewManager(newTestDB(t), []byte("secret"))
	require.NoError(t, m.Migrate(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.RunInTx(ctx, nil, func(context.Context, bun.Tx) error {
		t.Fatal("must not run with a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	boom := errors.New("boom")
	err = m.RunInTx(context.Background(), nil, func(context.Context, bun.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)

	_, err = m.Identity().EnsureRole(context.Background(), "admin")
	require.NoError(t, err)

	_, err = m.Clients().FindClient(context.Background(), "missing")
	assert.Error(t, err)
}
