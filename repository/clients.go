package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	provision "github.com/goliatone/go-provision"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// ClientStore resolves registered relying-party clients from the clients table.
type ClientStore struct {
	db  *bun.DB
	now func() time.Time
}

var _ provision.ClientResolver = (*ClientStore)(nil)

// NewClientStore creates a client store.
func NewClientStore(db *bun.DB) *ClientStore {
	return &ClientStore{db: db, now: time.Now}
}

// FindClient implements provision.ClientResolver.
func (r *ClientStore) FindClient(ctx context.Context, clientID string) (*provision.Client, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, provision.ErrClientNotFound
	}

	client := &provision.Client{}
	err := r.db.NewSelect().
		Model(client).
		Where("client_id = ?", clientID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, provision.ErrClientNotFound
		}
		return nil, err
	}
	return client, nil
}

// Register inserts client or updates the stored display name and redirect.
func (r *ClientStore) Register(ctx context.Context, client *provision.Client) error {
	if client == nil {
		return goerrors.New("client is required", goerrors.CategoryBadInput)
	}

	err := validation.ValidateStruct(client,
		validation.Field(&client.ClientID, validation.Required),
		validation.Field(&client.RedirectURI, is.URL),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid client")
	}

	if client.CreatedAt == nil {
		now := r.now().UTC()
		client.CreatedAt = &now
	}

	_, err = r.db.NewInsert().
		Model(client).
		On("CONFLICT (client_id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("redirect_uri = EXCLUDED.redirect_uri").
		Exec(ctx)
	return err
}

// Delete removes a client registration.
func (r *ClientStore) Delete(ctx context.Context, clientID string) error {
	_, err := r.db.NewDelete().
		Model((*provision.Client)(nil)).
		Where("client_id = ?", clientID).
		Exec(ctx)
	return err
}
