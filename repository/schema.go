package repository

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	provision "github.com/goliatone/go-provision"
	"github.com/uptrace/bun"
)

// Models lists every table owned by this package, in creation order.
func Models() []any {
	return []any{
		(*provision.User)(nil),
		(*Role)(nil),
		(*UserRole)(nil),
		(*UserClaim)(nil),
		(*provision.Client)(nil),
	}
}

// CreateSchema creates the identity tables if they do not exist.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create identity schema")
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*UserClaim)(nil)).
		Index("idx_user_claims_user_id").
		IfNotExists().
		Column("user_id").
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create identity schema")
	}

	return nil
}
