package provision

import (
	"context"

	"github.com/google/uuid"
)

// GetUser returns the user with its roles and claims.
func (o *Orchestrator) GetUser(ctx context.Context, id uuid.UUID) (*UserDetails, error) {
	if err := o.checkContext(ctx, "user lookup"); err != nil {
		return nil, err
	}

	user, err := o.store.FindByID(ctx, id)
	if err != nil {
		if isUserNotFound(err) {
			return nil, notFound(err, "user not found").WithMetadata(map[string]any{"user_id": id.String()})
		}
		return nil, identityOperationFailed("find_by_id", err)
	}

	roles, err := o.store.GetRoles(ctx, user)
	if err != nil {
		return nil, identityOperationFailed("get_roles", err)
	}

	claims, err := o.store.GetClaims(ctx, user)
	if err != nil {
		return nil, identityOperationFailed("get_claims", err)
	}

	return &UserDetails{User: user, Roles: roles, Claims: claims}, nil
}
