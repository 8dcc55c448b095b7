package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is a named group users can be members of.
type Role struct {
	bun.BaseModel  `bun:"table:roles,alias:rl"`
	ID             uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name           string     `bun:"name,notnull" json:"name"`
	NormalizedName string     `bun:"normalized_name,notnull,unique" json:"-"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// UserRole links a user to a role.
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid"`
}

// UserClaim is a persisted claim. A user may hold several claims of one type.
type UserClaim struct {
	bun.BaseModel `bun:"table:user_claims,alias:uc"`
	ID            int64     `bun:"id,pk,autoincrement"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid"`
	ClaimType     string    `bun:"claim_type,notnull"`
	ClaimValue    string    `bun:"claim_value"`
}
