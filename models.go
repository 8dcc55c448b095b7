package provision

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Standard claim types attached during provisioning.
const (
	ClaimEmail      = "email"
	ClaimGivenName  = "given_name"
	ClaimMiddleName = "middle_name"
	ClaimFamilyName = "family_name"
	ClaimRole       = "role"
)

// User is the identity record owned by the IdentityStore.
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Username           string     `bun:"username,notnull" json:"username"`
	NormalizedUsername string     `bun:"normalized_username,notnull,unique" json:"-"`
	Email              string     `bun:"email,notnull" json:"email"`
	PhoneNumber        string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash       string     `bun:"password_hash" json:"-"`
	SecurityStamp      string     `bun:"security_stamp,notnull" json:"-"`
	EmailConfirmed     bool       `bun:"email_confirmed,notnull,default:false" json:"email_confirmed"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasPassword reports whether a password hash is set.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// NormalizeUsername is the canonical form used for username lookups.
func NormalizeUsername(username string) string {
	return strings.ToUpper(strings.TrimSpace(username))
}

// Claim is a typed attribute attached to a user. A user may hold several claims
// of the same type.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Client is a registered relying party. It is consumed read-only to resolve the
// redirect target after a credential operation.
type Client struct {
	bun.BaseModel `bun:"table:clients,alias:cl"`
	ClientID      string     `bun:"client_id,pk" json:"client_id"`
	DisplayName   string     `bun:"display_name" json:"display_name,omitempty"`
	RedirectURI   string     `bun:"redirect_uri" json:"redirect_uri,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// UserDetails is a user with its role names and claims.
type UserDetails struct {
	User   *User    `json:"user"`
	Roles  []string `json:"roles"`
	Claims []Claim  `json:"claims"`
}

// HasRole reports whether the user is a member of role.
func (d *UserDetails) HasRole(role string) bool {
	if d == nil {
		return false
	}
	for _, r := range d.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// ClaimValues returns every value held for the claim type.
func (d *UserDetails) ClaimValues(claimType string) []string {
	if d == nil {
		return nil
	}
	var out []string
	for _, c := range d.Claims {
		if c.Type == claimType {
			out = append(out, c.Value)
		}
	}
	return out
}
