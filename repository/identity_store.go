package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	provision "github.com/goliatone/go-provision"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9\-._@+]+$`)

// IdentityStore is a Bun implementation of provision.IdentityStore. Domain
// failures are returned as provision.IdentityErrors.
type IdentityStore struct {
	db     *bun.DB
	users  repository.Repository[*provision.User]
	hasher provision.Hasher
	policy provision.PasswordPolicy
	tokens *PurposeTokens
	now    func() time.Time
}

var _ provision.IdentityStore = (*IdentityStore)(nil)

// StoreOption customizes an IdentityStore.
type StoreOption func(*IdentityStore)

// WithStoreHasher overrides the bcrypt hasher used for password operations.
func WithStoreHasher(h provision.Hasher) StoreOption {
	return func(s *IdentityStore) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithStorePasswordPolicy sets the policy enforced on new passwords.
func WithStorePasswordPolicy(policy provision.PasswordPolicy) StoreOption {
	return func(s *IdentityStore) {
		s.policy = policy
	}
}

// WithPurposeTokens overrides the confirmation and reset token provider.
func WithPurposeTokens(tokens *PurposeTokens) StoreOption {
	return func(s *IdentityStore) {
		if tokens != nil {
			s.tokens = tokens
		}
	}
}

// WithStoreClock injects a custom clock.
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *IdentityStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewIdentityStore creates a store over db. tokenSecret signs confirmation and
// reset tokens.
func NewIdentityStore(db *bun.DB, tokenSecret []byte, opts ...StoreOption) *IdentityStore {
	s := &IdentityStore{
		db: db,
		users: repository.NewRepository[*provision.User](db, repository.ModelHandlers[*provision.User]{
			NewRecord: func() *provision.User { return &provision.User{} },
			GetID: func(u *provision.User) uuid.UUID {
				if u == nil {
					return uuid.Nil
				}
				return u.ID
			},
			SetID: func(u *provision.User, id uuid.UUID) {
				if u != nil {
					u.ID = id
				}
			},
		}),
		hasher: provision.NewBcryptHasher(0),
		policy: provision.DefaultPasswordPolicy(),
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.tokens == nil {
		s.tokens = NewPurposeTokens(tokenSecret, "", DefaultPurposeTokenTTL, s.now)
	}

	return s
}

func describe(code, description string) provision.IdentityError {
	return provision.IdentityError{Code: code, Description: description}
}

// CreateUser inserts user. The password hash, if any, must already be set.
func (s *IdentityStore) CreateUser(ctx context.Context, user *provision.User) error {
	if user == nil {
		return goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	var errs provision.IdentityErrors
	if !usernamePattern.MatchString(user.Username) {
		errs = append(errs, describe("InvalidUserName", "Username '"+user.Username+"' is invalid, can only contain letters or digits."))
	}
	if err := validation.Validate(user.Email, validation.Required, is.EmailFormat); err != nil {
		errs = append(errs, describe("InvalidEmail", "Email '"+user.Email+"' is invalid."))
	}
	if len(errs) > 0 {
		return errs
	}

	user.NormalizedUsername = provision.NormalizeUsername(user.Username)
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.SecurityStamp == "" {
		user.SecurityStamp = uuid.NewString()
	}
	now := s.now().UTC()
	user.CreatedAt = &now
	user.UpdatedAt = &now

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*provision.User)(nil)).
			Where("?TableAlias.normalized_username = ?", user.NormalizedUsername).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return provision.IdentityErrors{describe("DuplicateUserName", "Username '"+user.Username+"' is already taken.")}
		}

		_, err = s.users.CreateTx(ctx, tx, user)
		return err
	})
}

// DeleteUser removes the user with its role links and claims.
func (s *IdentityStore) DeleteUser(ctx context.Context, user *provision.User) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*UserClaim)(nil)).Where("user_id = ?", user.ID).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*UserRole)(nil)).Where("user_id = ?", user.ID).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*provision.User)(nil)).Where("id = ?", user.ID).Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return provision.ErrUserNotFound
		}
		return nil
	})
}

// FindByUsername looks a user up by normalized username.
func (s *IdentityStore) FindByUsername(ctx context.Context, username string) (*provision.User, error) {
	return s.findOne(ctx, "normalized_username", provision.NormalizeUsername(username))
}

// FindByID looks a user up by id.
func (s *IdentityStore) FindByID(ctx context.Context, id uuid.UUID) (*provision.User, error) {
	return s.findOne(ctx, "id", id)
}

func (s *IdentityStore) findOne(ctx context.Context, column string, value any) (*provision.User, error) {
	record := &provision.User{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, provision.ErrUserNotFound
		}
		return nil, err
	}
	return record, nil
}

// EnsureRole returns the role named name, creating it when missing.
func (s *IdentityStore) EnsureRole(ctx context.Context, name string) (*Role, error) {
	role := &Role{}
	err := s.db.NewSelect().Model(role).Where("normalized_name = ?", provision.NormalizeUsername(name)).Limit(1).Scan(ctx)
	if err == nil {
		return role, nil
	}
	if !repository.IsRecordNotFound(err) && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := s.now().UTC()
	role = &Role{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: provision.NormalizeUsername(name),
		CreatedAt:      &now,
	}
	if _, err := s.db.NewInsert().Model(role).Exec(ctx); err != nil {
		return nil, err
	}
	return role, nil
}

// AddToRoles adds user to every named role. Nothing is written unless every
// role exists and the user is not already a member. Names are matched case
// insensitively and repeats are ignored.
func (s *IdentityStore) AddToRoles(ctx context.Context, user *provision.User, roles []string) error {
	if len(roles) == 0 {
		return nil
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var errs provision.IdentityErrors
		links := make([]*UserRole, 0, len(roles))
		seen := make(map[string]struct{}, len(roles))

		for _, name := range roles {
			normalized := provision.NormalizeUsername(name)
			// Repeated names in one request are assigned once.
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}

			role := &Role{}
			err := tx.NewSelect().Model(role).Where("normalized_name = ?", normalized).Limit(1).Scan(ctx)
			if err != nil {
				if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
					errs = append(errs, describe("RoleNotFound", "Role "+name+" does not exist."))
					continue
				}
				return err
			}

			member, err := tx.NewSelect().Model((*UserRole)(nil)).
				Where("user_id = ? AND role_id = ?", user.ID, role.ID).
				Exists(ctx)
			if err != nil {
				return err
			}
			if member {
				errs = append(errs, describe("UserAlreadyInRole", "User already in role '"+name+"'."))
				continue
			}
			links = append(links, &UserRole{UserID: user.ID, RoleID: role.ID})
		}

		if len(errs) > 0 {
			return errs
		}
		_, err := tx.NewInsert().Model(&links).Exec(ctx)
		return err
	})
}

// AddClaims attaches claims to user.
func (s *IdentityStore) AddClaims(ctx context.Context, user *provision.User, claims []provision.Claim) error {
	if len(claims) == 0 {
		return nil
	}

	rows := make([]*UserClaim, 0, len(claims))
	for _, c := range claims {
		if strings.TrimSpace(c.Type) == "" {
			return provision.IdentityErrors{describe("InvalidClaimType", "Claim type cannot be empty.")}
		}
		rows = append(rows, &UserClaim{UserID: user.ID, ClaimType: c.Type, ClaimValue: c.Value})
	}

	_, err := s.db.NewInsert().Model(&rows).Exec(ctx)
	return err
}

// GetClaims returns the user's claims in insertion order.
func (s *IdentityStore) GetClaims(ctx context.Context, user *provision.User) ([]provision.Claim, error) {
	var rows []UserClaim
	if err := s.db.NewSelect().Model(&rows).Where("user_id = ?", user.ID).Order("id ASC").Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []provision.Claim{}, nil
		}
		return nil, err
	}

	claims := make([]provision.Claim, 0, len(rows))
	for _, r := range rows {
		claims = append(claims, provision.Claim{Type: r.ClaimType, Value: r.ClaimValue})
	}
	return claims, nil
}

// GetRoles returns the names of the user's roles, sorted.
func (s *IdentityStore) GetRoles(ctx context.Context, user *provision.User) ([]string, error) {
	var roles []Role
	err := s.db.NewSelect().
		Model(&roles).
		Join("JOIN user_roles AS ur ON ur.role_id = rl.id").
		Where("ur.user_id = ?", user.ID).
		Order("rl.name ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}

// GenerateEmailConfirmationToken returns a token accepted by ConfirmEmail.
func (s *IdentityStore) GenerateEmailConfirmationToken(_ context.Context, user *provision.User) (string, error) {
	return s.tokens.Generate(user, PurposeEmailConfirmation)
}

// GeneratePasswordResetToken returns a token accepted by ResetPassword.
func (s *IdentityStore) GeneratePasswordResetToken(_ context.Context, user *provision.User) (string, error) {
	return s.tokens.Generate(user, PurposePasswordReset)
}

// ConfirmEmail marks the email confirmed when token is valid.
func (s *IdentityStore) ConfirmEmail(ctx context.Context, user *provision.User, token string) error {
	current, err := s.FindByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if !s.tokens.Validate(current, PurposeEmailConfirmation, token) {
		return provision.IdentityErrors{describe("InvalidToken", "Invalid token.")}
	}

	current.EmailConfirmed = true
	if err := s.update(ctx, current, "email_confirmed"); err != nil {
		return err
	}
	user.EmailConfirmed = true
	return nil
}

// ResetPassword sets newPassword when token is a valid reset token. The
// security stamp rotates, so the token cannot be reused.
func (s *IdentityStore) ResetPassword(ctx context.Context, user *provision.User, token, newPassword string) error {
	current, err := s.FindByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if !s.tokens.Validate(current, PurposePasswordReset, token) {
		return provision.IdentityErrors{describe("InvalidToken", "Invalid token.")}
	}
	return s.setPassword(ctx, user, current, newPassword)
}

// ChangePassword verifies currentPassword before setting newPassword.
func (s *IdentityStore) ChangePassword(ctx context.Context, user *provision.User, currentPassword, newPassword string) error {
	current, err := s.FindByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, current.PasswordHash, currentPassword).Succeeded() {
		return provision.IdentityErrors{describe("PasswordMismatch", "Incorrect password.")}
	}
	return s.setPassword(ctx, user, current, newPassword)
}

// RemovePassword clears the password hash.
func (s *IdentityStore) RemovePassword(ctx context.Context, user *provision.User) error {
	current, err := s.FindByID(ctx, user.ID)
	if err != nil {
		return err
	}
	current.PasswordHash = ""
	current.SecurityStamp = uuid.NewString()
	if err := s.update(ctx, current, "password_hash", "security_stamp"); err != nil {
		return err
	}
	user.PasswordHash = ""
	user.SecurityStamp = current.SecurityStamp
	return nil
}

// AddPassword sets a password on a user that has none.
func (s *IdentityStore) AddPassword(ctx context.Context, user *provision.User, password string) error {
	current, err := s.FindByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if current.HasPassword() {
		return provision.IdentityErrors{describe("UserAlreadyHasPassword", "User already has a password set.")}
	}
	return s.setPassword(ctx, user, current, password)
}

func (s *IdentityStore) setPassword(ctx context.Context, user, current *provision.User, password string) error {
	if errs := s.policy.Check(password); len(errs) > 0 {
		return errs
	}

	hash, err := s.hasher.Hash(current, password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	current.PasswordHash = hash
	current.SecurityStamp = uuid.NewString()
	if err := s.update(ctx, current, "password_hash", "security_stamp"); err != nil {
		return err
	}

	user.PasswordHash = current.PasswordHash
	user.SecurityStamp = current.SecurityStamp
	return nil
}

func (s *IdentityStore) update(ctx context.Context, user *provision.User, columns ...string) error {
	now := s.now().UTC()
	user.UpdatedAt = &now

	res, err := s.db.NewUpdate().
		Model(user).
		Column(append(columns, "updated_at")...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{"id": user.ID.String()})
	}
	return nil
}
