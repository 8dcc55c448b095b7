package repository_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	provision "github.com/goliatone/go-provision"
	"github.com/goliatone/go-provision/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "https://id.example.com"

// failingClaims makes the claims step of provisioning fail.
type failingClaims struct {
	*repository.IdentityStore
}

func (f failingClaims) AddClaims(context.Context, *provision.User, []provision.Claim) error {
	return errors.New("claims table unavailable")
}

type stack struct {
	store   *repository.IdentityStore
	clients *repository.ClientStore
	outbox  *outbox
	orch    *provision.Orchestrator
}

func newStack(t *testing.T, wrap func(*repository.IdentityStore) provision.IdentityStore) *stack {
	t.Helper()
	db := newTestDB(t)
	s := &stack{
		store:   repository.NewIdentityStore(db, []byte("integration"), repository.WithStoreHasher(provision.NewBcryptHasher(4))),
		clients: repository.NewClientStore(db),
		outbox:  &outbox{},
	}

	var store provision.IdentityStore = s.store
	if wrap != nil {
		store = wrap(s.store)
	}

	orch, err := provision.NewOrchestrator(store, s.clients, s.outbox, fixedToken("bearer"),
		provision.WithPublicOrigin(origin),
		provision.WithHasher(provision.NewBcryptHasher(4)),
	)
	require.NoError(t, err)
	s.orch = orch
	return s
}

func queryFromLink(t *testing.T, body string) url.Values {
	t.Helper()
	start := strings.Index(body, origin)
	require.GreaterOrEqual(t, start, 0, "no link in body: %s", body)
	end := strings.Index(body[start:], `"`)
	require.Greater(t, end, 0)
	u, err := url.Parse(strings.ReplaceAll(body[start:start+end], "&amp;", "&"))
	require.NoError(t, err)
	return u.Query()
}

func TestProvisionAliceEndToEnd(t *testing.T) {
	s := newStack(t, nil)
	ctx := context.Background()

	_, err := s.store.EnsureRole(ctx, "admin")
	require.NoError(t, err)

	result, err := s.orch.CreateUser(ctx, provision.CreateUserMessage{
		GivenName:  "Alice",
		FamilyName: "Liddell",
		Username:   "alice",
		Password:   "Wonder1and!",
		Email:      "alice@example.com",
		Roles:      []string{"admin"},
		Claims:     map[string]string{"dept": "eng"},
	})
	require.NoError(t, err)
	assert.Equal(t, provision.SagaComplete, result.State)
	assert.True(t, result.ConfirmationSent)

	details, err := s.orch.GetUser(ctx, result.UserID)
	require.NoError(t, err)
	assert.True(t, details.HasRole("admin"))
	assert.Equal(t, []string{"eng"}, details.ClaimValues("dept"))
	assert.Equal(t, []string{"Alice"}, details.ClaimValues(provision.ClaimGivenName))
	assert.Equal(t, []string{"Liddell"}, details.ClaimValues(provision.ClaimFamilyName))
	assert.Equal(t, []string{"alice@example.com"}, details.ClaimValues(provision.ClaimEmail))
	assert.Equal(t, []string{"admin"}, details.ClaimValues(provision.ClaimRole))

	confirm := queryFromLink(t, s.outbox.last(t).Body)
	require.NoError(t, s.orch.ConfirmEmail(ctx, provision.ConfirmEmailMessage{
		Username: confirm.Get("username"),
		Token:    confirm.Get("token"),
	}))

	stored, err := s.store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, stored.EmailConfirmed)
}

func TestProvisionCompensatesOnClaimFailure(t *testing.T) {
	s := newStack(t, func(store *repository.IdentityStore) provision.IdentityStore {
		return failingClaims{store}
	})
	ctx := context.Background()

	result, err := s.orch.CreateUser(ctx, provision.CreateUserMessage{
		GivenName:  "Bob",
		FamilyName: "Builder",
		Username:   "bob",
		Email:      "bob@example.com",
	})
	require.Error(t, err)
	assert.Equal(t, provision.SagaCompensated, result.State)
	assert.True(t, provision.IsTextCode(err, provision.TextCodeIdentityOperationFailed))

	_, err = s.store.FindByUsername(ctx, "bob")
	assert.ErrorIs(t, err, provision.ErrUserNotFound, "compensation leaves no user behind")
	assert.Empty(t, s.outbox.sent)
}

func TestPasswordResetEndToEnd(t *testing.T) {
	s := newStack(t, nil)
	ctx := context.Background()

	require.NoError(t, s.clients.Register(ctx, &provision.Client{
		ClientID:    "portal",
		RedirectURI: "https://portal.example.com/signin",
	}))

	_, err := s.orch.CreateUser(ctx, provision.CreateUserMessage{
		GivenName:  "Alice",
		FamilyName: "Liddell",
		Username:   "alice",
		Password:   "Wonder1and!",
		Email:      "alice@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, s.orch.RequestPasswordReset(ctx, provision.PasswordResetRequestMessage{
		Username: "alice",
		ClientID: "portal",
	}))
	link := queryFromLink(t, s.outbox.last(t).Body)
	assert.Equal(t, "portal", link.Get("client_id"))

	outcome, err := s.orch.ConfirmPasswordReset(ctx, provision.PasswordResetConfirmMessage{
		Username:    "alice",
		Token:       link.Get("token"),
		NewPassword: "N3w-secret",
		ClientID:    "portal",
	})
	require.NoError(t, err)
	assert.Equal(t, provision.OutcomeSucceeded, outcome.Status)
	assert.Equal(t, "https://portal.example.com/signin", outcome.Redirect)

	reused, err := s.orch.ConfirmPasswordReset(ctx, provision.PasswordResetConfirmMessage{
		Username:    "alice",
		Token:       link.Get("token"),
		NewPassword: "An0ther-one",
		ClientID:    "portal",
	})
	require.NoError(t, err)
	assert.Equal(t, provision.OutcomeFailed, reused.Status)
	assert.Equal(t, []string{"InvalidToken"}, reused.Errors.Codes())

	changed, err := s.orch.ChangePassword(ctx, provision.ChangePasswordMessage{
		Username:        "alice",
		CurrentPassword: "N3w-secret",
		NewPassword:     "Th1rd-time",
		ClientID:        "portal",
	})
	require.NoError(t, err)
	assert.True(t, changed.Succeeded())
	assert.Equal(t, "https://portal.example.com/signin", changed.Redirect)
}

func TestPasswordResetWithUnknownClient(t *testing.T) {
	s := newStack(t, nil)
	ctx := context.Background()

	_, err := s.orch.CreateUser(ctx, provision.CreateUserMessage{
		GivenName:  "Alice",
		FamilyName: "Liddell",
		Username:   "alice",
		Password:   "Wonder1and!",
		Email:      "alice@example.com",
	})
	require.NoError(t, err)

	user, err := s.store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	token, err := s.store.GeneratePasswordResetToken(ctx, user)
	require.NoError(t, err)

	outcome, err := s.orch.ConfirmPasswordReset(ctx, provision.PasswordResetConfirmMessage{
		Username:    "alice",
		Token:       token,
		NewPassword: "N3w-secret",
		ClientID:    "nobody",
	})
	require.Error(t, err)
	assert.True(t, provision.IsTextCode(err, provision.TextCodeClientNotFound))
	assert.Equal(t, provision.OutcomeSucceeded, outcome.Status, "the reset itself is not rolled back")
	assert.Empty(t, outcome.Redirect)

	stored, err := s.store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, provision.NewBcryptHasher(4).Verify(stored, stored.PasswordHash, "N3w-secret").Succeeded())
}

func TestWelcomeEmailRotatesPassword(t *testing.T) {
	s := newStack(t, nil)
	ctx := context.Background()

	_, err := s.orch.CreateUser(ctx, provision.CreateUserMessage{
		GivenName:  "Alice",
		FamilyName: "Liddell",
		Username:   "alice",
		Password:   "Wonder1and!",
		Email:      "alice@example.com",
	})
	require.NoError(t, err)

	before, err := s.store.FindByUsername(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, s.orch.SendWelcomeEmail(ctx, "alice"))

	after, err := s.store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, after.HasPassword())
	assert.NotEqual(t, before.PasswordHash, after.PasswordHash)
	assert.NotEqual(t, before.SecurityStamp, after.SecurityStamp)
	assert.False(t, provision.NewBcryptHasher(4).Verify(after, after.PasswordHash, "Wonder1and!").Succeeded())
}
