package provision_test

import (
	"context"
	"testing"
	"time"

	provision "github.com/goliatone/go-provision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(clock func() time.Time) *provision.JWTClientTokenIssuer {
	return provision.NewJWTClientTokenIssuer([]byte("test-signing-key"),
		provision.WithIssuerName("provision-test"),
		provision.WithIssuerAudience("notifications"),
		provision.WithIssuerScope("email.send"),
		provision.WithRegisteredClient(notifierCreds),
		provision.WithIssuerClock(clock),
	)
}

func TestJWTClientTokenIssuerRoundTrip(t *testing.T) {
	clock := newFakeClock()
	issuer := newTestIssuer(clock.Now)

	token, err := issuer.IssueClientToken(context.Background(), notifierCreds, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "provisioning", claims.ClientID)
	assert.Equal(t, "provisioning", claims.Subject)
	assert.Equal(t, "provision-test", claims.Issuer)
	assert.Equal(t, []string{"email.send"}, claims.Scope)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, clock.Now().Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestJWTClientTokenIssuerRejectsUnknownClient(t *testing.T) {
	issuer := newTestIssuer(time.Now)

	_, err := issuer.IssueClientToken(context.Background(), provision.ClientCredentials{ClientID: "provisioning", ClientSecret: "wrong"}, time.Hour)
	require.Error(t, err)
	assert.True(t, provision.IsTextCode(err, provision.TextCodeInvalidClient))

	_, err = issuer.IssueClientToken(context.Background(), provision.ClientCredentials{ClientID: "other", ClientSecret: "s3cret"}, time.Hour)
	require.Error(t, err)
	assert.True(t, provision.IsTextCode(err, provision.TextCodeInvalidClient))
}

func TestJWTClientTokenIssuerRejectsNonPositiveLifetime(t *testing.T) {
	issuer := newTestIssuer(time.Now)

	_, err := issuer.IssueClientToken(context.Background(), notifierCreds, 0)
	require.Error(t, err)
}

func TestJWTClientTokenIssuerValidateExpired(t *testing.T) {
	clock := newFakeClock()
	issuer := newTestIssuer(clock.Now)

	token, err := issuer.IssueClientToken(context.Background(), notifierCreds, time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = issuer.Validate(token)
	require.Error(t, err)
}

func TestJWTClientTokenIssuerValidateWrongKey(t *testing.T) {
	issuer := newTestIssuer(time.Now)
	other := provision.NewJWTClientTokenIssuer([]byte("another-key"),
		provision.WithIssuerName("provision-test"),
		provision.WithIssuerAudience("notifications"),
	)

	token, err := issuer.IssueClientToken(context.Background(), notifierCreds, time.Hour)
	require.NoError(t, err)

	_, err = other.Validate(token)
	require.Error(t, err)
}

func TestTokenCacheWithJWTIssuer(t *testing.T) {
	issuer := newTestIssuer(time.Now)
	cache, err := provision.NewTokenCache(issuer, notifierCreds)
	require.NoError(t, err)

	first, err := cache.GetToken(context.Background())
	require.NoError(t, err)
	second, err := cache.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = issuer.Validate(first)
	require.NoError(t, err)
}
