package provision

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TextCodeInvalidClient marks issuance requests for unknown clients or wrong secrets.
const TextCodeInvalidClient = "INVALID_CLIENT_CREDENTIALS"

// ClientTokenClaims are the claims carried by client-credentials tokens.
type ClientTokenClaims struct {
	jwt.RegisteredClaims
	ClientID string   `json:"client_id"`
	Scope    []string `json:"scope,omitempty"`
}

// JWTClientTokenIssuer issues HS256 client-credentials tokens for a fixed set of
// registered clients.
type JWTClientTokenIssuer struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	scope      []string
	clients    map[string]string
	now        func() time.Time
	logger     Logger
}

// JWTIssuerOption customizes a JWTClientTokenIssuer.
type JWTIssuerOption func(*JWTClientTokenIssuer)

// WithIssuerName sets the iss claim.
func WithIssuerName(issuer string) JWTIssuerOption {
	return func(i *JWTClientTokenIssuer) {
		i.issuer = issuer
	}
}

// WithIssuerAudience sets the aud claim.
func WithIssuerAudience(audience ...string) JWTIssuerOption {
	return func(i *JWTClientTokenIssuer) {
		i.audience = append(jwt.ClaimStrings(nil), audience...)
	}
}

// WithIssuerScope sets the scopes granted to every issued token.
func WithIssuerScope(scope ...string) JWTIssuerOption {
	return func(i *JWTClientTokenIssuer) {
		i.scope = append([]string(nil), scope...)
	}
}

// WithRegisteredClient registers a client id and its secret.
func WithRegisteredClient(credentials ClientCredentials) JWTIssuerOption {
	return func(i *JWTClientTokenIssuer) {
		if credentials.ClientID != "" {
			i.clients[credentials.ClientID] = credentials.ClientSecret
		}
	}
}

// WithIssuerClock injects the clock used for iat/exp.
func WithIssuerClock(clock func() time.Time) JWTIssuerOption {
	return func(i *JWTClientTokenIssuer) {
		if clock != nil {
			i.now = clock
		}
	}
}

// WithIssuerLogger sets the logger.
func WithIssuerLogger(logger Logger) JWTIssuerOption {
	return func(i *JWTClientTokenIssuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewJWTClientTokenIssuer creates an issuer signing with signingKey.
func NewJWTClientTokenIssuer(signingKey []byte, opts ...JWTIssuerOption) *JWTClientTokenIssuer {
	i := &JWTClientTokenIssuer{
		signingKey: signingKey,
		clients:    map[string]string{},
		now:        time.Now,
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// IssueClientToken verifies the client credentials and signs a token valid for lifetime.
func (i *JWTClientTokenIssuer) IssueClientToken(ctx context.Context, credentials ClientCredentials, lifetime time.Duration) (string, error) {
	select {
	case <-ctx.Done():
		return "", cancelled(ctx.Err(), "client token issuance")
	default:
	}

	if lifetime <= 0 {
		return "", goerrors.New("token lifetime must be positive", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"lifetime": lifetime.String()})
	}

	secret, ok := i.clients[credentials.ClientID]
	if !ok || subtle.ConstantTimeCompare([]byte(secret), []byte(credentials.ClientSecret)) != 1 {
		i.logger.Warn("client token requested with invalid credentials", "client_id", credentials.ClientID)
		return "", goerrors.New("invalid client credentials", goerrors.CategoryAuth).
			WithTextCode(TextCodeInvalidClient).
			WithMetadata(map[string]any{"client_id": credentials.ClientID})
	}

	now := i.now()
	claims := &ClientTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   credentials.ClientID,
			Audience:  i.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		ClientID: credentials.ClientID,
		Scope:    i.scope,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign client token")
	}
	return signed, nil
}

// Validate parses a token issued by this issuer and returns its claims.
func (i *JWTClientTokenIssuer) Validate(tokenString string) (*ClientTokenClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(i.issuer))
	}
	if len(i.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(i.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &ClientTokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.signingKey, nil
	}, parserOptions...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid client token")
	}

	claims, ok := token.Claims.(*ClientTokenClaims)
	if !ok || !token.Valid {
		return nil, goerrors.New("invalid client token", goerrors.CategoryAuth)
	}
	return claims, nil
}
