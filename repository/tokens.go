package repository

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	provision "github.com/goliatone/go-provision"
	"github.com/google/uuid"
)

// DefaultPurposeTokenTTL is how long confirmation and reset tokens stay valid.
const DefaultPurposeTokenTTL = 24 * time.Hour

// Token purposes.
const (
	PurposeEmailConfirmation = "email_confirmation"
	PurposePasswordReset     = "password_reset"
)

type purposeClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// PurposeTokens issues single-purpose tokens bound to a user's security stamp.
// Rotating the stamp invalidates every outstanding token for that user.
type PurposeTokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewPurposeTokens returns a token provider signing with secret.
func NewPurposeTokens(secret []byte, issuer string, ttl time.Duration, now func() time.Time) *PurposeTokens {
	if ttl <= 0 {
		ttl = DefaultPurposeTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &PurposeTokens{secret: secret, issuer: issuer, ttl: ttl, now: now}
}

func (p *PurposeTokens) key(user *provision.User) []byte {
	key := make([]byte, 0, len(p.secret)+len(user.SecurityStamp)+1)
	key = append(key, p.secret...)
	key = append(key, ':')
	return append(key, user.SecurityStamp...)
}

// Generate signs a token for user and purpose.
func (p *PurposeTokens) Generate(user *provision.User, purpose string) (string, error) {
	now := p.now()
	claims := &purposeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		Purpose: purpose,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key(user))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign purpose token")
	}
	return signed, nil
}

// Validate reports whether token was issued for user and purpose with the
// user's current security stamp and has not expired.
func (p *PurposeTokens) Validate(user *provision.User, purpose, token string) bool {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(user.ID.String()),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &purposeClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.key(user), nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return false
	}
	return claims.Purpose == purpose
}
