package provision

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTokenLifetime is the lifetime requested for notifier bearer tokens.
	DefaultTokenLifetime = 3600 * time.Second
	// DefaultTokenSafetyMargin is how long before expiry a cached token is replaced.
	DefaultTokenSafetyMargin = 2 * time.Minute
)

// CachedToken is the single token slot held by a TokenCache.
type CachedToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (t *CachedToken) usableAt(now time.Time, margin time.Duration) bool {
	return t != nil && t.Value != "" && t.ExpiresAt.Sub(now) > margin
}

// TokenCache memoizes a client-credentials bearer token and reissues it only when
// it gets within the safety margin of expiry.
type TokenCache struct {
	issuer      TokenIssuer
	credentials ClientCredentials
	lifetime    time.Duration
	margin      time.Duration
	now         func() time.Time
	logger      Logger
	issued      prometheus.Counter

	mu      sync.RWMutex
	current *CachedToken
	group   singleflight.Group
}

// TokenCacheOption customizes a TokenCache.
type TokenCacheOption func(*TokenCache)

// WithTokenLifetime sets the lifetime requested from the issuer.
func WithTokenLifetime(lifetime time.Duration) TokenCacheOption {
	return func(c *TokenCache) {
		if lifetime > 0 {
			c.lifetime = lifetime
		}
	}
}

// WithTokenSafetyMargin sets how close to expiry a token may get before reissue.
func WithTokenSafetyMargin(margin time.Duration) TokenCacheOption {
	return func(c *TokenCache) {
		if margin >= 0 {
			c.margin = margin
		}
	}
}

// WithTokenCacheClock injects the clock used for issue and expiry times.
func WithTokenCacheClock(clock func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithTokenCacheLogger sets the logger.
func WithTokenCacheLogger(logger Logger) TokenCacheOption {
	return func(c *TokenCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithIssuanceCounter increments counter for every token obtained from the issuer.
func WithIssuanceCounter(counter prometheus.Counter) TokenCacheOption {
	return func(c *TokenCache) {
		c.issued = counter
	}
}

// NewTokenCache builds a cache issuing tokens for credentials through issuer.
func NewTokenCache(issuer TokenIssuer, credentials ClientCredentials, opts ...TokenCacheOption) (*TokenCache, error) {
	c := &TokenCache{
		issuer:      issuer,
		credentials: credentials,
		lifetime:    DefaultTokenLifetime,
		margin:      DefaultTokenSafetyMargin,
		now:         time.Now,
		logger:      defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.issuer == nil {
		return nil, goerrors.New("token cache requires an issuer", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidationFailed)
	}

	if c.lifetime <= c.margin {
		return nil, goerrors.New("token lifetime must exceed the safety margin", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidationFailed).
			WithMetadata(map[string]any{
				"lifetime": c.lifetime.String(),
				"margin":   c.margin.String(),
			})
	}

	return c, nil
}

// GetToken returns the cached token, issuing a new one when the slot is empty or
// the token expires within the safety margin. Concurrent refreshes share a single
// issuer call.
func (c *TokenCache) GetToken(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", cancelled(ctx.Err(), "token retrieval")
	default:
	}

	if token, ok := c.cached(); ok {
		return token, nil
	}

	// The shared refresh outlives any single caller: each caller stops waiting on
	// its own context while the issuance continues for the others.
	ch := c.group.DoChan("token", func() (any, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", cancelled(ctx.Err(), "token retrieval")
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Current returns a copy of the cached slot, or nil when nothing is cached.
func (c *TokenCache) Current() *CachedToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

// Invalidate drops the cached token so the next GetToken reissues.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current.usableAt(c.now(), c.margin) {
		return c.current.Value, true
	}
	return "", false
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	issuedAt := c.now()
	value, err := c.issuer.IssueClientToken(ctx, c.credentials, c.lifetime)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryExternal, "failed to issue notifier token").
			WithMetadata(map[string]any{"client_id": c.credentials.ClientID})
	}
	if value == "" {
		return "", goerrors.New("issuer returned an empty token", goerrors.CategoryExternal).
			WithMetadata(map[string]any{"client_id": c.credentials.ClientID})
	}

	token := &CachedToken{
		Value:     value,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(c.lifetime),
	}

	c.mu.Lock()
	c.current = token
	c.mu.Unlock()

	if c.issued != nil {
		c.issued.Inc()
	}
	c.logger.Debug("issued notifier token", "client_id", c.credentials.ClientID, "expires_at", token.ExpiresAt)

	return value, nil
}
