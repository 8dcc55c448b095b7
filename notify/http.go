package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/goliatone/go-errors"
	provision "github.com/goliatone/go-provision"
)

// DefaultMaxRetries bounds the retries of a single SendEmail call.
const DefaultMaxRetries = 3

// HTTPClient posts email messages as JSON to a notification service using a
// bearer token.
type HTTPClient struct {
	endpoint   string
	client     *http.Client
	maxRetries uint64
	backoff    func() backoff.BackOff
	logger     provision.Logger
}

var _ provision.Notifier = (*HTTPClient)(nil)

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying http client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n uint64) Option {
	return func(h *HTTPClient) {
		h.maxRetries = n
	}
}

// WithBackOff overrides the retry schedule.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(h *HTTPClient) {
		if factory != nil {
			h.backoff = factory
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger provision.Logger) Option {
	return func(h *HTTPClient) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHTTPClient returns a notifier posting to endpoint.
func NewHTTPClient(endpoint string, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: DefaultMaxRetries,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		logger: nopLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h
}

// SendEmail implements provision.Notifier. 401 and 403 responses return
// provision.ErrNotifierUnauthorized; other 4xx responses are not retried.
func (h *HTTPClient) SendEmail(ctx context.Context, bearerToken string, msg provision.EmailMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode email message")
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := h.post(ctx, bearerToken, payload)
		if err != nil {
			h.logger.Debug("send email attempt failed", "attempt", attempt, "error", err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(h.backoff(), h.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return err
	}
	return nil
}

func (h *HTTPClient) post(ctx context.Context, bearerToken string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build notification request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	res, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return goerrors.Wrap(err, goerrors.CategoryExternal, "notification request failed")
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return nil
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("%w: status %d", provision.ErrNotifierUnauthorized, res.StatusCode))
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return statusError(res.StatusCode, body)
	default:
		return backoff.Permanent(statusError(res.StatusCode, body))
	}
}

func statusError(status int, body []byte) error {
	return goerrors.New(fmt.Sprintf("notification service responded %d", status), goerrors.CategoryExternal).
		WithCode(status).
		WithMetadata(map[string]any{"body": strings.TrimSpace(string(body))})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
