package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	provision "github.com/goliatone/go-provision"
	"github.com/goliatone/go-provision/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message() provision.EmailMessage {
	return provision.EmailMessage{
		From:    "no-reply@example.com",
		To:      []string{"alice@example.com"},
		Subject: "Welcome",
		Body:    "<p>hi</p>",
		IsHTML:  true,
	}
}

func fastRetries() notify.Option {
	return notify.WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	})
}

func TestHTTPClientSendsMessage(t *testing.T) {
	var received provision.EmailMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := notify.NewHTTPClient(srv.URL, fastRetries())
	require.NoError(t, client.SendEmail(context.Background(), "tok", message()))

	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, message(), received)
}

func TestHTTPClientUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		}))

		err := notify.NewHTTPClient(srv.URL, fastRetries()).SendEmail(context.Background(), "tok", message())
		srv.Close()

		assert.ErrorIs(t, err, provision.ErrNotifierUnauthorized)
		assert.Equal(t, int32(1), calls.Load(), "status %d is not retried", status)
	}
}

func TestHTTPClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := notify.NewHTTPClient(srv.URL, fastRetries()).SendEmail(context.Background(), "tok", message())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := notify.NewHTTPClient(srv.URL, fastRetries(), notify.WithMaxRetries(2)).
		SendEmail(context.Background(), "tok", message())
	require.Error(t, err)
	assert.False(t, errors.Is(err, provision.ErrNotifierUnauthorized))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientBadRequestIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad recipient", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := notify.NewHTTPClient(srv.URL, fastRetries()).SendEmail(context.Background(), "tok", message())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClientCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := notify.NewHTTPClient(srv.URL, fastRetries()).SendEmail(ctx, "tok", message())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewLogNotifier(&buf)

	require.NoError(t, n.SendEmail(context.Background(), "tok", message()))
	assert.Contains(t, buf.String(), "alice@example.com")
	assert.Contains(t, buf.String(), "Welcome")
}
