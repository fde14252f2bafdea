package remote

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"syscall"
	"time"

	"github.com/kolo/xmlrpc"
)

// RetryConfig bounds the retry loop around transient transport failures.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the retry policy used for remote calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// readOnlyMethods are the model methods that are safe to re-issue: they
// never mutate the remote, so a retry after an ambiguous transport failure
// cannot duplicate anything.
var readOnlyMethods = map[string]bool{
	"search":              true,
	"search_read":         true,
	"search_count":        true,
	"read":                true,
	"fields_get":          true,
	"name_search":         true,
	"check_access_rights": true,
}

// retryableMethod reports whether a failed call of this method may be
// retried. Mutations run exactly once.
func retryableMethod(method string) bool {
	return readOnlyMethods[method]
}

// isTransient reports whether an error is worth retrying. Server-side faults
// are application errors and must surface to the caller unchanged.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}

// backoff calculates the exponential delay for an attempt with 0-25% jitter
// to prevent thundering herd.
func backoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(2.0, float64(attempt))
	delay = math.Min(delay, float64(cfg.MaxBackoff))
	jitter := rand.Float64() * 0.25 * delay
	return time.Duration(delay + jitter)
}

// withRetry runs fn, sleeping between transient failures until the context
// is cancelled or the attempts are exhausted.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt-1, cfg)):
			}
		}
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
	}
	return err
}
