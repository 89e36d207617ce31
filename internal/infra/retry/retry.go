package retry

// Retry with exponential backoff and jitter for the pricing API
// Retries HTTP 429 and 5xx, plus network timeouts and refused/reset connections
// A 429 Retry-After is waited out in full; one longer than MaxRetryAfter ends the loop

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
)

type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Factor     float64
	// Jitter randomizes each delay; keep it on for anything shared between loops
	Jitter bool
	// MaxRetryAfter is the longest Retry-After waited out before giving up
	MaxRetryAfter time.Duration
}

// DefaultOptions is what the pricing client uses when nothing is configured
var DefaultOptions = Options{
	MaxRetries: 3,
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   10 * time.Second,
	Factor:     2,
	Jitter:     true,

	MaxRetryAfter: 2 * time.Minute,
}

type HTTPError struct {
	StatusCode int
	Body       []byte
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error: <nil>"
	}
	if len(e.Body) == 0 {
		return fmt.Sprintf("http error (%d)", e.StatusCode)
	}
	body := string(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("http error (%d): %s", e.StatusCode, body)
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		switch he.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// ParseRetryAfter accepts delta-seconds or an HTTP date.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func (o Options) normalized() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultOptions.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultOptions.MaxDelay
	}
	if o.Factor <= 1 {
		o.Factor = DefaultOptions.Factor
	}
	if o.MaxRetryAfter <= 0 {
		o.MaxRetryAfter = DefaultOptions.MaxRetryAfter
	}
	return o
}

// RetryAfterCeiling is the normalized MaxRetryAfter.
func (o Options) RetryAfterCeiling() time.Duration {
	return o.normalized().MaxRetryAfter
}

// RateLimited returns the Retry-After of a 429, or 0 for any other error.
func RateLimited(err error) time.Duration {
	var he *HTTPError
	if errors.As(err, &he) && he.StatusCode == http.StatusTooManyRequests {
		return he.RetryAfter
	}
	return 0
}

// NewBackoff returns the delay generator Do uses for these options.
func (o Options) NewBackoff() *backoff.Backoff {
	o = o.normalized()
	return &backoff.Backoff{
		Min:    o.BaseDelay,
		Max:    o.MaxDelay,
		Factor: o.Factor,
		Jitter: o.Jitter,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of attempts
// or ctx is done.
func Do(ctx context.Context, opts Options, fn func() error) error {
	opts = opts.normalized()
	b := opts.NewBackoff()

	totalAttempts := 1 + opts.MaxRetries
	var lastErr error

	for attempt := 0; attempt < totalAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == totalAttempts-1 {
			return lastErr
		}

		sleep := b.Duration()
		if wait := RateLimited(err); wait > 0 {
			if wait > opts.MaxRetryAfter {
				return lastErr
			}
			sleep = wait
		}

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-t.C:
		}
	}

	return lastErr
}
