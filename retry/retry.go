// Package retry implements the exponential-backoff-with-jitter retry
// scheduler shared by the completion adapters and the MCP coordinator.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/corenexus/llmfabric/internal/clock"
)

// Config configures a retry loop.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// JitterFactor is in [0,1]; the applied jitter is uniform in
	// [-base*JitterFactor, +base*JitterFactor].
	JitterFactor float64
}

// DefaultConfig mirrors sensible defaults for HTTP-backed completion
// adapters: three retries, starting at 500ms, capped at 30s, with 20%
// jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.2,
	}
}

// RetriableError wraps an underlying error with the retry metadata the
// scheduler needs: an optional server-supplied Retry-After duration and the
// HTTP status code (if any) that produced the failure.
type RetriableError struct {
	Err        error
	RetryAfter *time.Duration
	StatusCode int
}

func (e *RetriableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("retriable error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("retriable error: %v", e.Err)
}

func (e *RetriableError) Unwrap() error { return e.Err }

// ExhaustedError is returned when a retry loop runs out of attempts; it
// wraps the last observed error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// retriableStatusCodes is the canonical set: 408, 409, 429, and the full
// 500-599 server-error range.
func isRetriableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 599
}

// IsRetriable reports whether err (or something it wraps) is a
// *RetriableError whose status code is in the retriable set, or carries no
// status code at all (a transport-level failure, which is retriable by
// default).
func IsRetriable(err error) bool {
	var re *RetriableError
	if !errors.As(err, &re) {
		return false
	}
	if re.StatusCode == 0 {
		return true
	}
	return isRetriableStatus(re.StatusCode)
}

// Execute runs op up to cfg.MaxRetries+1 times. On a *RetriableError it
// sleeps (honoring Retry-After when present, otherwise exponential backoff
// with jitter per cfg) through clk and retries; any other error, or a
// non-retriable error, propagates immediately. A cancelled context
// surfaces from the blocking sleep without a further retry.
func Execute[T any](ctx context.Context, clk clock.Clock, cfg Config, op func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetriable(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries+1 {
			break
		}
		delay := nextDelay(err, cfg, attempt)
		if err := clk.Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Attempts: cfg.MaxRetries + 1, Last: lastErr}
}

func nextDelay(err error, cfg Config, attempt int) time.Duration {
	var re *RetriableError
	if errors.As(err, &re) && re.RetryAfter != nil && *re.RetryAfter <= 60*time.Second {
		return *re.RetryAfter
	}
	base := float64(cfg.InitialDelay) * pow2(attempt-1)
	if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && base > max {
		base = max
	}
	jitter := base * cfg.JitterFactor
	delta := (rand.Float64()*2 - 1) * jitter
	d := base + delta
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func pow2(n int) float64 {
	if n <= 0 {
		return 1
	}
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}

// ParseRetryAfter accepts the three forms spec'd for the Retry-After header:
// integer seconds, float seconds, and RFC-1123 HTTP dates.
func ParseRetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
