package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corenexus/llmfabric/internal/clock"
)

func TestExecute_SucceedsAfterRetryAfter(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	calls := 0
	retryAfter := time.Second

	done := make(chan struct{})
	var result int
	var err error
	go func() {
		result, err = Execute(context.Background(), fake, Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Second, JitterFactor: 0}, func() (int, error) {
			calls++
			if calls == 1 {
				return 0, &RetriableError{Err: errors.New("rate limited"), RetryAfter: &retryAfter, StatusCode: 429}
			}
			return 42, nil
		})
		close(done)
	}()

	// allow goroutine to reach the sleep, then advance the fake clock.
	time.Sleep(10 * time.Millisecond)
	fake.Advance(time.Second)
	<-done

	require.NoError(t, err)
	require.Equal(t, 42, result)
	require.Equal(t, 2, calls)
}

func TestExecute_NonRetriablePropagatesImmediately(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	calls := 0
	_, err := Execute(context.Background(), fake, DefaultConfig(), func() (int, error) {
		calls++
		return 0, &RetriableError{Err: errors.New("bad request"), StatusCode: 400}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestExecute_ExhaustsAfterMaxRetries(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	calls := 0
	cfg := Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFactor: 0}

	done := make(chan struct{})
	var err error
	go func() {
		_, err = Execute(context.Background(), fake, cfg, func() (int, error) {
			calls++
			return 0, &RetriableError{Err: errors.New("still failing"), StatusCode: 500}
		})
		close(done)
	}()

	for i := 0; i < 2; i++ {
		time.Sleep(5 * time.Millisecond)
		fake.Advance(time.Millisecond)
	}
	<-done

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, calls)
}

func TestIsRetriable_StatusCodeSet(t *testing.T) {
	cases := map[int]bool{
		408: true, 409: true, 429: true,
		500: true, 503: true, 599: true,
		400: false, 401: false, 404: false, 600: false,
	}
	for code, want := range cases {
		err := &RetriableError{Err: errors.New("x"), StatusCode: code}
		require.Equal(t, want, IsRetriable(err), "status %d", code)
	}
}

func TestParseRetryAfter_IntFloatAndDate(t *testing.T) {
	d, ok := ParseRetryAfter("5")
	require.True(t, ok)
	require.Equal(t, 5*time.Second, d)

	d, ok = ParseRetryAfter("1.5")
	require.True(t, ok)
	require.Equal(t, 1500*time.Millisecond, d)

	future := time.Now().Add(2 * time.Hour).UTC().Format(http_TimeFormat())
	d, ok = ParseRetryAfter(future)
	require.True(t, ok)
	require.Greater(t, d, time.Hour)
}

func http_TimeFormat() string {
	return "Mon, 02 Jan 2006 15:04:05 GMT"
}
