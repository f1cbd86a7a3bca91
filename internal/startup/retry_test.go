package startup

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iPromKnight/riven/internal/testutil"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		MaxAttempts:  3,
		Multiplier:   2.0,
	}
}

func TestIsNetworkError(t *testing.T) {
	assert.False(t, IsNetworkError(nil))
	assert.False(t, IsNetworkError(errors.New("invalid api key")))

	assert.True(t, IsNetworkError(errors.New("dial tcp 10.0.0.5:32400: connection refused")))
	assert.True(t, IsNetworkError(&net.DNSError{Err: "lookup failed", Name: "api.trakt.tv"}))
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	log := testutil.NopLogger()

	var calls int
	err := WithRetry(context.Background(), "plex validation", fastRetry(), func() error {
		calls++
		if calls < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	}, &log)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	log := testutil.NopLogger()

	var calls int
	err := WithRetry(context.Background(), "trakt validation", fastRetry(), func() error {
		calls++
		return errors.New("i/o timeout")
	}, &log)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryDoesNotRetryNonNetworkErrors(t *testing.T) {
	log := testutil.NopLogger()

	var calls int
	err := WithRetry(context.Background(), "overseerr validation", fastRetry(), func() error {
		calls++
		return errors.New("unexpected status 401")
	}, &log)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	log := testutil.NopLogger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, "mdblist validation", fastRetry(), func() error {
		return errors.New("connection reset")
	}, &log)

	assert.ErrorIs(t, err, context.Canceled)
}
