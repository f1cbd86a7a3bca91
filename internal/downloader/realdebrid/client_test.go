package realdebrid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/iPromKnight/riven/internal/testutil"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	log := testutil.NopLogger()
	_, err := NewClient(ClientConfig{Logger: &log})
	assert.Error(t, err)
}

func TestNewClientRejectsBadProxy(t *testing.T) {
	log := testutil.NopLogger()
	_, err := NewClient(ClientConfig{APIKey: "key", ProxyURL: "://bad", Logger: &log})
	assert.Error(t, err)
}

func TestRateLimitersStayUnderAccountWindow(t *testing.T) {
	log := testutil.NopLogger()
	c, err := NewClient(ClientConfig{APIKey: "key", Logger: &log})
	require.NoError(t, err)

	assert.Equal(t, rate.Every(time.Second), c.globalLimiter.Limit())
	assert.Equal(t, 1, c.globalLimiter.Burst())
	assert.Equal(t, 1, c.torrentsLimiter.Burst())

	// A cold start admits exactly one immediate call per bucket, so a
	// 60-second window never exceeds the account's sixty calls.
	assert.True(t, c.globalLimiter.Allow())
	assert.False(t, c.globalLimiter.Allow())
}
