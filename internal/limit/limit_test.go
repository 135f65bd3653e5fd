package limit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.RequestsPerMinute = 0
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(cfg.Validate()))
}

func TestBurstThenLimited(t *testing.T) {
	p, err := NewPerClient(Config{RequestsPerMinute: 60, Burst: 3, IdleEviction: time.Hour})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Allow("c1"))
	}
	err = p.Allow("c1")
	require.Error(t, err)
	assert.Equal(t, fault.CodeRateLimited, fault.CodeOf(err))
	assert.True(t, fault.IsRetriable(err))
}

func TestClientsIsolated(t *testing.T) {
	p, err := NewPerClient(Config{RequestsPerMinute: 60, Burst: 1, IdleEviction: time.Hour})
	require.NoError(t, err)

	require.NoError(t, p.Allow("c1"))
	assert.Error(t, p.Allow("c1"))
	// A different client has its own bucket.
	require.NoError(t, p.Allow("c2"))
	assert.Equal(t, 2, p.Clients())
}

func TestIdleEviction(t *testing.T) {
	p, err := NewPerClient(Config{RequestsPerMinute: 60, Burst: 1, IdleEviction: time.Minute})
	require.NoError(t, err)

	current := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return current }

	require.NoError(t, p.Allow("old"))
	current = current.Add(5 * time.Minute)
	require.NoError(t, p.Allow("fresh"))

	assert.Equal(t, 1, p.Clients())
}

func TestEmptyClientMapsToAnonymous(t *testing.T) {
	p, err := NewPerClient(Config{RequestsPerMinute: 60, Burst: 1, IdleEviction: time.Hour})
	require.NoError(t, err)

	require.NoError(t, p.Allow(""))
	assert.Error(t, p.Allow("anonymous"))
}
