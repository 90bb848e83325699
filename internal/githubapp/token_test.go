package githubapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshIfCurrentSkipsWhenTokenChanged(t *testing.T) {
	var bootstraps int
	m := newTokenManager(func(ctx context.Context) (InstallationToken, error) {
		bootstraps++
		return "fresh", nil
	})
	m.set("current")

	// The caller observed an older token; someone else already refreshed.
	tok, err := m.refreshIfCurrent(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, InstallationToken("current"), tok)
	assert.Zero(t, bootstraps, "no network refresh when the observation is outdated")
}

func TestRefreshIfCurrentRefreshesWhenStillCurrent(t *testing.T) {
	var bootstraps int
	m := newTokenManager(func(ctx context.Context) (InstallationToken, error) {
		bootstraps++
		return "fresh", nil
	})
	m.set("stale")

	tok, err := m.refreshIfCurrent(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, InstallationToken("fresh"), tok)
	assert.Equal(t, 1, bootstraps)
	assert.Equal(t, InstallationToken("fresh"), m.current())
}

func TestRefreshIfCurrentKeepsOldTokenOnFailure(t *testing.T) {
	m := newTokenManager(func(ctx context.Context) (InstallationToken, error) {
		return "", errors.New("bootstrap blew up")
	})
	m.set("stale")

	_, err := m.refreshIfCurrent(context.Background(), "stale")
	require.Error(t, err)
	assert.Equal(t, InstallationToken("stale"), m.current(),
		"a stale token is preferable to no token")
}

func TestConcurrentRefreshCausesSingleBootstrap(t *testing.T) {
	var bootstraps atomic.Int32
	m := newTokenManager(func(ctx context.Context) (InstallationToken, error) {
		n := bootstraps.Add(1)
		return InstallationToken(fmt.Sprintf("fresh-%d", n)), nil
	})
	m.set("stale")

	const workers = 50
	results := make([]InstallationToken, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every worker observed the same stale token, as after a burst
			// of concurrent 401 responses.
			results[i], errs[i] = m.refreshIfCurrent(context.Background(), "stale")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), bootstraps.Load(),
		"exactly one bootstrap exchange regardless of concurrent observers")
	for _, tok := range results {
		assert.Equal(t, InstallationToken("fresh-1"), tok)
	}
}
