package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-conflicts/internal/repository"
)

type failingCache struct{}

func (failingCache) Get(context.Context, string, interface{}) error {
	return errors.New("connection refused")
}

func (failingCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("connection refused")
}

func (failingCache) DeleteByPattern(context.Context, string) error {
	return errors.New("connection refused")
}

func TestRememberLoadsOnceAndInvalidates(t *testing.T) {
	metrics := NewMetricsService()
	cache := NewCacheService(repository.NewMemoryCacheRepository(time.Minute), metrics, time.Minute, nil, true)
	ctx := context.Background()
	loads := 0
	load := func() ([]string, error) {
		loads++
		return []string{"a", "b"}, nil
	}

	first, err := remember(ctx, cache, "conflicts:test", 0, load)
	require.NoError(t, err)
	second, err := remember(ctx, cache, "conflicts:test", 0, load)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads)

	require.NoError(t, cache.Invalidate(ctx, "conflicts:*"))
	_, err = remember(ctx, cache, "conflicts:test", 0, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(2), snapshot.CacheMisses)
}

func TestRememberWithoutCacheAlwaysLoads(t *testing.T) {
	var cache *CacheService
	loads := 0
	for i := 0; i < 2; i++ {
		_, err := remember(context.Background(), cache, "k", 0, func() (int, error) {
			loads++
			return loads, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, loads)
	assert.False(t, cache.Enabled())
}

func TestRememberSurvivesBackendFailure(t *testing.T) {
	cache := NewCacheService(failingCache{}, nil, 0, nil, true)

	value, err := remember(context.Background(), cache, "k", 0, func() (string, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", value)
	assert.Error(t, cache.Invalidate(context.Background(), "conflicts:*"))
}
