package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCacheManager struct {
	mock.Mock
}

func (m *mockCacheManager) Get(ctx context.Context, key string) (string, bool) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1)
}

func (m *mockCacheManager) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *mockCacheManager) Delete(ctx context.Context, keys ...string) {
	m.Called(ctx, keys)
}

func (m *mockCacheManager) Flush(ctx context.Context) {
	m.Called(ctx)
}

func countingLoader(value string, err error) (LoadFunc[string], *int) {
	calls := 0
	return func(context.Context) (string, error) {
		calls++
		return value, err
	}, &calls
}

func TestInMemoryCacheManager_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCacheManager[string, string]("test", time.Minute, time.Minute)

	_, ok := c.Get(ctx, "status")
	require.False(t, ok)

	c.Set(ctx, "status", "online", 0)
	v, ok := c.Get(ctx, "status")
	require.True(t, ok)
	require.Equal(t, "online", v)

	c.Delete(ctx, "status")
	_, ok = c.Get(ctx, "status")
	require.False(t, ok)
}

func TestInMemoryCacheManager_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCacheManager[string, int]("test", time.Minute, time.Minute)

	c.Set(ctx, "k", 7, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryCacheManager_Flush(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCacheManager[string, int]("test", time.Minute, time.Minute)
	c.Set(ctx, "a", 1, 0)
	c.Set(ctx, "b", 2, 0)

	c.Flush(ctx)

	_, okA := c.Get(ctx, "a")
	_, okB := c.Get(ctx, "b")
	require.False(t, okA)
	require.False(t, okB)
}

func TestReadThroughCache_MissLoadsAndStores(t *testing.T) {
	ctx := context.Background()
	m := &mockCacheManager{}
	m.On("Get", ctx, "status").Return("", false).Once()
	m.On("Set", ctx, "status", "online", 30*time.Second).Once()

	load, calls := countingLoader("online", nil)
	r := NewReadThroughCache[string, string](m, load, 30*time.Second, false)

	v, err := r.Get(ctx, "status")
	require.NoError(t, err)
	require.Equal(t, "online", v)
	require.Equal(t, 1, *calls)
	m.AssertExpectations(t)
}

func TestReadThroughCache_HitSkipsLoader(t *testing.T) {
	ctx := context.Background()
	m := &mockCacheManager{}
	m.On("Get", ctx, "status").Return("cached", true).Once()

	load, calls := countingLoader("fresh", nil)
	r := NewReadThroughCache[string, string](m, load, time.Minute, false)

	v, err := r.Get(ctx, "status")
	require.NoError(t, err)
	require.Equal(t, "cached", v)
	require.Zero(t, *calls)
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_LoaderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	m := &mockCacheManager{}
	m.On("Get", ctx, "status").Return("", false).Twice()

	boom := errors.New("probe failed")
	load, calls := countingLoader("", boom)
	r := NewReadThroughCache[string, string](m, load, time.Minute, false)

	_, err := r.Get(ctx, "status")
	require.ErrorIs(t, err, boom)
	_, err = r.Get(ctx, "status")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, *calls)
	m.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_DisabledAlwaysLoads(t *testing.T) {
	m := &mockCacheManager{}
	load, calls := countingLoader("v", nil)
	r := NewReadThroughCache[string, string](m, load, time.Minute, true)

	for range 3 {
		_, err := r.Get(context.Background(), "status")
		require.NoError(t, err)
	}
	require.Equal(t, 3, *calls)
	m.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestReadThroughCache_InvalidateDeletes(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCacheManager[string, string]("test", time.Minute, time.Minute)
	load, calls := countingLoader("v", nil)
	r := NewReadThroughCache[string, string](c, load, time.Minute, false)

	_, _ = r.Get(ctx, "status")
	_, _ = r.Get(ctx, "status")
	require.Equal(t, 1, *calls)

	r.Invalidate(ctx, "status")
	_, _ = r.Get(ctx, "status")
	require.Equal(t, 2, *calls)
}
