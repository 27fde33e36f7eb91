package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgxcyu/ledgerd/cache"
)

func TestSetGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, s.Set(ctx, "k", "v2", 0))
	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
}

func TestExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	var mu sync.Mutex
	s := NewStoreWithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	mu.Lock()
	now = now.Add(59 * time.Second)
	mu.Unlock()
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestSetNX(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	created, err := s.SetNX(ctx, "k", "v1", 0)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.SetNX(ctx, "k", "v2", 0)
	require.NoError(t, err)
	assert.False(t, created)

	got, _ := s.Get(ctx, "k")
	assert.Equal(t, "v1", got)
}

func TestSetNXAfterExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	var mu sync.Mutex
	s := NewStoreWithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	ctx := context.Background()

	_, err := s.SetNX(ctx, "k", "v1", time.Second)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	created, err := s.SetNX(ctx, "k", "v2", time.Second)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestDeleteAndExpire(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "missing"))
	require.NoError(t, s.Expire(ctx, "missing", time.Minute))

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestConcurrentSetNX(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	wins := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := s.SetNX(ctx, "k", "v", 0)
			if err == nil && created {
				wins[i] = true
			}
		}(i)
	}
	wg.Wait()

	count := 0
	for _, w := range wins {
		if w {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
