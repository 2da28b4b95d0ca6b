package dedup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Opizontas-Studio/dc-license-bot/pkg/testutil"
)

func TestMemorySet_AdmitsOncePerWindow(t *testing.T) {
	clock := testutil.NewClock()
	set := NewMemorySet(WithClock(clock.Now))
	ctx := context.Background()

	assert.True(t, set.Admit(ctx, "thread-1"))
	assert.False(t, set.Admit(ctx, "thread-1"))
	assert.True(t, set.Admit(ctx, "thread-2"))

	clock.Advance(DefaultWindow - time.Second)
	assert.False(t, set.Admit(ctx, "thread-1"))

	clock.Advance(time.Second)
	assert.True(t, set.Admit(ctx, "thread-1"))
}

func TestMemorySet_EvictsExpiredEntries(t *testing.T) {
	clock := testutil.NewClock()
	set := NewMemorySet(WithClock(clock.Now), WithWindow(time.Minute))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		set.Admit(ctx, fmt.Sprintf("k%d", i))
		clock.Advance(10 * time.Second)
	}
	// k0..k4 were admitted 60s or more ago
	assert.Equal(t, 5, set.Len())
}

func TestMemorySet_ConcurrentSameKey(t *testing.T) {
	set := NewMemorySet()
	ctx := context.Background()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if set.Admit(ctx, "same") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
}

func TestMemorySet_IgnoresNonPositiveWindow(t *testing.T) {
	set := NewMemorySet(WithWindow(0))
	assert.Equal(t, DefaultWindow, set.window)
}

func setupRedisSet(t *testing.T, opts ...RedisOption) (*RedisSet, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSet(client, opts...), mr
}

func TestRedisSet_AdmitsOncePerWindow(t *testing.T) {
	set, mr := setupRedisSet(t, WithTTL(time.Minute), WithPrefix("test"))
	ctx := context.Background()

	assert.True(t, set.Admit(ctx, "thread-1"))
	assert.False(t, set.Admit(ctx, "thread-1"))
	assert.True(t, mr.Exists("test:trigger:thread-1"))
	assert.Equal(t, time.Minute, mr.TTL("test:trigger:thread-1"))

	mr.FastForward(time.Minute)
	assert.True(t, set.Admit(ctx, "thread-1"))
}

func TestRedisSet_ConcurrentSameKey(t *testing.T) {
	set, _ := setupRedisSet(t)
	ctx := context.Background()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if set.Admit(ctx, "same") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
}

func TestRedisSet_FailsOpen(t *testing.T) {
	set, mr := setupRedisSet(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, set.Admit(ctx, "thread-1"))
	assert.True(t, set.Admit(ctx, "thread-1"))
}
