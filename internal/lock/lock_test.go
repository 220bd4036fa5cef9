package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	locker := NewKeyedMutex()
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, SubmissionVersionKey(1, 2))
			require.NoError(t, err)
			defer release()

			current := atomic.AddInt32(&inside, 1)
			for {
				seen := atomic.LoadInt32(&maxInside)
				if current <= seen || atomic.CompareAndSwapInt32(&maxInside, seen, current) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxInside)
	require.Zero(t, locker.Held())
}

func TestKeyedMutexDistinctKeysDoNotBlock(t *testing.T) {
	locker := NewKeyedMutex()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, "a")
	require.NoError(t, err)
	defer releaseA()

	releaseB, ok, err := locker.TryAcquire(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	releaseB()

	_, ok, err = locker.TryAcquire(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeyedMutexAcquireHonoursContext(t *testing.T) {
	locker := NewKeyedMutex()

	release, err := locker.Acquire(context.Background(), "busy")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "busy")
	require.ErrorIs(t, err, ErrNotAcquired)

	release()
	release()
	require.Zero(t, locker.Held())
}

func TestRedisLockerExclusiveAndReleasable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	first := NewRedisLocker(client, "test:lock", time.Minute)
	second := NewRedisLocker(client, "test:lock", time.Minute)

	release, ok, err := first.TryAcquire(ctx, "deadline-sweep")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("test:lock:deadline-sweep"))

	_, ok, err = second.TryAcquire(ctx, "deadline-sweep")
	require.NoError(t, err)
	require.False(t, ok)

	release()
	require.False(t, mr.Exists("test:lock:deadline-sweep"))

	release2, err := second.Acquire(ctx, "deadline-sweep")
	require.NoError(t, err)
	release2()
}

func TestRedisLockerKeyLayout(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	for prefix, want := range map[string]string{
		"fyp:lease:": "fyp:lease:" + DeadlineSweepKey,
		"fyp:lease":  "fyp:lease:" + DeadlineSweepKey,
		"":           "fyp:lock:" + DeadlineSweepKey,
	} {
		release, ok, err := NewRedisLocker(client, prefix, time.Minute).TryAcquire(ctx, DeadlineSweepKey)
		require.NoError(t, err)
		require.True(t, ok, prefix)
		require.Equal(t, []string{want}, mr.Keys(), prefix)
		release()
	}
}

func TestRedisLockerExpiresAbandonedLease(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	locker := NewRedisLocker(client, "test:lock", time.Second)

	_, ok, err := locker.TryAcquire(ctx, "job")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryAcquire(ctx, "job")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestChainReleasesOnPartialFailure(t *testing.T) {
	local := NewKeyedMutex()
	other := NewKeyedMutex()
	ctx := context.Background()

	held, err := other.Acquire(ctx, "k")
	require.NoError(t, err)

	chain := Chain{local, other}
	_, ok, err := chain.TryAcquire(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, local.Held())

	held()
	release, ok, err := chain.TryAcquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	release()
}
