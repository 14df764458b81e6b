package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func setupRedisLocker(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return NewRedis(client, RedisConfig{TTL: time.Minute, RetryInterval: 5 * time.Millisecond}), mr
}

// assertMutualExclusion runs workers that each hold the lock briefly and
// checks that no two ever overlap.
func assertMutualExclusion(t *testing.T, l Locker) {
	t.Helper()

	var inside int32
	var maxInside int32
	var total int32

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			unlock, err := l.Lock(ctx, "key-a")
			if err != nil {
				return err
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			atomic.AddInt32(&total, 1)
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, int32(20), total)
}

func TestMemory_MutualExclusion(t *testing.T) {
	m := NewMemory()
	assertMutualExclusion(t, m)
	assert.Equal(t, 0, m.held())
}

func TestMemory_IndependentKeys(t *testing.T) {
	m := NewMemory()

	unlockA, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := m.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestMemory_TimeoutWhileHeld(t *testing.T) {
	m := NewMemory()

	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "a")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, m.held())
}

func TestRedis_MutualExclusion(t *testing.T) {
	r, _ := setupRedisLocker(t)
	assertMutualExclusion(t, r)
}

func TestRedis_LockAndRelease(t *testing.T) {
	r, mr := setupRedisLocker(t)

	unlock, err := r.Lock(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, mr.Exists("keylock:a"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = r.Lock(ctx, "a")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	assert.False(t, mr.Exists("keylock:a"))
}

func TestRedis_ReleaseDoesNotDropForeignLock(t *testing.T) {
	r, mr := setupRedisLocker(t)

	unlock, err := r.Lock(context.Background(), "a")
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the key.
	require.NoError(t, mr.Set("keylock:a", "someone-else"))
	unlock()

	got, err := mr.Get("keylock:a")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedis_WaiterAcquiresAfterRelease(t *testing.T) {
	r, _ := setupRedisLocker(t)

	unlock, err := r.Lock(context.Background(), "a")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})
	go func() {
		defer wg.Done()
		u, err := r.Lock(context.Background(), "a")
		if err == nil {
			close(acquired)
			u()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter did not acquire the lock")
	}
	wg.Wait()
}

func setupShortTTLLocker(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	r, mr := setupRedisLocker(t)
	return NewRedis(r.client, RedisConfig{
		TTL:             300 * time.Millisecond,
		RetryInterval:   5 * time.Millisecond,
		RefreshInterval: 10 * time.Millisecond,
	}), mr
}

func TestRedis_HeldLockOutlivesTTL(t *testing.T) {
	r, mr := setupShortTTLLocker(t)

	unlock, err := r.Lock(context.Background(), "a")
	require.NoError(t, err)

	// Advance well past TTL in steps, letting the holder extend in between.
	for i := 0; i < 10; i++ {
		mr.FastForward(200 * time.Millisecond)
		require.True(t, mr.Exists("keylock:a"), "lock expired while held (step %d)", i)
		require.Eventually(t, func() bool {
			return mr.TTL("keylock:a") > 200*time.Millisecond
		}, time.Second, 5*time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = r.Lock(ctx, "a")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	assert.False(t, mr.Exists("keylock:a"))
}

func TestRedis_RefreshDoesNotExtendForeignLock(t *testing.T) {
	r, mr := setupShortTTLLocker(t)

	unlock, err := r.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlock()

	require.NoError(t, mr.Set("keylock:a", "someone-else"))
	mr.SetTTL("keylock:a", 100*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, mr.TTL("keylock:a"))
}
