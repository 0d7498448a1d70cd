package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl, wait time.Duration) (*SlotLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(ClientOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisSlotLocker(rdb, ttl, wait), mr
}

func TestWithSlotLock_ReleasesKey(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 0)

	err := locker.WithSlotLock(context.Background(), "default:doc:2024-06-01:09:00 AM", func(ctx context.Context) error {
		assert.True(t, mr.Exists("lock:slot:default:doc:2024-06-01:09:00 AM"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:slot:default:doc:2024-06-01:09:00 AM"))
}

func TestWithSlotLock_PropagatesFnError(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 0)
	boom := errors.New("boom")

	err := locker.WithSlotLock(context.Background(), "k", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:slot:k"), "lock released on error path")
}

func TestWithSlotLock_BusyWithoutWait(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 0)
	require.NoError(t, mr.Set("lock:slot:k", "someone-else"))

	err := locker.WithSlotLock(context.Background(), "k", func(ctx context.Context) error {
		t.Fatal("must not enter critical section")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	val, _ := mr.Get("lock:slot:k")
	assert.Equal(t, "someone-else", val, "foreign lock is never released")
}

func TestWithSlotLock_SerializesWaiters(t *testing.T) {
	locker, _ := newTestLocker(t, 2*time.Second, 2*time.Second)

	var inside, maxInside, entered int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithSlotLock(context.Background(), "shared", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				atomic.AddInt32(&entered, 1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, int32(8), entered)
}

func TestWithSlotLock_ContextEndsWhileWaiting(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 5*time.Second)
	require.NoError(t, mr.Set("lock:slot:k", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := locker.WithSlotLock(ctx, "k", func(ctx context.Context) error {
		t.Fatal("must not enter critical section")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrLockNotAcquired, "an expired caller is not contention")
	assert.Less(t, time.Since(start), time.Second, "gives up with the context, not the wait")
}
