package locker

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	ok, token, err := l.TryLock(ctx, "patient-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = l.TryLock(ctx, "patient-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second writer must not acquire")

	ok, _, err = l.TryLock(ctx, "patient-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per key")

	assert.ErrorIs(t, l.Unlock(ctx, "patient-1", "someone-else"), ErrNotOwner)
	require.NoError(t, l.Unlock(ctx, "patient-1", token))

	ok, _, err = l.TryLock(ctx, "patient-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerExpiry(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _, _ := l.TryLock(ctx, "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, _, _ = l.TryLock(ctx, "k", time.Second)
	assert.True(t, ok, "expired lock can be taken over")
}

func TestAcquireWaitsForRelease(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	_, token, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		l.Unlock(ctx, "k", token)
	}()

	got, err := Acquire(ctx, l, "k", time.Minute, 2*time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestAcquireGivesUp(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	_, _, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)

	_, err = Acquire(ctx, l, "k", time.Minute, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestAcquireSerializesWriters(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := Acquire(ctx, l, "patient", time.Minute, 5*time.Second)
			if err != nil {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			l.Unlock(ctx, "patient", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

// Runs against a real server when REDIS_TEST_ADDR is set
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	l := NewRedisLocker(client, "ambulatorio-test")
	ctx := context.Background()
	key := "patient-" + time.Now().Format("150405.000000")

	ok, token, err := l.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = l.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, l.Unlock(ctx, key, "other"), ErrNotOwner)
	require.NoError(t, l.Unlock(ctx, key, token))
	require.NoError(t, l.Unlock(ctx, key, token), "releasing twice is harmless")
}
