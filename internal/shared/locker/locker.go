// Package locker provides short-lived exclusive locks keyed by string.
package locker

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock is held by someone else past the wait window
var ErrNotAcquired = errors.New("lock not acquired")

// ErrNotOwner is returned when releasing a lock held under a different token
var ErrNotOwner = errors.New("lock not owned by this client")

// Locker acquires and releases exclusive locks
type Locker interface {
	// TryLock makes one attempt. It returns the ownership token when acquired.
	TryLock(ctx context.Context, key string, ttl time.Duration) (acquired bool, token string, err error)
	// Unlock releases the lock if token still owns it
	Unlock(ctx context.Context, key, token string) error
}

// Acquire retries TryLock until it succeeds, wait elapses or ctx is done
func Acquire(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (string, error) {
	deadline := time.Now().Add(wait)
	backoff := 10 * time.Millisecond

	for {
		ok, token, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return "", ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}
}
