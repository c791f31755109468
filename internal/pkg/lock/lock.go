// Package lock provides per-user mutual exclusion for session and credit
// mutations. Operations on different users never block each other.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// entry is a one-slot semaphore shared by everyone holding or waiting on a user.
type entry struct {
	sem  chan struct{}
	refs int
}

// UserLock serializes work per user ID. Entries are reference counted and
// removed once no goroutine holds or waits for them.
type UserLock struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{entries: make(map[int64]*entry)}
}

func (ul *UserLock) ref(userID int64) *entry {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	e, ok := ul.entries[userID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		ul.entries[userID] = e
	}
	e.refs++
	return e
}

func (ul *UserLock) unref(userID int64, e *entry) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(ul.entries, userID)
	}
}

// Lock blocks until the user's lock is held or ctx is done.
func (ul *UserLock) Lock(ctx context.Context, userID int64) error {
	e := ul.ref(userID)
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		ul.unref(userID, e)
		return ctx.Err()
	}
}

// TryLock acquires the lock only if it is free.
func (ul *UserLock) TryLock(userID int64) bool {
	e := ul.ref(userID)
	select {
	case e.sem <- struct{}{}:
		return true
	default:
		ul.unref(userID, e)
		return false
	}
}

// Unlock releases a lock obtained with Lock or TryLock.
// Unlocking a user that is not locked is a no-op.
func (ul *UserLock) Unlock(userID int64) {
	ul.mu.Lock()
	e, ok := ul.entries[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-e.sem:
		ul.unref(userID, e)
	default:
	}
}

// WithLock runs fn while holding the user's lock.
func (ul *UserLock) WithLock(ctx context.Context, userID int64, fn func() error) error {
	if err := ul.Lock(ctx, userID); err != nil {
		return err
	}
	defer ul.Unlock(userID)
	return fn()
}

// WithLockTimeout is WithLock bounded by timeout. It returns ErrLockTimeout
// when the lock could not be acquired in time.
func (ul *UserLock) WithLockTimeout(ctx context.Context, userID int64, timeout time.Duration, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := ul.Lock(lockCtx, userID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrLockTimeout
		}
		return err
	}
	defer ul.Unlock(userID)
	return fn()
}

// IsLocked reports whether someone currently holds the user's lock.
// It is a point-in-time check.
func (ul *UserLock) IsLocked(userID int64) bool {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	e, ok := ul.entries[userID]
	return ok && len(e.sem) == 1
}

// Len returns the number of users with a held or awaited lock.
func (ul *UserLock) Len() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.entries)
}
