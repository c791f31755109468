// Property-based tests for per-user serialization.
package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestCheckpointReadModifyWriteProperty simulates the accrual pattern: read a
// checkpoint, compute owed minutes from it, advance it. Concurrent callers
// holding the user lock must credit every minute exactly once.
func TestCheckpointReadModifyWriteProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		elapsed := rapid.Int64Range(0, 600).Draw(t, "elapsedMinutes")
		workers := rapid.IntRange(2, 20).Draw(t, "workers")
		userID := rapid.Int64Range(1, 1_000_000).Draw(t, "userID")

		ul := NewUserLock()
		var checkpoint, credited int64

		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				_ = ul.WithLock(context.Background(), userID, func() error {
					owed := elapsed - checkpoint
					credited += owed
					checkpoint += owed
					return nil
				})
			}()
		}
		wg.Wait()

		if credited != elapsed {
			t.Fatalf("credited %d minutes, want %d", credited, elapsed)
		}
		if ul.Len() != 0 {
			t.Fatalf("expected no lock entries after completion, got %d", ul.Len())
		}
	})
}

// TestMultipleUsersIndependentLocksProperty checks that per-user counters stay
// consistent when many users are mutated concurrently.
func TestMultipleUsersIndependentLocksProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numUsers := rapid.IntRange(2, 10).Draw(t, "numUsers")
		opsPerUser := rapid.IntRange(5, 20).Draw(t, "opsPerUser")

		ul := NewUserLock()
		counters := make([]int64, numUsers+1)

		var wg sync.WaitGroup
		wg.Add(numUsers * opsPerUser)
		for uid := 1; uid <= numUsers; uid++ {
			for j := 0; j < opsPerUser; j++ {
				go func(uid int) {
					defer wg.Done()
					if err := ul.Lock(context.Background(), int64(uid)); err != nil {
						return
					}
					defer ul.Unlock(int64(uid))
					counters[uid]++
				}(uid)
			}
		}
		wg.Wait()

		for uid := 1; uid <= numUsers; uid++ {
			if counters[uid] != int64(opsPerUser) {
				t.Fatalf("user %d: got %d increments, want %d", uid, counters[uid], opsPerUser)
			}
		}
	})
}

// TestTryLockExclusiveProperty checks that concurrent TryLock callers never
// overlap inside the critical section.
func TestTryLockExclusiveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1_000_000).Draw(t, "userID")
		attempts := rapid.IntRange(5, 20).Draw(t, "attempts")

		ul := NewUserLock()
		var inside, overlaps, successes atomic.Int32

		var wg sync.WaitGroup
		wg.Add(attempts)
		start := make(chan struct{})
		for i := 0; i < attempts; i++ {
			go func() {
				defer wg.Done()
				<-start
				if ul.TryLock(userID) {
					successes.Add(1)
					if inside.Add(1) > 1 {
						overlaps.Add(1)
					}
					inside.Add(-1)
					ul.Unlock(userID)
				}
			}()
		}
		close(start)
		wg.Wait()

		if successes.Load() < 1 {
			t.Fatal("at least one TryLock should succeed")
		}
		if overlaps.Load() != 0 {
			t.Fatalf("critical section overlapped %d times", overlaps.Load())
		}
		if !ul.TryLock(userID) {
			t.Fatal("lock should be free after all attempts")
		}
		ul.Unlock(userID)
	})
}

func TestLock_ContextCancelled(t *testing.T) {
	ul := NewUserLock()
	require.NoError(t, ul.Lock(context.Background(), 1))
	assert.True(t, ul.IsLocked(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ul.Lock(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)

	ul.Unlock(1)
	assert.False(t, ul.IsLocked(1))
	assert.Equal(t, 0, ul.Len())
}

func TestWithLockTimeout(t *testing.T) {
	ul := NewUserLock()
	require.NoError(t, ul.Lock(context.Background(), 7))

	called := false
	err := ul.WithLockTimeout(context.Background(), 7, 20*time.Millisecond, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)

	ul.Unlock(7)
	err = ul.WithLockTimeout(context.Background(), 7, 20*time.Millisecond, func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestUnlock_NotLockedIsNoop(t *testing.T) {
	ul := NewUserLock()
	ul.Unlock(99)
	assert.Equal(t, 0, ul.Len())
	assert.True(t, ul.TryLock(99))
	ul.Unlock(99)
}
