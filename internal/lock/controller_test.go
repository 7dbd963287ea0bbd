package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaura24/regaudit/internal/store"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	s, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return NewController(s)
}

func TestAcquireExclusivity(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, c.Acquire(ctx, first))

	err := c.Acquire(ctx, second)
	require.Error(t, err)
	var held *ErrLockHeld
	require.ErrorAs(t, err, &held)
	assert.Equal(t, first.String(), held.Owner)

	// The holder itself re-acquires without error.
	assert.NoError(t, c.Acquire(ctx, first))

	// After release the second run gets the lock.
	require.NoError(t, c.Release(ctx, first))
	assert.NoError(t, c.Acquire(ctx, second))
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	crashed := uuid.New()
	next := uuid.New()

	now := time.Now()
	clock := now
	c.WithClock(func() time.Time { return clock })

	require.NoError(t, c.Acquire(ctx, crashed))

	// Four minutes in, the lock is still honored.
	clock = now.Add(4 * time.Minute)
	var held *ErrLockHeld
	require.ErrorAs(t, c.Acquire(ctx, next), &held)

	// Past the five-minute window it is reclaimed as abandoned.
	clock = now.Add(5*time.Minute + time.Second)
	require.NoError(t, c.Acquire(ctx, next))

	holder, err := c.Holder(ctx)
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.True(t, holder.IsLocked)
	assert.Equal(t, next.String(), holder.OwnerRunID)
}

func TestReleaseByNonOwnerIsNoOp(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)
	owner := uuid.New()
	stranger := uuid.New()

	require.NoError(t, c.Acquire(ctx, owner))
	require.NoError(t, c.Release(ctx, stranger))

	holder, err := c.Holder(ctx)
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.True(t, holder.IsLocked)
	assert.Equal(t, owner.String(), holder.OwnerRunID)
}

func TestReleaseWithoutAcquire(t *testing.T) {
	c := newTestController(t)
	assert.NoError(t, c.Release(context.Background(), uuid.New()))
}

func TestBeginExecutionGuard(t *testing.T) {
	c := newTestController(t)
	runID := uuid.New()

	require.NoError(t, c.BeginExecution(runID))

	err := c.BeginExecution(runID)
	var executing *ErrAlreadyExecuting
	require.ErrorAs(t, err, &executing)
	assert.Equal(t, runID, executing.RunID)

	// A different run is unaffected by the guard.
	assert.NoError(t, c.BeginExecution(uuid.New()))

	c.EndExecution(runID)
	assert.NoError(t, c.BeginExecution(runID))
}

func TestBeginExecutionConcurrent(t *testing.T) {
	c := newTestController(t)
	runID := uuid.New()

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.BeginExecution(runID) == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count, "exactly one concurrent attempt should win the guard")
}
