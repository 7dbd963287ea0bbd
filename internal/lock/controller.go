// Package lock provides the two cross-run exclusion mechanisms: a durable
// global session lock (one active run system-wide) and an in-process
// idempotency guard against re-entrant execution of the same run.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaura24/regaudit/internal/store"
)

const sessionLockKey = "locks/session.json"

// StaleAfter is the window after which an unreleased lock is reclaimed as
// abandoned.
const StaleAfter = 5 * time.Minute

// SessionLock is the persisted singleton lock record.
type SessionLock struct {
	IsLocked   bool      `json:"is_locked"`
	OwnerRunID string    `json:"owner_run_id,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// ErrLockHeld reports a failed acquisition, naming the current holder so the
// caller can surface it.
type ErrLockHeld struct {
	Owner string
}

func (e *ErrLockHeld) Error() string {
	return fmt.Sprintf("session lock held by run %s", e.Owner)
}

// ErrAlreadyExecuting reports a rejected re-entrant execution attempt.
type ErrAlreadyExecuting struct {
	RunID uuid.UUID
}

func (e *ErrAlreadyExecuting) Error() string {
	return fmt.Sprintf("run %s is already executing", e.RunID)
}

// Controller owns both exclusion mechanisms. Constructed once per process and
// injected into the orchestrator.
type Controller struct {
	store      store.Store
	staleAfter time.Duration
	now        func() time.Time

	mu        sync.Mutex
	executing map[uuid.UUID]struct{}
}

// NewController uses the default 5-minute staleness window.
func NewController(s store.Store) *Controller {
	return &Controller{
		store:      s,
		staleAfter: StaleAfter,
		now:        time.Now,
		executing:  make(map[uuid.UUID]struct{}),
	}
}

// WithStaleness overrides the staleness window, for tests.
func (c *Controller) WithStaleness(d time.Duration) *Controller {
	c.staleAfter = d
	return c
}

// WithClock overrides the clock, for tests.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

func (c *Controller) readLock(ctx context.Context) (*SessionLock, error) {
	data, err := c.store.Get(ctx, sessionLockKey)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session lock: %w", err)
	}
	var l SessionLock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to decode session lock: %w", err)
	}
	return &l, nil
}

func (c *Controller) writeLock(ctx context.Context, l *SessionLock) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal session lock: %w", err)
	}
	if err := c.store.Put(ctx, sessionLockKey, data); err != nil {
		return fmt.Errorf("failed to write session lock: %w", err)
	}
	return nil
}

// Acquire takes the global session lock for runID. It succeeds when no lock
// exists, the existing lock is released, or the holder exceeded the staleness
// window; otherwise it fails closed with ErrLockHeld.
func (c *Controller) Acquire(ctx context.Context, runID uuid.UUID) error {
	current, err := c.readLock(ctx)
	if err != nil {
		return err
	}
	if current != nil && current.IsLocked {
		if current.OwnerRunID == runID.String() {
			return nil // already ours
		}
		if c.now().Sub(current.AcquiredAt) <= c.staleAfter {
			return &ErrLockHeld{Owner: current.OwnerRunID}
		}
		// Stale holder: reclaim as abandoned.
	}
	return c.writeLock(ctx, &SessionLock{
		IsLocked:   true,
		OwnerRunID: runID.String(),
		AcquiredAt: c.now(),
	})
}

// Release is a no-op when runID is not the current owner, so a stale caller
// can never release a newer run's lock.
func (c *Controller) Release(ctx context.Context, runID uuid.UUID) error {
	current, err := c.readLock(ctx)
	if err != nil {
		return err
	}
	if current == nil || !current.IsLocked || current.OwnerRunID != runID.String() {
		return nil
	}
	return c.writeLock(ctx, &SessionLock{IsLocked: false})
}

// Holder returns the current lock record, nil when never acquired.
func (c *Controller) Holder(ctx context.Context) (*SessionLock, error) {
	return c.readLock(ctx)
}

// BeginExecution registers runID with the in-process idempotency guard.
// A second call for the same run before EndExecution fails, protecting the
// scarce reasoning budget from duplicate-trigger double-spend.
func (c *Controller) BeginExecution(runID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.executing[runID]; ok {
		return &ErrAlreadyExecuting{RunID: runID}
	}
	c.executing[runID] = struct{}{}
	return nil
}

// EndExecution releases the idempotency guard for runID.
func (c *Controller) EndExecution(runID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.executing, runID)
}
