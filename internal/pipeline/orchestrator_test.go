package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaura24/regaudit/internal/bus"
	"github.com/kaura24/regaudit/internal/lock"
	"github.com/kaura24/regaudit/internal/store"
	"github.com/kaura24/regaudit/internal/types"
)

func TestCreateRunValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.orc.CreateRun(ctx, nil, types.ModeMultiAgent)
	assert.Error(t, err)

	_, err = env.orc.CreateRun(ctx, []types.SourceRef{{URI: "pages/x"}}, "TURBO")
	assert.Error(t, err)

	run, err := env.orc.CreateRun(ctx, []types.SourceRef{{URI: "pages/x"}}, types.ModeFast)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, run.Status)
	assert.Equal(t, types.ModeFast, run.Mode)

	persisted, err := env.repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, persisted.Status)
}

func TestExecuteRunUnknownRun(t *testing.T) {
	env := newTestEnv(t)
	err := env.orc.ExecuteRun(context.Background(), uuid.New(), types.ModeFast)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExecuteRunRejectsTerminalRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	run := env.newRun(t, types.ModeMultiAgent)

	run.Status = types.StatusCompleted
	require.NoError(t, env.repo.SaveRun(ctx, run))

	err := env.orc.ExecuteRun(ctx, run.ID, "")
	var notExec *ErrRunNotExecutable
	require.ErrorAs(t, err, &notExec)
	assert.Equal(t, types.StatusCompleted, notExec.Status)
}

func TestExecuteRunRejectsConcurrentExecution(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	run := env.newRun(t, types.ModeMultiAgent)

	// Simulate an in-flight execution of the same run.
	require.NoError(t, env.locks.BeginExecution(run.ID))
	defer env.locks.EndExecution(run.ID)

	err := env.orc.ExecuteRun(ctx, run.ID, "")
	var busy *lock.ErrAlreadyExecuting
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, run.ID, busy.RunID)

	// No collaborator call was made and the run was not touched.
	assert.Equal(t, 0, env.client.callCount())
	persisted, err := env.repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, persisted.Status)
}

func TestExecuteRunRejectsWhileLockHeldByOtherRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	run := env.newRun(t, types.ModeMultiAgent)

	other := uuid.New()
	require.NoError(t, env.locks.Acquire(ctx, other))
	defer env.locks.Release(ctx, other) //nolint:errcheck

	err := env.orc.ExecuteRun(ctx, run.ID, "")
	var held *lock.ErrLockHeld
	require.ErrorAs(t, err, &held)
}

func TestCancelPendingRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	run := env.newRun(t, types.ModeMultiAgent)

	require.NoError(t, env.orc.CancelRun(ctx, run.ID))

	persisted, err := env.repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, persisted.Status)
	require.NotNil(t, persisted.CompletedAt)

	// A cancelled run cannot be cancelled again or executed.
	assert.Error(t, env.orc.CancelRun(ctx, run.ID))
	var notExec *ErrRunNotExecutable
	assert.ErrorAs(t, env.orc.ExecuteRun(ctx, run.ID, ""), &notExec)
}

func TestExecuteRunRasterizationFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.orc.raster = stubRasterizer{err: errors.New("renderer unavailable")}
	run := env.newRun(t, types.ModeMultiAgent)

	ch, cancel := env.bus.Subscribe(run.ID)
	defer cancel()

	err := env.orc.ExecuteRun(ctx, run.ID, "")
	require.Error(t, err)

	persisted, perr := env.repo.GetRun(ctx, run.ID)
	require.NoError(t, perr)
	assert.Equal(t, types.StatusError, persisted.Status)
	assert.Contains(t, persisted.Error, "rasterization")
	require.NotNil(t, persisted.CompletedAt)

	events := drain(ch)
	assert.True(t, hasEventType(events, bus.EventError), "expected an error event, got %v", eventTypes(events))

	// The session lock was released despite the failure.
	holder, herr := env.locks.Holder(ctx)
	require.NoError(t, herr)
	require.NotNil(t, holder)
	assert.False(t, holder.IsLocked)
}

func TestCollaboratorFailureMarksRunErrored(t *testing.T) {
	ctx := context.Background()
	// A non-retryable collaborator failure earns no fallback attempt.
	env := newTestEnv(t, respondErr(errors.New("quota exceeded")))
	run := env.newRun(t, types.ModeMultiAgent)

	err := env.orc.ExecuteRun(ctx, run.ID, "")
	require.Error(t, err)

	persisted, perr := env.repo.GetRun(ctx, run.ID)
	require.NoError(t, perr)
	assert.Equal(t, types.StatusError, persisted.Status)
	assert.NotEmpty(t, persisted.Error)
}
