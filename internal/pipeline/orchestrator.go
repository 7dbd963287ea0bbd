// Package pipeline provides the stateful orchestrator that drives a run from
// submission to exactly one terminal or suspended state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaura24/regaudit/internal/bus"
	"github.com/kaura24/regaudit/internal/llm"
	"github.com/kaura24/regaudit/internal/lock"
	"github.com/kaura24/regaudit/internal/raster"
	"github.com/kaura24/regaudit/internal/store"
	"github.com/kaura24/regaudit/internal/types"
)

// ErrRunNotExecutable reports an execution attempt against a run that is
// already terminal or suspended.
type ErrRunNotExecutable struct {
	RunID  uuid.UUID
	Status types.RunStatus
}

func (e *ErrRunNotExecutable) Error() string {
	return fmt.Sprintf("run %s is %s and cannot be executed", e.RunID, e.Status)
}

// errCancelled marks a cooperative cancellation observed at a stage boundary.
var errCancelled = errors.New("run cancelled")

// Orchestrator composes the persistence layer, the reasoning and
// rasterization collaborators, the rule engine, the event bus, and the
// concurrency controller into the pipeline state machine.
type Orchestrator struct {
	repo   *store.Repository
	llm    llm.Client
	raster raster.Rasterizer
	locks  *lock.Controller
	bus    *bus.Bus
	log    *zap.Logger

	mu        sync.Mutex
	cancelled map[uuid.UUID]bool
}

// New wires an orchestrator. All collaborators are injected; the
// orchestrator itself performs no provider-specific work.
func New(repo *store.Repository, client llm.Client, rasterizer raster.Rasterizer, locks *lock.Controller, eventBus *bus.Bus, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		repo:      repo,
		llm:       client,
		raster:    rasterizer,
		locks:     locks,
		bus:       eventBus,
		log:       logger,
		cancelled: make(map[uuid.UUID]bool),
	}
}

// CreateRun registers a new submission in pending state.
func (o *Orchestrator) CreateRun(ctx context.Context, sources []types.SourceRef, mode types.ExecutionMode) (*types.Run, error) {
	if len(sources) == 0 {
		return nil, errors.New("at least one source document is required")
	}
	switch mode {
	case types.ModeFast, types.ModeMultiAgent:
	default:
		return nil, fmt.Errorf("unknown execution mode %q", mode)
	}

	now := time.Now().UTC()
	run := &types.Run{
		ID:        uuid.New(),
		Status:    types.StatusPending,
		Mode:      mode,
		Sources:   sources,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.repo.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	o.log.Info("run created",
		zap.String("run_id", run.ID.String()),
		zap.String("mode", string(mode)))
	return run, nil
}

// ExecuteRun is the sole execution entry point. It rejects re-entrant
// execution of the same run id and execution while the global lock is held
// by a different run, then drives the run to exactly one terminal or
// suspended state.
func (o *Orchestrator) ExecuteRun(ctx context.Context, runID uuid.UUID, mode types.ExecutionMode) error {
	if err := o.locks.BeginExecution(runID); err != nil {
		return err
	}
	defer o.locks.EndExecution(runID)

	run, err := o.repo.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != types.StatusPending && run.Status != types.StatusQueued {
		return &ErrRunNotExecutable{RunID: runID, Status: run.Status}
	}

	if err := o.locks.Acquire(ctx, runID); err != nil {
		return err
	}
	defer o.locks.Release(context.WithoutCancel(ctx), runID) //nolint:errcheck

	o.resetCancel(runID)
	defer o.clearCancel(runID)

	if mode != "" {
		run.Mode = mode
	}
	run.Status = types.StatusRunning
	if err := o.saveRun(ctx, run); err != nil {
		return err
	}
	o.log.Info("run started",
		zap.String("run_id", run.ID.String()),
		zap.String("mode", string(run.Mode)))

	var execErr error
	switch run.Mode {
	case types.ModeFast:
		execErr = o.runFast(ctx, run)
	default:
		execErr = o.runMultiAgent(ctx, run, types.StageGatekeeper)
	}
	if execErr != nil {
		return o.failRun(ctx, run, execErr)
	}
	return nil
}

// CancelRun requests cooperative cancellation. An executing run observes the
// flag at its next stage boundary; a run that is merely pending is cancelled
// in place.
func (o *Orchestrator) CancelRun(ctx context.Context, runID uuid.UUID) error {
	o.mu.Lock()
	_, executing := o.cancelled[runID]
	if executing {
		o.cancelled[runID] = true
	}
	o.mu.Unlock()
	if executing {
		return nil
	}

	run, err := o.repo.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return fmt.Errorf("run %s is already %s", runID, run.Status)
	}
	run.Status = types.StatusCancelled
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err := o.saveRun(ctx, run); err != nil {
		return err
	}
	o.publishTerminal(run)
	return nil
}

func (o *Orchestrator) resetCancel(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelled[runID] = false
}

func (o *Orchestrator) clearCancel(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancelled, runID)
}

// checkCancelled is consulted at every stage boundary.
func (o *Orchestrator) checkCancelled(ctx context.Context, runID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return errCancelled
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelled[runID] {
		return errCancelled
	}
	return nil
}

func (o *Orchestrator) saveRun(ctx context.Context, run *types.Run) error {
	run.UpdatedAt = time.Now().UTC()
	return o.repo.SaveRun(ctx, run)
}

// recordEvent appends to the audit trail and mirrors the event onto the push
// stream. Events are appended strictly in emission order.
func (o *Orchestrator) recordEvent(ctx context.Context, run *types.Run, ev types.StageEvent) error {
	ev.Timestamp = time.Now().UTC()
	if err := o.repo.AppendEvent(ctx, run.ID, ev); err != nil {
		return err
	}
	o.bus.Publish(bus.Event{Type: bus.EventStageEvent, RunID: run.ID, Payload: ev})
	return nil
}

// failRun converts an uncaught stage error into a terminal state, so a run
// is never left ambiguously running. Cancellation keeps its own status.
func (o *Orchestrator) failRun(ctx context.Context, run *types.Run, cause error) error {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	run.CompletedAt = &now

	if errors.Is(cause, errCancelled) || errors.Is(cause, context.Canceled) {
		run.Status = types.StatusCancelled
		run.Error = ""
		if err := o.saveRun(ctx, run); err != nil {
			return err
		}
		o.log.Info("run cancelled", zap.String("run_id", run.ID.String()))
		o.publishTerminal(run)
		return nil
	}

	run.Status = types.StatusError
	run.Error = cause.Error()
	if err := o.saveRun(ctx, run); err != nil {
		return errors.Join(cause, err)
	}
	_ = o.recordEvent(ctx, run, types.StageEvent{
		Stage:      run.CurrentStage,
		Summary:    "stage failed: " + cause.Error(),
		NextAction: types.ActionReject,
	})
	o.log.Error("run failed",
		zap.String("run_id", run.ID.String()),
		zap.String("stage", run.CurrentStage),
		zap.Error(cause))
	o.bus.Publish(bus.Event{Type: bus.EventError, RunID: run.ID, Payload: map[string]string{
		"error":       cause.Error(),
		"reason_code": reasonCodeFor(cause),
	}})
	return cause
}

// reasonCodeFor maps an error to its machine-checkable failure category.
func reasonCodeFor(err error) string {
	var collab *llm.CollaboratorError
	var held *lock.ErrLockHeld
	switch {
	case errors.As(err, &collab):
		return "collaborator_failure"
	case errors.As(err, &held):
		return "lock_contention"
	case errors.Is(err, store.ErrNotFound):
		return "missing_record"
	default:
		return "infrastructure_failure"
	}
}

// publishTerminal announces a terminal status on the push stream.
func (o *Orchestrator) publishTerminal(run *types.Run) {
	o.bus.Publish(bus.Event{Type: bus.EventCompleted, RunID: run.ID, Payload: map[string]string{
		"status": string(run.Status),
	}})
}

// rejectRun ends a run that failed structural classification: terminal, no
// retry.
func (o *Orchestrator) rejectRun(ctx context.Context, run *types.Run, reason string) error {
	run.Status = types.StatusRejected
	run.Error = reason
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err := o.saveRun(ctx, run); err != nil {
		return err
	}
	o.log.Info("run rejected",
		zap.String("run_id", run.ID.String()),
		zap.String("reason", reason))
	o.publishTerminal(run)
	return nil
}

// completeRun marks successful termination.
func (o *Orchestrator) completeRun(ctx context.Context, run *types.Run) error {
	run.Status = types.StatusCompleted
	run.Error = ""
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err := o.saveRun(ctx, run); err != nil {
		return err
	}
	o.log.Info("run completed", zap.String("run_id", run.ID.String()))
	o.publishTerminal(run)
	return nil
}

// rasterizeAll renders every source in submission order into one ordered
// page list. The rasterization contract requires a non-empty result per
// source.
func (o *Orchestrator) rasterizeAll(ctx context.Context, run *types.Run) ([]llm.Image, error) {
	var images []llm.Image
	for _, src := range run.Sources {
		pages, err := o.raster.Rasterize(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("rasterization of %s failed: %w", src.URI, err)
		}
		if len(pages) == 0 {
			return nil, fmt.Errorf("rasterization of %s produced no pages", src.URI)
		}
		for _, p := range pages {
			images = append(images, llm.Image{Data: p.Data, MIME: p.MIME})
		}
	}
	return images, nil
}
