package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaura24/regaudit/internal/hitl"
	"github.com/kaura24/regaudit/internal/rules"
	"github.com/kaura24/regaudit/internal/schemas"
	"github.com/kaura24/regaudit/internal/types"
)

// ErrPacketUnresolved rejects a resume attempt before the reviewer has
// written a resolution.
type ErrPacketUnresolved struct {
	PacketID uuid.UUID
}

func (e *ErrPacketUnresolved) Error() string {
	return fmt.Sprintf("hitl packet %s has no resolution yet", e.PacketID)
}

// ResolvePacket applies the reviewer's one-time resolution. A corrected
// payload is schema-gated here so a malformed correction fails at submission
// time, not mid-resume.
func (o *Orchestrator) ResolvePacket(ctx context.Context, packetID uuid.UUID, res types.Resolution) (*types.HITLPacket, error) {
	switch res.Decision {
	case types.DecisionAccept, types.DecisionCorrect, types.DecisionReject:
	default:
		return nil, fmt.Errorf("unknown resolution decision %q", res.Decision)
	}
	if res.Decision == types.DecisionCorrect {
		if len(res.CorrectedPayload) == 0 {
			return nil, fmt.Errorf("decision %q requires a corrected payload", types.DecisionCorrect)
		}
		if err := schemas.ValidateName(schemas.NormalizedDoc, string(res.CorrectedPayload)); err != nil {
			return nil, fmt.Errorf("corrected payload rejected: %w", err)
		}
	}

	packet, err := o.repo.GetPacket(ctx, packetID)
	if err != nil {
		return nil, err
	}
	if err := hitl.Resolve(packet, res); err != nil {
		return nil, err
	}
	if err := o.repo.SavePacket(ctx, packet); err != nil {
		return nil, err
	}
	o.log.Info("hitl packet resolved",
		zap.String("packet_id", packet.ID.String()),
		zap.String("run_id", packet.RunID.String()),
		zap.String("decision", string(res.Decision)))
	return packet, nil
}

// ResumeRun continues a suspended run according to its resolved packet.
// Upstream stages are never re-executed: an accepted run proceeds from where
// it stopped, a corrected run re-validates the substituted document, and a
// rejected run terminates.
func (o *Orchestrator) ResumeRun(ctx context.Context, runID uuid.UUID) error {
	if err := o.locks.BeginExecution(runID); err != nil {
		return err
	}
	defer o.locks.EndExecution(runID)

	run, err := o.repo.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != types.StatusHITL {
		return &ErrRunNotExecutable{RunID: runID, Status: run.Status}
	}
	if run.HITLPacketID == nil {
		return fmt.Errorf("run %s is suspended but has no hitl packet", runID)
	}
	packet, err := o.repo.GetPacket(ctx, *run.HITLPacketID)
	if err != nil {
		return err
	}
	if !packet.Resolved() {
		return &ErrPacketUnresolved{PacketID: packet.ID}
	}

	if err := o.locks.Acquire(ctx, runID); err != nil {
		return err
	}
	defer o.locks.Release(context.WithoutCancel(ctx), runID) //nolint:errcheck

	o.resetCancel(runID)
	defer o.clearCancel(runID)

	res := packet.Resolution
	if res.Decision == types.DecisionReject {
		if err := o.recordEvent(ctx, run, types.StageEvent{
			Stage:      packet.Stage,
			Summary:    "reviewer rejected the run",
			Rationale:  res.Note,
			NextAction: types.ActionReject,
		}); err != nil {
			return err
		}
		return o.rejectRun(ctx, run, "rejected by reviewer")
	}

	run.Status = types.StatusRunning
	if err := o.saveRun(ctx, run); err != nil {
		return err
	}
	o.log.Info("run resumed",
		zap.String("run_id", run.ID.String()),
		zap.String("decision", string(res.Decision)),
		zap.String("stage", packet.Stage))

	if err := o.recordEvent(ctx, run, types.StageEvent{
		Stage:      packet.Stage,
		Summary:    fmt.Sprintf("resumed after reviewer decision %q", res.Decision),
		Rationale:  res.Note,
		NextAction: types.ActionAutoNext,
	}); err != nil {
		return err
	}

	var resumeErr error
	if run.Mode == types.ModeFast {
		resumeErr = o.resumeFast(ctx, run, packet)
	} else {
		resumeErr = o.resumeMultiAgent(ctx, run, packet)
	}
	if resumeErr != nil {
		return o.failRun(ctx, run, resumeErr)
	}
	return nil
}

// resumeMultiAgent re-enters the staged pipeline. A corrected document
// replaces the normalizer artifact and goes back through the validator; an
// accepted run skips straight to the analyst.
func (o *Orchestrator) resumeMultiAgent(ctx context.Context, run *types.Run, packet *types.HITLPacket) error {
	if packet.Resolution.Decision == types.DecisionCorrect {
		if err := o.repo.SaveRawArtifact(ctx, run.ID, types.StageNormalizer, types.ArtifactNormalizedDoc, packet.Resolution.CorrectedPayload); err != nil {
			return err
		}
		return o.runMultiAgent(ctx, run, types.StageValidator)
	}
	return o.runMultiAgent(ctx, run, types.StageAnalyst)
}

// resumeFast finishes a suspended FAST run. An accepted run completes on the
// persisted document and report; a corrected document is re-validated and
// may escalate again on fresh blockers.
func (o *Orchestrator) resumeFast(ctx context.Context, run *types.Run, packet *types.HITLPacket) error {
	run.CurrentStage = types.StageFastExtractor
	if err := o.saveRun(ctx, run); err != nil {
		return err
	}

	if packet.Resolution.Decision == types.DecisionCorrect {
		if err := o.repo.SaveRawArtifact(ctx, run.ID, types.StageFastExtractor, types.ArtifactNormalizedDoc, packet.Resolution.CorrectedPayload); err != nil {
			return err
		}
	}

	var doc types.NormalizedDoc
	if err := o.repo.GetArtifactInto(ctx, run.ID, types.StageFastExtractor, types.ArtifactNormalizedDoc, &doc); err != nil {
		return fmt.Errorf("resume: missing fast document: %w", err)
	}

	if packet.Resolution.Decision == types.DecisionCorrect {
		report := rules.Validate(&doc)
		if err := o.repo.SaveArtifact(ctx, run.ID, types.StageFastExtractor, types.ArtifactValidation, report); err != nil {
			return err
		}
		action := types.ActionAutoNext
		if report.HasBlocker() {
			action = types.ActionHITL
		}
		if err := o.recordEvent(ctx, run, types.StageEvent{
			Stage: types.StageFastExtractor,
			Summary: fmt.Sprintf("re-validated corrected document: %s (%d blockers, %d warnings)",
				report.Status, report.BlockerCount, report.WarningCount),
			Triggers:   report.Triggers,
			NextAction: action,
		}); err != nil {
			return err
		}
		if report.HasBlocker() {
			return o.escalate(ctx, run, types.StageFastExtractor, report, &doc)
		}
		return o.finishFast(ctx, run, &doc, report)
	}

	var report types.ValidationReport
	if err := o.repo.GetArtifactInto(ctx, run.ID, types.StageFastExtractor, types.ArtifactValidation, &report); err != nil {
		return fmt.Errorf("resume: missing fast validation report: %w", err)
	}
	return o.finishFast(ctx, run, &doc, &report)
}
