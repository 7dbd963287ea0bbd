package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kaura24/regaudit/internal/bus"
	"github.com/kaura24/regaudit/internal/hitl"
	"github.com/kaura24/regaudit/internal/llm"
	"github.com/kaura24/regaudit/internal/ownership"
	"github.com/kaura24/regaudit/internal/prompts"
	"github.com/kaura24/regaudit/internal/rules"
	"github.com/kaura24/regaudit/internal/schemas"
	"github.com/kaura24/regaudit/internal/types"
)

// stageOutcome tells the multi-agent loop what to do after a stage returns
// without error.
type stageOutcome int

const (
	// stageContinue advances to the next stage.
	stageContinue stageOutcome = iota
	// stageSuspended leaves the run waiting on human review.
	stageSuspended
	// stageTerminal means the stage already wrote a terminal status.
	stageTerminal
)

// multiAgentStages is the canonical MULTI_AGENT stage order.
var multiAgentStages = []string{
	types.StageGatekeeper,
	types.StageExtractor,
	types.StageNormalizer,
	types.StageValidator,
	types.StageAnalyst,
}

func stageIndex(stage string) int {
	for i, s := range multiAgentStages {
		if s == stage {
			return i
		}
	}
	return 0
}

// runMultiAgent drives the staged pipeline from fromStage onward. Resumed
// runs enter mid-pipeline; source pages are rasterized only when a
// page-consuming stage is still ahead.
func (o *Orchestrator) runMultiAgent(ctx context.Context, run *types.Run, fromStage string) error {
	start := stageIndex(fromStage)

	var images []llm.Image
	if start <= stageIndex(types.StageExtractor) {
		var err error
		images, err = o.rasterizeAll(ctx, run)
		if err != nil {
			return err
		}
	}

	for i := start; i < len(multiAgentStages); i++ {
		stage := multiAgentStages[i]
		if err := o.checkCancelled(ctx, run.ID); err != nil {
			return err
		}
		run.CurrentStage = stage
		if err := o.saveRun(ctx, run); err != nil {
			return err
		}
		o.log.Debug("stage starting",
			zap.String("run_id", run.ID.String()),
			zap.String("stage", stage))

		var (
			outcome stageOutcome
			err     error
		)
		switch stage {
		case types.StageGatekeeper:
			outcome, err = o.stageGatekeeper(ctx, run, images)
		case types.StageExtractor:
			outcome, err = o.stageExtractor(ctx, run, images)
		case types.StageNormalizer:
			outcome, err = o.stageNormalizer(ctx, run)
		case types.StageValidator:
			outcome, err = o.stageValidator(ctx, run)
		case types.StageAnalyst:
			outcome, err = o.stageAnalyst(ctx, run)
		default:
			err = fmt.Errorf("unknown stage %q", stage)
		}
		if err != nil {
			return err
		}
		if outcome != stageContinue {
			return nil
		}
	}
	return o.completeRun(ctx, run)
}

// understand calls the collaborator on the primary tier, decoding and
// schema-gating the response. A retryable failure earns exactly one retry on
// the fallback tier; a second failure surfaces as the stage error.
func (o *Orchestrator) understand(ctx context.Context, images []llm.Image, instructions, schemaName string, v any) (string, error) {
	raw, err := o.llm.Understand(ctx, images, instructions, llm.TierPrimary)
	if err == nil {
		cleaned, derr := llm.DecodeInto(raw, schemaName, v)
		if derr == nil {
			return cleaned, nil
		}
		err = derr
	}

	var collab *llm.CollaboratorError
	if !errors.As(err, &collab) || !collab.Retryable {
		return "", err
	}
	o.log.Warn("collaborator call failed, retrying on fallback tier",
		zap.String("schema", schemaName),
		zap.Error(err))

	raw, rerr := o.llm.Understand(ctx, images, instructions, llm.TierFallback)
	if rerr != nil {
		return "", rerr
	}
	return llm.DecodeInto(raw, schemaName, v)
}

// stageGatekeeper classifies the document. A non-register verdict rejects
// the run outright; nothing downstream runs on a misfiled document.
func (o *Orchestrator) stageGatekeeper(ctx context.Context, run *types.Run, images []llm.Image) (stageOutcome, error) {
	instructions := prompts.MustGet("gatekeeper.json", "instructions")

	var assessment types.Assessment
	raw, err := o.understand(ctx, images, instructions, schemas.Assessment, &assessment)
	if err != nil {
		return 0, fmt.Errorf("gatekeeper: %w", err)
	}
	if err := o.repo.SaveArtifact(ctx, run.ID, types.StageGatekeeper, types.ArtifactAssessment, &assessment); err != nil {
		return 0, err
	}

	action := types.ActionAutoNext
	if !assessment.IsRegister {
		action = types.ActionReject
	}
	if err := o.recordEvent(ctx, run, types.StageEvent{
		Stage:      types.StageGatekeeper,
		Summary:    fmt.Sprintf("classified as %q (register=%t)", assessment.DocumentType, assessment.IsRegister),
		Rationale:  assessment.Rationale,
		Confidence: &assessment.Confidence,
		RawOutput:  raw,
		NextAction: action,
	}); err != nil {
		return 0, err
	}

	if !assessment.IsRegister {
		reason := fmt.Sprintf("document is not a shareholder register (classified as %q)", assessment.DocumentType)
		if err := o.rejectRun(ctx, run, reason); err != nil {
			return 0, err
		}
		return stageTerminal, nil
	}
	return stageContinue, nil
}

// stageExtractor transcribes every row verbatim. An empty extraction is not
// an error here; the validator's minimum-record rule decides what to do
// with it.
func (o *Orchestrator) stageExtractor(ctx context.Context, run *types.Run, images []llm.Image) (stageOutcome, error) {
	instructions := prompts.MustGet("extractor.json", "instructions")

	var extraction types.Extraction
	raw, err := o.understand(ctx, images, instructions, schemas.Extraction, &extraction)
	if err != nil {
		return 0, fmt.Errorf("extractor: %w", err)
	}
	if err := o.repo.SaveArtifact(ctx, run.ID, types.StageExtractor, types.ArtifactExtraction, &extraction); err != nil {
		return 0, err
	}

	if err := o.recordEvent(ctx, run, types.StageEvent{
		Stage:      types.StageExtractor,
		Summary:    fmt.Sprintf("extracted %d rows from %d pages", len(extraction.Entries), extraction.PageCount),
		RawOutput:  raw,
		NextAction: types.ActionAutoNext,
	}); err != nil {
		return 0, err
	}
	return stageContinue, nil
}

// stageNormalizer converts the raw extraction into typed records, then
// resolves effective ratios deterministically. The collaborator never
// computes ratios itself.
func (o *Orchestrator) stageNormalizer(ctx context.Context, run *types.Run) (stageOutcome, error) {
	rawExtraction, err := o.repo.GetArtifact(ctx, run.ID, types.StageExtractor, types.ArtifactExtraction)
	if err != nil {
		return 0, fmt.Errorf("normalizer: missing extraction artifact: %w", err)
	}

	instructions := prompts.Format(prompts.MustGet("normalizer.json", "instructions"), map[string]string{
		"Extraction": string(rawExtraction),
	})

	var doc types.NormalizedDoc
	raw, err := o.understand(ctx, nil, instructions, schemas.NormalizedDoc, &doc)
	if err != nil {
		return 0, fmt.Errorf("normalizer: %w", err)
	}

	doc.Shareholders = ownership.EffectiveRatios(doc.Shareholders, doc.Properties)

	if err := o.repo.SaveArtifact(ctx, run.ID, types.StageNormalizer, types.ArtifactNormalizedDoc, &doc); err != nil {
		return 0, err
	}
	if err := o.recordEvent(ctx, run, types.StageEvent{
		Stage:      types.StageNormalizer,
		Summary:    fmt.Sprintf("normalized %d shareholder records", len(doc.Shareholders)),
		RawOutput:  raw,
		NextAction: types.ActionAutoNext,
	}); err != nil {
		return 0, err
	}
	return stageContinue, nil
}

// stageValidator runs the rule engine. Blockers suspend the run behind a
// HITL packet; warnings flow through to the analyst as caveat material.
func (o *Orchestrator) stageValidator(ctx context.Context, run *types.Run) (stageOutcome, error) {
	var doc types.NormalizedDoc
	if err := o.repo.GetArtifactInto(ctx, run.ID, types.StageNormalizer, types.ArtifactNormalizedDoc, &doc); err != nil {
		return 0, fmt.Errorf("validator: missing normalized document: %w", err)
	}

	report := rules.Validate(&doc)
	if err := o.repo.SaveArtifact(ctx, run.ID, types.StageValidator, types.ArtifactValidation, report); err != nil {
		return 0, err
	}

	action := types.ActionAutoNext
	if report.HasBlocker() {
		action = types.ActionHITL
	}
	if err := o.recordEvent(ctx, run, types.StageEvent{
		Stage: types.StageValidator,
		Summary: fmt.Sprintf("%s: %d blockers, %d warnings across %d records",
			report.Status, report.BlockerCount, report.WarningCount, report.RecordCount),
		Triggers:   report.Triggers,
		NextAction: action,
	}); err != nil {
		return 0, err
	}

	if !report.HasBlocker() {
		return stageContinue, nil
	}
	if err := o.escalate(ctx, run, types.StageValidator, report, &doc); err != nil {
		return 0, err
	}
	return stageSuspended, nil
}

// escalate suspends the run behind a new HITL packet carrying the normalized
// document as its correctable payload.
func (o *Orchestrator) escalate(ctx context.Context, run *types.Run, stage string, report *types.ValidationReport, doc *types.NormalizedDoc) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation payload: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation context: %w", err)
	}

	packet := hitl.NewPacket(run.ID, stage, report, payload, reportJSON)
	if err := o.repo.SavePacket(ctx, packet); err != nil {
		return err
	}

	run.HITLPacketID = &packet.ID
	run.Status = types.StatusHITL
	if err := o.saveRun(ctx, run); err != nil {
		return err
	}

	o.log.Info("run suspended for human review",
		zap.String("run_id", run.ID.String()),
		zap.String("packet_id", packet.ID.String()),
		zap.Int("blockers", report.BlockerCount))
	o.bus.Publish(bus.Event{Type: bus.EventHITLRequired, RunID: run.ID, Payload: packet})
	return nil
}

// stageAnalyst synthesizes the final answer set. Owner selection is
// deterministic; the collaborator contributes only the narrative and
// caveats.
func (o *Orchestrator) stageAnalyst(ctx context.Context, run *types.Run) (stageOutcome, error) {
	var doc types.NormalizedDoc
	if err := o.repo.GetArtifactInto(ctx, run.ID, types.StageNormalizer, types.ArtifactNormalizedDoc, &doc); err != nil {
		return 0, fmt.Errorf("analyst: missing normalized document: %w", err)
	}
	var report types.ValidationReport
	if err := o.repo.GetArtifactInto(ctx, run.ID, types.StageValidator, types.ArtifactValidation, &report); err != nil {
		return 0, fmt.Errorf("analyst: missing validation report: %w", err)
	}

	answer, err := o.synthesizeAnswer(ctx, run, &doc, &report)
	if err != nil {
		return 0, err
	}
	if err := o.repo.SaveArtifact(ctx, run.ID, types.StageAnalyst, types.ArtifactAnswerSet, answer); err != nil {
		return 0, err
	}

	if err := o.recordEvent(ctx, run, types.StageEvent{
		Stage:      types.StageAnalyst,
		Summary:    fmt.Sprintf("answer set synthesized: %d beneficial owners, verdict %s", len(answer.BeneficialOwners), answer.Verdict),
		NextAction: types.ActionAutoNext,
	}); err != nil {
		return 0, err
	}
	o.bus.Publish(bus.Event{Type: bus.EventFinalAnswer, RunID: run.ID, Payload: answer})
	return stageContinue, nil
}

// analysis is the collaborator's narrative contribution to the answer set.
type analysis struct {
	Narrative  string   `json:"narrative"`
	Caveats    []string `json:"caveats"`
	Confidence float64  `json:"confidence"`
}

// synthesizeAnswer builds the answer set: deterministic owner tiering and
// verdict, plus a collaborator-written narrative.
func (o *Orchestrator) synthesizeAnswer(ctx context.Context, run *types.Run, doc *types.NormalizedDoc, report *types.ValidationReport) (*types.AnswerSet, error) {
	principal, beneficial := ownership.SelectOwners(doc.Shareholders)

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("analyst: failed to marshal document: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("analyst: failed to marshal report: %w", err)
	}
	instructions := prompts.Format(prompts.MustGet("analyst.json", "instructions"), map[string]string{
		"Document": string(docJSON),
		"Report":   string(reportJSON),
	})

	var a analysis
	if _, err := o.understand(ctx, nil, instructions, schemas.Analysis, &a); err != nil {
		return nil, fmt.Errorf("analyst: %w", err)
	}

	return &types.AnswerSet{
		CompanyName:        doc.Properties.CompanyName,
		RegistrationNumber: doc.Properties.RegistrationNumber,
		DocumentDate:       doc.Properties.DocumentDate,
		PrincipalOwner:     principal,
		BeneficialOwners:   beneficial,
		Verdict:            o.verdictFor(ctx, run, report),
		Caveats:            a.Caveats,
		Narrative:          a.Narrative,
		QualityScore:       report.QualityScore,
	}, nil
}

// verdictFor grades data integrity: REVIEWED when a human resolved an
// escalation on this run, CAVEATED when warnings remain, CLEAN otherwise.
func (o *Orchestrator) verdictFor(ctx context.Context, run *types.Run, report *types.ValidationReport) types.IntegrityVerdict {
	if run.HITLPacketID != nil {
		if packet, err := o.repo.GetPacket(ctx, *run.HITLPacketID); err == nil && packet.Resolved() {
			return types.VerdictReviewed
		}
	}
	if report.WarningCount > 0 {
		return types.VerdictCaveated
	}
	return types.VerdictClean
}
