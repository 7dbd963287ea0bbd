package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kaura24/regaudit/internal/bus"
	"github.com/kaura24/regaudit/internal/llm"
	"github.com/kaura24/regaudit/internal/ownership"
	"github.com/kaura24/regaudit/internal/prompts"
	"github.com/kaura24/regaudit/internal/rules"
	"github.com/kaura24/regaudit/internal/schemas"
	"github.com/kaura24/regaudit/internal/types"
)

// fastMaxAttempts bounds the FAST-mode retry loop. One retry, then the run
// proceeds with whatever the last attempt produced.
const fastMaxAttempts = 2

// fastResult is the single-pass classification-plus-extraction response. The
// embedded document is re-validated against the normalized-document schema
// before use.
type fastResult struct {
	IsRegister   bool            `json:"is_register"`
	DocumentType string          `json:"document_type"`
	Document     json.RawMessage `json:"document"`
}

// runFast executes the single-stage pipeline: classify and normalize in one
// collaborator call, validate deterministically, retry once on ratio
// inconsistency, then complete or escalate. No second collaborator call is
// made for the answer set.
func (o *Orchestrator) runFast(ctx context.Context, run *types.Run) error {
	run.CurrentStage = types.StageFastExtractor
	if err := o.saveRun(ctx, run); err != nil {
		return err
	}

	images, err := o.rasterizeAll(ctx, run)
	if err != nil {
		return err
	}
	instructions := prompts.MustGet("fast.json", "instructions")

	var (
		doc    *types.NormalizedDoc
		report *types.ValidationReport
	)
	for attempt := 1; attempt <= fastMaxAttempts; attempt++ {
		if err := o.checkCancelled(ctx, run.ID); err != nil {
			return err
		}

		raw, err := o.llm.Understand(ctx, images, instructions, llm.TierFast)
		var result fastResult
		if err == nil {
			_, err = llm.DecodeInto(raw, schemas.FastResult, &result)
		}
		if err != nil {
			var collab *llm.CollaboratorError
			if errors.As(err, &collab) && collab.Retryable && attempt < fastMaxAttempts {
				o.log.Warn("fast attempt failed, retrying",
					zap.String("run_id", run.ID.String()),
					zap.Int("attempt", attempt),
					zap.Error(err))
				if err := o.recordEvent(ctx, run, types.StageEvent{
					Stage:      types.StageFastExtractor,
					Summary:    fmt.Sprintf("attempt %d failed: %v", attempt, err),
					NextAction: types.ActionAutoRetry,
				}); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("fast extractor: %w", err)
		}

		if !result.IsRegister {
			// A non-register verdict is never retried; more attempts do not
			// change what the pages are.
			if err := o.recordEvent(ctx, run, types.StageEvent{
				Stage:      types.StageFastExtractor,
				Summary:    fmt.Sprintf("classified as %q (register=false)", result.DocumentType),
				RawOutput:  raw,
				NextAction: types.ActionReject,
			}); err != nil {
				return err
			}
			reason := fmt.Sprintf("document is not a shareholder register (classified as %q)", result.DocumentType)
			return o.rejectRun(ctx, run, reason)
		}

		d, err := decodeFastDocument(result.Document)
		if err != nil {
			var collab *llm.CollaboratorError
			if errors.As(err, &collab) && attempt < fastMaxAttempts {
				if err := o.recordEvent(ctx, run, types.StageEvent{
					Stage:      types.StageFastExtractor,
					Summary:    fmt.Sprintf("attempt %d produced malformed document: %v", attempt, err),
					NextAction: types.ActionAutoRetry,
				}); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("fast extractor: %w", err)
		}

		d.Shareholders = ownership.EffectiveRatios(d.Shareholders, d.Properties)
		r := rules.Validate(d)

		// Each attempt overwrites the previous one; only the last attempt's
		// artifacts are retained.
		if err := o.repo.SaveArtifact(ctx, run.ID, types.StageFastExtractor, types.ArtifactNormalizedDoc, d); err != nil {
			return err
		}
		if err := o.repo.SaveArtifact(ctx, run.ID, types.StageFastExtractor, types.ArtifactValidation, r); err != nil {
			return err
		}

		retrying := attempt < fastMaxAttempts && hasRatioRetryTrigger(r)
		action := types.ActionAutoNext
		switch {
		case retrying:
			action = types.ActionAutoRetry
		case r.HasBlocker():
			action = types.ActionHITL
		}
		if err := o.recordEvent(ctx, run, types.StageEvent{
			Stage: types.StageFastExtractor,
			Summary: fmt.Sprintf("attempt %d: %d records, %s (%d blockers, %d warnings)",
				attempt, r.RecordCount, r.Status, r.BlockerCount, r.WarningCount),
			Triggers:   r.Triggers,
			RawOutput:  raw,
			NextAction: action,
		}); err != nil {
			return err
		}

		doc, report = d, r
		if !retrying {
			break
		}
	}

	if report.HasBlocker() {
		if err := o.escalate(ctx, run, types.StageFastExtractor, report, doc); err != nil {
			return err
		}
		return nil
	}
	return o.finishFast(ctx, run, doc, report)
}

// decodeFastDocument schema-gates and decodes the embedded normalized
// document. The outer fast-result schema treats it as an opaque object, so
// the normalized-document contract is enforced here.
func decodeFastDocument(raw json.RawMessage) (*types.NormalizedDoc, error) {
	if len(raw) == 0 {
		return nil, &llm.CollaboratorError{Message: "fast result has no document", Retryable: true}
	}
	if err := schemas.ValidateName(schemas.NormalizedDoc, string(raw)); err != nil {
		return nil, &llm.CollaboratorError{
			Message:   "embedded document violates normalized_doc schema",
			Cause:     err,
			Retryable: true,
		}
	}
	var doc types.NormalizedDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &llm.CollaboratorError{Message: "failed to decode embedded document", Cause: err, Retryable: true}
	}
	return &doc, nil
}

// hasRatioRetryTrigger reports whether the attempt tripped a ratio
// inconsistency, the one defect class where a second read of the pages
// plausibly produces a cleaner result.
func hasRatioRetryTrigger(r *types.ValidationReport) bool {
	for _, t := range r.Triggers {
		if t.RuleID == rules.RuleRatioSumMismatch || t.RuleID == rules.RuleRatioAllZero {
			return true
		}
	}
	return false
}

// finishFast synthesizes the answer set without a further collaborator
// call: owner tiering and verdict are deterministic, and warnings become
// caveats verbatim.
func (o *Orchestrator) finishFast(ctx context.Context, run *types.Run, doc *types.NormalizedDoc, report *types.ValidationReport) error {
	principal, beneficial := ownership.SelectOwners(doc.Shareholders)

	var caveats []string
	for _, t := range report.Triggers {
		if t.Severity == types.SeverityWarning {
			caveats = append(caveats, t.Message)
		}
	}

	answer := &types.AnswerSet{
		CompanyName:        doc.Properties.CompanyName,
		RegistrationNumber: doc.Properties.RegistrationNumber,
		DocumentDate:       doc.Properties.DocumentDate,
		PrincipalOwner:     principal,
		BeneficialOwners:   beneficial,
		Verdict:            o.verdictFor(ctx, run, report),
		Caveats:            caveats,
		QualityScore:       report.QualityScore,
	}
	if err := o.repo.SaveArtifact(ctx, run.ID, types.StageFastExtractor, types.ArtifactAnswerSet, answer); err != nil {
		return err
	}

	if err := o.recordEvent(ctx, run, types.StageEvent{
		Stage:      types.StageFastExtractor,
		Summary:    fmt.Sprintf("answer set synthesized: %d beneficial owners, verdict %s", len(answer.BeneficialOwners), answer.Verdict),
		NextAction: types.ActionAutoNext,
	}); err != nil {
		return err
	}
	o.bus.Publish(bus.Event{Type: bus.EventFinalAnswer, RunID: run.ID, Payload: answer})
	return o.completeRun(ctx, run)
}
