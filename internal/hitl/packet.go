// Package hitl builds and resolves human-in-the-loop escalation packets.
package hitl

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kaura24/regaudit/internal/rules"
	"github.com/kaura24/regaudit/internal/types"
)

// ErrAlreadyResolved rejects a second resolution attempt; a packet accepts
// exactly one resolution write.
var ErrAlreadyResolved = errors.New("hitl: packet already resolved")

// reasonByRule maps each escalating rule deterministically onto the closed
// reason-code set handed to reviewers.
var reasonByRule = map[string]types.ReasonCode{
	rules.RuleMinRecords:            types.ReasonDataQuality,
	rules.RuleRequiredMetadata:      types.ReasonMissingMetadata,
	rules.RuleStaleDocument:         types.ReasonStaleDocument,
	rules.RuleDateFormat:            types.ReasonMissingMetadata,
	rules.RuleNonPositiveValue:      types.ReasonDataQuality,
	rules.RuleTotalMismatch:         types.ReasonSumMismatch,
	rules.RuleRatioSumMismatch:      types.ReasonRatioInconsistency,
	rules.RuleRatioAllZero:          types.ReasonRatioInconsistency,
	rules.RuleCrossMetricMismatch:   types.ReasonRatioInconsistency,
	rules.RuleIdentifierCardinality: types.ReasonIdentifierMismatch,
	rules.RuleIdentifierFormat:      types.ReasonIdentifierMismatch,
	rules.RuleDuplicateIdentity:     types.ReasonDuplicateRecord,
	rules.RuleNameCorrectionAudit:   types.ReasonManualReview,
}

// NewPacket builds the escalation packet for a blocked run. Reason codes are
// derived from the BLOCKER triggers in report order, deduplicated; the
// required action is the first blocker's suggestion, defaulting to manual
// correction.
func NewPacket(runID uuid.UUID, stage string, report *types.ValidationReport, payload, context json.RawMessage) *types.HITLPacket {
	blockers := report.Blockers()

	var codes []types.ReasonCode
	seen := make(map[types.ReasonCode]struct{})
	for _, t := range blockers {
		code, ok := reasonByRule[t.RuleID]
		if !ok {
			code = types.ReasonManualReview
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		codes = []types.ReasonCode{types.ReasonManualReview}
	}

	action := types.DefaultRequiredAction
	if len(blockers) > 0 && blockers[0].Suggestion != "" {
		action = blockers[0].Suggestion
	}

	return &types.HITLPacket{
		ID:             uuid.New(),
		RunID:          runID,
		Stage:          stage,
		ReasonCodes:    codes,
		RequiredAction: action,
		Triggers:       report.Triggers,
		Payload:        payload,
		Context:        context,
		CreatedAt:      time.Now().UTC(),
	}
}

// Resolve applies the one-time resolution write. A second attempt fails with
// ErrAlreadyResolved regardless of content.
func Resolve(p *types.HITLPacket, res types.Resolution) error {
	if p.Resolved() {
		return ErrAlreadyResolved
	}
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = time.Now().UTC()
	}
	p.Resolution = &res
	return nil
}
