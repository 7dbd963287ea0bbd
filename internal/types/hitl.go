package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReasonCode is the closed set of machine-checkable escalation reasons.
type ReasonCode string

const (
	ReasonSumMismatch        ReasonCode = "SUM_MISMATCH"
	ReasonRatioInconsistency ReasonCode = "RATIO_INCONSISTENCY"
	ReasonMissingMetadata    ReasonCode = "MISSING_METADATA"
	ReasonStaleDocument      ReasonCode = "STALE_DOCUMENT"
	ReasonDuplicateRecord    ReasonCode = "DUPLICATE_RECORD"
	ReasonIdentifierMismatch ReasonCode = "IDENTIFIER_MISMATCH"
	ReasonDataQuality        ReasonCode = "DATA_QUALITY"
	ReasonManualReview       ReasonCode = "MANUAL_REVIEW"
)

// DefaultRequiredAction is used when no blocker carries its own suggestion.
const DefaultRequiredAction = "manual_correction"

// ResolutionDecision records how a reviewer closed a packet.
type ResolutionDecision string

const (
	DecisionAccept  ResolutionDecision = "accept"  // findings acknowledged, continue as-is
	DecisionCorrect ResolutionDecision = "correct" // corrected payload substitutes an artifact
	DecisionReject  ResolutionDecision = "reject"  // run should not continue
)

// Resolution is the single permitted write to a HITL packet.
type Resolution struct {
	Decision         ResolutionDecision `json:"decision"`
	CorrectedPayload json.RawMessage    `json:"corrected_payload,omitempty"`
	ResolvedBy       string             `json:"resolved_by,omitempty"`
	Note             string             `json:"note,omitempty"`
	ResolvedAt       time.Time          `json:"resolved_at"`
}

// HITLPacket is one escalation handed to a human reviewer. It is immutable
// after creation except for the one-time Resolution write.
type HITLPacket struct {
	ID             uuid.UUID       `json:"id"`
	RunID          uuid.UUID       `json:"run_id"`
	Stage          string          `json:"stage"`
	ReasonCodes    []ReasonCode    `json:"reason_codes"`
	RequiredAction string          `json:"required_action"`
	Triggers       []RuleTrigger   `json:"triggers"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Context        json.RawMessage `json:"context,omitempty"`
	Resolution     *Resolution     `json:"resolution,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Resolved reports whether the packet has already received its resolution.
func (p *HITLPacket) Resolved() bool {
	return p.Resolution != nil
}
