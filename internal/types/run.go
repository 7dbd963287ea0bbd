// Package types defines the shared domain model for the register audit pipeline.
package types

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusHITL      RunStatus = "hitl"
	StatusRejected  RunStatus = "rejected"
	StatusError     RunStatus = "error"
	StatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the status allows no further automatic processing.
// StatusHITL is suspended-but-resumable, not terminal.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusError, StatusCancelled:
		return true
	}
	return false
}

// ExecutionMode selects the pipeline shape for a run.
type ExecutionMode string

const (
	// ModeFast runs a single combined extraction stage with bounded retry.
	ModeFast ExecutionMode = "FAST"
	// ModeMultiAgent runs the full gatekeeper -> extractor -> normalizer ->
	// validator -> analyst pipeline.
	ModeMultiAgent ExecutionMode = "MULTI_AGENT"
)

// Stage names, in MULTI_AGENT execution order.
const (
	StageGatekeeper    = "gatekeeper"
	StageExtractor     = "extractor"
	StageNormalizer    = "normalizer"
	StageValidator     = "validator"
	StageAnalyst       = "analyst"
	StageFastExtractor = "fast_extractor"
)

// SourceRef points at one source document to be rasterized.
type SourceRef struct {
	URI  string `json:"uri"`
	Kind string `json:"kind,omitempty"` // "pdf", "image_dir", "store_prefix"
}

// Run is the persisted record of one pipeline execution. It is created once
// on submission and mutated only by the orchestrator at stage transitions.
type Run struct {
	ID           uuid.UUID     `json:"id"`
	Status       RunStatus     `json:"status"`
	Mode         ExecutionMode `json:"mode"`
	Sources      []SourceRef   `json:"sources"`
	CurrentStage string        `json:"current_stage,omitempty"`
	Error        string        `json:"error,omitempty"`
	HITLPacketID *uuid.UUID    `json:"hitl_packet_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// NextAction is the orchestrator decision recorded on a stage event.
type NextAction string

const (
	ActionAutoNext  NextAction = "AUTO_NEXT"
	ActionAutoRetry NextAction = "AUTO_RETRY"
	ActionHITL      NextAction = "HITL"
	ActionReject    NextAction = "REJECT"
)

// StageEvent is one append-only audit trail entry. Events are immutable and
// strictly timestamp-ordered within a run.
type StageEvent struct {
	Stage      string        `json:"stage"`
	Summary    string        `json:"summary"`
	Rationale  string        `json:"rationale,omitempty"`
	Confidence *float64      `json:"confidence,omitempty"`
	RawOutput  string        `json:"raw_output,omitempty"`
	Triggers   []RuleTrigger `json:"triggers,omitempty"`
	NextAction NextAction    `json:"next_action"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ArtifactKind identifies the typed payload persisted per stage.
type ArtifactKind string

const (
	ArtifactAssessment    ArtifactKind = "assessment"
	ArtifactExtraction    ArtifactKind = "extraction"
	ArtifactNormalizedDoc ArtifactKind = "normalized_doc"
	ArtifactValidation    ArtifactKind = "validation_report"
	ArtifactAnswerSet     ArtifactKind = "answer_set"
)
