package types

// Severity grades a validation finding. Only BLOCKER diverts a run off the
// automatic path.
type Severity string

const (
	SeverityBlocker Severity = "BLOCKER"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// RuleTrigger is one immutable finding emitted by the rule engine.
type RuleTrigger struct {
	RuleID     string             `json:"rule_id"`
	Severity   Severity           `json:"severity"`
	Message    string             `json:"message"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Suggestion string             `json:"suggestion,omitempty"`
}

// ReportStatus is the overall validation outcome. It is a pure function of
// the trigger set: any BLOCKER yields NEED_HITL. REJECT is reserved for
// upstream document-classification failure.
type ReportStatus string

const (
	ReportPass     ReportStatus = "PASS"
	ReportNeedHITL ReportStatus = "NEED_HITL"
	ReportReject   ReportStatus = "REJECT"
)

// ValidationReport is the complete defect set for one normalized document.
type ValidationReport struct {
	Status             ReportStatus  `json:"status"`
	Triggers           []RuleTrigger `json:"triggers"`
	RecordCount        int           `json:"record_count"`
	RatioCoverage      float64       `json:"ratio_coverage"`
	IdentifierCoverage float64       `json:"identifier_coverage"`
	RatioSum           *float64      `json:"ratio_sum,omitempty"`
	BlockerCount       int           `json:"blocker_count"`
	WarningCount       int           `json:"warning_count"`
	QualityScore       float64       `json:"quality_score"`
}

// Blockers returns only the BLOCKER-severity triggers, in report order.
func (r *ValidationReport) Blockers() []RuleTrigger {
	var out []RuleTrigger
	for _, t := range r.Triggers {
		if t.Severity == SeverityBlocker {
			out = append(out, t)
		}
	}
	return out
}

// HasBlocker reports whether any BLOCKER trigger is present.
func (r *ValidationReport) HasBlocker() bool {
	return r.BlockerCount > 0
}
