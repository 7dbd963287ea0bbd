// Package rules implements the deterministic validation engine. Validate is
// a pure function of the normalized document: no I/O, no collaborator calls,
// and no short-circuiting, so a single pass yields the complete defect set.
package rules

import (
	"time"

	"github.com/kaura24/regaudit/internal/types"
)

// Rule identifiers. HITL reason-code mapping keys off these.
const (
	RuleMinRecords            = "min_records"
	RuleRequiredMetadata      = "required_metadata"
	RuleStaleDocument         = "stale_document"
	RuleDateFormat            = "date_format"
	RuleNonPositiveValue      = "non_positive_value"
	RuleTotalMismatch         = "total_mismatch"
	RuleRatioSumMismatch      = "ratio_sum_mismatch"
	RuleRatioAllZero          = "ratio_all_zero"
	RuleCrossMetricMismatch   = "cross_metric_mismatch"
	RuleIdentifierCardinality = "identifier_cardinality"
	RuleIdentifierFormat      = "identifier_format"
	RuleDuplicateName         = "duplicate_name"
	RuleDuplicateIdentity     = "duplicate_identity"
	RuleNameCorrectionAudit   = "name_correction_audit"
	RuleLowConfidence         = "low_confidence"
)

// Tolerances and windows.
const (
	maxDocumentAgeDays   = 365
	totalTolerancePct    = 1.0 // relative, percent
	ratioSumLow          = 99.5
	ratioSumHigh         = 100.5
	ratioCoverageFloor   = 0.8
	crossMetricTolerance = 1.0 // percentage points
	lowConfidenceShare   = 0.3
	lowConfidenceCutoff  = 0.5
)

// Validate runs every check against the document and derives the report
// status: any BLOCKER yields NEED_HITL, otherwise PASS. REJECT is reserved
// for upstream document classification and is never produced here.
func Validate(doc *types.NormalizedDoc) *types.ValidationReport {
	return ValidateAt(doc, time.Now())
}

// ValidateAt is Validate with an explicit clock for the staleness check.
func ValidateAt(doc *types.NormalizedDoc, now time.Time) *types.ValidationReport {
	var triggers []types.RuleTrigger

	triggers = append(triggers, checkMinRecords(doc)...)
	triggers = append(triggers, checkRequiredMetadata(doc)...)
	triggers = append(triggers, checkDocumentDate(doc, now)...)
	triggers = append(triggers, checkNonPositiveValues(doc)...)
	triggers = append(triggers, checkDeclaredTotals(doc)...)
	triggers = append(triggers, checkRatioSum(doc)...)
	triggers = append(triggers, checkCrossMetric(doc)...)
	triggers = append(triggers, checkIdentifierCardinality(doc)...)
	triggers = append(triggers, checkIdentifierFormat(doc)...)
	triggers = append(triggers, checkDuplicates(doc)...)
	triggers = append(triggers, checkNameAudit(doc)...)
	triggers = append(triggers, checkConfidenceVolume(doc)...)

	report := &types.ValidationReport{
		Triggers:    triggers,
		RecordCount: len(doc.Shareholders),
	}
	for _, t := range triggers {
		switch t.Severity {
		case types.SeverityBlocker:
			report.BlockerCount++
		case types.SeverityWarning:
			report.WarningCount++
		}
	}

	report.RatioCoverage = ratioCoverage(doc)
	report.IdentifierCoverage = identifierCoverage(doc)
	if sum, covered := ratioSum(doc); covered > 0 {
		report.RatioSum = &sum
	}
	report.QualityScore = qualityScore(report)

	if report.BlockerCount > 0 {
		report.Status = types.ReportNeedHITL
	} else {
		report.Status = types.ReportPass
	}
	return report
}

// qualityScore is 40% identifier coverage + 40% ratio coverage + 20%
// blocker-free. Reported for triage only; it never affects the status.
func qualityScore(r *types.ValidationReport) float64 {
	score := 40*r.IdentifierCoverage + 40*r.RatioCoverage
	if r.BlockerCount == 0 {
		score += 20
	}
	return score
}

func ratioCoverage(doc *types.NormalizedDoc) float64 {
	if len(doc.Shareholders) == 0 {
		return 0
	}
	n := 0
	for _, s := range doc.Shareholders {
		if s.Ratio != nil {
			n++
		}
	}
	return float64(n) / float64(len(doc.Shareholders))
}

func identifierCoverage(doc *types.NormalizedDoc) float64 {
	if len(doc.Shareholders) == 0 {
		return 0
	}
	n := 0
	for _, s := range doc.Shareholders {
		if s.Identifier != "" {
			n++
		}
	}
	return float64(n) / float64(len(doc.Shareholders))
}

func ratioSum(doc *types.NormalizedDoc) (sum float64, covered int) {
	for _, s := range doc.Shareholders {
		if s.Ratio != nil {
			sum += *s.Ratio
			covered++
		}
	}
	return sum, covered
}
