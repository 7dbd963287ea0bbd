package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaura24/regaudit/internal/types"
)

func f(v float64) *float64 { return &v }

// now is a fixed clock so staleness assertions are reproducible.
var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

// cleanDoc returns a register that passes every check.
func cleanDoc() *types.NormalizedDoc {
	return &types.NormalizedDoc{
		Properties: types.DocumentProperties{
			CompanyName:    "Hanbit Industries Co.",
			TotalShares:    f(10000),
			OwnershipBasis: types.BasisShares,
			DocumentDate:   "2026-03-01",
		},
		Shareholders: []types.NormalizedShareholder{
			{
				Name: "Kim Minjun", EntityType: types.EntityIndividual,
				Identifier: "900101-1234567", IdentifierType: types.IdentResidentReg,
				Shares: f(6000), Ratio: f(60), Confidence: 0.95,
			},
			{
				Name: "Daehan Holdings", EntityType: types.EntityCorporate,
				Identifier: "110111-2345678", IdentifierType: types.IdentCorporateReg,
				Shares: f(4000), Ratio: f(40), Confidence: 0.9,
			},
		},
	}
}

func findTrigger(report *types.ValidationReport, ruleID string) *types.RuleTrigger {
	for i := range report.Triggers {
		if report.Triggers[i].RuleID == ruleID {
			return &report.Triggers[i]
		}
	}
	return nil
}

func TestValidateCleanDocumentPasses(t *testing.T) {
	report := ValidateAt(cleanDoc(), now)

	assert.Equal(t, types.ReportPass, report.Status)
	assert.Empty(t, report.Triggers)
	assert.Equal(t, 2, report.RecordCount)
	assert.InDelta(t, 1.0, report.RatioCoverage, 1e-9)
	assert.InDelta(t, 1.0, report.IdentifierCoverage, 1e-9)
	require.NotNil(t, report.RatioSum)
	assert.InDelta(t, 100.0, *report.RatioSum, 1e-9)
	// Full coverage on both axes plus no blockers.
	assert.InDelta(t, 100.0, report.QualityScore, 1e-9)
}

func TestValidateEmptyRegister(t *testing.T) {
	doc := cleanDoc()
	doc.Shareholders = nil

	report := ValidateAt(doc, now)

	assert.Equal(t, types.ReportNeedHITL, report.Status)
	require.NotNil(t, findTrigger(report, RuleMinRecords))
	assert.Equal(t, 0, report.RecordCount)
	assert.Zero(t, report.QualityScore)
}

func TestValidateMissingMetadata(t *testing.T) {
	doc := cleanDoc()
	doc.Properties.CompanyName = ""
	doc.Properties.DocumentDate = ""

	report := ValidateAt(doc, now)

	assert.Equal(t, types.ReportNeedHITL, report.Status)
	assert.Equal(t, 2, report.BlockerCount)
	trigger := findTrigger(report, RuleRequiredMetadata)
	require.NotNil(t, trigger)
}

func TestValidateDateChecks(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		wantRule string
	}{
		{name: "year-month only", date: "2026-03", wantRule: RuleDateFormat},
		{name: "free text", date: "March 2026", wantRule: RuleDateFormat},
		{name: "impossible date", date: "2026-02-30", wantRule: RuleDateFormat},
		{name: "400 days old", date: "2025-05-12", wantRule: RuleStaleDocument},
		{name: "300 days old", date: "2025-08-19", wantRule: ""},
		{name: "current", date: "2026-06-01", wantRule: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := cleanDoc()
			doc.Properties.DocumentDate = tt.date
			report := ValidateAt(doc, now)

			if tt.wantRule == "" {
				assert.Nil(t, findTrigger(report, RuleDateFormat))
				assert.Nil(t, findTrigger(report, RuleStaleDocument))
				return
			}
			trigger := findTrigger(report, tt.wantRule)
			require.NotNil(t, trigger, "expected %s", tt.wantRule)
			assert.Equal(t, types.SeverityBlocker, trigger.Severity)
			if tt.wantRule == RuleStaleDocument {
				assert.Greater(t, trigger.Metrics["days_diff"], float64(maxDocumentAgeDays))
			}
		})
	}
}

func TestValidateTotalReconciliation(t *testing.T) {
	tests := []struct {
		name      string
		declared  float64
		shares    [2]float64
		wantFired bool
	}{
		// 9500 vs 10000 is a 5% deviation.
		{name: "5 percent short", declared: 10000, shares: [2]float64{6000, 3500}, wantFired: true},
		// 10050 vs 10000 is 0.5%, inside the 1% tolerance.
		{name: "within tolerance", declared: 10000, shares: [2]float64{6050, 4000}, wantFired: false},
		{name: "exact", declared: 10000, shares: [2]float64{6000, 4000}, wantFired: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := cleanDoc()
			doc.Properties.TotalShares = f(tt.declared)
			doc.Shareholders[0].Shares = f(tt.shares[0])
			doc.Shareholders[1].Shares = f(tt.shares[1])
			// Keep declared ratios out of the way of the cross-metric check.
			doc.Shareholders[0].Ratio = nil
			doc.Shareholders[1].Ratio = nil

			report := ValidateAt(doc, now)
			trigger := findTrigger(report, RuleTotalMismatch)
			if tt.wantFired {
				require.NotNil(t, trigger)
				assert.Greater(t, trigger.Metrics["diff_pct"], totalTolerancePct)
			} else {
				assert.Nil(t, trigger)
			}
		})
	}
}

func TestValidateRatioSum(t *testing.T) {
	tests := []struct {
		name      string
		ratios    [2]float64
		wantFired bool
	}{
		{name: "rounding drift passes", ratios: [2]float64{59.9, 40.0}, wantFired: false},
		{name: "gross overshoot blocks", ratios: [2]float64{80, 40}, wantFired: true},
		{name: "gross undershoot blocks", ratios: [2]float64{30, 30}, wantFired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := cleanDoc()
			doc.Shareholders[0].Ratio = f(tt.ratios[0])
			doc.Shareholders[1].Ratio = f(tt.ratios[1])
			// Drop shares so only the ratio-sum check is in play.
			doc.Properties.TotalShares = nil
			doc.Shareholders[0].Shares = nil
			doc.Shareholders[1].Shares = nil

			report := ValidateAt(doc, now)
			trigger := findTrigger(report, RuleRatioSumMismatch)
			if tt.wantFired {
				require.NotNil(t, trigger)
			} else {
				assert.Nil(t, trigger)
			}
		})
	}
}

func TestValidateRatioSumLowCoverageSilent(t *testing.T) {
	// Below 80% coverage the sum is meaningless; no finding either way.
	doc := cleanDoc()
	doc.Properties.TotalShares = nil
	doc.Shareholders = []types.NormalizedShareholder{
		{Name: "A", Identifier: "1234567890", IdentifierType: types.IdentBusinessReg, Ratio: f(10), Confidence: 0.9},
		{Name: "B", Identifier: "2345678901", IdentifierType: types.IdentBusinessReg, Confidence: 0.9},
		{Name: "C", Identifier: "3456789012", IdentifierType: types.IdentBusinessReg, Confidence: 0.9},
	}

	report := ValidateAt(doc, now)
	assert.Nil(t, findTrigger(report, RuleRatioSumMismatch))
}

func TestValidateRatioAllZero(t *testing.T) {
	doc := cleanDoc()
	doc.Properties.TotalShares = nil
	doc.Shareholders[0].Shares = nil
	doc.Shareholders[1].Shares = nil
	doc.Shareholders[0].Ratio = f(0)
	doc.Shareholders[1].Ratio = f(0)

	report := ValidateAt(doc, now)

	trigger := findTrigger(report, RuleRatioAllZero)
	require.NotNil(t, trigger)
	assert.Equal(t, types.SeverityBlocker, trigger.Severity)
	assert.Nil(t, findTrigger(report, RuleRatioSumMismatch))
}

func TestValidateCrossMetricMismatch(t *testing.T) {
	doc := cleanDoc()
	// Declared 60% but shares say 30%.
	doc.Shareholders[0].Shares = f(3000)
	doc.Shareholders[1].Shares = f(7000)
	doc.Shareholders[1].Ratio = f(70)

	report := ValidateAt(doc, now)

	trigger := findTrigger(report, RuleCrossMetricMismatch)
	require.NotNil(t, trigger)
	assert.Greater(t, trigger.Metrics["diff"], crossMetricTolerance)
}

func TestValidateIdentifierCardinality(t *testing.T) {
	// Three names, one record without an identifier: 3 names vs 2 ids.
	doc := cleanDoc()
	doc.Shareholders = append(doc.Shareholders, types.NormalizedShareholder{
		Name: "Lee Seoyeon", EntityType: types.EntityIndividual,
		Ratio: f(0), Confidence: 0.9,
	})
	doc.Shareholders[0].Ratio = f(60)
	doc.Shareholders[1].Ratio = f(40)

	report := ValidateAt(doc, now)

	trigger := findTrigger(report, RuleIdentifierCardinality)
	require.NotNil(t, trigger)
	assert.Equal(t, float64(3), trigger.Metrics["distinct_names"])
	assert.Equal(t, float64(2), trigger.Metrics["distinct_identifiers"])
	assert.Equal(t, float64(1), trigger.Metrics["missing_identifiers"])
}

func TestValidateIdentifierFormat(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		identType  types.IdentifierType
		wantFired  bool
	}{
		{name: "business reg 10 digits", identifier: "123-45-67890", identType: types.IdentBusinessReg, wantFired: false},
		{name: "business reg 9 digits", identifier: "123-45-6789", identType: types.IdentBusinessReg, wantFired: true},
		{name: "resident reg 13 digits", identifier: "900101-1234567", identType: types.IdentResidentReg, wantFired: false},
		{name: "resident reg short", identifier: "900101-123", identType: types.IdentResidentReg, wantFired: true},
		{name: "birth date valid", identifier: "1990-01-01", identType: types.IdentBirthDate, wantFired: false},
		{name: "birth date partial", identifier: "1990-01", identType: types.IdentBirthDate, wantFired: true},
		{name: "other is unchecked", identifier: "passport-X123", identType: types.IdentOther, wantFired: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := cleanDoc()
			doc.Shareholders[0].Identifier = tt.identifier
			doc.Shareholders[0].IdentifierType = tt.identType

			report := ValidateAt(doc, now)
			trigger := findTrigger(report, RuleIdentifierFormat)
			if tt.wantFired {
				require.NotNil(t, trigger)
			} else {
				assert.Nil(t, trigger)
			}
		})
	}
}

func TestValidateDuplicateTiers(t *testing.T) {
	doc := cleanDoc()
	// Same name, different identifiers: warning only.
	doc.Shareholders = []types.NormalizedShareholder{
		{Name: "Kim Minjun", Identifier: "900101-1234567", IdentifierType: types.IdentResidentReg, Ratio: f(50), Confidence: 0.9},
		{Name: "Kim Minjun", Identifier: "850505-7654321", IdentifierType: types.IdentResidentReg, Ratio: f(50), Confidence: 0.9},
	}
	doc.Properties.TotalShares = nil

	report := ValidateAt(doc, now)
	nameTrigger := findTrigger(report, RuleDuplicateName)
	require.NotNil(t, nameTrigger)
	assert.Equal(t, types.SeverityWarning, nameTrigger.Severity)
	assert.Nil(t, findTrigger(report, RuleDuplicateIdentity))

	// Same name AND identifier: blocker, and the warning is absorbed.
	doc.Shareholders[1].Identifier = "900101-1234567"
	report = ValidateAt(doc, now)
	assert.NotNil(t, findTrigger(report, RuleDuplicateIdentity))
	assert.Nil(t, findTrigger(report, RuleDuplicateName))
	assert.Equal(t, types.ReportNeedHITL, report.Status)
}

func TestValidateNameAudit(t *testing.T) {
	doc := cleanDoc()
	doc.Shareholders[0].SuspectName = true

	report := ValidateAt(doc, now)

	trigger := findTrigger(report, RuleNameCorrectionAudit)
	require.NotNil(t, trigger)
	assert.Equal(t, types.SeverityBlocker, trigger.Severity)
}

func TestValidateLowConfidenceVolume(t *testing.T) {
	doc := cleanDoc()
	doc.Shareholders[0].Confidence = 0.2
	doc.Shareholders[1].Confidence = 0.3

	report := ValidateAt(doc, now)

	trigger := findTrigger(report, RuleLowConfidence)
	require.NotNil(t, trigger)
	assert.Equal(t, types.SeverityWarning, trigger.Severity)
	// Warnings alone never divert the run.
	assert.Equal(t, types.ReportPass, report.Status)
}

func TestQualityScoreComponents(t *testing.T) {
	// One of two identifiers, both ratios, blocked by a suspect name:
	// 40*0.5 + 40*1.0 + 0 = 60.
	doc := cleanDoc()
	doc.Shareholders[0].Identifier = ""
	doc.Shareholders[0].IdentifierType = ""
	doc.Shareholders[0].SuspectName = true

	report := ValidateAt(doc, now)

	assert.True(t, report.HasBlocker())
	assert.InDelta(t, 60.0, report.QualityScore, 1e-9)
}
