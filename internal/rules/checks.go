package rules

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/kaura24/regaudit/internal/types"
)

const dateLayout = "2006-01-02"

var dateShapeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func blocker(ruleID, message, suggestion string, metrics map[string]float64) types.RuleTrigger {
	return types.RuleTrigger{
		RuleID:     ruleID,
		Severity:   types.SeverityBlocker,
		Message:    message,
		Metrics:    metrics,
		Suggestion: suggestion,
	}
}

func warning(ruleID, message string, metrics map[string]float64) types.RuleTrigger {
	return types.RuleTrigger{
		RuleID:   ruleID,
		Severity: types.SeverityWarning,
		Message:  message,
		Metrics:  metrics,
	}
}

func checkMinRecords(doc *types.NormalizedDoc) []types.RuleTrigger {
	if len(doc.Shareholders) > 0 {
		return nil
	}
	return []types.RuleTrigger{blocker(RuleMinRecords,
		"register contains no shareholder records",
		"confirm the correct pages were submitted and re-extract", nil)}
}

func checkRequiredMetadata(doc *types.NormalizedDoc) []types.RuleTrigger {
	var out []types.RuleTrigger
	if doc.Properties.CompanyName == "" {
		out = append(out, blocker(RuleRequiredMetadata,
			"company identity is missing",
			"supply the company name from the source document", nil))
	}
	if doc.Properties.DocumentDate == "" {
		out = append(out, blocker(RuleRequiredMetadata,
			"document date is missing",
			"supply the register date from the source document", nil))
	}
	return out
}

// checkDocumentDate covers both the format check and the staleness check.
// Staleness can only be judged once the date parses.
func checkDocumentDate(doc *types.NormalizedDoc, now time.Time) []types.RuleTrigger {
	date := doc.Properties.DocumentDate
	if date == "" {
		return nil // missing date is a required_metadata finding
	}
	if !dateShapeRe.MatchString(date) {
		return []types.RuleTrigger{blocker(RuleDateFormat,
			fmt.Sprintf("document date %q is not a complete YYYY-MM-DD date", date),
			"correct the document date to a full calendar date", nil)}
	}
	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return []types.RuleTrigger{blocker(RuleDateFormat,
			fmt.Sprintf("document date %q is not a valid calendar date", date),
			"correct the document date", nil)}
	}

	days := now.Sub(parsed).Hours() / 24
	if days > maxDocumentAgeDays {
		return []types.RuleTrigger{blocker(RuleStaleDocument,
			fmt.Sprintf("document is %.0f days old, exceeding the %d-day limit", days, maxDocumentAgeDays),
			"obtain a register issued within the last year",
			map[string]float64{"days_diff": math.Floor(days)})}
	}
	return nil
}

func checkNonPositiveValues(doc *types.NormalizedDoc) []types.RuleTrigger {
	bad := 0
	for _, s := range doc.Shareholders {
		if (s.Shares != nil && *s.Shares <= 0) || (s.Amount != nil && *s.Amount <= 0) {
			bad++
		}
	}
	if bad == 0 {
		return nil
	}
	return []types.RuleTrigger{blocker(RuleNonPositiveValue,
		fmt.Sprintf("%d record(s) carry a non-positive share count or amount", bad),
		"re-check extraction of the affected rows",
		map[string]float64{"records": float64(bad)})}
}

// checkDeclaredTotals reconciles the sum of extracted values against the
// document's own declared totals, per metric, with a 1% relative tolerance.
func checkDeclaredTotals(doc *types.NormalizedDoc) []types.RuleTrigger {
	var out []types.RuleTrigger
	if t := reconcileTotal(doc, "shares", doc.Properties.TotalShares,
		func(s types.NormalizedShareholder) *float64 { return s.Shares }); t != nil {
		out = append(out, *t)
	}
	if t := reconcileTotal(doc, "amount", doc.Properties.TotalCapital,
		func(s types.NormalizedShareholder) *float64 { return s.Amount }); t != nil {
		out = append(out, *t)
	}
	return out
}

func reconcileTotal(doc *types.NormalizedDoc, metric string, declared *float64, get func(types.NormalizedShareholder) *float64) *types.RuleTrigger {
	if declared == nil || *declared <= 0 {
		return nil
	}
	sum, present := 0.0, 0
	for _, s := range doc.Shareholders {
		if v := get(s); v != nil {
			sum += *v
			present++
		}
	}
	if present == 0 {
		return nil
	}
	diffPct := math.Abs(sum-*declared) / *declared * 100
	if diffPct <= totalTolerancePct {
		return nil
	}
	t := blocker(RuleTotalMismatch,
		fmt.Sprintf("sum of %s (%.2f) deviates %.1f%% from the declared total (%.2f)", metric, sum, diffPct, *declared),
		"reconcile the extracted rows against the declared total",
		map[string]float64{"declared": *declared, "actual_sum": sum, "diff_pct": diffPct})
	return &t
}

// checkRatioSum fires only with at least 80% ratio coverage; below that the
// sum says nothing meaningful. A fully covered all-zero ratio set gets its
// own trigger, since it signals degenerate extraction rather than a rounding
// problem.
func checkRatioSum(doc *types.NormalizedDoc) []types.RuleTrigger {
	if len(doc.Shareholders) == 0 {
		return nil
	}
	sum, covered := ratioSum(doc)
	if covered == 0 {
		return nil
	}

	allZero := true
	for _, s := range doc.Shareholders {
		if s.Ratio != nil && *s.Ratio != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return []types.RuleTrigger{blocker(RuleRatioAllZero,
			"every determinable ownership ratio is zero",
			"re-extract ratios; an all-zero distribution is not a plausible register",
			map[string]float64{"coverage": float64(covered) / float64(len(doc.Shareholders))})}
	}

	coverage := float64(covered) / float64(len(doc.Shareholders))
	if coverage < ratioCoverageFloor {
		return nil
	}
	if sum >= ratioSumLow && sum <= ratioSumHigh {
		return nil
	}
	return []types.RuleTrigger{blocker(RuleRatioSumMismatch,
		fmt.Sprintf("ownership ratios sum to %.2f%%, outside [%.1f, %.1f]", sum, ratioSumLow, ratioSumHigh),
		"reconcile individual ratios against the declared totals",
		map[string]float64{"ratio_sum": sum, "coverage": coverage})}
}

// checkCrossMetric compares, per record, every determinable ownership share:
// the declared ratio, the shares-derived share, and the amount-derived share.
// Any pair differing by more than one percentage point is inconsistent.
func checkCrossMetric(doc *types.NormalizedDoc) []types.RuleTrigger {
	totalShares := doc.Properties.TotalShares
	totalCapital := doc.Properties.TotalCapital

	var out []types.RuleTrigger
	for i, s := range doc.Shareholders {
		var views []float64
		var labels []string
		if s.Ratio != nil {
			views = append(views, *s.Ratio)
			labels = append(labels, "declared ratio")
		}
		if s.Shares != nil && totalShares != nil && *totalShares > 0 {
			views = append(views, *s.Shares / *totalShares*100)
			labels = append(labels, "shares-derived")
		}
		if s.Amount != nil && totalCapital != nil && *totalCapital > 0 {
			views = append(views, *s.Amount / *totalCapital*100)
			labels = append(labels, "amount-derived")
		}

		for a := 0; a < len(views); a++ {
			for b := a + 1; b < len(views); b++ {
				if math.Abs(views[a]-views[b]) > crossMetricTolerance {
					out = append(out, blocker(RuleCrossMetricMismatch,
						fmt.Sprintf("record %d (%s): %s share %.2f%% disagrees with %s share %.2f%%",
							i, s.Name, labels[a], views[a], labels[b], views[b]),
						"determine which metric the document treats as authoritative",
						map[string]float64{"record": float64(i), "diff": math.Abs(views[a] - views[b])}))
					a = len(views) // one finding per record is enough
					break
				}
			}
		}
	}
	return out
}

func checkIdentifierCardinality(doc *types.NormalizedDoc) []types.RuleTrigger {
	if len(doc.Shareholders) == 0 {
		return nil
	}
	names := make(map[string]struct{})
	idents := make(map[string]struct{})
	missing := 0
	for _, s := range doc.Shareholders {
		names[s.Name] = struct{}{}
		if s.Identifier == "" {
			missing++
		} else {
			idents[s.Identifier] = struct{}{}
		}
	}
	if missing == 0 && len(names) == len(idents) {
		return nil
	}
	msg := fmt.Sprintf("%d distinct name(s) against %d distinct identifier(s)", len(names), len(idents))
	if missing > 0 {
		msg = fmt.Sprintf("%s; %d record(s) missing an identifier", msg, missing)
	}
	return []types.RuleTrigger{blocker(RuleIdentifierCardinality, msg,
		"resolve each holder to exactly one identifier",
		map[string]float64{
			"distinct_names":       float64(len(names)),
			"distinct_identifiers": float64(len(idents)),
			"missing_identifiers":  float64(missing),
		})}
}

var digitsRe = regexp.MustCompile(`\d`)

func digitCount(s string) int {
	return len(digitsRe.FindAllString(s, -1))
}

func checkIdentifierFormat(doc *types.NormalizedDoc) []types.RuleTrigger {
	var out []types.RuleTrigger
	for i, s := range doc.Shareholders {
		if s.Identifier == "" {
			continue // absence is a cardinality finding
		}
		var problem string
		switch s.IdentifierType {
		case types.IdentBusinessReg:
			if digitCount(s.Identifier) != 10 {
				problem = "business registration number must contain 10 digits"
			}
		case types.IdentResidentReg:
			if digitCount(s.Identifier) != 13 {
				problem = "resident registration number must contain 13 digits"
			}
		case types.IdentCorporateReg:
			if digitCount(s.Identifier) != 13 {
				problem = "corporate registration number must contain 13 digits"
			}
		case types.IdentBirthDate:
			if !dateShapeRe.MatchString(s.Identifier) {
				problem = "birth date must be a complete YYYY-MM-DD date"
			}
		}
		if problem != "" {
			out = append(out, blocker(RuleIdentifierFormat,
				fmt.Sprintf("record %d (%s): %s", i, s.Name, problem),
				"verify the identifier against the source image",
				map[string]float64{"record": float64(i)}))
		}
	}
	return out
}

// checkDuplicates grades duplicates in two tiers: a repeated name alone is a
// warning (distinct holders can share a name), while an exact repeated
// name+identifier pair is a blocker.
func checkDuplicates(doc *types.NormalizedDoc) []types.RuleTrigger {
	type pairKey struct{ name, identifier string }
	nameCount := make(map[string]int)
	pairCount := make(map[pairKey]int)
	for _, s := range doc.Shareholders {
		nameCount[s.Name]++
		if s.Identifier != "" {
			pairCount[pairKey{s.Name, s.Identifier}]++
		}
	}

	// Walk records in document order so the trigger list is reproducible.
	var out []types.RuleTrigger
	emittedPair := make(map[pairKey]struct{})
	escalatedNames := make(map[string]struct{})
	for _, s := range doc.Shareholders {
		pair := pairKey{s.Name, s.Identifier}
		if s.Identifier != "" && pairCount[pair] > 1 {
			if _, done := emittedPair[pair]; !done {
				emittedPair[pair] = struct{}{}
				escalatedNames[s.Name] = struct{}{}
				out = append(out, blocker(RuleDuplicateIdentity,
					fmt.Sprintf("name %q with identical identifier recorded %d times", s.Name, pairCount[pair]),
					"merge or justify the duplicated holder",
					map[string]float64{"occurrences": float64(pairCount[pair])}))
			}
		}
	}
	emittedName := make(map[string]struct{})
	for _, s := range doc.Shareholders {
		if nameCount[s.Name] > 1 {
			if _, blocked := escalatedNames[s.Name]; blocked {
				continue // already escalated as an identity duplicate
			}
			if _, done := emittedName[s.Name]; done {
				continue
			}
			emittedName[s.Name] = struct{}{}
			out = append(out, warning(RuleDuplicateName,
				fmt.Sprintf("name %q appears %d times", s.Name, nameCount[s.Name]),
				map[string]float64{"occurrences": float64(nameCount[s.Name])}))
		}
	}
	return out
}

func checkNameAudit(doc *types.NormalizedDoc) []types.RuleTrigger {
	var out []types.RuleTrigger
	for i, s := range doc.Shareholders {
		if s.SuspectName {
			out = append(out, blocker(RuleNameCorrectionAudit,
				fmt.Sprintf("record %d (%s): name was auto-corrected or flagged suspicious upstream", i, s.Name),
				"confirm the holder name against the source image",
				map[string]float64{"record": float64(i)}))
		}
	}
	return out
}

func checkConfidenceVolume(doc *types.NormalizedDoc) []types.RuleTrigger {
	if len(doc.Shareholders) == 0 {
		return nil
	}
	low := 0
	for _, s := range doc.Shareholders {
		if s.Confidence < lowConfidenceCutoff {
			low++
		}
	}
	share := float64(low) / float64(len(doc.Shareholders))
	if share <= lowConfidenceShare {
		return nil
	}
	return []types.RuleTrigger{warning(RuleLowConfidence,
		fmt.Sprintf("%.0f%% of records fall below %.1f extraction confidence", share*100, lowConfidenceCutoff),
		map[string]float64{"low_share": share})}
}
