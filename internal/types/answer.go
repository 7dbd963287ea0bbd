package types

// BeneficialOwnerThreshold is the disclosure threshold, in percent, above
// which a holder is reported as a beneficial owner.
const BeneficialOwnerThreshold = 25.0

// OwnerEntry is one holder reported in the final answer set.
type OwnerEntry struct {
	Name           string         `json:"name"`
	EntityType     EntityType     `json:"entity_type"`
	Identifier     string         `json:"identifier,omitempty"`
	IdentifierType IdentifierType `json:"identifier_type,omitempty"`
	Ratio          *float64       `json:"ratio"`
	Shares         *float64       `json:"shares,omitempty"`
	// FallbackHighest marks an entry reported only because no holder crossed
	// the disclosure threshold.
	FallbackHighest bool `json:"fallback_highest,omitempty"`
}

// IntegrityVerdict summarizes the data-integrity outcome of a run.
type IntegrityVerdict string

const (
	VerdictClean    IntegrityVerdict = "CLEAN"
	VerdictCaveated IntegrityVerdict = "CAVEATED" // warnings present, no blockers
	VerdictReviewed IntegrityVerdict = "REVIEWED" // completed after human resolution
)

// AnswerSet is the final compliance report synthesized for a completed run.
type AnswerSet struct {
	CompanyName        string           `json:"company_name"`
	RegistrationNumber string           `json:"registration_number,omitempty"`
	DocumentDate       string           `json:"document_date"`
	PrincipalOwner     *OwnerEntry      `json:"principal_owner"`
	BeneficialOwners   []OwnerEntry     `json:"beneficial_owners"`
	Verdict            IntegrityVerdict `json:"verdict"`
	Caveats            []string         `json:"caveats,omitempty"`
	Narrative          string           `json:"narrative,omitempty"`
	QualityScore       float64          `json:"quality_score"`
}
