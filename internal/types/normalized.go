package types

// EntityType classifies a shareholder as a natural person or a legal entity.
type EntityType string

const (
	EntityIndividual EntityType = "INDIVIDUAL"
	EntityCorporate  EntityType = "CORPORATE"
	EntityUnknown    EntityType = "UNKNOWN"
)

// IdentifierType is the kind of identifying number recorded for a shareholder.
type IdentifierType string

const (
	IdentBusinessReg  IdentifierType = "BUSINESS_REG"  // 10 digits
	IdentResidentReg  IdentifierType = "RESIDENT_REG"  // 13 digits
	IdentCorporateReg IdentifierType = "CORPORATE_REG" // 13 digits
	IdentBirthDate    IdentifierType = "BIRTH_DATE"    // YYYY-MM-DD
	IdentOther        IdentifierType = "OTHER"
)

// OwnershipBasis records which metric the document itself uses to express
// ownership.
type OwnershipBasis string

const (
	BasisShares   OwnershipBasis = "SHARES"
	BasisCapital  OwnershipBasis = "CAPITAL"
	BasisDeclared OwnershipBasis = "DECLARED"
	BasisUnknown  OwnershipBasis = "UNKNOWN"
)

// DocumentProperties holds document-level identity and declared totals.
// Nil numeric fields mean the document did not state the value; they are
// never fabricated downstream.
type DocumentProperties struct {
	CompanyName        string         `json:"company_name"`
	RegistrationNumber string         `json:"registration_number,omitempty"`
	TotalShares        *float64       `json:"total_shares"`
	TotalCapital       *float64       `json:"total_capital"`
	OwnershipBasis     OwnershipBasis `json:"ownership_basis"`
	DocumentDate       string         `json:"document_date"` // expected YYYY-MM-DD
}

// NormalizedShareholder is one cleaned register entry. Ratio may be declared
// by the document or derived by the ownership calculator; it stays nil when
// it cannot be determined.
type NormalizedShareholder struct {
	Name                 string         `json:"name"`
	EntityType           EntityType     `json:"entity_type"`
	EntityTypeConfidence float64        `json:"entity_type_confidence"`
	Identifier           string         `json:"identifier,omitempty"`
	IdentifierType       IdentifierType `json:"identifier_type,omitempty"`
	Shares               *float64       `json:"shares"`
	Ratio                *float64       `json:"ratio"`
	Amount               *float64       `json:"amount"`
	ShareClass           string         `json:"share_class,omitempty"`
	Confidence           float64        `json:"confidence"`
	SuspectName          bool           `json:"suspect_name,omitempty"`
	UnresolvedReasons    []string       `json:"unresolved_reasons,omitempty"`
}

// NormalizedDoc is the cleaned, typed representation of one register.
type NormalizedDoc struct {
	Properties   DocumentProperties      `json:"properties"`
	Shareholders []NormalizedShareholder `json:"shareholders"`
	Notes        []string                `json:"notes,omitempty"`
}

// Assessment is the gatekeeper verdict on whether the document is a
// shareholder register at all.
type Assessment struct {
	IsRegister   bool    `json:"is_register"`
	DocumentType string  `json:"document_type"`
	Confidence   float64 `json:"confidence"`
	Rationale    string  `json:"rationale"`
}

// RawEntry is one extracted row before normalization. Values are kept as the
// collaborator read them, untrusted and uncoerced.
type RawEntry struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier,omitempty"`
	Shares     string `json:"shares,omitempty"`
	Ratio      string `json:"ratio,omitempty"`
	Amount     string `json:"amount,omitempty"`
	ShareClass string `json:"share_class,omitempty"`
	PageIndex  int    `json:"page_index"`
}

// Extraction is the raw per-page extraction artifact.
type Extraction struct {
	Entries    []RawEntry        `json:"entries"`
	Properties map[string]string `json:"properties,omitempty"`
	PageCount  int               `json:"page_count"`
}
