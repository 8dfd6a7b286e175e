package domain

// FindingKind identifies the class of sensitive data detected in a query.
type FindingKind string

// Closed set of detectable kinds. CPF and CNPJ carry check digits, so surface
// matches are confirmed only when the checksum validates.
const (
	FindingCPF        FindingKind = "cpf"
	FindingCNPJ       FindingKind = "cnpj"
	FindingEmail      FindingKind = "email"
	FindingPhone      FindingKind = "phone"
	FindingCaseNumber FindingKind = "case_number"
)

// Severity decides what a confirmed finding does to the request.
type Severity string

const (
	// SeverityBlock rejects the query before any retrieval.
	SeverityBlock Severity = "block"
	// SeverityWarn lets the query pass with an attached warning.
	SeverityWarn Severity = "warn"
)

// Finding is one detected sensitive-data occurrence.
type Finding struct {
	Kind      FindingKind `json:"kind"`
	Value     string      `json:"-"` // never serialized: the match is the sensitive data
	Start     int         `json:"start"`
	End       int         `json:"end"`
	Confirmed bool        `json:"confirmed"`
	Severity  Severity    `json:"severity"`
}
