package domain

import "time"

// IssueCode is a machine-readable audit issue class.
type IssueCode string

const (
	// IssueUnsupportedClaim marks a citation outside the evidence set.
	IssueUnsupportedClaim IssueCode = "UNSUPPORTED_CLAIM"
	// IssueMissingField marks an absent required field.
	IssueMissingField IssueCode = "MISSING_FIELD"
	// IssueBoundsViolation marks a size bound outside the draft schema.
	IssueBoundsViolation IssueCode = "BOUNDS_VIOLATION"
	// IssueAdviceContent marks personalized legal advice in educational content.
	IssueAdviceContent IssueCode = "ADVICE_CONTENT"
	// IssueMalformedOutput marks a draft that failed schema validation outright.
	IssueMalformedOutput IssueCode = "MALFORMED_OUTPUT"
)

// IssueSeverity grades an audit issue. Only error-severity issues fail a draft.
type IssueSeverity string

const (
	IssueError IssueSeverity = "error"
	IssueWarn  IssueSeverity = "warn"
)

// Issue is one typed audit finding. Citation points at the offending citation
// label for grounding failures.
type Issue struct {
	Code     IssueCode     `json:"code"`
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
	Citation string        `json:"citation,omitempty"`
}

// AuditReport is the outcome of validating one draft against its evidence set.
type AuditReport struct {
	OK      bool          `json:"ok"`
	Issues  []Issue       `json:"issues"`
	Elapsed time.Duration `json:"elapsed"`
}

// Errors returns only the error-severity issues.
func (r AuditReport) Errors() []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == IssueError {
			out = append(out, is)
		}
	}
	return out
}

// Feedback renders the targeted correction lines fed into a redraft attempt.
func (r AuditReport) Feedback() []string {
	var lines []string
	for _, is := range r.Errors() {
		lines = append(lines, string(is.Code)+": "+is.Message)
	}
	return lines
}
