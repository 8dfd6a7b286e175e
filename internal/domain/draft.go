package domain

// Draft bounds enforced by the auditor (not assumed by the drafter).
const (
	SummaryMaxChars = 600
	StepsMin        = 3
	StepsMax        = 5
	CitationsMin    = 1
	CitationsMax    = 5
	QuizMax         = 3
	GlossaryMax     = 8
)

// Citation is one legal-basis reference. ChunkIDs must be a subset of the
// evidence set the draft was produced from; the auditor enforces this.
type Citation struct {
	Label    string  `json:"label"`
	URL      string  `json:"url"`
	ChunkIDs []int64 `json:"chunk_ids"`
}

// QuizItem is an optional self-check question attached to an answer.
type QuizItem struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Reference string `json:"reference,omitempty"`
}

// GlossaryEntry explains one legal term in plain language.
type GlossaryEntry struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// Draft is the structured answer produced by the drafter.
type Draft struct {
	Summary    string          `json:"summary"`
	Steps      []string        `json:"steps"`
	LegalBasis []Citation      `json:"legal_basis"`
	Quiz       []QuizItem      `json:"quiz,omitempty"`
	Glossary   []GlossaryEntry `json:"glossary,omitempty"`
}

// Clone returns a deep copy. The polisher works on a copy so the orchestrator
// can compare citation lists before and after.
func (d Draft) Clone() Draft {
	out := d
	out.Steps = append([]string(nil), d.Steps...)
	out.Quiz = append([]QuizItem(nil), d.Quiz...)
	out.Glossary = append([]GlossaryEntry(nil), d.Glossary...)
	out.LegalBasis = make([]Citation, len(d.LegalBasis))
	for i, c := range d.LegalBasis {
		out.LegalBasis[i] = c
		out.LegalBasis[i].ChunkIDs = append([]int64(nil), c.ChunkIDs...)
	}
	return out
}

// CitedIDs returns every chunk identifier referenced by the draft's citations.
func (d Draft) CitedIDs() []int64 {
	var ids []int64
	for _, c := range d.LegalBasis {
		ids = append(ids, c.ChunkIDs...)
	}
	return ids
}
