package domain

// ScopeDomain is the topical classification of a query.
type ScopeDomain string

const (
	// DomainConsumerLaw is the only domain that continues past intake.
	DomainConsumerLaw ScopeDomain = "consumer_law"
	// DomainOtherLegal is a legal question outside the corpus coverage.
	DomainOtherLegal ScopeDomain = "other_legal"
	// DomainNonLegal is not a legal question at all.
	DomainNonLegal ScopeDomain = "non_legal"
)

// ClassifierSource records which scope-classification path produced a decision.
type ClassifierSource string

const (
	SourceLLM       ClassifierSource = "llm"
	SourceHeuristic ClassifierSource = "heuristic"
)

// ScopeDecision classifies a query into exactly one domain.
// Confidence is nil when the decision came from the fallback heuristic.
type ScopeDecision struct {
	Domain     ScopeDomain      `json:"domain"`
	Confidence *float64         `json:"confidence,omitempty"`
	Rationale  string           `json:"rationale"`
	Source     ClassifierSource `json:"source"`
}

// InScope reports whether the query may continue to retrieval.
func (s ScopeDecision) InScope() bool { return s.Domain == DomainConsumerLaw }
