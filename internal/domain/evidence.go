package domain

import "sort"

// Evidence pairs a chunk with its retrieval similarity score.
type Evidence struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// EvidenceSet is the ranked retrieval result for one query, the only
// permissible grounding for an answer.
type EvidenceSet []Evidence

// Sort orders the set descending by score, ties broken by ascending chunk ID
// for determinism. The sort is stable.
func (es EvidenceSet) Sort() {
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].Score != es[j].Score {
			return es[i].Score > es[j].Score
		}
		return es[i].Chunk.ID < es[j].Chunk.ID
	})
}

// IDs returns the set of chunk identifiers present in the evidence.
func (es EvidenceSet) IDs() map[int64]struct{} {
	ids := make(map[int64]struct{}, len(es))
	for _, e := range es {
		ids[e.Chunk.ID] = struct{}{}
	}
	return ids
}

// Top returns the first n entries (or fewer when the set is shorter).
func (es EvidenceSet) Top(n int) EvidenceSet {
	if n > len(es) {
		n = len(es)
	}
	return es[:n]
}
