// Package polisher applies deterministic readability normalization to an
// approved draft. It only touches prose in the summary and steps; the citation
// list passes through untouched, and the orchestrator re-checks that.
package polisher

import (
	"strings"
	"unicode"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

// Polish returns a normalized copy of the draft. The transformation is
// idempotent: polishing an already-polished draft is a no-op.
func Polish(draft domain.Draft) domain.Draft {
	out := draft.Clone()

	out.Summary = normalizeSentence(out.Summary)

	steps := out.Steps[:0]
	for _, s := range out.Steps {
		s = normalizeProse(s)
		if s == "" {
			continue
		}
		steps = append(steps, s)
	}
	out.Steps = steps

	for i, q := range out.Quiz {
		out.Quiz[i].Question = normalizeProse(q.Question)
		out.Quiz[i].Answer = normalizeProse(q.Answer)
	}
	for i, g := range out.Glossary {
		out.Glossary[i].Term = normalizeProse(g.Term)
		out.Glossary[i].Definition = normalizeSentence(g.Definition)
	}

	return out
}

// normalizeProse trims and collapses internal whitespace runs to one space.
func normalizeProse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeSentence additionally uppercases the first letter and guarantees
// terminal punctuation.
func normalizeSentence(s string) string {
	s = normalizeProse(s)
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	s = string(runes)

	switch runes[len(runes)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
