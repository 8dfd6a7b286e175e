package corpus

import (
	"regexp"
	"strings"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

// Statute text is split on article headers ("Art. 49.", "Art. 5º ...").
// Each chunk runs from one header to the next, header line included.
var (
	articleHeaderRe = regexp.MustCompile(`(?m)^[ \t]*(Art\.\s*\d+[º°.]?[^\n]*)`)
	pageNumberRe    = regexp.MustCompile(`(?m)^\s*\d+\s*$`)
	blankRunsRe     = regexp.MustCompile(`\n{3,}`)
)

// SplitArticles chunks cleaned statute text by article headers. Identifiers
// are sequential starting at 1, in document order, so a rebuild from the same
// source is reproducible. Lines that are only page numbers are dropped.
func SplitArticles(text, law, url, collectedAt string) []domain.Chunk {
	text = strings.ReplaceAll(text, "\f", "\n")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")

	locs := articleHeaderRe.FindAllStringSubmatchIndex(text, -1)
	chunks := make([]domain.Chunk, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(text[loc[0]:end])
		body = strings.TrimSpace(pageNumberRe.ReplaceAllString(body, ""))

		chunks = append(chunks, domain.Chunk{
			ID:          int64(i + 1),
			Text:        body,
			Article:     strings.TrimSpace(text[loc[2]:loc[3]]),
			Law:         law,
			URL:         url,
			PublishedAt: collectedAt,
		})
	}
	return chunks
}
