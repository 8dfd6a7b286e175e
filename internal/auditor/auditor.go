// Package auditor validates drafts before release: citation grounding against
// the evidence set, structural conformance against a JSON schema, and a scan
// for personalized-advice phrasing that educational content must not contain.
package auditor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
	"github.com/rc-ventura/educajus-br-ai/internal/metrics"
)

// draftSchema encodes the structural contract of a releasable draft: required
// fields and the size bounds the drafter promises but does not enforce.
const draftSchema = `{
	"type": "object",
	"required": ["summary", "steps", "legal_basis"],
	"properties": {
		"summary": {"type": "string", "maxLength": 600},
		"steps": {"type": "array", "minItems": 3, "maxItems": 5, "items": {"type": "string"}},
		"legal_basis": {
			"type": "array", "minItems": 1, "maxItems": 5,
			"items": {
				"type": "object",
				"required": ["label"],
				"properties": {
					"label": {"type": "string"},
					"url": {"type": "string"},
					"chunk_ids": {"type": "array", "items": {"type": "integer"}}
				}
			}
		},
		"quiz": {"type": "array", "maxItems": 3},
		"glossary": {"type": "array", "maxItems": 8}
	}
}`

// advicePatterns flag personalized legal advice. The service explains rights;
// it never tells a specific user to litigate.
var advicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bvocê deve processar\b`),
	regexp.MustCompile(`\brecomendo que (processe|acione)\b`),
	regexp.MustCompile(`\bmeu conselho é\b`),
	regexp.MustCompile(`\baconselho (você |que )?a?\b`),
	regexp.MustCompile(`\bentre com processo\b`),
}

// Auditor validates drafts against their evidence sets.
type Auditor struct {
	schema *gojsonschema.Schema
	logger *zap.Logger
}

// New compiles the draft schema. Compilation of the embedded schema cannot
// fail at runtime, so an error here is a programming mistake.
func New(logger *zap.Logger) (*Auditor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(draftSchema))
	if err != nil {
		return nil, fmt.Errorf("compile draft schema: %w", err)
	}
	return &Auditor{schema: schema, logger: logger}, nil
}

// Audit checks one draft. ok is true exactly when no issue has error severity;
// warn-severity issues are recorded but do not fail the draft.
func (a *Auditor) Audit(draft domain.Draft, es domain.EvidenceSet) domain.AuditReport {
	start := time.Now()

	var issues []domain.Issue
	issues = append(issues, a.structuralIssues(draft)...)
	issues = append(issues, groundingIssues(draft, es)...)
	issues = append(issues, adviceIssues(draft)...)

	report := domain.AuditReport{
		OK:      true,
		Issues:  issues,
		Elapsed: time.Since(start),
	}
	for _, is := range issues {
		metrics.AuditIssuesTotal.WithLabelValues(string(is.Code), string(is.Severity)).Inc()
		if is.Severity == domain.IssueError {
			report.OK = false
		}
	}

	a.logger.Info("audit finished",
		zap.Bool("ok", report.OK),
		zap.Int("issues", len(issues)),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report
}

func (a *Auditor) structuralIssues(draft domain.Draft) []domain.Issue {
	var issues []domain.Issue

	// The schema cannot distinguish a blank required string from a filled one.
	if strings.TrimSpace(draft.Summary) == "" {
		issues = append(issues, domain.Issue{
			Code:     domain.IssueMissingField,
			Severity: domain.IssueError,
			Message:  "summary está vazio",
		})
	}

	payload, err := json.Marshal(draft)
	if err != nil {
		return append(issues, domain.Issue{
			Code:     domain.IssueMalformedOutput,
			Severity: domain.IssueError,
			Message:  fmt.Sprintf("rascunho não serializável: %v", err),
		})
	}

	result, err := a.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return append(issues, domain.Issue{
			Code:     domain.IssueMalformedOutput,
			Severity: domain.IssueError,
			Message:  fmt.Sprintf("validação estrutural falhou: %v", err),
		})
	}

	for _, verr := range result.Errors() {
		issues = append(issues, schemaIssue(verr))
	}
	return issues
}

// schemaIssue maps one schema violation: absent or mistyped required data is
// an error, a size bound outside the window is a warning.
func schemaIssue(verr gojsonschema.ResultError) domain.Issue {
	message := fmt.Sprintf("%s: %s", verr.Field(), verr.Description())
	switch verr.Type() {
	case "required":
		return domain.Issue{Code: domain.IssueMissingField, Severity: domain.IssueError, Message: message}
	case "invalid_type":
		return domain.Issue{Code: domain.IssueMalformedOutput, Severity: domain.IssueError, Message: message}
	default:
		return domain.Issue{Code: domain.IssueBoundsViolation, Severity: domain.IssueWarn, Message: message}
	}
}

// articleNumRe extracts the article number from a citation label or an
// evidence article header.
var articleNumRe = regexp.MustCompile(`[Aa]rt\.?\s*(\d+)`)

// groundingIssues enforces the hard postcondition: every cited chunk must be
// in the evidence set the draft was produced from. A label whose article
// number disagrees with every chunk it cites is flagged as a warning; the
// identifier subset check remains the releasing gate.
func groundingIssues(draft domain.Draft, es domain.EvidenceSet) []domain.Issue {
	ids := es.IDs()
	articles := make(map[int64]string, len(es))
	for _, e := range es {
		articles[e.Chunk.ID] = e.Chunk.Article
	}

	var issues []domain.Issue
	for _, c := range draft.LegalBasis {
		if len(c.ChunkIDs) == 0 {
			issues = append(issues, domain.Issue{
				Code:     domain.IssueUnsupportedClaim,
				Severity: domain.IssueError,
				Message:  fmt.Sprintf("citação %q não referencia nenhum trecho recuperado", c.Label),
				Citation: c.Label,
			})
			continue
		}
		for _, id := range c.ChunkIDs {
			if _, ok := ids[id]; !ok {
				issues = append(issues, domain.Issue{
					Code:     domain.IssueUnsupportedClaim,
					Severity: domain.IssueError,
					Message:  fmt.Sprintf("citação %q referencia o trecho %d, ausente das evidências", c.Label, id),
					Citation: c.Label,
				})
			}
		}
		if issue, mismatch := labelMismatch(c, articles); mismatch {
			issues = append(issues, issue)
		}
	}
	return issues
}

// labelMismatch cross-checks the article number in the label against the
// articles of the cited chunks.
func labelMismatch(c domain.Citation, articles map[int64]string) (domain.Issue, bool) {
	m := articleNumRe.FindStringSubmatch(c.Label)
	if m == nil {
		return domain.Issue{}, false
	}
	for _, id := range c.ChunkIDs {
		am := articleNumRe.FindStringSubmatch(articles[id])
		if am != nil && am[1] == m[1] {
			return domain.Issue{}, false
		}
	}
	return domain.Issue{
		Code:     domain.IssueUnsupportedClaim,
		Severity: domain.IssueWarn,
		Message:  fmt.Sprintf("rótulo %q não corresponde ao artigo de nenhum trecho citado", c.Label),
		Citation: c.Label,
	}, true
}

// adviceIssues scans the user-visible prose for personalized-advice phrasing.
func adviceIssues(draft domain.Draft) []domain.Issue {
	prose := strings.ToLower(draft.Summary + " " + strings.Join(draft.Steps, " "))

	var issues []domain.Issue
	for _, p := range advicePatterns {
		if match := p.FindString(prose); match != "" {
			issues = append(issues, domain.Issue{
				Code:     domain.IssueAdviceContent,
				Severity: domain.IssueError,
				Message:  fmt.Sprintf("conteúdo contém aconselhamento personalizado: %q", match),
			})
		}
	}
	return issues
}
