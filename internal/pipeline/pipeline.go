// Package pipeline orchestrates one guarded retrieval-and-drafting run:
// Intake -> Retrieve -> Draft -> Audit -> Polish, with a single audit-fail
// edge back to Draft and a degraded template path after the second failure.
package pipeline

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
	"github.com/rc-ventura/educajus-br-ai/internal/guard"
	"github.com/rc-ventura/educajus-br-ai/internal/review"
)

// IntakeGuard screens raw query text.
type IntakeGuard interface {
	Evaluate(ctx context.Context, raw string) guard.Result
}

// Retriever returns ranked evidence for a cleaned query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (domain.EvidenceSet, error)
}

// Drafter produces a draft, reporting whether it degraded to the template.
type Drafter interface {
	Draft(ctx context.Context, query string, es domain.EvidenceSet, feedback []string) (domain.Draft, bool, error)
}

// Auditor validates a draft against its evidence set.
type Auditor interface {
	Audit(draft domain.Draft, es domain.EvidenceSet) domain.AuditReport
}

// PolishFunc normalizes an approved draft.
type PolishFunc func(domain.Draft) domain.Draft

// TemplateFunc builds the deterministic degraded answer.
type TemplateFunc func(query string, es domain.EvidenceSet) domain.Draft

// Pipeline runs the state machine. One instance serves all requests; each run
// owns its State exclusively.
type Pipeline struct {
	guard    IntakeGuard
	retrieve Retriever
	draft    Drafter
	audit    Auditor
	polish   PolishFunc
	template TemplateFunc
	reviews  review.Queue

	minEvidence int
	logger      *zap.Logger
}

// Options configures a Pipeline.
type Options struct {
	Guard       IntakeGuard
	Retriever   Retriever
	Drafter     Drafter
	Auditor     Auditor
	Polish      PolishFunc
	Template    TemplateFunc
	Reviews     review.Queue
	MinEvidence int
	Logger      *zap.Logger
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	reviews := opts.Reviews
	if reviews == nil {
		reviews = review.NopQueue{}
	}
	minEvidence := opts.MinEvidence
	if minEvidence < 1 {
		minEvidence = 1
	}
	return &Pipeline{
		guard:       opts.Guard,
		retrieve:    opts.Retriever,
		draft:       opts.Drafter,
		audit:       opts.Auditor,
		polish:      opts.Polish,
		template:    opts.Template,
		reviews:     reviews,
		minEvidence: minEvidence,
		logger:      opts.Logger,
	}
}

// Run processes one query to a terminal state. Every failure path resolves to
// a status with a reason; the returned error is non-nil only when the context
// was cancelled at a stage boundary.
func (p *Pipeline) Run(ctx context.Context, query string, k int) (*State, error) {
	s := &State{RunID: uuid.NewString(), Query: query}
	logger := p.logger.With(zap.String("run_id", s.RunID))

	// Intake
	start := time.Now()
	intake := p.guard.Evaluate(ctx, query)
	s.CleanedQuery = intake.CleanedQuery
	s.Findings = intake.Findings
	s.Scope = intake.Scope
	s.Warnings = intake.Warnings
	s.record(StageIntake, start, string(intake.Scope.Domain))

	if intake.Blocked {
		logger.Info("run blocked at intake", zap.String("reason", intake.Reason))
		return s.finish(StatusBlocked, intake.Reason), nil
	}
	if err := p.checkCancelled(ctx, s); err != nil {
		return s, err
	}

	// Retrieve
	start = time.Now()
	evidence, err := p.retrieve.Retrieve(ctx, s.CleanedQuery, k)
	s.record(StageRetrieve, start, "")
	if err != nil {
		logger.Warn("retrieval failed", zap.Error(err))
		s.Cause = err
		return s.finish(StatusFailed, retrievalReason(err)), nil
	}
	s.Evidence = evidence

	if len(evidence) < p.minEvidence {
		logger.Info("insufficient evidence",
			zap.Int("hits", len(evidence)),
			zap.Int("min", p.minEvidence),
		)
		return s.finish(StatusFailed,
			"não encontramos fontes suficientes no material disponível para responder com segurança"), nil
	}
	if err := p.checkCancelled(ctx, s); err != nil {
		return s, err
	}

	// Draft/Audit with the single bounded retry.
	var report domain.AuditReport
	var feedback []string
	approved := false

	for attempt := 0; attempt <= maxDraftRetries; attempt++ {
		start = time.Now()
		draft, degraded, err := p.draft.Draft(ctx, s.CleanedQuery, evidence, feedback)
		s.record(StageDraft, start, "")
		if err != nil {
			// Only ErrNoEvidence escapes the drafter, and evidence is non-empty
			// here. Treat anything else as a failed run rather than panic.
			logger.Error("drafting failed", zap.Error(err))
			return s.finish(StatusFailed, "não foi possível gerar a resposta"), nil
		}
		s.Draft = draft
		s.Degraded = s.Degraded || degraded

		start = time.Now()
		report = p.audit.Audit(draft, evidence)
		s.AuditIssues = report.Issues
		s.record(StageAudit, start, "")

		if report.OK {
			approved = true
			break
		}

		feedback = report.Feedback()
		// Retries counts re-drafts, not rejections: the final rejection goes
		// to the template, not back to the drafter.
		if attempt < maxDraftRetries {
			s.Retries = attempt + 1
		}
		logger.Info("audit rejected draft",
			zap.Int("attempt", attempt+1),
			zap.Strings("feedback", feedback),
		)
		if err := p.checkCancelled(ctx, s); err != nil {
			return s, err
		}
	}

	if !approved {
		// Second audit failure: degraded template, referred for review.
		start = time.Now()
		s.Draft = p.template(s.CleanedQuery, evidence)
		s.Degraded = true
		s.record(StageFallback, start, "audit retry exhausted")

		if err := p.reviews.Submit(ctx, review.Entry{
			Query:  s.CleanedQuery,
			Reason: "audit_failed",
			Issues: report.Errors(),
		}); err != nil {
			logger.Error("review submission failed", zap.Error(err))
		}
	}
	if err := p.checkCancelled(ctx, s); err != nil {
		return s, err
	}

	// Polish, then re-check that the citation list survived byte for byte.
	start = time.Now()
	polished := p.polish(s.Draft)
	if !reflect.DeepEqual(polished.LegalBasis, s.Draft.LegalBasis) {
		logger.Error("polish altered citations, keeping unpolished draft",
			zap.Error(domain.ErrCitationsAltered))
		s.record(StagePolish, start, "citations altered, polish discarded")
	} else {
		s.Draft = polished
		s.record(StagePolish, start, "")
	}

	logger.Info("run finished",
		zap.Bool("degraded", s.Degraded),
		zap.Int("retries", s.Retries),
		zap.Int("evidence", len(evidence)),
	)
	return s.finish(StatusSucceeded, ""), nil
}

// checkCancelled resolves context cancellation at a stage boundary.
func (p *Pipeline) checkCancelled(ctx context.Context, s *State) error {
	if err := ctx.Err(); err != nil {
		s.finish(StatusFailed, "a requisição foi cancelada")
		return err
	}
	return nil
}

// retrievalReason maps retrieval errors to the deterministic user-facing reason.
func retrievalReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCorpus):
		return "o acervo de textos está vazio; tente novamente mais tarde"
	case errors.Is(err, domain.ErrIndexUnavailable):
		return "o índice de busca está indisponível; tente novamente mais tarde"
	case errors.Is(err, domain.ErrEncoderMismatch):
		return "o serviço está mal configurado; a equipe foi notificada"
	default:
		return "a busca por fontes falhou; tente novamente mais tarde"
	}
}
