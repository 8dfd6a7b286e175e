package guard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
	"github.com/rc-ventura/educajus-br-ai/internal/metrics"
)

// WarnDisclosure selects what happens to warn-severity findings: exposed to
// the caller or only logged.
type WarnDisclosure string

const (
	DisclosureExpose WarnDisclosure = "expose"
	DisclosureLog    WarnDisclosure = "log"
)

// Guard is the intake stage. It detects and masks sensitive data, classifies
// topical scope on the already-masked text, and decides whether the query may
// proceed to retrieval.
type Guard struct {
	detector   *Detector
	primary    ScopeClassifier
	fallback   ScopeClassifier
	disclosure WarnDisclosure
	logger     *zap.Logger
}

// Options configures a Guard.
type Options struct {
	Severity       map[string]string
	MaskToken      string
	Primary        ScopeClassifier // nil means heuristic-only
	Fallback       ScopeClassifier
	WarnDisclosure WarnDisclosure
	Logger         *zap.Logger
}

// New creates the intake guard.
func New(opts Options) *Guard {
	return &Guard{
		detector:   NewDetector(opts.Severity, opts.MaskToken),
		primary:    opts.Primary,
		fallback:   opts.Fallback,
		disclosure: opts.WarnDisclosure,
		logger:     opts.Logger,
	}
}

// Result is the intake decision for one query.
type Result struct {
	Findings     []domain.Finding
	Scope        domain.ScopeDecision
	Blocked      bool
	Reason       string
	CleanedQuery string
	Warnings     []string
	Elapsed      time.Duration
}

// Evaluate screens raw query text. Confirmed block-severity findings reject
// the query regardless of scope; scope is always decided on masked text, so no
// sensitive value ever leaves the process.
func (g *Guard) Evaluate(ctx context.Context, raw string) Result {
	start := time.Now()

	findings := g.detector.Find(raw)
	cleaned := g.detector.Mask(raw, findings)

	var blockKinds, warnings []string
	for _, f := range findings {
		metrics.IntakeFindingsTotal.WithLabelValues(string(f.Kind), string(f.Severity)).Inc()
		switch f.Severity {
		case domain.SeverityBlock:
			blockKinds = append(blockKinds, string(f.Kind))
		case domain.SeverityWarn:
			warnings = append(warnings, fmt.Sprintf(
				"a consulta contém um dado do tipo %s; ele foi removido antes do processamento", f.Kind))
		}
	}

	res := Result{
		Findings:     findings,
		CleanedQuery: cleaned,
		Warnings:     g.discloseWarnings(warnings),
	}

	if len(blockKinds) > 0 {
		// Blocked regardless of scope. The heuristic alone decides scope here:
		// a rejected query is not worth an external call.
		res.Scope = classifyWithFallback(ctx, nil, g.fallback, cleaned, g.logger)
		res.Blocked = true
		res.Reason = fmt.Sprintf(
			"a consulta contém dados pessoais sensíveis (%s); remova-os e tente novamente",
			strings.Join(dedupe(blockKinds), ", "))
		res.Elapsed = time.Since(start)

		g.logger.Info("intake blocked on sensitive data",
			zap.Strings("kinds", dedupe(blockKinds)),
			zap.Duration("elapsed", res.Elapsed),
		)
		return res
	}

	res.Scope = classifyWithFallback(ctx, g.primary, g.fallback, cleaned, g.logger)
	metrics.ScopePathTotal.WithLabelValues(string(res.Scope.Source), string(res.Scope.Domain)).Inc()

	if !res.Scope.InScope() {
		res.Blocked = true
		res.Reason = scopeReason(res.Scope.Domain)
	}

	res.Elapsed = time.Since(start)
	g.logger.Info("intake evaluated",
		zap.Bool("blocked", res.Blocked),
		zap.String("scope", string(res.Scope.Domain)),
		zap.String("scope_source", string(res.Scope.Source)),
		zap.Int("findings", len(findings)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res
}

func (g *Guard) discloseWarnings(warnings []string) []string {
	if len(warnings) == 0 {
		return nil
	}
	if g.disclosure == DisclosureExpose {
		return warnings
	}
	for _, w := range warnings {
		g.logger.Info("intake warning withheld from caller", zap.String("warning", w))
	}
	return nil
}

func scopeReason(d domain.ScopeDomain) string {
	switch d {
	case domain.DomainOtherLegal:
		return "a consulta trata de um ramo do direito fora do escopo deste serviço, que cobre apenas direito do consumidor"
	default:
		return "a consulta não parece ser uma dúvida jurídica de consumo"
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
