package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

// ScopeClassifier decides the topical domain of a query. Implementations must
// never see unmasked text; the guard hands them the cleaned query only.
type ScopeClassifier interface {
	Classify(ctx context.Context, text string) (domain.ScopeDecision, error)
}

// ChatCompleter is the slice of the chat client the LLM classifier needs.
type ChatCompleter interface {
	CompleteJSON(ctx context.Context, system, user string, timeout time.Duration) (string, error)
}

// LLMClassifier is the primary scope path: one JSON-mode completion.
type LLMClassifier struct {
	chat    ChatCompleter
	timeout time.Duration
}

// NewLLMClassifier creates the model-backed classifier with a per-call timeout.
func NewLLMClassifier(chat ChatCompleter, timeout time.Duration) *LLMClassifier {
	return &LLMClassifier{chat: chat, timeout: timeout}
}

const classifierSystemPrompt = `Você é um classificador jurídico. Classifique a mensagem do usuário ` +
	`em exatamente um dos rótulos: consumer_law (direito do consumidor / CDC), ` +
	`other_legal (questão jurídica de outro ramo), non_legal (não é questão jurídica). ` +
	`Responda somente com JSON: {"domain": "<rótulo>", "confidence": <0..1>, "rationale": "<curto>"}`

// Classify asks the model for a domain label with confidence and rationale.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (domain.ScopeDecision, error) {
	raw, err := c.chat.CompleteJSON(ctx, classifierSystemPrompt, text, c.timeout)
	if err != nil {
		return domain.ScopeDecision{}, fmt.Errorf("scope classification: %w", err)
	}

	var parsed struct {
		Domain     string  `json:"domain"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.ScopeDecision{}, fmt.Errorf("scope classification: malformed response: %w: %w",
			err, domain.ErrUpstreamUnavailable)
	}

	d, ok := parseDomain(parsed.Domain)
	if !ok {
		return domain.ScopeDecision{}, fmt.Errorf("scope classification: unknown label %q: %w",
			parsed.Domain, domain.ErrUpstreamUnavailable)
	}

	conf := parsed.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return domain.ScopeDecision{
		Domain:     d,
		Confidence: &conf,
		Rationale:  parsed.Rationale,
		Source:     domain.SourceLLM,
	}, nil
}

func parseDomain(label string) (domain.ScopeDomain, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case string(domain.DomainConsumerLaw), "cdc":
		return domain.DomainConsumerLaw, true
	case string(domain.DomainOtherLegal), "other_law":
		return domain.DomainOtherLegal, true
	case string(domain.DomainNonLegal), "not_law":
		return domain.DomainNonLegal, true
	}
	return "", false
}

// KeywordClassifier is the fallback scope path: overlap against curated term
// lists. Deterministic and offline; confidence is nil because there is no
// calibrated score behind it.
type KeywordClassifier struct {
	inScope    []string
	outOfScope []string
}

// NewKeywordClassifier creates the heuristic classifier from curated pt-BR
// term lists.
func NewKeywordClassifier(inScope, outOfScope []string) *KeywordClassifier {
	return &KeywordClassifier{inScope: inScope, outOfScope: outOfScope}
}

// Classify counts term hits in the lowercased text. Out-of-scope hits win ties
// against in-scope hits: the corpus is single-domain and a query that even
// mentions another branch of law is better routed to a human.
func (c *KeywordClassifier) Classify(_ context.Context, text string) (domain.ScopeDecision, error) {
	lower := strings.ToLower(text)

	in := matchTerms(lower, c.inScope)
	out := matchTerms(lower, c.outOfScope)

	var d domain.ScopeDomain
	var rationale string
	switch {
	case len(out) > 0 && len(out) >= len(in):
		d = domain.DomainOtherLegal
		rationale = "termos fora do escopo: " + strings.Join(out, ", ")
	case len(in) > 0:
		d = domain.DomainConsumerLaw
		rationale = "termos de consumo: " + strings.Join(in, ", ")
	default:
		d = domain.DomainNonLegal
		rationale = "nenhum termo jurídico reconhecido"
	}

	return domain.ScopeDecision{
		Domain:    d,
		Rationale: rationale,
		Source:    domain.SourceHeuristic,
	}, nil
}

func matchTerms(lower string, terms []string) []string {
	var hits []string
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits = append(hits, t)
		}
	}
	sort.Strings(hits)
	return hits
}

// classifyWithFallback runs the primary classifier and degrades to the
// fallback on any error, recording which path produced the decision.
func classifyWithFallback(
	ctx context.Context, primary, fallback ScopeClassifier, text string, logger *zap.Logger,
) domain.ScopeDecision {
	if primary != nil {
		decision, err := primary.Classify(ctx, text)
		if err == nil {
			return decision
		}
		logger.Warn("primary scope classifier failed, using heuristic", zap.Error(err))
	}

	decision, err := fallback.Classify(ctx, text)
	if err != nil {
		// The keyword classifier cannot fail; keep the contract total anyway.
		logger.Error("fallback scope classifier failed", zap.Error(err))
		return domain.ScopeDecision{
			Domain:    domain.DomainNonLegal,
			Rationale: "classificação indisponível",
			Source:    domain.SourceHeuristic,
		}
	}
	return decision
}
