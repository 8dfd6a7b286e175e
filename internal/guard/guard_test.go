package guard

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

func newTestGuard(primary ScopeClassifier, disclosure WarnDisclosure) *Guard {
	return New(Options{
		Severity: map[string]string{
			"cpf":         "block",
			"cnpj":        "block",
			"email":       "block",
			"phone":       "block",
			"case_number": "warn",
		},
		MaskToken:      "[dado-removido]",
		Primary:        primary,
		Fallback:       NewKeywordClassifier(testInScopeTerms, testOutOfScopeTerms),
		WarnDisclosure: disclosure,
		Logger:         zap.NewNop(),
	})
}

type fixedClassifier struct {
	decision domain.ScopeDecision
	lastText string
}

func (f *fixedClassifier) Classify(_ context.Context, text string) (domain.ScopeDecision, error) {
	f.lastText = text
	return f.decision, nil
}

func TestGuardBlocksOnConfirmedPII(t *testing.T) {
	g := newTestGuard(nil, DisclosureLog)

	res := g.Evaluate(context.Background(), "meu CPF é 529.982.247-25, quero troca do produto")

	if !res.Blocked {
		t.Fatal("expected blocked=true")
	}
	if !strings.Contains(res.Reason, "cpf") {
		t.Errorf("reason should name the finding kind, got %q", res.Reason)
	}
	if strings.Contains(res.CleanedQuery, "529.982.247-25") {
		t.Errorf("cleaned query still contains the value: %q", res.CleanedQuery)
	}
}

func TestGuardChecksumFailurePasses(t *testing.T) {
	g := newTestGuard(nil, DisclosureLog)

	res := g.Evaluate(context.Background(), "meu CPF é 123.456.789-00, quero troca do produto")

	if res.Blocked {
		t.Fatalf("invalid checksum must not block, reason: %q", res.Reason)
	}
	if len(res.Findings) != 0 {
		t.Errorf("expected no findings, got %v", res.Findings)
	}
	// Nothing confirmed, nothing masked.
	if res.CleanedQuery != "meu CPF é 123.456.789-00, quero troca do produto" {
		t.Errorf("cleaned query altered: %q", res.CleanedQuery)
	}
}

func TestGuardBlockTakesPrecedenceOverScope(t *testing.T) {
	// Primary would approve the scope, but the confirmed CPF must win.
	primary := &fixedClassifier{decision: domain.ScopeDecision{
		Domain: domain.DomainConsumerLaw, Source: domain.SourceLLM,
	}}
	g := newTestGuard(primary, DisclosureLog)

	res := g.Evaluate(context.Background(), "CPF 529.982.247-25, garantia do produto")

	if !res.Blocked {
		t.Fatal("expected blocked=true")
	}
	if primary.lastText != "" {
		t.Error("a PII-blocked query must not reach the external classifier")
	}
}

func TestGuardClassifierSeesMaskedTextOnly(t *testing.T) {
	primary := &fixedClassifier{decision: domain.ScopeDecision{
		Domain: domain.DomainConsumerLaw, Source: domain.SourceLLM,
	}}
	g := newTestGuard(primary, DisclosureLog)

	res := g.Evaluate(context.Background(), "processo 1234567-89.2023.8.26.0100 sobre garantia")

	if res.Blocked {
		t.Fatalf("warn finding must not block, reason: %q", res.Reason)
	}
	if strings.Contains(primary.lastText, "1234567-89.2023.8.26.0100") {
		t.Errorf("classifier saw unmasked text: %q", primary.lastText)
	}
	if !strings.Contains(primary.lastText, "[dado-removido]") {
		t.Errorf("classifier input missing mask token: %q", primary.lastText)
	}
}

func TestGuardOutOfScopeBlocks(t *testing.T) {
	g := newTestGuard(nil, DisclosureLog)

	res := g.Evaluate(context.Background(), "fui acusado em processo penal, o que faço?")

	if !res.Blocked {
		t.Fatal("expected blocked=true for out-of-scope query")
	}
	if res.Scope.Domain != domain.DomainOtherLegal {
		t.Errorf("scope = %s, want other_legal", res.Scope.Domain)
	}
}

func TestGuardInScopePasses(t *testing.T) {
	g := newTestGuard(nil, DisclosureLog)

	res := g.Evaluate(context.Background(), "comprei um produto com defeito, tenho direito à troca?")

	if res.Blocked {
		t.Fatalf("expected pass, got blocked: %q", res.Reason)
	}
	if !res.Scope.InScope() {
		t.Errorf("scope = %s, want consumer_law", res.Scope.Domain)
	}
	if res.CleanedQuery != "comprei um produto com defeito, tenho direito à troca?" {
		t.Errorf("clean query must pass through unchanged: %q", res.CleanedQuery)
	}
}

func TestGuardWarnDisclosure(t *testing.T) {
	query := "processo 1234567-89.2023.8.26.0100, loja não entregou o produto"

	t.Run("log keeps warnings out of the result", func(t *testing.T) {
		g := newTestGuard(nil, DisclosureLog)
		res := g.Evaluate(context.Background(), query)
		if len(res.Warnings) != 0 {
			t.Errorf("expected no exposed warnings, got %v", res.Warnings)
		}
	})

	t.Run("expose returns warnings to the caller", func(t *testing.T) {
		g := newTestGuard(nil, DisclosureExpose)
		res := g.Evaluate(context.Background(), query)
		if len(res.Warnings) != 1 {
			t.Fatalf("expected 1 warning, got %v", res.Warnings)
		}
		if !strings.Contains(res.Warnings[0], "case_number") {
			t.Errorf("warning should name the kind, got %q", res.Warnings[0])
		}
	})
}
