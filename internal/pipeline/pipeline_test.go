package pipeline

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
	"github.com/rc-ventura/educajus-br-ai/internal/drafter"
	"github.com/rc-ventura/educajus-br-ai/internal/guard"
	"github.com/rc-ventura/educajus-br-ai/internal/polisher"
	"github.com/rc-ventura/educajus-br-ai/internal/review"
)

type mockGuard struct {
	result guard.Result
	calls  int
}

func (m *mockGuard) Evaluate(context.Context, string) guard.Result {
	m.calls++
	return m.result
}

type mockRetriever struct {
	es    domain.EvidenceSet
	err   error
	calls int
}

func (m *mockRetriever) Retrieve(context.Context, string, int) (domain.EvidenceSet, error) {
	m.calls++
	return m.es, m.err
}

type mockDrafter struct {
	draft        domain.Draft
	degraded     bool
	calls        int
	lastFeedback []string
}

func (m *mockDrafter) Draft(
	_ context.Context, _ string, _ domain.EvidenceSet, feedback []string,
) (domain.Draft, bool, error) {
	m.calls++
	m.lastFeedback = feedback
	return m.draft, m.degraded, nil
}

type mockAuditor struct {
	reports []domain.AuditReport
	calls   int
}

func (m *mockAuditor) Audit(domain.Draft, domain.EvidenceSet) domain.AuditReport {
	report := m.reports[0]
	if len(m.reports) > 1 {
		m.reports = m.reports[1:]
	}
	m.calls++
	return report
}

type mockQueue struct {
	entries []review.Entry
}

func (m *mockQueue) Submit(_ context.Context, e review.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func passingGuard() *mockGuard {
	return &mockGuard{result: guard.Result{
		CleanedQuery: "posso desistir da compra?",
		Scope:        domain.ScopeDecision{Domain: domain.DomainConsumerLaw, Source: domain.SourceHeuristic},
	}}
}

func evidenceFixture() domain.EvidenceSet {
	return domain.EvidenceSet{
		{Chunk: domain.Chunk{ID: 49, Article: "Art. 49", Law: "CDC", URL: "https://example.org/cdc#49", Text: "..."}, Score: 0.9},
		{Chunk: domain.Chunk{ID: 18, Article: "Art. 18", Law: "CDC", URL: "https://example.org/cdc#18", Text: "..."}, Score: 0.8},
	}
}

func groundedDraft() domain.Draft {
	return domain.Draft{
		Summary: "Em compras online o consumidor pode desistir em 7 dias.",
		Steps:   []string{"Confira o prazo", "Comunique o fornecedor", "Guarde o comprovante"},
		LegalBasis: []domain.Citation{
			{Label: "CDC Art. 49", URL: "https://example.org/cdc#49", ChunkIDs: []int64{49}},
		},
	}
}

func okReport() domain.AuditReport { return domain.AuditReport{OK: true} }

func failReport() domain.AuditReport {
	return domain.AuditReport{OK: false, Issues: []domain.Issue{{
		Code:     domain.IssueUnsupportedClaim,
		Severity: domain.IssueError,
		Message:  "citação fora das evidências",
		Citation: "CDC Art. 99",
	}}}
}

func newTestPipeline(g IntakeGuard, r Retriever, d Drafter, a Auditor, q review.Queue) *Pipeline {
	return New(Options{
		Guard:       g,
		Retriever:   r,
		Drafter:     d,
		Auditor:     a,
		Polish:      polisher.Polish,
		Template:    drafter.Template,
		Reviews:     q,
		MinEvidence: 2,
		Logger:      zap.NewNop(),
	})
}

func TestRunBlockedAtIntake(t *testing.T) {
	g := &mockGuard{result: guard.Result{
		Blocked: true,
		Reason:  "a consulta contém dados pessoais sensíveis (cpf)",
	}}
	r := &mockRetriever{}
	p := newTestPipeline(g, r, &mockDrafter{}, &mockAuditor{reports: []domain.AuditReport{okReport()}}, nil)

	s, err := p.Run(context.Background(), "meu CPF é ...", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Status != StatusBlocked {
		t.Errorf("status = %s, want blocked", s.Status)
	}
	if r.calls != 0 {
		t.Error("retrieval must not run for a blocked query")
	}
}

func TestRunGroundedAnswer(t *testing.T) {
	d := &mockDrafter{draft: groundedDraft()}
	a := &mockAuditor{reports: []domain.AuditReport{okReport()}}
	p := newTestPipeline(passingGuard(), &mockRetriever{es: evidenceFixture()}, d, a, nil)

	s, err := p.Run(context.Background(), "posso desistir da compra?", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Status != StatusSucceeded {
		t.Fatalf("status = %s (reason %q), want succeeded", s.Status, s.Reason)
	}
	if s.Degraded {
		t.Error("clean run must not be degraded")
	}

	ids := s.Evidence.IDs()
	for _, id := range s.Draft.CitedIDs() {
		if _, ok := ids[id]; !ok {
			t.Errorf("draft cites chunk %d outside the evidence", id)
		}
	}

	wantStages := []string{StageIntake, StageRetrieve, StageDraft, StageAudit, StagePolish}
	if len(s.Trace) != len(wantStages) {
		t.Fatalf("trace = %v, want stages %v", s.Trace, wantStages)
	}
	for i, want := range wantStages {
		if s.Trace[i].Stage != want {
			t.Errorf("trace[%d] = %s, want %s", i, s.Trace[i].Stage, want)
		}
	}
}

func TestRunRetrievalFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"empty corpus", domain.ErrEmptyCorpus},
		{"index unavailable", domain.ErrIndexUnavailable},
		{"encoder mismatch", domain.ErrEncoderMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDrafter{draft: groundedDraft()}
			p := newTestPipeline(passingGuard(), &mockRetriever{err: tt.err}, d,
				&mockAuditor{reports: []domain.AuditReport{okReport()}}, nil)

			s, err := p.Run(context.Background(), "pergunta", 5)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if s.Status != StatusFailed {
				t.Errorf("status = %s, want failed", s.Status)
			}
			if s.Reason == "" {
				t.Error("failed run must carry a reason")
			}
			if d.calls != 0 {
				t.Error("drafting must not run after a retrieval failure")
			}
		})
	}
}

func TestRunInsufficientEvidence(t *testing.T) {
	d := &mockDrafter{draft: groundedDraft()}
	one := evidenceFixture()[:1]
	p := newTestPipeline(passingGuard(), &mockRetriever{es: one}, d,
		&mockAuditor{reports: []domain.AuditReport{okReport()}}, nil)

	s, err := p.Run(context.Background(), "pergunta", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Status != StatusFailed {
		t.Errorf("status = %s, want failed", s.Status)
	}
	if d.calls != 0 {
		t.Error("drafting must not run on insufficient evidence")
	}
}

func TestRunRetryAfterAuditFailure(t *testing.T) {
	d := &mockDrafter{draft: groundedDraft()}
	a := &mockAuditor{reports: []domain.AuditReport{failReport(), okReport()}}
	p := newTestPipeline(passingGuard(), &mockRetriever{es: evidenceFixture()}, d, a, nil)

	s, err := p.Run(context.Background(), "pergunta", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Status != StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", s.Status)
	}
	if d.calls != 2 {
		t.Errorf("drafter calls = %d, want 2", d.calls)
	}
	if len(d.lastFeedback) == 0 {
		t.Error("retry must carry the audit feedback")
	}
	if s.Retries != 1 {
		t.Errorf("retries = %d, want 1", s.Retries)
	}
	if s.Degraded {
		t.Error("a successful retry is not degraded")
	}
}

func TestRunBoundedRetry(t *testing.T) {
	// Audit always fails: the drafter must be invoked at most twice per run,
	// and the run must resolve with the degraded template.
	for i := 0; i < 100; i++ {
		d := &mockDrafter{draft: groundedDraft()}
		q := &mockQueue{}
		a := &mockAuditor{reports: []domain.AuditReport{failReport()}}
		p := newTestPipeline(passingGuard(), &mockRetriever{es: evidenceFixture()}, d, a, q)

		s, err := p.Run(context.Background(), "pergunta", 5)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if d.calls != 2 {
			t.Fatalf("run %d: drafter calls = %d, want exactly 2", i, d.calls)
		}
		if s.Status != StatusSucceeded || !s.Degraded {
			t.Fatalf("run %d: status = %s degraded = %v, want degraded success", i, s.Status, s.Degraded)
		}
		if s.Retries != 1 {
			t.Fatalf("run %d: retries = %d, want 1 (one re-draft happened)", i, s.Retries)
		}
		if len(q.entries) != 1 {
			t.Fatalf("run %d: review entries = %d, want 1", i, len(q.entries))
		}
		if q.entries[0].Reason != "audit_failed" {
			t.Errorf("review reason = %q", q.entries[0].Reason)
		}
	}
}

func TestRunFallbackDraftIsGrounded(t *testing.T) {
	d := &mockDrafter{draft: groundedDraft()}
	a := &mockAuditor{reports: []domain.AuditReport{failReport()}}
	p := newTestPipeline(passingGuard(), &mockRetriever{es: evidenceFixture()}, d, a, &mockQueue{})

	s, err := p.Run(context.Background(), "pergunta", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ids := s.Evidence.IDs()
	if len(s.Draft.LegalBasis) == 0 {
		t.Fatal("fallback draft must carry citations")
	}
	for _, id := range s.Draft.CitedIDs() {
		if _, ok := ids[id]; !ok {
			t.Errorf("fallback cites chunk %d outside the evidence", id)
		}
	}
}

func TestRunDiscardsPolishThatAltersCitations(t *testing.T) {
	d := &mockDrafter{draft: groundedDraft()}
	a := &mockAuditor{reports: []domain.AuditReport{okReport()}}

	corrupting := func(in domain.Draft) domain.Draft {
		out := in.Clone()
		out.Summary = "polida"
		out.LegalBasis[0].Label = "CDC Art. 50"
		return out
	}

	p := New(Options{
		Guard:       passingGuard(),
		Retriever:   &mockRetriever{es: evidenceFixture()},
		Drafter:     d,
		Auditor:     a,
		Polish:      corrupting,
		Template:    drafter.Template,
		MinEvidence: 2,
		Logger:      zap.NewNop(),
	})

	s, err := p.Run(context.Background(), "pergunta", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Status != StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", s.Status)
	}
	if s.Draft.LegalBasis[0].Label != "CDC Art. 49" {
		t.Errorf("citation altered by polish survived: %v", s.Draft.LegalBasis)
	}
	if s.Draft.Summary == "polida" {
		t.Error("corrupted polish output must be discarded entirely")
	}
}

func TestRunCancellationAtStageBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &mockRetriever{es: evidenceFixture()}
	p := newTestPipeline(passingGuard(), r, &mockDrafter{draft: groundedDraft()},
		&mockAuditor{reports: []domain.AuditReport{okReport()}}, nil)

	s, err := p.Run(ctx, "pergunta", 5)
	if err == nil {
		t.Fatal("expected context error")
	}
	if s.Status != StatusFailed {
		t.Errorf("status = %s, want failed", s.Status)
	}
	if r.calls != 0 {
		t.Error("no stage may run after cancellation is observed")
	}
}
