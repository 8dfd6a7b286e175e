package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
	"github.com/rc-ventura/educajus-br-ai/internal/index"
	"github.com/rc-ventura/educajus-br-ai/internal/pipeline"
)

type fakeRunner struct {
	state *pipeline.State
	err   error
	query string
	k     int
}

func (f *fakeRunner) Run(_ context.Context, query string, k int) (*pipeline.State, error) {
	f.query = query
	f.k = k
	return f.state, f.err
}

type fakeProvider struct {
	err error
}

func (p *fakeProvider) Snapshot() (index.Snapshot, error) {
	if p.err != nil {
		return nil, p.err
	}
	return nil, nil
}

type fakeUpstream struct {
	err error
}

func (u *fakeUpstream) HealthCheck(context.Context) error { return u.err }

func succeededState() *pipeline.State {
	return &pipeline.State{
		RunID:  "run-1",
		Status: pipeline.StatusSucceeded,
		Scope:  domain.ScopeDecision{Domain: domain.DomainConsumerLaw, Source: domain.SourceLLM},
		Evidence: domain.EvidenceSet{
			{Chunk: domain.Chunk{ID: 49, Article: "Art. 49", Law: "CDC"}, Score: 0.9},
			{Chunk: domain.Chunk{ID: 18, Article: "Art. 18", Law: "CDC"}, Score: 0.8},
		},
		Draft: domain.Draft{
			Summary: "Resumo.",
			Steps:   []string{"a", "b", "c"},
			LegalBasis: []domain.Citation{
				{Label: "CDC Art. 49", ChunkIDs: []int64{49}},
			},
		},
		Trace: []pipeline.StageTrace{
			{Stage: pipeline.StageIntake}, {Stage: pipeline.StageRetrieve},
			{Stage: pipeline.StageDraft}, {Stage: pipeline.StageAudit},
			{Stage: pipeline.StagePolish},
		},
	}
}

func doAsk(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Router(nil).ServeHTTP(rr, req)
	return rr
}

func TestAskSucceeded(t *testing.T) {
	runner := &fakeRunner{state: succeededState()}
	srv := NewServer(runner, &fakeProvider{}, nil, zap.NewNop())

	rr := doAsk(t, srv, `{"query": "posso desistir da compra?", "k": 3}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if runner.query != "posso desistir da compra?" || runner.k != 3 {
		t.Errorf("pipeline called with (%q, %d)", runner.query, runner.k)
	}

	var resp askResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != pipeline.StatusSucceeded {
		t.Errorf("status = %s, want succeeded", resp.Status)
	}
	if resp.Answer == nil || len(resp.Answer.LegalBasis) != 1 {
		t.Errorf("answer missing or citation count wrong: %+v", resp.Answer)
	}
	if resp.Blocks != nil {
		t.Error("succeeded response must not carry a blocks section")
	}
	if resp.Meta.RetrievalHits != 2 {
		t.Errorf("retrieval_hits = %d, want 2", resp.Meta.RetrievalHits)
	}
	if len(resp.Meta.Stages) != 5 {
		t.Errorf("stages = %d, want 5", len(resp.Meta.Stages))
	}
}

func TestAskBlocked(t *testing.T) {
	state := &pipeline.State{
		RunID:  "run-2",
		Status: pipeline.StatusBlocked,
		Reason: "a consulta contém dados pessoais sensíveis (cpf)",
		Findings: []domain.Finding{
			{Kind: domain.FindingCPF, Confirmed: true, Severity: domain.SeverityBlock},
		},
	}
	srv := NewServer(&fakeRunner{state: state}, &fakeProvider{}, nil, zap.NewNop())

	rr := doAsk(t, srv, `{"query": "meu CPF é ..."}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp askResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != pipeline.StatusBlocked {
		t.Errorf("status = %s, want blocked", resp.Status)
	}
	if resp.Blocks == nil || !strings.Contains(resp.Blocks.Reason, "cpf") {
		t.Errorf("blocks section missing or reason wrong: %+v", resp.Blocks)
	}
	if resp.Answer != nil {
		t.Error("blocked response must not carry an answer")
	}

	// The finding value is tagged json:"-"; make sure nothing leaks.
	if strings.Contains(rr.Body.String(), "529.982") {
		t.Error("sensitive value leaked into the response")
	}
}

func TestAskValidation(t *testing.T) {
	srv := NewServer(&fakeRunner{state: succeededState()}, &fakeProvider{}, nil, zap.NewNop())

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"empty query", `{"query": ""}`},
		{"negative k", `{"query": "x", "k": -1}`},
		{"oversized query", `{"query": "` + strings.Repeat("a", maxQueryChars+1) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doAsk(t, srv, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestAskIndexUnavailable(t *testing.T) {
	state := &pipeline.State{
		RunID:  "run-4",
		Status: pipeline.StatusFailed,
		Reason: "o índice de busca está indisponível; tente novamente mais tarde",
		Cause:  domain.ErrIndexUnavailable,
	}
	srv := NewServer(&fakeRunner{state: state}, &fakeProvider{}, nil, zap.NewNop())

	rr := doAsk(t, srv, `{"query": "pergunta"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}

	var resp askResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != pipeline.StatusFailed || resp.Reason == "" {
		t.Errorf("body must still carry the failed status and reason: %+v", resp)
	}
}

func TestAskCancelled(t *testing.T) {
	runner := &fakeRunner{
		state: &pipeline.State{RunID: "run-3", Status: pipeline.StatusFailed},
		err:   context.Canceled,
	}
	srv := NewServer(runner, &fakeProvider{}, nil, zap.NewNop())

	rr := doAsk(t, srv, `{"query": "pergunta"}`)
	if rr.Code != http.StatusRequestTimeout {
		t.Errorf("status = %d, want 408", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Run("healthy with a loaded snapshot", func(t *testing.T) {
		srv := NewServer(&fakeRunner{state: succeededState()}, &fakeProvider{}, nil, zap.NewNop())

		req := httptest.NewRequest("GET", "/health", http.NoBody)
		rr := httptest.NewRecorder()
		srv.Router(nil).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rr.Code)
		}
	})

	t.Run("degraded when the embedding upstream is down", func(t *testing.T) {
		srv := NewServer(&fakeRunner{state: succeededState()}, &fakeProvider{},
			&fakeUpstream{err: domain.ErrUpstreamUnavailable}, zap.NewNop())

		req := httptest.NewRequest("GET", "/health", http.NoBody)
		rr := httptest.NewRecorder()
		srv.Router(nil).ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "embedding") {
			t.Errorf("body missing embedding check: %s", rr.Body.String())
		}
	})

	t.Run("degraded without an index", func(t *testing.T) {
		srv := NewServer(&fakeRunner{state: succeededState()},
			&fakeProvider{err: domain.ErrIndexUnavailable}, nil, zap.NewNop())

		req := httptest.NewRequest("GET", "/health", http.NoBody)
		rr := httptest.NewRecorder()
		srv.Router(nil).ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rr.Code)
		}
	})
}
