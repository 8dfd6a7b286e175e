// Package httpapi exposes the pipeline over HTTP: one synchronous ask
// endpoint plus health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
	"github.com/rc-ventura/educajus-br-ai/internal/index"
	"github.com/rc-ventura/educajus-br-ai/internal/metrics"
	"github.com/rc-ventura/educajus-br-ai/internal/pipeline"
)

// maxQueryChars bounds request size before the pipeline sees it.
const maxQueryChars = 2000

// Runner is the slice of the pipeline the server needs.
type Runner interface {
	Run(ctx context.Context, query string, k int) (*pipeline.State, error)
}

// UpstreamChecker reports embedding upstream availability for health probes.
type UpstreamChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server handles the ask API.
type Server struct {
	pipeline Runner
	provider index.Provider
	upstream UpstreamChecker // nil disables the upstream health check
	logger   *zap.Logger
}

// NewServer creates the HTTP API server.
func NewServer(p Runner, provider index.Provider, upstream UpstreamChecker, logger *zap.Logger) *Server {
	return &Server{pipeline: p, provider: provider, upstream: upstream, logger: logger}
}

// Router assembles the chi router with metrics, recovery and bearer auth.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Post("/v1/ask", s.Ask)
	r.Get("/health", s.Health)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

type askRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type blockInfo struct {
	Reason   string           `json:"reason"`
	Findings []domain.Finding `json:"findings,omitempty"`
}

type stageView struct {
	Stage     string `json:"stage"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Note      string `json:"note,omitempty"`
}

type askMeta struct {
	RunID         string                `json:"run_id"`
	Scope         *domain.ScopeDecision `json:"scope,omitempty"`
	Stages        []stageView           `json:"stages"`
	RetrievalHits int                   `json:"retrieval_hits"`
	AuditIssues   []domain.Issue        `json:"audit_issues,omitempty"`
	Retries       int                   `json:"retries"`
	Degraded      bool                  `json:"degraded"`
}

type askResponse struct {
	Status   pipeline.Status `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Blocks   *blockInfo      `json:"blocks,omitempty"`
	Answer   *domain.Draft   `json:"answer,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Meta     askMeta         `json:"meta"`
}

// Ask handles POST /v1/ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "query is required")
		return
	}
	if len([]rune(req.Query)) > maxQueryChars {
		writeError(w, http.StatusBadRequest, "validation_failed", "query is too long")
		return
	}
	if req.K < 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "k must be positive")
		return
	}

	state, err := s.pipeline.Run(r.Context(), req.Query, req.K)
	if err != nil {
		// Cancellation mid-run: the client is gone or gave up.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Info("request cancelled mid-run", zap.String("run_id", state.RunID))
			writeError(w, http.StatusRequestTimeout, "cancelled", "request cancelled")
			return
		}
		s.logger.Error("pipeline run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	status := http.StatusOK
	// A run that failed because no index is serving maps to 503, so load
	// balancers and retries treat it as transient.
	if errors.Is(state.Cause, domain.ErrIndexUnavailable) || errors.Is(state.Cause, domain.ErrEmptyCorpus) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, toResponse(state))
}

func toResponse(state *pipeline.State) askResponse {
	resp := askResponse{
		Status:   state.Status,
		Reason:   state.Reason,
		Warnings: state.Warnings,
		Meta: askMeta{
			RunID:         state.RunID,
			Stages:        make([]stageView, len(state.Trace)),
			RetrievalHits: len(state.Evidence),
			AuditIssues:   state.AuditIssues,
			Retries:       state.Retries,
			Degraded:      state.Degraded,
		},
	}
	for i, tr := range state.Trace {
		resp.Meta.Stages[i] = stageView{
			Stage:     tr.Stage,
			ElapsedMS: tr.Elapsed.Milliseconds(),
			Note:      tr.Note,
		}
	}
	if state.Scope.Domain != "" {
		scope := state.Scope
		resp.Meta.Scope = &scope
	}

	switch state.Status {
	case pipeline.StatusBlocked:
		resp.Blocks = &blockInfo{Reason: state.Reason, Findings: state.Findings}
	case pipeline.StatusSucceeded:
		draft := state.Draft
		resp.Answer = &draft
	}
	return resp
}

// Health handles GET /health. The service is degraded without a loaded index
// snapshot; it still answers health checks so orchestration can tell the
// difference between down and not-yet-ready.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"index": "ok"}
	status := "healthy"
	httpStatus := http.StatusOK

	if _, err := s.provider.Snapshot(); err != nil {
		checks["index"] = err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.upstream != nil {
		checks["embedding"] = "ok"
		if err := s.upstream.HealthCheck(r.Context()); err != nil {
			checks["embedding"] = err.Error()
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// jsonRecoverer converts panics into JSON 500 responses.
func jsonRecoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
					)
					writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
