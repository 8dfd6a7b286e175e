package pipeline

import (
	"time"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
	"github.com/rc-ventura/educajus-br-ai/internal/metrics"
)

// Status is the terminal outcome of one pipeline run.
type Status string

const (
	StatusBlocked   Status = "blocked"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Stage names, in execution order.
const (
	StageIntake   = "intake"
	StageRetrieve = "retrieve"
	StageDraft    = "draft"
	StageAudit    = "audit"
	StagePolish   = "polish"
	StageFallback = "fallback"
)

// maxDraftRetries bounds the audit-fail edge: exactly one re-draft, then the
// degraded template.
const maxDraftRetries = 1

// StageTrace is one observability record per transition.
type StageTrace struct {
	Stage   string        `json:"stage"`
	Elapsed time.Duration `json:"elapsed"`
	Note    string        `json:"note,omitempty"`
}

// State is the envelope threaded through all stages of one run. It is owned
// by the state machine for the lifetime of one request and never shared.
type State struct {
	RunID        string
	Query        string
	CleanedQuery string

	Findings []domain.Finding
	Scope    domain.ScopeDecision
	Warnings []string

	Evidence domain.EvidenceSet
	Draft    domain.Draft

	AuditIssues []domain.Issue
	Retries     int
	Degraded    bool

	Status Status
	Reason string
	// Cause carries the sentinel behind a failed status, for transport-level
	// mapping. Never exposed to callers directly.
	Cause error
	Trace []StageTrace
}

// record appends a trace entry and feeds the stage duration histogram.
func (s *State) record(stage string, start time.Time, note string) {
	elapsed := time.Since(start)
	s.Trace = append(s.Trace, StageTrace{Stage: stage, Elapsed: elapsed, Note: note})
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// finish sets the terminal status and counts the run.
func (s *State) finish(status Status, reason string) *State {
	s.Status = status
	s.Reason = reason
	metrics.PipelineRunsTotal.WithLabelValues(string(status)).Inc()
	return s
}
