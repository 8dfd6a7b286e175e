// Package drafter synthesizes a structured, citation-backed answer from
// retrieved evidence. Generation failures never propagate: the stage degrades
// to a deterministic template built from the evidence itself.
package drafter

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
	"github.com/rc-ventura/educajus-br-ai/internal/metrics"
)

// ChatCompleter is the slice of the chat client the drafter needs.
type ChatCompleter interface {
	CompleteJSON(ctx context.Context, system, user string, timeout time.Duration) (string, error)
}

// Drafter produces drafts from cleaned queries and evidence.
type Drafter struct {
	chat    ChatCompleter
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Drafter. A nil chat client makes every call take the template
// path, which keeps the pipeline functional without a language model.
func New(chat ChatCompleter, timeout time.Duration, logger *zap.Logger) *Drafter {
	return &Drafter{chat: chat, timeout: timeout, logger: logger}
}

// Draft generates an answer grounded in the evidence set. feedback carries the
// auditor's correction lines on the single retry attempt, nil on the first.
// The returned flag reports whether the deterministic template was used.
// Fails only with ErrNoEvidence; upstream failures degrade instead.
func (d *Drafter) Draft(
	ctx context.Context, query string, es domain.EvidenceSet, feedback []string,
) (domain.Draft, bool, error) {
	if len(es) == 0 {
		return domain.Draft{}, false, domain.ErrNoEvidence
	}

	if d.chat == nil {
		metrics.DrafterFallbackTotal.WithLabelValues("no_model").Inc()
		return Template(query, es), true, nil
	}

	raw, err := d.chat.CompleteJSON(ctx, systemPrompt, renderUser(query, es, feedback), d.timeout)
	if err != nil {
		d.logger.Warn("draft generation failed, using template", zap.Error(err))
		metrics.DrafterFallbackTotal.WithLabelValues("upstream").Inc()
		return Template(query, es), true, nil
	}

	var draft domain.Draft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		d.logger.Warn("draft output malformed, using template", zap.Error(err))
		metrics.DrafterFallbackTotal.WithLabelValues("malformed").Inc()
		return Template(query, es), true, nil
	}

	return draft, false, nil
}
