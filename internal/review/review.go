// Package review emits entries for human review when the pipeline cannot
// release a fully audited answer. The review workflow itself lives elsewhere;
// this side only appends.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

// Entry is one case referred to a human reviewer. Query is the cleaned query;
// raw text never leaves the pipeline.
type Entry struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Query     string         `json:"query"`
	Reason    string         `json:"reason"`
	Issues    []domain.Issue `json:"issues,omitempty"`
}

// Queue accepts review entries.
type Queue interface {
	Submit(ctx context.Context, e Entry) error
}

// FileQueue appends entries to a JSONL file, one object per line.
type FileQueue struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileQueue creates a file-backed queue at path.
func NewFileQueue(path string, logger *zap.Logger) *FileQueue {
	return &FileQueue{path: path, logger: logger}
}

// Submit assigns an identifier and appends the entry.
func (q *FileQueue) Submit(_ context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal review entry: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open review queue %s: %w", q.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append review entry: %w", err)
	}

	q.logger.Info("review entry submitted",
		zap.String("review_id", e.ID),
		zap.String("reason", e.Reason),
	)
	return nil
}

// NopQueue discards entries. Used when no review path is configured.
type NopQueue struct{}

func (NopQueue) Submit(context.Context, Entry) error { return nil }
