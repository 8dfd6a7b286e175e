// Package index provides the vector index backends. Both drivers expose
// immutable snapshots so one request always sees a consistent pairing of
// vectors and chunk metadata; rebuilds swap the whole snapshot atomically.
package index

import (
	"context"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

// Hit is one raw nearest-neighbor result before metadata resolution.
type Hit struct {
	ID    int64
	Score float64
}

// Snapshot is a consistent read-only view of one index build.
type Snapshot interface {
	// Search returns up to k raw (identifier, score) pairs for the vector.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	// Resolve looks up the metadata record for an identifier.
	Resolve(id int64) (domain.Chunk, bool)
	// Count returns the corpus size of this build.
	Count() int
	// Manifest describes how this build was produced.
	Manifest() Manifest
}

// Provider hands out the current snapshot. Implementations must be safe for
// unbounded concurrent readers while a reload swaps the snapshot underneath.
type Provider interface {
	Snapshot() (Snapshot, error)
}
