// Package retriever turns a cleaned query into ranked, metadata-resolved
// evidence. It owns the runtime half of the vector/metadata alignment defense:
// raw hits that cannot be resolved are dropped and accounted, never returned.
package retriever

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
	"github.com/rc-ventura/educajus-br-ai/internal/index"
	"github.com/rc-ventura/educajus-br-ai/internal/metrics"
)

// Retriever performs similarity search over the current index snapshot.
type Retriever struct {
	provider index.Provider
	embedder domain.Embedder

	// Encoder identity, compared against every snapshot's manifest. A query
	// embedded with a different model than the index produces finite,
	// plausible-looking, wrong vectors; this check is the only thing that
	// turns that silent bug into a hard error.
	encoderModel string
	encoderDims  int

	defaultK int
	maxK     int
	logger   *zap.Logger
}

// Options configures a Retriever.
type Options struct {
	Provider     index.Provider
	Embedder     domain.Embedder
	EncoderModel string
	EncoderDims  int
	DefaultK     int
	MaxK         int
	Logger       *zap.Logger
}

// New creates a Retriever.
func New(opts Options) *Retriever {
	return &Retriever{
		provider:     opts.Provider,
		embedder:     opts.Embedder,
		encoderModel: opts.EncoderModel,
		encoderDims:  opts.EncoderDims,
		defaultK:     opts.DefaultK,
		maxK:         opts.MaxK,
		logger:       opts.Logger,
	}
}

// Retrieve embeds the query and returns up to k evidence entries, ranked
// descending by score with ascending-ID tie breaks. k <= 0 selects the
// configured default; k beyond the corpus size returns the whole corpus.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (domain.EvidenceSet, error) {
	snap, err := r.provider.Snapshot()
	if err != nil {
		return nil, err
	}

	if err := r.checkEncoder(snap.Manifest()); err != nil {
		return nil, err
	}

	if snap.Count() == 0 {
		return nil, domain.ErrEmptyCorpus
	}
	k = clampK(k, r.defaultK, r.maxK, snap.Count())

	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	start := time.Now()
	hits, err := snap.Search(ctx, emb.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	evidence := make(domain.EvidenceSet, 0, len(hits))
	dropped := 0
	for _, h := range hits {
		chunk, ok := snap.Resolve(h.ID)
		if !ok {
			dropped++
			metrics.RetrievalDroppedTotal.Inc()
			r.logger.Warn("dropping hit with no metadata record",
				zap.Int64("chunk_id", h.ID),
				zap.String("build", snap.Manifest().BuildDir),
			)
			continue
		}
		evidence = append(evidence, domain.Evidence{Chunk: chunk, Score: h.Score})
	}
	evidence.Sort()

	metrics.RetrievalHits.Observe(float64(len(evidence)))
	r.logger.Debug("retrieval finished",
		zap.Int("k", k),
		zap.Int("hits", len(evidence)),
		zap.Int("dropped", dropped),
		zap.Duration("elapsed", time.Since(start)),
	)

	return evidence, nil
}

// checkEncoder refuses to search a snapshot built by a different embedding
// configuration than the one answering queries.
func (r *Retriever) checkEncoder(man index.Manifest) error {
	if man.Model != "" && r.encoderModel != "" && man.Model != r.encoderModel {
		return fmt.Errorf("%w: index built with %q, queries embedded with %q",
			domain.ErrEncoderMismatch, man.Model, r.encoderModel)
	}
	if man.Dimensions > 0 && r.encoderDims > 0 && man.Dimensions != r.encoderDims {
		return fmt.Errorf("%w: index dimensions %d, encoder dimensions %d",
			domain.ErrEncoderMismatch, man.Dimensions, r.encoderDims)
	}
	return nil
}

// clampK resolves the effective neighbor count: default when unset, then
// bounded by the configured maximum and the corpus size.
func clampK(k, defaultK, maxK, corpusSize int) int {
	if k <= 0 {
		k = defaultK
	}
	if maxK > 0 && k > maxK {
		k = maxK
	}
	if k > corpusSize {
		k = corpusSize
	}
	if k < 1 {
		k = 1
	}
	return k
}
