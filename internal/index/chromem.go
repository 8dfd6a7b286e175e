package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync/atomic"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/rc-ventura/educajus-br-ai/internal/corpus"
	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

// Chromem serves an embedded chromem-go index from a local artifact directory.
// Reload opens the build pointed at by the manifest and swaps the current
// snapshot atomically; readers keep the view they started with.
type Chromem struct {
	path       string
	collection string
	logger     *zap.Logger

	current atomic.Pointer[chromemSnapshot]
}

// OpenChromem creates the provider and attempts an initial load. A missing or
// broken artifact is not fatal: the provider starts empty and Snapshot reports
// ErrIndexUnavailable until a reload succeeds.
func OpenChromem(path, collection string, logger *zap.Logger) *Chromem {
	c := &Chromem{path: path, collection: collection, logger: logger}
	if err := c.Reload(); err != nil {
		logger.Warn("index artifact not loaded, serving unavailable",
			zap.String("path", path),
			zap.Error(err),
		)
	}
	return c
}

// Snapshot returns the current build, or ErrIndexUnavailable before the first
// successful load.
func (c *Chromem) Snapshot() (Snapshot, error) {
	s := c.current.Load()
	if s == nil {
		return nil, domain.ErrIndexUnavailable
	}
	return s, nil
}

// Reload reads the manifest, opens the referenced build and validates the
// vector/metadata alignment before swapping it in.
func (c *Chromem) Reload() error {
	man, err := LoadManifest(filepath.Join(c.path, ManifestFile))
	if err != nil {
		return err
	}

	buildDir := filepath.Join(c.path, man.BuildDir)
	meta, err := corpus.Load(filepath.Join(buildDir, MetadataFile))
	if err != nil {
		return err
	}

	db, err := chromem.NewPersistentDB(filepath.Join(buildDir, VectorsDir), false)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}

	coll := db.GetCollection(c.collection, rejectQueryEmbedding)
	if coll == nil {
		return fmt.Errorf("%w: collection %q not present in build %s",
			domain.ErrCorpusMisaligned, c.collection, man.BuildDir)
	}

	// Bidirectional alignment gate: every vector must have a metadata record
	// and vice versa. A count mismatch means the build is inconsistent.
	if coll.Count() != meta.Count() || man.Count != meta.Count() {
		return fmt.Errorf("%w: vectors=%d metadata=%d manifest=%d",
			domain.ErrCorpusMisaligned, coll.Count(), meta.Count(), man.Count)
	}

	c.current.Store(&chromemSnapshot{coll: coll, meta: meta, man: man})
	c.logger.Info("index snapshot loaded",
		zap.String("build", man.BuildDir),
		zap.String("model", man.Model),
		zap.Int("count", man.Count),
	)
	return nil
}

// rejectQueryEmbedding guards against accidental text-side embedding inside
// chromem: all query vectors are produced by the retriever's encoder.
func rejectQueryEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding inside the index is disabled; vectors are precomputed")
}

type chromemSnapshot struct {
	coll *chromem.Collection
	meta *corpus.Store
	man  Manifest
}

func (s *chromemSnapshot) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	count := s.coll.Count()
	if count == 0 {
		return nil, domain.ErrEmptyCorpus
	}
	// chromem requires nResults <= document count.
	if k > count {
		k = count
	}
	if k < 1 {
		k = 1
	}

	results, err := s.coll.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			// Non-numeric identifiers cannot exist in a well-formed build;
			// skip so the retriever's drop accounting sees the shortfall.
			continue
		}
		hits = append(hits, Hit{ID: id, Score: float64(r.Similarity)})
	}
	return hits, nil
}

func (s *chromemSnapshot) Resolve(id int64) (domain.Chunk, bool) { return s.meta.Resolve(id) }

func (s *chromemSnapshot) Count() int { return s.meta.Count() }

func (s *chromemSnapshot) Manifest() Manifest { return s.man }

// BuildChromem writes a fresh chromem collection from chunks and precomputed
// embeddings. Used by the indexer; the server only reads.
func BuildChromem(
	ctx context.Context, buildDir, collection string,
	chunks []domain.Chunk, embeddings [][]float32,
) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks vs %d embeddings",
			domain.ErrCorpusMisaligned, len(chunks), len(embeddings))
	}

	db, err := chromem.NewPersistentDB(filepath.Join(buildDir, VectorsDir), false)
	if err != nil {
		return fmt.Errorf("create vector store: %w", err)
	}

	coll, err := db.GetOrCreateCollection(collection, nil, rejectQueryEmbedding)
	if err != nil {
		return fmt.Errorf("create collection %q: %w", collection, err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        strconv.FormatInt(c.ID, 10),
			Content:   c.Text,
			Embedding: embeddings[i],
			Metadata: map[string]string{
				"article": c.Article,
				"law":     c.Law,
			},
		}
	}

	// Concurrency 1: embeddings are precomputed, nothing to parallelize.
	if err := coll.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}
