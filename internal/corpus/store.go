// Package corpus holds the chunk metadata table consumed by retrieval.
// Records are immutable after load; a rebuild produces a whole new store.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

// Store is an in-memory chunk metadata table keyed by numeric identifier.
// Safe for unbounded concurrent reads: it is never mutated after construction.
type Store struct {
	chunks map[int64]domain.Chunk
	ids    []int64
}

// New builds a store from chunk records. Duplicate identifiers are a build
// defect and surface as ErrCorpusMisaligned.
func New(chunks []domain.Chunk) (*Store, error) {
	byID := make(map[int64]domain.Chunk, len(chunks))
	ids := make([]int64, 0, len(chunks))
	for _, c := range chunks {
		if _, dup := byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk id %d", domain.ErrCorpusMisaligned, c.ID)
		}
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &Store{chunks: byID, ids: ids}, nil
}

// Load reads chunk metadata from a JSONL file, one chunk per line.
func Load(path string) (*Store, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open metadata %s: %w", path, err)
	}
	defer f.Close()

	var chunks []domain.Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var c domain.Chunk
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			return nil, fmt.Errorf("parse metadata %s line %d: %w", path, line, err)
		}
		chunks = append(chunks, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", path, err)
	}

	return New(chunks)
}

// Write persists chunk metadata as JSONL. Used by the indexer.
func Write(path string, chunks []domain.Chunk) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create metadata %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("write metadata %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush metadata %s: %w", path, err)
	}
	return nil
}

// Resolve looks up the chunk for an identifier returned by the vector index.
func (s *Store) Resolve(id int64) (domain.Chunk, bool) {
	c, ok := s.chunks[id]
	return c, ok
}

// Count returns the number of metadata records.
func (s *Store) Count() int { return len(s.chunks) }

// IDs returns all identifiers in ascending order.
func (s *Store) IDs() []int64 { return s.ids }

// Chunks returns all records in ascending identifier order.
func (s *Store) Chunks() []domain.Chunk {
	out := make([]domain.Chunk, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.chunks[id])
	}
	return out
}
