package corpus

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

func TestNew_DuplicateID(t *testing.T) {
	_, err := New([]domain.Chunk{
		{ID: 1, Text: "a"},
		{ID: 1, Text: "b"},
	})
	if !errors.Is(err, domain.ErrCorpusMisaligned) {
		t.Fatalf("err = %v, want ErrCorpusMisaligned", err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.jsonl")
	chunks := []domain.Chunk{
		{ID: 2, Text: "Art. 18...", Article: "Art. 18", Law: "8078/90", URL: "https://example.test"},
		{ID: 1, Text: "Art. 6...", Article: "Art. 6", Law: "8078/90"},
	}

	if err := Write(path, chunks); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if store.Count() != 2 {
		t.Fatalf("count = %d, want 2", store.Count())
	}

	c, ok := store.Resolve(2)
	if !ok || c.Article != "Art. 18" {
		t.Errorf("resolve(2) = %+v, %v", c, ok)
	}
	if _, ok := store.Resolve(99); ok {
		t.Error("resolve(99) should miss")
	}

	ids := store.IDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("ids = %v, want ascending [1 2]", ids)
	}

	ordered := store.Chunks()
	if ordered[0].ID != 1 || ordered[1].ID != 2 {
		t.Errorf("chunks not in ascending ID order: %v %v", ordered[0].ID, ordered[1].ID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
