package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestFile is the artifact root entry point. It is written last, via an
// atomic rename, so readers never observe a half-finished build.
const ManifestFile = "manifest.json"

// MetadataFile is the chunk metadata JSONL inside a build directory.
const MetadataFile = "chunks.jsonl"

// VectorsDir is the chromem persistence directory inside a build directory.
const VectorsDir = "vectors"

// Manifest records how an index build was produced. The embedding model and
// dimensions recorded here must match the query-time encoder; the retriever
// refuses to start on a mismatch.
type Manifest struct {
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Count      int       `json:"count"`
	Collection string    `json:"collection"`
	BuildDir   string    `json:"build_dir"` // relative to the artifact root
	BuiltAt    time.Time `json:"built_at"`
}

// LoadManifest reads a manifest from the artifact root.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.BuildDir == "" {
		return Manifest{}, fmt.Errorf("manifest %s has no build_dir", path)
	}
	return m, nil
}

// WriteManifest commits a manifest via write-to-temp plus rename, the atomic
// publish step of a rebuild.
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish manifest %s: %w", path, err)
	}
	return nil
}
