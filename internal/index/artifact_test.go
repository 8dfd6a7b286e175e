package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFile)
	man := Manifest{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Count:      42,
		Collection: "cdc",
		BuildDir:   "build-20260825t120000",
		BuiltAt:    time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}

	if err := WriteManifest(path, man); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != man {
		t.Errorf("manifest round trip:\ngot:  %+v\nwant: %+v", got, man)
	}

	// The temp file must not survive the publish rename.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp manifest left behind after publish")
	}
}

func TestLoadManifest_Missing(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), ManifestFile)); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestLoadManifest_NoBuildDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFile)
	if err := os.WriteFile(path, []byte(`{"model": "m", "count": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected error for manifest without build_dir")
	}
}
