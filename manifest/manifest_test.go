package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	idx, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("expected no error for a missing manifest, got %v", err)
	}
	if idx != nil {
		t.Fatalf("expected a nil index, got %+v", idx)
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	_, err := Load(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestLoad_WrongShapeIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	if err := os.WriteFile(path, []byte(`["a", "b"]`), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	_, err := Load(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestLoadAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	doc := `{
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": {"glb_paths": ["glbs/glbs_1k/000-001/a_1024.glb", "glbs/full/a.glb"]},
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb": {"glb_paths": []}
	}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	idx, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if idx == nil {
		t.Fatal("expected a non-nil index")
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", idx.Len())
	}

	rec, ok := idx.Lookup("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if !ok {
		t.Fatal("expected a hit for the first id")
	}
	if len(rec.GLBPaths) != 2 || rec.GLBPaths[0] != "glbs/glbs_1k/000-001/a_1024.glb" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, ok := idx.Lookup("cccccccccccccccccccccccccccccccc"); ok {
		t.Fatal("expected a miss for an unknown id")
	}
}

func TestNilIndexIsSafe(t *testing.T) {
	var idx *Index
	if _, ok := idx.Lookup("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"); ok {
		t.Fatal("nil index must never match")
	}
	if idx.Len() != 0 {
		t.Fatalf("nil index length must be 0, got %d", idx.Len())
	}
}
