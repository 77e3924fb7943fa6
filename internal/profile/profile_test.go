package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeProfile(t *testing.T, dir, id, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
}

func TestStore_Load(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "alice", `{"id":"alice","name":"Alice","embedding":[0.1,0.2,0.3]}`)

	s := NewStore(dir)
	p, err := s.Load("alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "Alice" {
		t.Errorf("name = %q, want Alice", p.Name)
	}
	if len(p.Embedding) != 3 {
		t.Errorf("embedding length = %d, want 3", len(p.Embedding))
	}
}

func TestStore_Load_FillsIDFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bob", `{"name":"Bob","embedding":[1,0]}`)

	p, err := NewStore(dir).Load("bob")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.ID != "bob" {
		t.Errorf("id = %q, want bob", p.ID)
	}
}

func TestStore_Load_NotFound(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Load(""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty id, got %v", err)
	}
}

func TestStore_Load_EmptyEmbedding(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "ghost", `{"id":"ghost","name":"Ghost","embedding":[]}`)

	if _, err := NewStore(dir).Load("ghost"); !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("expected ErrEmptyEmbedding, got %v", err)
	}
}

func TestStore_List_SkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "alice", `{"id":"alice","name":"Alice","embedding":[0.1]}`)
	writeProfile(t, dir, "broken", `{not json`)
	writeProfile(t, dir, "empty", `{"id":"empty","embedding":[]}`)

	got, err := NewStore(dir).List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != "alice" {
		t.Errorf("List = %v, want just alice", got)
	}
}

func TestStore_List_MissingDir(t *testing.T) {
	got, err := NewStore(filepath.Join(t.TempDir(), "nope")).List()
	if err != nil {
		t.Fatalf("List on missing dir: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List = %v, want empty", got)
	}
}
