package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestDirStore_List(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")
	writeFile(t, filepath.Join(dir, "sub", "b.pdf"), "%PDF-fake")
	writeFile(t, filepath.Join(dir, "c.exe"), "binary")

	store, err := NewDirStore(dir, []string{".txt", ".pdf"})
	if err != nil {
		t.Fatal(err)
	}
	docs, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2: %+v", len(docs), docs)
	}
	if docs[0].Path != "a.txt" || docs[1].Path != "sub/b.pdf" {
		t.Errorf("unexpected paths: %q, %q", docs[0].Path, docs[1].Path)
	}
	if docs[0].SizeBytes != int64(len("hello")) {
		t.Errorf("size = %d, want %d", docs[0].SizeBytes, len("hello"))
	}
	if docs[0].ModifiedAt.IsZero() {
		t.Error("modified_at should be set")
	}
}

func TestDirStore_ListExcludesShadowedSidecars(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "paper.pdf"), "%PDF-fake")
	writeFile(t, filepath.Join(dir, "paper.pdf.txt"), "precomputed text")
	writeFile(t, filepath.Join(dir, "notes.txt"), "a standalone text file")

	store, err := NewDirStore(dir, []string{".txt", ".pdf"})
	if err != nil {
		t.Fatal(err)
	}
	docs, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	paths := make(map[string]bool)
	for _, d := range docs {
		paths[d.Path] = true
	}
	if paths["paper.pdf.txt"] {
		t.Error("sidecar of a listed document should be excluded")
	}
	if !paths["paper.pdf"] || !paths["notes.txt"] {
		t.Errorf("expected paper.pdf and notes.txt, got %v", paths)
	}
}

func TestDirStore_ListNamesExcludesShadowedSidecars(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "paper.pdf"), "%PDF-fake")
	writeFile(t, filepath.Join(dir, "paper.pdf.txt"), "precomputed text")
	writeFile(t, filepath.Join(dir, "notes.txt"), "a standalone text file")

	store, err := NewDirStore(dir, []string{".txt", ".pdf"})
	if err != nil {
		t.Fatal(err)
	}
	names, err := store.ListNames(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "notes.txt" || names[1] != "paper.pdf" {
		t.Errorf("names = %v, want [notes.txt paper.pdf]", names)
	}
}

func TestDirStore_ReadAndSidecar(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "paper.pdf"), "raw bytes")
	writeFile(t, filepath.Join(dir, "paper.pdf.txt"), "sidecar text")

	store, err := NewDirStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	data, err := store.Read(ctx, "paper.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "raw bytes" {
		t.Errorf("read = %q", data)
	}

	text, ok, err := store.ReadSidecar(ctx, "paper.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || text != "sidecar text" {
		t.Errorf("sidecar = %q, ok = %v", text, ok)
	}

	_, ok, err = store.ReadSidecar(ctx, "missing.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("missing sidecar should report ok=false")
	}
}

func TestDirStore_ReadRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Read(context.Background(), "../outside.txt"); err == nil {
		t.Error("path escaping the root should be rejected")
	}
}

func TestNewDirStore_notADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	writeFile(t, file, "x")
	if _, err := NewDirStore(file, nil); err == nil {
		t.Error("expected error for non-directory root")
	}
}
