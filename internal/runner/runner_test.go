package runner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/torikomi/internal/models"
)

// memStore serves documents from a map.
type memStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	readErr map[string]error
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte), readErr: make(map[string]error)}
}

func (m *memStore) List(context.Context) ([]models.SourceDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var docs []models.SourceDocument
	for path, data := range m.files {
		docs = append(docs, models.SourceDocument{Path: path, SizeBytes: int64(len(data))})
	}
	return docs, nil
}

func (m *memStore) ListNames(ctx context.Context) ([]string, error) {
	docs, _ := m.List(ctx)
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Path
	}
	return names, nil
}

func (m *memStore) Stat(_ context.Context, path string) (models.SourceDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return models.SourceDocument{}, os.ErrNotExist
	}
	return models.SourceDocument{Path: path, SizeBytes: int64(len(data))}, nil
}

func (m *memStore) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErr[path]; err != nil {
		return nil, err
	}
	data, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *memStore) ReadSidecar(context.Context, string) (string, bool, error) {
	return "", false, nil
}

// scriptedExtractor returns per-path results and can panic on demand.
type scriptedExtractor struct {
	failPaths  map[string]bool
	panicPaths map[string]bool
}

func (e *scriptedExtractor) Extract(_ context.Context, doc models.SourceDocument, content []byte) models.ExtractionResult {
	if e.panicPaths[doc.Path] {
		panic("malformed container")
	}
	if e.failPaths[doc.Path] {
		return models.ExtractionResult{Confidence: 0}
	}
	return models.ExtractionResult{
		Text:       string(content),
		Method:     models.MethodDirectText,
		Confidence: 0.9,
	}
}

// countingEnricher records which fingerprints it saw.
type countingEnricher struct {
	mu       sync.Mutex
	calls    int
	warnings []string
}

func (e *countingEnricher) Apply(_ context.Context, fp, _ string) (*models.EnrichmentResult, int, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	s := "summary for " + fp
	return &models.EnrichmentResult{Summary: &s, CostUnits: 1}, 1, e.warnings
}

func docsFor(store *memStore, n int) []models.SourceDocument {
	docs := make([]models.SourceDocument, 0, n)
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("doc-%02d.txt", i)
		store.files[path] = []byte("content of " + path)
		docs = append(docs, models.SourceDocument{Path: path})
	}
	return docs
}

func TestRunProducesOneRecordPerDocument(t *testing.T) {
	store := newMemStore()
	docs := docsFor(store, 10)
	r := NewRunner(store, &scriptedExtractor{}, &countingEnricher{}, 4)

	records, err := r.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("expected 10 records, got %d", len(records))
	}
	// Records come back indexed by input position regardless of the order
	// workers finished in.
	for i, rec := range records {
		if rec.Document.Path != docs[i].Path {
			t.Errorf("record %d is for %q, want %q", i, rec.Document.Path, docs[i].Path)
		}
		if rec.Status != models.StatusSucceeded {
			t.Errorf("record %d status %q: %s", i, rec.Status, rec.LastError)
		}
		if rec.Document.Fingerprint == "" {
			t.Errorf("record %d missing fingerprint", i)
		}
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	store := newMemStore()
	docs := docsFor(store, 10)
	ext := &scriptedExtractor{failPaths: map[string]bool{"doc-03.txt": true}}
	r := NewRunner(store, ext, &countingEnricher{}, 4)

	records, err := r.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	succeeded, failed := 0, 0
	for _, rec := range records {
		switch rec.Status {
		case models.StatusSucceeded:
			succeeded++
		case models.StatusFailed:
			failed++
			if rec.Document.Path != "doc-03.txt" {
				t.Errorf("unexpected failure for %q: %s", rec.Document.Path, rec.LastError)
			}
		}
	}
	if succeeded != 9 || failed != 1 {
		t.Fatalf("expected 9 succeeded and 1 failed, got %d/%d", succeeded, failed)
	}
}

func TestRunContainsWorkerPanics(t *testing.T) {
	store := newMemStore()
	docs := docsFor(store, 4)
	ext := &scriptedExtractor{panicPaths: map[string]bool{"doc-01.txt": true}}
	r := NewRunner(store, ext, nil, 2)

	records, err := r.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, rec := range records {
		if rec.Document.Path == "doc-01.txt" {
			if rec.Status != models.StatusFailed {
				t.Errorf("panicking document should fail, got %q", rec.Status)
			}
			if !strings.Contains(rec.LastError, "panic") {
				t.Errorf("failure should mention the panic: %q", rec.LastError)
			}
		} else if rec.Status != models.StatusSucceeded {
			t.Errorf("%q should survive a sibling panic, got %q", rec.Document.Path, rec.Status)
		}
	}
}

func TestRunReadFailureFailsOnlyThatDocument(t *testing.T) {
	store := newMemStore()
	docs := docsFor(store, 3)
	store.readErr["doc-02.txt"] = os.ErrPermission
	r := NewRunner(store, &scriptedExtractor{}, nil, 2)

	records, err := r.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, rec := range records {
		want := models.StatusSucceeded
		if rec.Document.Path == "doc-02.txt" {
			want = models.StatusFailed
		}
		if rec.Status != want {
			t.Errorf("%q status %q, want %q", rec.Document.Path, rec.Status, want)
		}
	}
}

func TestRunDegradedEnrichmentIsPartialFailure(t *testing.T) {
	store := newMemStore()
	docs := docsFor(store, 2)
	enr := &countingEnricher{warnings: []string{"summarize failed after 3 attempts: unavailable"}}
	r := NewRunner(store, &scriptedExtractor{}, enr, 2)

	records, err := r.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, rec := range records {
		if rec.Status != models.StatusPartiallyFailed {
			t.Errorf("%q status %q, want partially_failed", rec.Document.Path, rec.Status)
		}
		if rec.Extraction == nil || rec.Extraction.Text == "" {
			t.Errorf("%q should keep its extraction despite degraded enrichment", rec.Document.Path)
		}
		if !strings.Contains(rec.LastError, "summarize failed") {
			t.Errorf("%q last error should carry the warning: %q", rec.Document.Path, rec.LastError)
		}
	}
}

func TestRunExpiredContextFailsQueuedDocuments(t *testing.T) {
	store := newMemStore()
	docs := docsFor(store, 5)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	r := NewRunner(store, &scriptedExtractor{}, nil, 2)
	records, err := r.Run(ctx, docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, rec := range records {
		if rec.Status != models.StatusFailed {
			t.Errorf("%q should fail under an expired deadline, got %q", rec.Document.Path, rec.Status)
		}
		if !strings.Contains(rec.LastError, "deadline") {
			t.Errorf("%q last error should mention the deadline: %q", rec.Document.Path, rec.LastError)
		}
	}
}

func TestRunEmptyInput(t *testing.T) {
	r := NewRunner(newMemStore(), &scriptedExtractor{}, nil, 2)
	records, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if records != nil {
		t.Fatalf("expected no records, got %v", records)
	}
}

func TestPoolSizeBounds(t *testing.T) {
	tests := []struct {
		workers int
		max     int
	}{
		{0, 1},
		{-3, 1},
		{1, 1},
		{100, maxPoolSize},
	}
	for _, tt := range tests {
		r := NewRunner(newMemStore(), &scriptedExtractor{}, nil, tt.workers)
		got := r.poolSize()
		if got < 1 || got > maxPoolSize {
			t.Errorf("poolSize(workers=%d) = %d, out of bounds", tt.workers, got)
		}
		if tt.workers <= 0 && got != 1 {
			t.Errorf("poolSize(workers=%d) = %d, want 1", tt.workers, got)
		}
	}
}

func TestTombstones(t *testing.T) {
	records := Tombstones([]string{"gone.txt", "also-gone.pdf"})
	if len(records) != 2 {
		t.Fatalf("expected 2 tombstones, got %d", len(records))
	}
	for _, rec := range records {
		if !rec.Tombstone {
			t.Errorf("%q not marked as tombstone", rec.Document.Path)
		}
		if rec.Extraction != nil || rec.Enrichment != nil {
			t.Errorf("%q tombstone should carry no work products", rec.Document.Path)
		}
	}
}
