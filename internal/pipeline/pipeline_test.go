package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/torikomi/internal/detect"
	"github.com/hyperjump/torikomi/internal/extract"
	"github.com/hyperjump/torikomi/internal/runner"
	"github.com/hyperjump/torikomi/internal/source"
	"github.com/hyperjump/torikomi/internal/state"
)

// harness wires a real source directory, detector, runner, and state store
// into a pipeline using the direct text strategy only.
type harness struct {
	root     string
	pipeline *Pipeline
	states   *state.Store
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "docs")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}

	store, err := source.NewDirStore(root, []string{".txt", ".md"})
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	// TTL zero keeps the listing cache permanently stale so every Detect
	// does a full walk; the cache behavior has its own tests.
	detector := detect.NewDetector(store, detect.NewListingCache(filepath.Join(base, "listing.json")), 0)
	states := state.NewStore(filepath.Join(base, "state.json"))
	chain := extract.NewChain([]extract.Strategy{extract.NewDirectStrategy(0.5)})
	r := runner.NewRunner(store, chain, nil, 2)

	return &harness{
		root:     root,
		pipeline: New(detector, r, states, opts...),
		states:   states,
	}
}

func (h *harness) write(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(h.root, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) touch(t *testing.T, name string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(filepath.Join(h.root, name), mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestRunOnceFirstRunProcessesEverything(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "the first document has plenty of text in it")
	h.write(t, "b.md", "the second document also has plenty of text")

	summary, records, err := h.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 0 {
		t.Fatalf("expected 2 succeeded, got %+v", summary)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if summary.RunID == "" {
		t.Error("missing run id")
	}

	loaded, err := h.states.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.State.Documents) != 2 {
		t.Fatalf("expected 2 documents in state, got %d", len(loaded.State.Documents))
	}
	for path, ds := range loaded.State.Documents {
		if ds.Fingerprint == "" {
			t.Errorf("%q committed without fingerprint", path)
		}
	}
}

func TestRunOnceIsIdempotentWithoutChanges(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "stable content that does not change between runs")

	if _, _, err := h.pipeline.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, records, err := h.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Processed() != 0 || summary.Deleted != 0 {
		t.Fatalf("second run should find no work, got %+v", summary)
	}
	if len(records) != 0 {
		t.Fatalf("second run produced records: %v", records)
	}
}

func TestRunOnceNewAndDeleted(t *testing.T) {
	h := newHarness(t)
	h.write(t, "old.txt", "this document will be deleted before the second run")

	if _, _, err := h.pipeline.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	if err := os.Remove(filepath.Join(h.root, "old.txt")); err != nil {
		t.Fatal(err)
	}
	h.write(t, "new.txt", "this document appeared between runs with fresh text")

	summary, _, err := h.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Succeeded != 1 || summary.Deleted != 1 {
		t.Fatalf("expected 1 new + 1 deleted, got %+v", summary)
	}

	loaded, _ := h.states.Load()
	if _, ok := loaded.State.Documents["old.txt"]; ok {
		t.Error("deleted document still present in state")
	}
	if _, ok := loaded.State.Documents["new.txt"]; !ok {
		t.Error("new document missing from state")
	}
}

func TestRunOnceModifiedDocumentReprocessed(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "original content with enough words to extract")
	past := time.Now().Add(-2 * time.Hour)
	h.touch(t, "a.txt", past)

	if _, _, err := h.pipeline.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	h.write(t, "a.txt", "updated content, also with enough words to extract")
	h.touch(t, "a.txt", past.Add(time.Hour))

	summary, _, err := h.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("expected the modified document to be reprocessed, got %+v", summary)
	}
}

func TestRunOnceFailedDocumentStaysEligible(t *testing.T) {
	h := newHarness(t)
	h.write(t, "good.txt", "a perfectly readable document with actual content")
	h.write(t, "empty.txt", "   ")

	summary, _, err := h.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("expected 1 succeeded + 1 failed, got %+v", summary)
	}

	loaded, _ := h.states.Load()
	if _, ok := loaded.State.Documents["empty.txt"]; ok {
		t.Error("failed document must not be committed to state")
	}

	// Unchanged on disk, so the detector sees it as already known only if it
	// was committed. It was not, so the next run retries it.
	summary2, _, err := h.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if summary2.Failed != 1 {
		t.Fatalf("failed document should be retried next run, got %+v", summary2)
	}
}

func TestRunOnceCommitsNothingWhenListingFails(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "content that exists only until the root vanishes")

	if err := os.RemoveAll(h.root); err != nil {
		t.Fatal(err)
	}

	_, _, err := h.pipeline.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error when the source root is gone")
	}
	loaded, lerr := h.states.Load()
	if lerr != nil {
		t.Fatalf("Load: %v", lerr)
	}
	if !loaded.FirstRun {
		t.Error("failed detection must not commit state")
	}
}

func TestRunOnceExpiredTimeoutFailsQueuedWork(t *testing.T) {
	h := newHarness(t, WithRunTimeout(time.Nanosecond))
	h.write(t, "a.txt", "this run is bounded by an absurdly small timeout")

	summary, _, err := h.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected the queued document to fail under the timeout, got %+v", summary)
	}
}
