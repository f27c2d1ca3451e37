package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/torikomi/internal/models"
)

// fakeClient counts calls and serves scripted responses.
type fakeClient struct {
	mu             sync.Mutex
	summarizeCalls int
	entityCalls    int
	summarizeErr   error
	entityErr      error
	entities       map[models.EntityType][]string
	costPerCall    float64
}

func (f *fakeClient) Summarize(_ context.Context, text string) (string, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summarizeCalls++
	if f.summarizeErr != nil {
		return "", 0, f.summarizeErr
	}
	return fmt.Sprintf("summary of %d chars", len(text)), f.costPerCall, nil
}

func (f *fakeClient) Entities(_ context.Context, _ string) (map[models.EntityType][]string, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entityCalls++
	if f.entityErr != nil {
		return nil, 0, f.entityErr
	}
	return f.entities, f.costPerCall, nil
}

func quietPolicy(maxAttempts int) *Policy {
	p := NewPolicy(maxAttempts, time.Millisecond)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func newTestEnricher(t *testing.T, client Client, opts Options) *Enricher {
	t.Helper()
	return NewEnricher(client, newTestCache(t), quietPolicy(3), opts)
}

func TestEnrichComputesThenServesFromCache(t *testing.T) {
	client := &fakeClient{costPerCall: 7}
	e := newTestEnricher(t, client, Options{Summarize: true, MaxChunkChars: 1000})
	ctx := context.Background()

	first, attempts, err := e.Enrich(ctx, "sha256:doc", "some text", models.KindSummarize)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if first.FromCache || attempts != 1 {
		t.Fatalf("first enrichment should compute: fromCache=%v attempts=%d", first.FromCache, attempts)
	}
	if first.CostUnits != 7 {
		t.Errorf("expected cost 7, got %v", first.CostUnits)
	}

	second, attempts, err := e.Enrich(ctx, "sha256:doc", "some text", models.KindSummarize)
	if err != nil {
		t.Fatalf("Enrich (cached): %v", err)
	}
	if !second.FromCache || attempts != 0 {
		t.Fatalf("second enrichment should hit cache: fromCache=%v attempts=%d", second.FromCache, attempts)
	}
	if second.CostUnits != 0 {
		t.Errorf("cache hit should be free, got cost %v", second.CostUnits)
	}
	if client.summarizeCalls != 1 {
		t.Errorf("expected exactly one service call, got %d", client.summarizeCalls)
	}
}

func TestEnrichSharedFingerprintSharesCacheEntry(t *testing.T) {
	client := &fakeClient{}
	e := newTestEnricher(t, client, Options{Summarize: true, MaxChunkChars: 1000})
	ctx := context.Background()

	// Same bytes at two paths produce the same fingerprint.
	if _, _, err := e.Enrich(ctx, "sha256:same", "identical content", models.KindSummarize); err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	res, _, err := e.Enrich(ctx, "sha256:same", "identical content", models.KindSummarize)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if !res.FromCache || client.summarizeCalls != 1 {
		t.Fatalf("rename/copy should not pay twice: fromCache=%v calls=%d", res.FromCache, client.summarizeCalls)
	}
}

func TestEnrichChunksLongInput(t *testing.T) {
	client := &fakeClient{costPerCall: 1}
	e := newTestEnricher(t, client, Options{Summarize: true, MaxChunkChars: 100, ChunkOverlap: 10})
	ctx := context.Background()

	long := strings.Repeat("sentence ", 60) // well over one chunk
	res, _, err := e.Enrich(ctx, "sha256:long", long, models.KindSummarize)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if client.summarizeCalls < 2 {
		t.Fatalf("expected chunked input to make multiple calls, got %d", client.summarizeCalls)
	}
	if res.CostUnits != float64(client.summarizeCalls) {
		t.Errorf("cost should sum over chunks: %v vs %d calls", res.CostUnits, client.summarizeCalls)
	}
	if res.Summary == nil || !strings.Contains(*res.Summary, "summary of") {
		t.Errorf("merged summary missing chunk summaries: %v", res.Summary)
	}
}

func TestEnrichRetriesThenFails(t *testing.T) {
	client := &fakeClient{summarizeErr: wrap(ErrUnavailable, errors.New("connection refused"))}
	e := newTestEnricher(t, client, Options{Summarize: true, MaxChunkChars: 1000})

	res, attempts, err := e.Enrich(context.Background(), "sha256:x", "text", models.KindSummarize)
	if err == nil {
		t.Fatal("expected failure")
	}
	if res != nil {
		t.Errorf("failed enrichment should return no result, got %+v", res)
	}
	if attempts != 3 || client.summarizeCalls != 3 {
		t.Errorf("expected 3 attempts, got attempts=%d calls=%d", attempts, client.summarizeCalls)
	}
}

func TestEnrichTerminalErrorFailsFast(t *testing.T) {
	client := &fakeClient{summarizeErr: wrap(ErrAuth, errors.New("401"))}
	e := newTestEnricher(t, client, Options{Summarize: true, MaxChunkChars: 1000})

	_, attempts, err := e.Enrich(context.Background(), "sha256:x", "text", models.KindSummarize)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if attempts != 1 || client.summarizeCalls != 1 {
		t.Errorf("terminal error should not retry: attempts=%d calls=%d", attempts, client.summarizeCalls)
	}
}

func TestApplyMergesKinds(t *testing.T) {
	client := &fakeClient{
		costPerCall: 2,
		entities:    map[models.EntityType][]string{models.EntityPerson: {"Ada Lovelace"}},
	}
	e := newTestEnricher(t, client, Options{Summarize: true, Entities: true, MaxChunkChars: 1000})

	res, attempts, warnings := e.Apply(context.Background(), "sha256:doc", "text about Ada")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if res.Summary == nil {
		t.Error("missing summary")
	}
	if len(res.Entities[models.EntityPerson]) != 1 {
		t.Errorf("missing entities: %v", res.Entities)
	}
	if res.CostUnits != 4 {
		t.Errorf("expected summed cost 4, got %v", res.CostUnits)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts total, got %d", attempts)
	}
	if res.FromCache {
		t.Error("fresh computation reported as cached")
	}
}

func TestApplyDegradesPerKind(t *testing.T) {
	client := &fakeClient{
		summarizeErr: wrap(ErrUnavailable, errors.New("down")),
		entities:     map[models.EntityType][]string{models.EntityPlace: {"London"}},
	}
	e := newTestEnricher(t, client, Options{Summarize: true, Entities: true, MaxChunkChars: 1000})

	res, _, warnings := e.Apply(context.Background(), "sha256:doc", "text")
	if len(warnings) != 1 {
		t.Fatalf("expected one warning for the failed kind, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "summarize") || !strings.Contains(warnings[0], "3 attempts") {
		t.Errorf("warning should name the kind and attempt count: %q", warnings[0])
	}
	if res.Summary != nil {
		t.Error("failed summarize should leave summary unset")
	}
	if len(res.Entities[models.EntityPlace]) != 1 {
		t.Errorf("surviving kind lost its result: %v", res.Entities)
	}
}

func TestApplyReportsFromCacheOnlyWhenAllCached(t *testing.T) {
	client := &fakeClient{
		entities: map[models.EntityType][]string{models.EntityTopic: {"history"}},
	}
	e := newTestEnricher(t, client, Options{Summarize: true, Entities: true, MaxChunkChars: 1000})
	ctx := context.Background()

	first, _, _ := e.Apply(ctx, "sha256:doc", "text")
	if first.FromCache {
		t.Fatal("first pass cannot be fully cached")
	}
	second, attempts, _ := e.Apply(ctx, "sha256:doc", "text")
	if !second.FromCache || attempts != 0 {
		t.Fatalf("second pass should be fully cached: fromCache=%v attempts=%d", second.FromCache, attempts)
	}
}
