package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/torikomi/internal/models"
)

// Options controls which enrichment kinds run and how oversized inputs are
// chunked before being sent to the service.
type Options struct {
	Summarize     bool
	Entities      bool
	MaxChunkChars int
	ChunkOverlap  int
	// CallTimeout bounds each individual service call. Zero means no bound
	// beyond the caller's context.
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// Enricher computes enrichment artifacts for extracted text, consulting the
// content-addressed cache before spending a service call.
type Enricher struct {
	client Client
	cache  *Cache
	policy *Policy
	opts   Options
	logger *zap.Logger
}

// NewEnricher wires a client, cache, and retry policy into an enricher.
func NewEnricher(client Client, cache *Cache, policy *Policy, opts Options) *Enricher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		client: client,
		cache:  cache,
		policy: policy,
		opts:   opts,
		logger: logger,
	}
}

// Kinds lists the enrichment kinds this enricher is configured to run.
func (e *Enricher) Kinds() []models.EnrichmentKind {
	var kinds []models.EnrichmentKind
	if e.opts.Summarize {
		kinds = append(kinds, models.KindSummarize)
	}
	if e.opts.Entities {
		kinds = append(kinds, models.KindExtractEntities)
	}
	return kinds
}

// Enrich computes one enrichment kind for the text identified by
// fingerprint. It returns the result, the number of service attempts made
// (0 on a cache hit), and an error when the computation failed after
// exhausting retries. Cache failures degrade to a miss rather than failing
// the enrichment.
func (e *Enricher) Enrich(ctx context.Context, fingerprint, text string, kind models.EnrichmentKind) (*models.EnrichmentResult, int, error) {
	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, fingerprint, kind)
		if err != nil {
			e.logger.Warn("enrichment cache read failed",
				zap.String("fingerprint", fingerprint),
				zap.String("kind", string(kind)),
				zap.Error(err))
		} else if ok {
			return cached, 0, nil
		}
	}

	chunks := splitChunks(text, e.opts.MaxChunkChars, e.opts.ChunkOverlap)
	result, attempts, err := e.compute(ctx, chunks, kind)
	if err != nil {
		return nil, attempts, err
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, fingerprint, kind, result); err != nil {
			e.logger.Warn("enrichment cache write failed",
				zap.String("fingerprint", fingerprint),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
	return result, attempts, nil
}

// Apply runs every configured kind against the text and merges the results
// into a single record. Each kind degrades independently: a kind that fails
// after retries contributes a warning instead of aborting the others. The
// merged result reports FromCache only when every kind was served from
// cache.
func (e *Enricher) Apply(ctx context.Context, fingerprint, text string) (*models.EnrichmentResult, int, []string) {
	merged := &models.EnrichmentResult{FromCache: true}
	var warnings []string
	totalAttempts := 0
	ran := false

	for _, kind := range e.Kinds() {
		res, attempts, err := e.Enrich(ctx, fingerprint, text, kind)
		totalAttempts += attempts
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s failed after %d attempts: %v", kind, attempts, err))
			merged.FromCache = false
			continue
		}
		ran = true
		if !res.FromCache {
			merged.FromCache = false
		}
		merged.CostUnits += res.CostUnits
		if res.Summary != nil {
			merged.Summary = res.Summary
		}
		if len(res.Entities) > 0 {
			if merged.Entities == nil {
				merged.Entities = make(map[models.EntityType][]string)
			}
			for typ, names := range res.Entities {
				merged.Entities[typ] = unionNames(merged.Entities[typ], names)
			}
		}
	}
	if !ran {
		merged.FromCache = false
	}
	return merged, totalAttempts, warnings
}

// compute runs the service calls for one kind across all chunks and merges
// per-chunk results. Cost is summed over chunks; cache hits never reach
// here, so the full spend is attributed to this computation.
func (e *Enricher) compute(ctx context.Context, chunks []string, kind models.EnrichmentKind) (*models.EnrichmentResult, int, error) {
	result := &models.EnrichmentResult{}
	totalAttempts := 0
	var summaries []string

	for i, chunk := range chunks {
		var (
			summary  string
			entities map[models.EntityType][]string
			cost     float64
		)
		attempts, err := e.policy.Do(ctx, func(ctx context.Context) error {
			if e.opts.CallTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, e.opts.CallTimeout)
				defer cancel()
			}
			var callErr error
			switch kind {
			case models.KindSummarize:
				summary, cost, callErr = e.client.Summarize(ctx, chunk)
			case models.KindExtractEntities:
				entities, cost, callErr = e.client.Entities(ctx, chunk)
			default:
				return fmt.Errorf("unknown enrichment kind %q", kind)
			}
			return callErr
		})
		totalAttempts += attempts
		if err != nil {
			return nil, totalAttempts, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}

		result.CostUnits += cost
		switch kind {
		case models.KindSummarize:
			if summary != "" {
				summaries = append(summaries, summary)
			}
		case models.KindExtractEntities:
			if result.Entities == nil {
				result.Entities = make(map[models.EntityType][]string)
			}
			for typ, names := range entities {
				result.Entities[typ] = unionNames(result.Entities[typ], names)
			}
		}
	}

	if kind == models.KindSummarize {
		joined := strings.Join(summaries, "\n\n")
		result.Summary = &joined
	}
	return result, totalAttempts, nil
}

// unionNames appends the names from add that existing does not already
// contain, comparing case-insensitively and preserving first-seen order.
func unionNames(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, n := range existing {
		seen[strings.ToLower(n)] = true
	}
	for _, n := range add {
		key := strings.ToLower(n)
		if !seen[key] {
			seen[key] = true
			existing = append(existing, n)
		}
	}
	return existing
}
