// Package runner executes document jobs on a bounded worker pool with
// per-document failure isolation.
package runner

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/torikomi/internal/fingerprint"
	"github.com/hyperjump/torikomi/internal/models"
	"github.com/hyperjump/torikomi/internal/source"
)

// maxPoolSize caps concurrency regardless of configuration; the enrichment
// service saturates well before this.
const maxPoolSize = 8

// Extractor turns a document's raw bytes into text.
type Extractor interface {
	Extract(ctx context.Context, doc models.SourceDocument, content []byte) models.ExtractionResult
}

// Enricher attaches enrichment artifacts to extracted text. It returns the
// merged result, total service attempts, and one warning per degraded kind.
type Enricher interface {
	Apply(ctx context.Context, fingerprint, text string) (*models.EnrichmentResult, int, []string)
}

// Runner fans documents out to a worker pool. Each document yields exactly
// one JobRecord; a failure in one document never affects another.
type Runner struct {
	store         source.Store
	extractor     Extractor
	enricher      Enricher
	workers       int
	progressEvery int
	logger        *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for progress and failure reporting.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithProgressEvery logs run progress after every n completed documents.
// Zero disables progress logging.
func WithProgressEvery(n int) Option {
	return func(r *Runner) { r.progressEvery = n }
}

// NewRunner creates a runner over store with the given extraction and
// enrichment stages. enricher may be nil when all enrichment kinds are
// disabled.
func NewRunner(store source.Store, extractor Extractor, enricher Enricher, workers int, opts ...Option) *Runner {
	r := &Runner{
		store:     store,
		extractor: extractor,
		enricher:  enricher,
		workers:   workers,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// poolSize bounds the pool by configuration, host parallelism, and the
// global cap, and never drops below one worker.
func (r *Runner) poolSize() int {
	size := r.workers
	if cpus := runtime.NumCPU(); size > cpus {
		size = cpus
	}
	if size > maxPoolSize {
		size = maxPoolSize
	}
	if size < 1 {
		size = 1
	}
	return size
}

// Run processes every document and returns one record per document, in the
// same order as docs. Completion order across documents is not defined.
// When ctx expires mid-run, documents not yet started fail with a deadline
// error while in-flight documents run to completion.
func (r *Runner) Run(ctx context.Context, docs []models.SourceDocument) ([]models.JobRecord, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	pool, err := ants.NewPool(r.poolSize())
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	records := make([]models.JobRecord, len(docs))
	var wg sync.WaitGroup
	var completed int64

	for i, doc := range docs {
		i, doc := i, doc
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			records[i] = r.process(ctx, doc)
			n := atomic.AddInt64(&completed, 1)
			if r.progressEvery > 0 && (n%int64(r.progressEvery) == 0 || n == int64(len(docs))) {
				r.logger.Info("run progress",
					zap.Int64("processed", n),
					zap.Int("total", len(docs)))
			}
		})
		if submitErr != nil {
			wg.Done()
			records[i] = models.JobRecord{
				Document:  doc,
				Status:    models.StatusFailed,
				LastError: fmt.Sprintf("worker pool rejected job: %v", submitErr),
			}
		}
	}

	wg.Wait()
	return records, nil
}

// process handles one document end to end. Panics are contained here so a
// malformed document can never take down the pool.
func (r *Runner) process(ctx context.Context, doc models.SourceDocument) (rec models.JobRecord) {
	rec = models.JobRecord{Document: doc}
	defer func() {
		if p := recover(); p != nil {
			rec.Status = models.StatusFailed
			rec.LastError = fmt.Sprintf("panic while processing document: %v", p)
			r.logger.Error("worker panic contained",
				zap.String("path", doc.Path),
				zap.Any("panic", p))
		}
	}()

	if err := ctx.Err(); err != nil {
		rec.Status = models.StatusFailed
		rec.LastError = "run deadline exceeded before processing started"
		return rec
	}

	data, err := r.store.Read(ctx, doc.Path)
	if err != nil {
		rec.Status = models.StatusFailed
		rec.LastError = fmt.Sprintf("failed to read document: %v", err)
		return rec
	}
	rec.Document.Fingerprint = fingerprint.Content(data)

	ext := r.extractor.Extract(ctx, doc, data)
	rec.Extraction = &ext
	if ext.Confidence == 0 || strings.TrimSpace(ext.Text) == "" {
		rec.Status = models.StatusFailed
		rec.LastError = "extraction produced no usable text"
		return rec
	}

	if r.enricher == nil {
		rec.Status = models.StatusSucceeded
		return rec
	}

	enr, attempts, warnings := r.enricher.Apply(ctx, rec.Document.Fingerprint, ext.Text)
	rec.Enrichment = enr
	rec.Attempts = attempts
	if len(warnings) > 0 {
		rec.Status = models.StatusPartiallyFailed
		rec.LastError = strings.Join(warnings, "; ")
		r.logger.Warn("enrichment degraded",
			zap.String("path", doc.Path),
			zap.Strings("warnings", warnings))
	} else {
		rec.Status = models.StatusSucceeded
	}
	return rec
}

// Tombstones builds the records for deleted paths. Deletions carry no
// extraction or enrichment work, so they bypass the pool entirely.
func Tombstones(deleted []string) []models.JobRecord {
	records := make([]models.JobRecord, 0, len(deleted))
	for _, path := range deleted {
		records = append(records, models.JobRecord{
			Document:  models.SourceDocument{Path: path},
			Status:    models.StatusSucceeded,
			Tombstone: true,
		})
	}
	return records
}
