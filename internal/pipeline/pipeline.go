// Package pipeline orchestrates one ingestion run: detect changes, process
// them on the worker pool, and commit the resulting state atomically.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/torikomi/internal/detect"
	"github.com/hyperjump/torikomi/internal/models"
	"github.com/hyperjump/torikomi/internal/runner"
	"github.com/hyperjump/torikomi/internal/state"
)

// Runner is the worker pool stage of the pipeline.
type Runner interface {
	Run(ctx context.Context, docs []models.SourceDocument) ([]models.JobRecord, error)
}

// Pipeline ties change detection, job execution, and state persistence
// together. One Pipeline serves many runs; each run is independent.
type Pipeline struct {
	detector   *detect.Detector
	runner     Runner
	states     *state.Store
	runTimeout time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithRunTimeout bounds the worker pool phase of each run. When the timeout
// expires, queued documents fail while in-flight documents finish. Zero
// means no bound.
func WithRunTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.runTimeout = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline over the given stages.
func New(detector *detect.Detector, r Runner, states *state.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector: detector,
		runner:   r,
		states:   states,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunOnce performs a single run. It returns the run summary and the job
// records produced, including tombstones for deleted paths. When change
// detection fails, nothing is processed and nothing is committed. A run
// that finds no changes commits nothing and reports zero work.
func (p *Pipeline) RunOnce(ctx context.Context) (*models.RunSummary, []models.JobRecord, error) {
	summary := &models.RunSummary{
		RunID:   uuid.NewString(),
		Started: p.now(),
	}

	loaded, err := p.states.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load state: %w", err)
	}
	summary.StateRecovered = loaded.Recovered
	summary.StateReset = loaded.Reset
	if loaded.Recovered {
		p.logger.Warn("state recovered from backup; some documents may be reprocessed")
	}
	if loaded.Reset {
		p.logger.Error("state unreadable, starting from empty; full reprocess ahead")
	}

	changes, err := p.detector.Detect(ctx, loaded.State)
	if err != nil {
		return nil, nil, fmt.Errorf("change detection failed: %w", err)
	}

	if changes.Empty() {
		p.finish(summary)
		p.logger.Info("no changes detected", zap.String("run_id", summary.RunID))
		return summary, nil, nil
	}

	p.logger.Info("changes detected",
		zap.String("run_id", summary.RunID),
		zap.Int("new", len(changes.New)),
		zap.Int("modified", len(changes.Modified)),
		zap.Int("deleted", len(changes.Deleted)))

	runCtx := ctx
	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}

	records, err := p.runner.Run(runCtx, changes.Pending())
	if err != nil {
		return nil, nil, fmt.Errorf("run failed: %w", err)
	}
	records = append(records, runner.Tombstones(changes.Deleted)...)

	next := p.merge(loaded.State, records)
	if err := p.states.Commit(next); err != nil {
		return nil, records, fmt.Errorf("failed to commit state: %w", err)
	}

	p.tally(summary, records)
	p.finish(summary)
	p.logger.Info("run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("partially_failed", summary.PartiallyFailed),
		zap.Int("failed", summary.Failed),
		zap.Int("deleted", summary.Deleted),
		zap.Float64("cost_units", summary.CostUnits),
		zap.Duration("duration", summary.Duration))
	return summary, records, nil
}

// merge folds job records into a clone of the loaded state. Failed jobs
// leave the prior entry untouched so the document is retried next run;
// tombstones remove their entry.
func (p *Pipeline) merge(prior *models.PersistedState, records []models.JobRecord) *models.PersistedState {
	next := prior.Clone()
	next.LastRunAt = p.now()
	for _, rec := range records {
		switch {
		case rec.Tombstone:
			delete(next.Documents, rec.Document.Path)
		case rec.Status == models.StatusFailed:
			// Leave any prior entry in place; the document stays eligible.
		default:
			next.Documents[rec.Document.Path] = models.DocumentState{
				Fingerprint: rec.Document.Fingerprint,
				ModifiedAt:  rec.Document.ModifiedAt,
			}
		}
	}
	return next
}

func (p *Pipeline) tally(summary *models.RunSummary, records []models.JobRecord) {
	for _, rec := range records {
		if rec.Tombstone {
			summary.Deleted++
			continue
		}
		switch rec.Status {
		case models.StatusSucceeded:
			summary.Succeeded++
		case models.StatusPartiallyFailed:
			summary.PartiallyFailed++
		case models.StatusFailed:
			summary.Failed++
		}
		if rec.Enrichment != nil {
			summary.CostUnits += rec.Enrichment.CostUnits
		}
	}
}

func (p *Pipeline) finish(summary *models.RunSummary) {
	summary.Finished = p.now()
	summary.Duration = summary.Finished.Sub(summary.Started)
}
