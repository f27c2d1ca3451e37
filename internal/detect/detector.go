// Package detect computes the set of new, modified, and deleted documents
// for one run, using a TTL-bounded listing cache to avoid full re-scans.
package detect

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hyperjump/torikomi/internal/models"
	"github.com/hyperjump/torikomi/internal/source"
	"go.uber.org/zap"
)

// Detector compares the current content store listing against persisted
// state to produce a ChangeSet.
type Detector struct {
	store  source.Store
	cache  *ListingCache
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger // optional; when set, logs scan mode and counts
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) DetectorOption {
	return func(d *Detector) { d.logger = l }
}

// WithClock overrides the time source; used by tests to control TTL expiry.
func WithClock(now func() time.Time) DetectorOption {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a detector over the given store. cache may be nil,
// in which case every run performs a full listing.
func NewDetector(store source.Store, cache *ListingCache, ttl time.Duration, opts ...DetectorOption) *Detector {
	d := &Detector{store: store, cache: cache, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect produces the ChangeSet for this run. Unchanged documents are
// excluded entirely. On any non-empty change the listing cache is rewritten
// to the current listing. A listing failure is returned as a fatal error;
// Detect never returns a partial result silently.
func (d *Detector) Detect(ctx context.Context, previous *models.PersistedState) (*models.ChangeSet, error) {
	current, fromCache, err := d.currentListing(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect changes: %w", err)
	}
	cs := Diff(current, previous)
	if d.logger != nil {
		d.logger.Debug("change detection complete",
			zap.Bool("incremental", fromCache),
			zap.Int("listed", len(current)),
			zap.Int("new", len(cs.New)),
			zap.Int("modified", len(cs.Modified)),
			zap.Int("deleted", len(cs.Deleted)),
		)
	}
	if !cs.Empty() && d.cache != nil {
		if err := d.cache.Store(current, d.now()); err != nil && d.logger != nil {
			d.logger.Warn("listing cache rewrite failed", zap.Error(err))
		}
	}
	return cs, nil
}

// currentListing returns the current document listing. A fresh cache makes
// this an incremental scan: cached paths are re-verified with Stat and only
// entries the cache does not know are discovered via a names-only listing.
func (d *Detector) currentListing(ctx context.Context) ([]models.SourceDocument, bool, error) {
	if d.cache != nil {
		if cached := d.cache.Load(); cached != nil && cached.Fresh(d.ttl, d.now()) {
			docs, err := d.incremental(ctx, cached)
			if err == nil {
				return docs, true, nil
			}
			if d.logger != nil {
				d.logger.Warn("incremental scan failed, falling back to full listing", zap.Error(err))
			}
		}
	}
	docs, err := d.store.List(ctx)
	if err != nil {
		return nil, false, err
	}
	return docs, false, nil
}

func (d *Detector) incremental(ctx context.Context, cached *CachedListing) ([]models.SourceDocument, error) {
	known := make(map[string]bool, len(cached.Documents))
	docs := make([]models.SourceDocument, 0, len(cached.Documents))
	for _, doc := range cached.Documents {
		known[doc.Path] = true
		cur, err := d.store.Stat(ctx, doc.Path)
		if os.IsNotExist(err) {
			continue // deleted since the cache was taken
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, cur)
	}
	names, err := d.store.ListNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if known[name] {
			continue
		}
		cur, err := d.store.Stat(ctx, name)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, cur)
	}
	return docs, nil
}

// Diff computes the ChangeSet between a current listing and previous state.
// A document is new when its path is absent from previous, modified when its
// current modification time is strictly greater than the stored value, and
// deleted when it is in previous but absent from the listing.
func Diff(current []models.SourceDocument, previous *models.PersistedState) *models.ChangeSet {
	cs := &models.ChangeSet{}
	listed := make(map[string]bool, len(current))
	for _, doc := range current {
		listed[doc.Path] = true
		prev, ok := previous.Documents[doc.Path]
		switch {
		case !ok:
			cs.New = append(cs.New, doc)
		case doc.ModifiedAt.After(prev.ModifiedAt):
			cs.Modified = append(cs.Modified, doc)
		}
	}
	for path := range previous.Documents {
		if !listed[path] {
			cs.Deleted = append(cs.Deleted, path)
		}
	}
	return cs
}
