package detect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/torikomi/internal/models"
)

// CachedListing is an ephemeral, TTL-bounded snapshot of the content store
// listing. It is safe to delete at any time; a missing or stale cache forces
// a full listing on the next run.
type CachedListing struct {
	TakenAt   time.Time               `json:"taken_at"`
	Documents []models.SourceDocument `json:"documents"`
}

// Fresh reports whether the listing is younger than ttl at time now.
func (c *CachedListing) Fresh(ttl time.Duration, now time.Time) bool {
	return !c.TakenAt.IsZero() && now.Sub(c.TakenAt) < ttl
}

// ListingCache persists CachedListing snapshots as a JSON file.
type ListingCache struct {
	path string
}

// NewListingCache creates a cache persisting to path.
func NewListingCache(path string) *ListingCache {
	return &ListingCache{path: path}
}

// Load returns the cached listing, or nil when missing or unreadable.
// A corrupt cache is never an error; it simply forces a full scan.
func (c *ListingCache) Load() *CachedListing {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil
	}
	var cached CachedListing
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil
	}
	return &cached
}

// Store rewrites the cache with the given listing, stamped now.
func (c *ListingCache) Store(docs []models.SourceDocument, now time.Time) error {
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create cache directory: %w", err)
		}
	}
	data, err := json.Marshal(&CachedListing{TakenAt: now, Documents: docs})
	if err != nil {
		return fmt.Errorf("marshal listing cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("write listing cache: %w", err)
	}
	return nil
}
