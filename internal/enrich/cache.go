package enrich

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/torikomi/internal/models"
)

// Cache stores enrichment results keyed by content fingerprint and kind.
// Two documents with identical bytes share one cache entry, so renames and
// copies never pay for a second service call.
type Cache struct {
	db *sql.DB
}

// cacheEntry is the persisted shape of one enrichment result.
type cacheEntry struct {
	Summary  *string                        `json:"summary,omitempty"`
	Entities map[models.EntityType][]string `json:"entities,omitempty"`
}

// NewCache opens or creates a SQLite cache at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func NewCache(dbPath string) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initCacheSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

func initCacheSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS enrichments (
		fingerprint TEXT NOT NULL,
		kind TEXT NOT NULL,
		result TEXT NOT NULL,
		cost_units REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (fingerprint, kind)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Get returns the cached result for (fingerprint, kind), if any. The second
// return value reports whether an entry was found. Cache hits carry a cost
// of zero; only the original computation is charged.
func (c *Cache) Get(ctx context.Context, fingerprint string, kind models.EnrichmentKind) (*models.EnrichmentResult, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT result FROM enrichments WHERE fingerprint = ? AND kind = ?`,
		fingerprint, string(kind),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read enrichment cache: %w", err)
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached enrichment: %w", err)
	}
	return &models.EnrichmentResult{
		Summary:   entry.Summary,
		Entities:  entry.Entities,
		FromCache: true,
	}, true, nil
}

// Put stores result under (fingerprint, kind). A duplicate computation
// racing another worker overwrites with an equivalent result.
func (c *Cache) Put(ctx context.Context, fingerprint string, kind models.EnrichmentKind, result *models.EnrichmentResult) error {
	raw, err := json.Marshal(cacheEntry{Summary: result.Summary, Entities: result.Entities})
	if err != nil {
		return fmt.Errorf("failed to encode enrichment: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO enrichments (fingerprint, kind, result, cost_units, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		fingerprint, string(kind), string(raw), result.CostUnits, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write enrichment cache: %w", err)
	}
	return nil
}

// TotalCost sums the cost units of every cached enrichment. It reflects
// total spend across runs, since cache hits are free.
func (c *Cache) TotalCost(ctx context.Context) (float64, error) {
	var total sql.NullFloat64
	err := c.db.QueryRowContext(ctx, `SELECT SUM(cost_units) FROM enrichments`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum enrichment cost: %w", err)
	}
	return total.Float64, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
