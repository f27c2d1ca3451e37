package enrich

import (
	"context"

	"github.com/hyperjump/torikomi/internal/models"
)

// Client performs a single enrichment call against an external service.
// Implementations return the cost units reported by the service, or 0 when
// the service does not report usage.
type Client interface {
	// Summarize produces a short prose summary of text.
	Summarize(ctx context.Context, text string) (string, float64, error)

	// Entities extracts named entities from text, keyed by entity type.
	Entities(ctx context.Context, text string) (map[models.EntityType][]string, float64, error)
}
