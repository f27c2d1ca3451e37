package extract

import (
	"context"
	"strings"

	"github.com/hyperjump/torikomi/internal/models"
	"github.com/hyperjump/torikomi/internal/source"
)

// SidecarStrategy serves pre-computed text sidecars. A present, non-empty
// sidecar is accepted unconditionally (confidence 1).
type SidecarStrategy struct {
	store     source.Store
	threshold float64
}

// NewSidecarStrategy creates the sidecar strategy reading from store.
func NewSidecarStrategy(store source.Store, threshold float64) *SidecarStrategy {
	return &SidecarStrategy{store: store, threshold: threshold}
}

func (s *SidecarStrategy) Name() string                    { return "sidecar" }
func (s *SidecarStrategy) Method() models.ExtractionMethod { return models.MethodCached }
func (s *SidecarStrategy) Threshold() float64              { return s.threshold }

// Extract looks up the document's text sidecar. A missing or empty sidecar
// yields confidence 0 without a warning; that is the normal fall-through.
func (s *SidecarStrategy) Extract(ctx context.Context, doc models.SourceDocument, _ []byte) (models.ExtractionResult, error) {
	text, ok, err := s.store.ReadSidecar(ctx, doc.Path)
	if err != nil {
		return models.ExtractionResult{Method: models.MethodCached}, err
	}
	if !ok || strings.TrimSpace(text) == "" {
		return models.ExtractionResult{Method: models.MethodCached}, nil
	}
	return models.ExtractionResult{
		Text:       text,
		Method:     models.MethodCached,
		Confidence: 1,
	}, nil
}
