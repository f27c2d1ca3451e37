package extract

import (
	"context"
	"path"
	"strings"

	"github.com/hyperjump/torikomi/internal/models"
)

// DirectStrategy performs structural text extraction based on the document's
// format. Confidence is the ratio of extracted characters to the character
// count expected from the document's byte size: near-zero output on a
// non-trivial document implies a scanned or image-only source.
type DirectStrategy struct {
	threshold float64
}

// NewDirectStrategy creates the direct text extraction strategy.
func NewDirectStrategy(threshold float64) *DirectStrategy {
	return &DirectStrategy{threshold: threshold}
}

func (s *DirectStrategy) Name() string                    { return "direct_text" }
func (s *DirectStrategy) Method() models.ExtractionMethod { return models.MethodDirectText }
func (s *DirectStrategy) Threshold() float64              { return s.threshold }

// Extract dispatches on the file extension and scores the result.
func (s *DirectStrategy) Extract(_ context.Context, doc models.SourceDocument, content []byte) (models.ExtractionResult, error) {
	ext := strings.ToLower(path.Ext(doc.Path))
	text, err := textFromBytes(content, ext)
	if err != nil {
		return models.ExtractionResult{Method: models.MethodDirectText}, err
	}
	text = strings.TrimSpace(text)
	return models.ExtractionResult{
		Text:       text,
		Method:     models.MethodDirectText,
		Confidence: directConfidence(ext, doc.SizeBytes, len(text)),
	}, nil
}

// expectedTextRatio estimates how many characters of text one byte of the
// source format should yield. Plain formats are roughly 1:1; container
// formats carry markup, compression dictionaries, and embedded media.
func expectedTextRatio(ext string) float64 {
	switch ext {
	case ".txt", ".md", ".rst", "":
		return 0.9
	case ".pdf":
		return 0.02
	case ".docx", ".odt", ".rtf", ".pptx", ".odp":
		return 0.05
	case ".xlsx", ".ods":
		return 0.03
	default:
		return 0.1
	}
}

// directConfidence scores extracted text against the size-derived
// expectation, clamped to [0, 1].
func directConfidence(ext string, sizeBytes int64, textLen int) float64 {
	if textLen == 0 {
		return 0
	}
	if sizeBytes <= 0 {
		return 1
	}
	expected := float64(sizeBytes) * expectedTextRatio(ext)
	if expected < 1 {
		expected = 1
	}
	c := float64(textLen) / expected
	if c > 1 {
		c = 1
	}
	return c
}
