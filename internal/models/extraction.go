package models

// ExtractionMethod identifies which strategy in the extraction chain
// produced the accepted text.
type ExtractionMethod string

const (
	MethodCached     ExtractionMethod = "cached"
	MethodDirectText ExtractionMethod = "direct_text"
	MethodOCR        ExtractionMethod = "ocr"
)

// ExtractionResult is the output of the extraction chain for one document.
// Confidence of 0 signals total failure (empty text). Method reflects the
// first strategy in chain order that produced confidence above that
// strategy's acceptance threshold.
type ExtractionResult struct {
	Text       string           `json:"text"`
	Method     ExtractionMethod `json:"method"`
	Confidence float64          `json:"confidence"`
	Warnings   []string         `json:"warnings,omitempty"`
}
