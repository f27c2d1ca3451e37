package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/torikomi/internal/models"
	"go.uber.org/zap"
)

// OCRStrategy recognizes text in scanned documents by rasterizing pages and
// running an external recognition engine on each. Confidence is the engine's
// own reported word confidence, averaged across pages. The engine binaries
// are single-instance external processes; the chain never runs this strategy
// concurrently for the same document.
type OCRStrategy struct {
	rasterizer string // pdftoppm-compatible: <bin> -r <dpi> -png <in> <prefix>
	engine     string // tesseract-compatible: <bin> <image> stdout tsv
	dpi        int
	timeout    time.Duration
	threshold  float64
	logger     *zap.Logger
}

// OCROption configures an OCRStrategy.
type OCROption func(*OCRStrategy)

// WithOCRLogger sets a logger for per-page debug output.
func WithOCRLogger(l *zap.Logger) OCROption {
	return func(s *OCRStrategy) { s.logger = l }
}

// NewOCRStrategy creates the optical recognition strategy. rasterizer and
// engine name the external binaries; each invocation carries its own timeout.
func NewOCRStrategy(rasterizer, engine string, dpi int, timeout time.Duration, threshold float64, opts ...OCROption) *OCRStrategy {
	s := &OCRStrategy{
		rasterizer: rasterizer,
		engine:     engine,
		dpi:        dpi,
		timeout:    timeout,
		threshold:  threshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *OCRStrategy) Name() string                    { return "ocr" }
func (s *OCRStrategy) Method() models.ExtractionMethod { return models.MethodOCR }
func (s *OCRStrategy) Threshold() float64              { return s.threshold }

// Extract rasterizes the document and recognizes each page. Page-level
// engine failures become warnings and score 0 for that page; they never
// abort the remaining pages.
func (s *OCRStrategy) Extract(ctx context.Context, doc models.SourceDocument, content []byte) (models.ExtractionResult, error) {
	ext := strings.ToLower(path.Ext(doc.Path))
	if ext != ".pdf" {
		return models.ExtractionResult{Method: models.MethodOCR},
			fmt.Errorf("optical recognition not supported for %q", ext)
	}

	workDir, err := os.MkdirTemp("", "torikomi-ocr-*")
	if err != nil {
		return models.ExtractionResult{Method: models.MethodOCR}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(input, content, 0600); err != nil {
		return models.ExtractionResult{Method: models.MethodOCR}, fmt.Errorf("write input: %w", err)
	}

	pages, err := s.rasterize(ctx, input, filepath.Join(workDir, "page"))
	if err != nil {
		return models.ExtractionResult{Method: models.MethodOCR}, fmt.Errorf("rasterize: %w", err)
	}
	if len(pages) == 0 {
		return models.ExtractionResult{Method: models.MethodOCR}, fmt.Errorf("rasterizer produced no pages")
	}

	var (
		buf      strings.Builder
		confSum  float64
		warnings []string
	)
	for _, page := range pages {
		text, conf, pageErr := s.recognize(ctx, page)
		if pageErr != nil {
			warnings = append(warnings, fmt.Sprintf("ocr %s: %v", filepath.Base(page), pageErr))
			continue // page scores 0
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(text)
		confSum += conf
	}
	return models.ExtractionResult{
		Text:       strings.TrimSpace(buf.String()),
		Method:     models.MethodOCR,
		Confidence: confSum / float64(len(pages)),
		Warnings:   warnings,
	}, nil
}

// rasterize renders the PDF into per-page PNG images and returns their paths
// in page order.
func (s *OCRStrategy) rasterize(ctx context.Context, input, prefix string) ([]string, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, s.rasterizer, "-r", strconv.Itoa(s.dpi), "-png", input, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, engineError(runCtx, s.rasterizer, err, stderr.String())
	}
	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return nil, err
	}
	sort.Strings(pages)
	return pages, nil
}

// recognize runs the engine on one page image and parses its TSV output:
// one row per token with a confidence column (0-100, -1 for non-word rows).
func (s *OCRStrategy) recognize(ctx context.Context, page string) (string, float64, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, s.engine, page, "stdout", "tsv")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", 0, engineError(runCtx, s.engine, err, stderr.String())
	}
	text, conf := parseTSV(stdout.String())
	if s.logger != nil {
		s.logger.Debug("page recognized",
			zap.String("page", filepath.Base(page)),
			zap.Float64("confidence", conf),
			zap.Int("chars", len(text)),
		)
	}
	return text, conf, nil
}

// parseTSV extracts word texts and the mean word confidence (scaled to
// [0, 1]) from tesseract-style TSV output. Expected columns:
// level page block par line word left top width height conf text.
func parseTSV(out string) (string, float64) {
	var (
		words   []string
		confSum float64
		n       int
	)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			continue // header or structural row
		}
		word := strings.TrimSpace(fields[11])
		if word == "" {
			continue
		}
		words = append(words, word)
		confSum += conf
		n++
	}
	if n == 0 {
		return "", 0
	}
	return strings.Join(words, " "), confSum / float64(n) / 100
}

// engineError distinguishes a per-call timeout from other engine failures.
func engineError(ctx context.Context, bin string, err error, stderr string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s timed out", bin)
	}
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("%s: %v: %s", bin, err, firstLine(msg))
	}
	return fmt.Errorf("%s: %v", bin, err)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
