// Package extract turns source documents into text through an ordered chain
// of strategies with confidence-gated fallback.
package extract

import (
	"context"
	"fmt"

	"github.com/hyperjump/torikomi/internal/models"
	"go.uber.org/zap"
)

// Strategy is one way of turning a document into text. Strategies are
// stateless across documents and safe to run concurrently on different
// documents; within one document the chain runs them strictly sequentially.
type Strategy interface {
	Name() string
	Method() models.ExtractionMethod
	// Threshold is the minimum confidence at which this strategy's result
	// is accepted and the chain stops.
	Threshold() float64
	Extract(ctx context.Context, doc models.SourceDocument, content []byte) (models.ExtractionResult, error)
}

// Chain applies strategies in declared order, stopping at the first result
// that meets its strategy's threshold. Equal confidence at the boundary is
// decided by order: the earlier strategy wins.
type Chain struct {
	strategies []Strategy
	logger     *zap.Logger // optional; when set, logs per-strategy outcomes
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// NewChain creates a chain over the given strategies. Disabled strategies
// (e.g. OCR when not configured) are simply not passed in.
func NewChain(strategies []Strategy, opts ...ChainOption) *Chain {
	c := &Chain{strategies: strategies}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract runs the chain for one document. A strategy failure (error or
// panic) is recorded as confidence 0 plus a warning and never aborts the
// chain. When no strategy meets its threshold, the last attempted result is
// returned with its confidence unmodified so callers can distinguish "tried
// and failed" from "not attempted". All warnings accumulated along the way
// are attached to the returned result.
func (c *Chain) Extract(ctx context.Context, doc models.SourceDocument, content []byte) models.ExtractionResult {
	var warnings []string
	var last models.ExtractionResult
	for _, s := range c.strategies {
		res := c.tryStrategy(ctx, s, doc, content)
		warnings = append(warnings, res.Warnings...)
		if res.Confidence >= s.Threshold() {
			res.Method = s.Method()
			res.Warnings = warnings
			if c.logger != nil {
				c.logger.Debug("extraction accepted",
					zap.String("path", doc.Path),
					zap.String("strategy", s.Name()),
					zap.Float64("confidence", res.Confidence),
				)
			}
			return res
		}
		if c.logger != nil {
			c.logger.Debug("extraction below threshold, falling back",
				zap.String("path", doc.Path),
				zap.String("strategy", s.Name()),
				zap.Float64("confidence", res.Confidence),
				zap.Float64("threshold", s.Threshold()),
			)
		}
		last = res
		last.Method = s.Method()
	}
	last.Warnings = warnings
	return last
}

// tryStrategy invokes one strategy, converting errors and panics into a
// confidence-0 result with a warning.
func (c *Chain) tryStrategy(ctx context.Context, s Strategy, doc models.SourceDocument, content []byte) (res models.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = models.ExtractionResult{
				Method:   s.Method(),
				Warnings: []string{fmt.Sprintf("%s: panic: %v", s.Name(), r)},
			}
		}
	}()
	res, err := s.Extract(ctx, doc, content)
	if err != nil {
		return models.ExtractionResult{
			Method:   s.Method(),
			Warnings: append(res.Warnings, fmt.Sprintf("%s: %v", s.Name(), err)),
		}
	}
	return res
}
