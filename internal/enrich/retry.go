package enrich

import (
	"context"
	"math/rand"
	"time"
)

// Policy bounds how often a failing enrichment call is reattempted.
// Delays double on every retry and carry a small random jitter so that
// parallel workers hitting the same rate limit do not retry in lockstep.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy returns a retry policy with the given bounds. Values below the
// minimum are clamped so a misconfigured policy still makes one attempt.
func NewPolicy(maxAttempts int, baseDelay time.Duration) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, sleep: sleepContext}
}

// Do runs op until it succeeds, fails terminally, runs out of attempts, or
// the context is cancelled. It returns the number of attempts made and the
// final error.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return attempt - 1, ctx.Err()
		}
		err = op(ctx)
		if err == nil {
			return attempt, nil
		}
		if !Retryable(err) {
			return attempt, err
		}
		if attempt == p.MaxAttempts {
			return attempt, err
		}
		if serr := p.sleep(ctx, jitter(delay)); serr != nil {
			return attempt, serr
		}
		delay *= 2
	}
	return p.MaxAttempts, err
}

// jitter stretches d by up to 25%. It never shrinks the delay, so the
// sequence of waits stays monotonically increasing across doublings.
func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
