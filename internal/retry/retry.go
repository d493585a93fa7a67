// Package retry runs store calls with bounded exponential backoff.
//
// Only STORE_UNAVAILABLE errors are retried. Callers wrap whole operations
// at the API boundary; nothing inside a tenant's critical section retries.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/metrics"
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	Attempts int

	// Initial is the delay after the first failure. It doubles per attempt
	// up to Max.
	Initial time.Duration
	Max     time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Op labels log lines and the retry counter.
	Op string
}

// DefaultPolicy is three attempts starting at 50ms, capped at 1s.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Initial: 50 * time.Millisecond, Max: time.Second}
}

// Named returns a copy of p labeled with op.
func (p Policy) Named(op string) Policy {
	p.Op = op
	return p
}

// Delay returns the backoff before the given retry (1-based).
func (p Policy) Delay(retry int) time.Duration {
	d := p.Initial
	for i := 1; i < retry; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !domain.IsRetryable(err) || attempt >= attempts {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		delay := p.Delay(attempt)
		p.Metrics.StoreRetry(p.Op)
		logger.Warn("store unavailable, retrying",
			"op", p.Op,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// Value is Do for functions that return a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
