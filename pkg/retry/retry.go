package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/shipway/shipway/pkg/types"
)

// Policy is a bounded, fixed-backoff retry policy. It is the single
// configuration surface for every retry loop in a deployment run; no call
// site embeds its own attempt counts, and unbounded loops are not
// expressible.
type Policy struct {
	// Attempts is the total number of tries. Always bounded.
	Attempts int

	// Interval is the fixed sleep between tries.
	Interval time.Duration

	// Consecutive is how many consecutive successes Verify requires.
	// Zero or one means a single success suffices.
	Consecutive int
}

// Do runs fn up to Attempts times, sleeping Interval between failures.
// It returns nil on the first success, or the last error once attempts are
// exhausted. The sleep is context-aware.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt < attempts {
			if err := sleep(ctx, p.Interval); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

// Verify polls probe until Consecutive consecutive healthy results are
// observed, within at most Attempts probes total. It returns the final
// result; err is non-nil when the budget runs out or the context ends
// first.
func (p Policy) Verify(ctx context.Context, probe func(ctx context.Context) types.HealthResult) (types.HealthResult, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	need := p.Consecutive
	if need < 1 {
		need = 1
	}

	var last types.HealthResult
	streak := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		last = probe(ctx)
		if last.Healthy {
			streak++
			if streak >= need {
				return last, nil
			}
		} else {
			streak = 0
		}

		if attempt < attempts {
			if err := sleep(ctx, p.Interval); err != nil {
				return last, err
			}
		}
	}
	return last, fmt.Errorf("not healthy after %d probes (needed %d consecutive): %s",
		attempts, need, last.Detail)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
