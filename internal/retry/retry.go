// Package retry provides the single retry combinator used for every pool call
// that is allowed a second chance. Policies are declared per operation; call
// sites never hand-roll backoff loops.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
)

// Policy declares how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, first one included.
	MaxAttempts int
	// Min is the delay before the second attempt.
	Min time.Duration
	// Max caps the delay growth.
	Max time.Duration
	// Factor multiplies the delay between attempts. Zero means 2.
	Factor float64
	// Jitter randomizes delays to avoid synchronized thundering herds.
	Jitter bool
	// Retryable decides whether a given failure is worth another attempt.
	// Nil retries everything.
	Retryable func(error) bool
}

// TradePolicy is the bounded schedule used for open and close replication:
// three attempts with 5s/10s delays in between (5, 10, 20 cap).
var TradePolicy = Policy{
	MaxAttempts: 3,
	Min:         5 * time.Second,
	Max:         20 * time.Second,
	Factor:      2,
}

// Do runs op under the policy. It returns nil on the first success, the last
// error once attempts are exhausted or the failure is not retryable, and the
// context error if the caller goes away mid-backoff.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	factor := p.Factor
	if factor == 0 {
		factor = 2
	}
	b := &backoff.Backoff{Min: p.Min, Max: p.Max, Factor: factor, Jitter: p.Jitter}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry canceled: %w", err)
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return fmt.Errorf("retry canceled during backoff: %w", ctx.Err())
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
