package copier

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mirrorfx/router/internal/models"
	"github.com/mirrorfx/router/internal/pool"
	"github.com/mirrorfx/router/internal/retry"
)

// ExitOutcome is the resolution of one destination close attempt.
type ExitOutcome int

const (
	// ExitUnresolved means the close could not be confirmed either way. The
	// mapping must be kept so the exit is redriven later.
	ExitUnresolved ExitOutcome = iota
	// ExitClosed means the router closed the destination position.
	ExitClosed
	// ExitAlreadyClosed means the destination position was already gone.
	ExitAlreadyClosed
)

// errNotConfirmed marks an attempt where the destination snapshot did not
// contain the position. Retried so a stale snapshot cannot end an open leg.
var errNotConfirmed = errors.New("destination position absent from snapshot")

// ExitCopier drives one destination close to a definitive outcome. Shared by
// the traders and the reconciler's stuck-close redrive.
type ExitCopier struct {
	pool     pool.API
	regionOf func(accountID string) string
	logger   *logrus.Logger
	policy   retry.Policy
	// onRetry is called once per extra attempt so callers can count retries.
	onRetry func()
}

// ExitOption customizes an ExitCopier.
type ExitOption func(*ExitCopier)

// WithExitPolicy overrides the retry schedule (tests shrink the delays).
func WithExitPolicy(p retry.Policy) ExitOption {
	return func(e *ExitCopier) { e.policy = p }
}

// WithRetryHook registers a callback fired on every attempt after the first.
func WithRetryHook(fn func()) ExitOption {
	return func(e *ExitCopier) { e.onRetry = fn }
}

// NewExitCopier creates an exit copier. regionOf resolves a destination
// account to its pool region.
func NewExitCopier(p pool.API, regionOf func(string) string, logger *logrus.Logger, opts ...ExitOption) *ExitCopier {
	e := &ExitCopier{
		pool:     p,
		regionOf: regionOf,
		logger:   logger,
		policy:   retry.TradePolicy,
	}
	for _, o := range opts {
		o(e)
	}
	e.policy.Retryable = func(err error) bool {
		return pool.IsRetryable(err) || errors.Is(err, errNotConfirmed)
	}
	return e
}

// CopyExit closes the destination leg of a mapping. Every attempt first
// verifies the position against a fresh destination snapshot: a position that
// is genuinely gone resolves as already closed instead of poking the broker,
// and a transport failure never masquerades as "gone".
func (e *ExitCopier) CopyExit(ctx context.Context, m *models.Mapping) (ExitOutcome, *pool.CloseResult, error) {
	region := e.regionOf(m.DestAccountID)
	attempts := e.policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	outcome := ExitUnresolved
	var result *pool.CloseResult

	err := retry.Do(ctx, e.policy, func(ctx context.Context, attempt int) error {
		if attempt > 1 && e.onRetry != nil {
			e.onRetry()
		}

		positions, err := e.pool.Positions(ctx, m.DestAccountID, region)
		if err != nil {
			return fmt.Errorf("verifying destination %s: %w", m.DestAccountID, err)
		}
		if !containsPosition(positions, m.DestPositionID) {
			if attempt == attempts {
				outcome = ExitAlreadyClosed
				return nil
			}
			return fmt.Errorf("%w: %s on %s", errNotConfirmed, m.DestPositionID, m.DestAccountID)
		}

		res, err := e.pool.ClosePosition(ctx, m.DestAccountID, region, m.DestPositionID)
		if err == nil {
			outcome = ExitClosed
			result = res
			return nil
		}
		if pool.IsUnknownPosition(err) {
			outcome = ExitAlreadyClosed
			return nil
		}
		return fmt.Errorf("closing %s on %s: %w", m.DestPositionID, m.DestAccountID, err)
	})
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"dest":          m.DestAccountID,
			"dest_position": m.DestPositionID,
		}).Error("destination close unresolved")
		return ExitUnresolved, nil, err
	}
	return outcome, result, nil
}

func containsPosition(positions []models.Position, id string) bool {
	for i := range positions {
		if positions[i].ID == id {
			return true
		}
	}
	return false
}
