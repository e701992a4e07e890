package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mirrorfx/router/internal/telemetry"
)

const (
	// defaultFailureThreshold is how many consecutive countable failures an
	// account accumulates before an alert goes out.
	defaultFailureThreshold = 3
	// defaultAlertCooldown caps alert frequency per account.
	defaultAlertCooldown = 5 * time.Minute
	// defaultStaleAfter resets the streak when failures are far apart, so a
	// transient pool restart does not accumulate across days.
	defaultStaleAfter = 30 * time.Second
)

// BreakerSet tracks per-account consecutive failures and gates alert spam.
// It never blocks a request: trading calls are always attempted, and the only
// side effect of a tripped account is a rate-limited operator alert.
type BreakerSet struct {
	mu        sync.Mutex
	accounts  map[string]*accountState
	notifier  telemetry.Notifier
	nickname  func(accountID string) string
	threshold int
	cooldown  time.Duration
	stale     time.Duration
	now       func() time.Time
}

type accountState struct {
	failures    int
	lastFailure time.Time
	alerted     bool
	lastAlert   time.Time
}

// AccountBreaker is the introspection view of one account's breaker state.
type AccountBreaker struct {
	AccountID         string    `json:"account_id"`
	Nickname          string    `json:"nickname,omitempty"`
	ConsecutiveFails  int       `json:"consecutive_failures"`
	LastFailure       time.Time `json:"last_failure,omitempty"`
	Alerted           bool      `json:"alerted"`
	LastAlert         time.Time `json:"last_alert,omitempty"`
	CooldownRemaining string    `json:"cooldown_remaining,omitempty"`
}

// BreakerOption customizes a BreakerSet.
type BreakerOption func(*BreakerSet)

// WithThreshold overrides the consecutive-failure threshold.
func WithThreshold(n int) BreakerOption {
	return func(b *BreakerSet) { b.threshold = n }
}

// WithCooldown overrides the alert cooldown.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *BreakerSet) { b.cooldown = d }
}

// WithStaleAfter overrides the streak staleness window.
func WithStaleAfter(d time.Duration) BreakerOption {
	return func(b *BreakerSet) { b.stale = d }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) BreakerOption {
	return func(b *BreakerSet) { b.now = now }
}

// NewBreakerSet creates a breaker set. nickname maps account IDs to the
// human names used in alerts; it may return "" for unknown accounts.
func NewBreakerSet(notifier telemetry.Notifier, nickname func(string) string, opts ...BreakerOption) *BreakerSet {
	if nickname == nil {
		nickname = func(string) string { return "" }
	}
	b := &BreakerSet{
		accounts:  make(map[string]*accountState),
		notifier:  notifier,
		nickname:  nickname,
		threshold: defaultFailureThreshold,
		cooldown:  defaultAlertCooldown,
		stale:     defaultStaleAfter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RecordSuccess resets the account's streak and clears alert suppression.
func (b *BreakerSet) RecordSuccess(accountID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.accounts[accountID]
	if !ok {
		return
	}
	st.failures = 0
	st.alerted = false
}

// RecordFailure counts a failed call against the account. Connection-refused
// class failures are upstream restarts and do not count at all.
func (b *BreakerSet) RecordFailure(ctx context.Context, accountID string, err error) {
	if isConnectionRefused(err) {
		return
	}

	b.mu.Lock()
	st, ok := b.accounts[accountID]
	if !ok {
		st = &accountState{}
		b.accounts[accountID] = st
	}
	now := b.now()
	if !st.lastFailure.IsZero() && now.Sub(st.lastFailure) > b.stale {
		st.failures = 0
	}
	st.failures++
	st.lastFailure = now

	shouldAlert := st.failures >= b.threshold &&
		(!st.alerted || now.Sub(st.lastAlert) >= b.cooldown)
	if shouldAlert {
		st.alerted = true
		st.lastAlert = now
	}
	failures := st.failures
	b.mu.Unlock()

	if shouldAlert {
		name := b.nickname(accountID)
		if name == "" {
			name = accountID
		}
		b.notifier.Notify(ctx, telemetry.SeverityCritical,
			fmt.Sprintf("pool calls failing for %s", name),
			fmt.Sprintf("%d consecutive failures, last error: %v", failures, err))
	}
}

// Snapshot returns the breaker state for every tracked account.
func (b *BreakerSet) Snapshot() []AccountBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	out := make([]AccountBreaker, 0, len(b.accounts))
	for id, st := range b.accounts {
		ab := AccountBreaker{
			AccountID:        id,
			Nickname:         b.nickname(id),
			ConsecutiveFails: st.failures,
			LastFailure:      st.lastFailure,
			Alerted:          st.alerted,
			LastAlert:        st.lastAlert,
		}
		if st.alerted {
			if rem := b.cooldown - now.Sub(st.lastAlert); rem > 0 {
				ab.CooldownRemaining = rem.Round(time.Second).String()
			}
		}
		out = append(out, ab)
	}
	return out
}
