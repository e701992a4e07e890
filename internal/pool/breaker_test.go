package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorfx/router/internal/telemetry"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Notify(_ context.Context, severity telemetry.Severity, subject, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fmt.Sprintf("%s: %s", severity, subject))
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func newTestBreaker(notifier telemetry.Notifier, now *time.Time) *BreakerSet {
	return NewBreakerSet(notifier, nil,
		WithThreshold(3),
		WithCooldown(5*time.Minute),
		WithStaleAfter(30*time.Second),
		WithClock(func() time.Time { return *now }),
	)
}

func TestBreakerAlertsAtThreshold(t *testing.T) {
	notifier := &recordingNotifier{}
	now := time.Now()
	b := newTestBreaker(notifier, &now)
	err := errors.New("timeout")

	b.RecordFailure(context.Background(), "acct-1", err)
	now = now.Add(time.Second)
	b.RecordFailure(context.Background(), "acct-1", err)
	assert.Equal(t, 0, notifier.count(), "no alert below threshold")

	now = now.Add(time.Second)
	b.RecordFailure(context.Background(), "acct-1", err)
	assert.Equal(t, 1, notifier.count(), "alert at threshold")
}

func TestBreakerCooldownSuppressesRepeatAlerts(t *testing.T) {
	notifier := &recordingNotifier{}
	now := time.Now()
	b := newTestBreaker(notifier, &now)
	err := errors.New("timeout")

	for i := 0; i < 3; i++ {
		b.RecordFailure(context.Background(), "acct-1", err)
		now = now.Add(time.Second)
	}
	require.Equal(t, 1, notifier.count())

	// Failures keep coming inside the cooldown: no new alert.
	for i := 0; i < 10; i++ {
		b.RecordFailure(context.Background(), "acct-1", err)
		now = now.Add(time.Second)
	}
	assert.Equal(t, 1, notifier.count())

	// Past the cooldown the still-failing account alerts again.
	now = now.Add(5 * time.Minute)
	b.RecordFailure(context.Background(), "acct-1", err)
	assert.Equal(t, 2, notifier.count())
}

func TestBreakerSuccessResetsStreakAndAlertGate(t *testing.T) {
	notifier := &recordingNotifier{}
	now := time.Now()
	b := newTestBreaker(notifier, &now)
	err := errors.New("timeout")

	for i := 0; i < 3; i++ {
		b.RecordFailure(context.Background(), "acct-1", err)
		now = now.Add(time.Second)
	}
	require.Equal(t, 1, notifier.count())

	b.RecordSuccess("acct-1")

	// A fresh streak after a success alerts again even inside the old
	// cooldown window.
	for i := 0; i < 3; i++ {
		b.RecordFailure(context.Background(), "acct-1", err)
		now = now.Add(time.Second)
	}
	assert.Equal(t, 2, notifier.count())
}

func TestBreakerIgnoresConnectionRefused(t *testing.T) {
	notifier := &recordingNotifier{}
	now := time.Now()
	b := newTestBreaker(notifier, &now)

	refused := errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")
	for i := 0; i < 10; i++ {
		b.RecordFailure(context.Background(), "acct-1", refused)
	}
	assert.Equal(t, 0, notifier.count())
	assert.Empty(t, b.Snapshot())
}

func TestBreakerStaleStreakResets(t *testing.T) {
	notifier := &recordingNotifier{}
	now := time.Now()
	b := newTestBreaker(notifier, &now)
	err := errors.New("timeout")

	b.RecordFailure(context.Background(), "acct-1", err)
	b.RecordFailure(context.Background(), "acct-1", err)

	// Failures separated by more than the staleness window start over.
	now = now.Add(time.Minute)
	b.RecordFailure(context.Background(), "acct-1", err)
	assert.Equal(t, 0, notifier.count())

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].ConsecutiveFails)
}

func TestBreakerTracksAccountsIndependently(t *testing.T) {
	notifier := &recordingNotifier{}
	now := time.Now()
	b := newTestBreaker(notifier, &now)
	err := errors.New("timeout")

	for i := 0; i < 3; i++ {
		b.RecordFailure(context.Background(), "acct-1", err)
		now = now.Add(time.Second)
	}
	b.RecordFailure(context.Background(), "acct-2", err)

	require.Equal(t, 1, notifier.count())
	snap := b.Snapshot()
	assert.Len(t, snap, 2)
}
