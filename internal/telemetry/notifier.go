// Package telemetry delivers out-of-band operator alerts. Delivery is
// best-effort and never sits on the trading path: failures are logged and
// swallowed, and no business logic may depend on a notification outcome.
package telemetry

import "context"

// Severity grades an alert.
type Severity string

const (
	// SeverityInfo is informational (startup, reload).
	SeverityInfo Severity = "info"
	// SeverityWarning needs an operator eye but not a wake-up.
	SeverityWarning Severity = "warning"
	// SeverityCritical means replication guarantees are at risk.
	SeverityCritical Severity = "critical"
)

// Notifier is the single-method alerting contract.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, subject, body string)
}

// Nop discards all notifications. Used when Telegram is not configured and in
// tests that do not assert on alerts.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Severity, string, string) {}
