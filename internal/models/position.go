// Package models provides the shared domain types for the copy router:
// broker positions, position mappings, and per-source counters.
package models

import "time"

// Side is the direction of a position.
type Side string

const (
	// SideBuy is a long position.
	SideBuy Side = "BUY"
	// SideSell is a short position.
	SideSell Side = "SELL"
)

// Position is an open position as reported by the pool service. Positions are
// observed, never owned: the broker decides their lifetime.
type Position struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"openPrice"`
	CurrentPrice float64   `json:"currentPrice"`
	StopLoss     *float64  `json:"stopLoss,omitempty"`
	TakeProfit   *float64  `json:"takeProfit,omitempty"`
	Profit       float64   `json:"profit"`
	OpenTime     time.Time `json:"time"`
}

// HasStopLoss reports whether the broker holds a stop loss for this position.
func (p *Position) HasStopLoss() bool {
	return p.StopLoss != nil && *p.StopLoss != 0
}

// HasTakeProfit reports whether the broker holds a take profit for this position.
func (p *Position) HasTakeProfit() bool {
	return p.TakeProfit != nil && *p.TakeProfit != 0
}

// StopsEqual compares the SL/TP pair of two snapshots of the same position.
// Unset and zero are the same thing because MetaTrader reports "no stop" as 0.0.
func StopsEqual(a, b *Position) bool {
	return floatPtrEqual(a.StopLoss, b.StopLoss) && floatPtrEqual(a.TakeProfit, b.TakeProfit)
}

// priceEpsilon tolerates the float noise the pool introduces by shipping
// prices as IEEE-754 doubles over JSON.
const priceEpsilon = 1e-7

func floatPtrEqual(a, b *float64) bool {
	av, bv := 0.0, 0.0
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	d := av - bv
	if d < 0 {
		d = -d
	}
	return d <= priceEpsilon
}

// Float64Ptr returns a pointer to v. Convenience for optional SL/TP fields.
func Float64Ptr(v float64) *float64 { return &v }
