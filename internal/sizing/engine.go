// Package sizing decides whether and how a source trade is copied to a
// destination: symbol filtering, concurrency caps, volume scaling and the
// stop-loss guard. Decide is a pure function; all arithmetic runs on
// fixed-point decimals so JSON's float64 prices cannot drift the lot math.
package sizing

import (
	"github.com/shopspring/decimal"

	"github.com/mirrorfx/router/internal/config"
	"github.com/mirrorfx/router/internal/models"
)

// Kind classifies a decision.
type Kind int

const (
	// KindSkip means the trade is not copied; Reason says why.
	KindSkip Kind = iota
	// KindOpen means a destination open should be placed.
	KindOpen
)

// Decision is the outcome of Decide.
type Decision struct {
	Kind   Kind
	Reason string

	// Open parameters, set when Kind == KindOpen.
	Symbol     string
	Side       models.Side
	Volume     float64
	StopLoss   *float64
	TakeProfit *float64
	// SLPips/TPPips are the route's default stop distances, applied to the
	// destination open price after the fill when the source carries no stop.
	SLPips *float64
	TPPips *float64
}

// Context carries the mutable inputs of a decision.
type Context struct {
	// OpenOnSymbol is how many destination positions are already open on the
	// (destination, symbol) pair, mapped positions only.
	OpenOnSymbol int
	// SourceEquity and DestEquity feed the equity_ratio rule.
	SourceEquity float64
	DestEquity   float64
}

func skip(reason string) Decision {
	return Decision{Kind: KindSkip, Reason: reason}
}

// Decide evaluates the route rules in order; first match wins.
func Decide(src *models.Position, dest *config.Destination, ctx Context) Decision {
	destSymbol := dest.RewriteSymbol(src.Symbol)

	if ok, reason := dest.SymbolAllowed(destSymbol); !ok {
		return skip(reason)
	}

	if dest.MaxPerSymbol > 0 && ctx.OpenOnSymbol >= dest.MaxPerSymbol {
		return skip("max concurrent reached")
	}

	volume, reason := scaleVolume(src.Volume, dest, ctx)
	if reason != "" {
		return skip(reason)
	}

	if dest.DefaultSLPips == nil && !src.HasStopLoss() && dest.RequiresStopLoss(destSymbol) {
		return skip("no stop loss")
	}

	d := Decision{
		Kind:   KindOpen,
		Symbol: destSymbol,
		Side:   src.Side,
		Volume: volume,
	}
	if src.HasStopLoss() {
		d.StopLoss = models.Float64Ptr(*src.StopLoss)
	} else {
		d.SLPips = dest.DefaultSLPips
	}
	if src.HasTakeProfit() {
		d.TakeProfit = models.Float64Ptr(*src.TakeProfit)
	} else {
		d.TPPips = dest.DefaultTPPips
	}
	return d
}

// scaleVolume applies the sizing rule and lot constraints. Returns the final
// volume, or a skip reason.
func scaleVolume(sourceVolume float64, dest *config.Destination, ctx Context) (float64, string) {
	step := decimal.NewFromFloat(dest.EffectiveLotStep())
	minLot := decimal.NewFromFloat(dest.EffectiveMinLot())
	maxLot := decimal.NewFromFloat(dest.EffectiveMaxLot())
	srcVol := decimal.NewFromFloat(sourceVolume)

	var vol decimal.Decimal
	switch dest.Sizing.Mode {
	case config.SizingFixed:
		vol = roundToStep(decimal.NewFromFloat(dest.Sizing.Value), step)
	case config.SizingMultiplier:
		vol = roundToStep(srcVol.Mul(decimal.NewFromFloat(dest.Sizing.Value)), step)
	case config.SizingEquityRatio:
		if ctx.SourceEquity <= 0 || ctx.DestEquity <= 0 {
			return 0, "equity unavailable for sizing"
		}
		ratio := decimal.NewFromFloat(ctx.DestEquity).Div(decimal.NewFromFloat(ctx.SourceEquity))
		vol = floorToStep(srcVol.Mul(ratio), step)
	default:
		return 0, "unknown sizing mode"
	}

	if vol.GreaterThan(maxLot) {
		vol = maxLot
	}
	if vol.LessThan(minLot) {
		return 0, "volume below minimum"
	}

	f, _ := vol.Float64()
	return f, ""
}

// roundToStep quantizes v to the nearest multiple of step.
func roundToStep(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Round(0).Mul(step)
}

// floorToStep quantizes v down to a multiple of step.
func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Floor().Mul(step)
}

// StopFromPips computes an absolute stop price from the destination open
// price, pips distance and side. For a BUY the stop loss sits below the open,
// the take profit above; mirrored for SELL.
func StopFromPips(openPrice, pips, pipSize float64, side models.Side, takeProfit bool) float64 {
	open := decimal.NewFromFloat(openPrice)
	dist := decimal.NewFromFloat(pips).Mul(decimal.NewFromFloat(pipSize))
	below := side == models.SideBuy
	if takeProfit {
		below = !below
	}
	if below {
		open = open.Sub(dist)
	} else {
		open = open.Add(dist)
	}
	f, _ := open.Float64()
	return f
}
