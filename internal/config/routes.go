package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Lot defaults used when a destination leaves its volume constraints unset.
const (
	DefaultLotStep = 0.01
	DefaultMinLot  = 0.01
	DefaultMaxLot  = 100.0
	// DefaultPipSize is the price increment of one pip for most FX symbols.
	// JPY pairs and metals need an explicit override on the destination.
	DefaultPipSize = 0.0001
)

// Sizing rule modes.
const (
	SizingFixed       = "fixed"
	SizingMultiplier  = "multiplier"
	SizingEquityRatio = "equity_ratio"
)

// RoutingTable is the static source → destinations map, loaded from JSON and
// hot-swapped whole on reload.
type RoutingTable struct {
	Sources []SourceRoutes `json:"sources"`
}

// SourceRoutes fans one observed source account out to its destinations.
type SourceRoutes struct {
	SourceAccountID string        `json:"source_account_id"`
	Region          string        `json:"region"`
	Nickname        string        `json:"nickname"`
	Destinations    []Destination `json:"destinations"`
}

// Destination is one copy target plus its filter/sizing policy.
type Destination struct {
	AccountID       string            `json:"account_id"`
	Region          string            `json:"region"`
	Nickname        string            `json:"nickname"`
	SymbolAllowlist []string          `json:"symbol_allowlist,omitempty"`
	SymbolBlocklist []string          `json:"symbol_blocklist,omitempty"`
	SymbolRewrites  map[string]string `json:"symbol_rewrites,omitempty"`
	Sizing          SizingRule        `json:"sizing"`
	DefaultSLPips   *float64          `json:"default_sl_pips,omitempty"`
	DefaultTPPips   *float64          `json:"default_tp_pips,omitempty"`
	MaxPerSymbol    int               `json:"max_per_symbol,omitempty"`
	MinLot          float64           `json:"min_lot,omitempty"`
	MaxLot          float64           `json:"max_lot,omitempty"`
	LotStep         float64           `json:"lot_step,omitempty"`
	PipSize         float64           `json:"pip_size,omitempty"`
	SLRequired      []string          `json:"sl_required_symbols,omitempty"`
	MirrorStops     *bool             `json:"mirror_stops,omitempty"`
}

// SizingRule decides destination volume from source volume.
type SizingRule struct {
	Mode  string  `json:"mode"`            // fixed | multiplier | equity_ratio
	Value float64 `json:"value,omitempty"` // lots for fixed, factor for multiplier
}

// LoadRoutes reads and validates the routing table.
func LoadRoutes(path string) (*RoutingTable, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the app config
	if err != nil {
		return nil, fmt.Errorf("reading routes file: %w", err)
	}
	var table RoutingTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing routes file: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid routes: %w", err)
	}
	return &table, nil
}

// Validate checks structural consistency. Account reachability is checked
// separately at startup, against the pool.
func (t *RoutingTable) Validate() error {
	if len(t.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seenSources := make(map[string]bool)
	for i := range t.Sources {
		src := &t.Sources[i]
		if src.SourceAccountID == "" {
			return fmt.Errorf("sources[%d].source_account_id is required", i)
		}
		if seenSources[src.SourceAccountID] {
			return fmt.Errorf("duplicate source account %s", src.SourceAccountID)
		}
		seenSources[src.SourceAccountID] = true
		if len(src.Destinations) == 0 {
			return fmt.Errorf("source %s has no destinations", src.SourceAccountID)
		}
		seenDests := make(map[string]bool)
		for j := range src.Destinations {
			d := &src.Destinations[j]
			if d.AccountID == "" {
				return fmt.Errorf("source %s destinations[%d].account_id is required", src.SourceAccountID, j)
			}
			if seenDests[d.AccountID] {
				return fmt.Errorf("source %s has duplicate destination %s", src.SourceAccountID, d.AccountID)
			}
			seenDests[d.AccountID] = true
			if err := d.validate(); err != nil {
				return fmt.Errorf("source %s destination %s: %w", src.SourceAccountID, d.AccountID, err)
			}
		}
	}
	return nil
}

func (d *Destination) validate() error {
	switch d.Sizing.Mode {
	case SizingFixed, SizingMultiplier:
		if d.Sizing.Value <= 0 {
			return fmt.Errorf("sizing.value must be > 0 for mode %s", d.Sizing.Mode)
		}
	case SizingEquityRatio:
	default:
		return fmt.Errorf("sizing.mode must be %s, %s or %s", SizingFixed, SizingMultiplier, SizingEquityRatio)
	}
	if d.MinLot < 0 || d.MaxLot < 0 || d.LotStep < 0 || d.PipSize < 0 {
		return fmt.Errorf("lot and pip settings must not be negative")
	}
	if d.MaxLot > 0 && d.MinLot > d.MaxLot {
		return fmt.Errorf("min_lot must be <= max_lot")
	}
	if d.MaxPerSymbol < 0 {
		return fmt.Errorf("max_per_symbol must not be negative")
	}
	return nil
}

// AccountIDs returns every account referenced by the table, sources included.
func (t *RoutingTable) AccountIDs() []struct{ AccountID, Region string } {
	var out []struct{ AccountID, Region string }
	for i := range t.Sources {
		src := &t.Sources[i]
		out = append(out, struct{ AccountID, Region string }{src.SourceAccountID, src.Region})
		for j := range src.Destinations {
			d := &src.Destinations[j]
			out = append(out, struct{ AccountID, Region string }{d.AccountID, d.Region})
		}
	}
	return out
}

// Nicknames returns the accountID → nickname map used by alerts.
func (t *RoutingTable) Nicknames() map[string]string {
	out := make(map[string]string)
	for i := range t.Sources {
		src := &t.Sources[i]
		if src.Nickname != "" {
			out[src.SourceAccountID] = src.Nickname
		}
		for j := range src.Destinations {
			d := &src.Destinations[j]
			if d.Nickname != "" {
				out[d.AccountID] = d.Nickname
			}
		}
	}
	return out
}

// RewriteSymbol maps a source symbol to the destination broker's spelling.
func (d *Destination) RewriteSymbol(symbol string) string {
	if rewritten, ok := d.SymbolRewrites[symbol]; ok {
		return rewritten
	}
	return symbol
}

// SymbolAllowed applies allowlist then blocklist to a destination symbol.
func (d *Destination) SymbolAllowed(symbol string) (bool, string) {
	if len(d.SymbolAllowlist) > 0 && !contains(d.SymbolAllowlist, symbol) {
		return false, "symbol not allowed"
	}
	if contains(d.SymbolBlocklist, symbol) {
		return false, "symbol blocked"
	}
	return true, ""
}

// RequiresStopLoss reports whether the destination refuses naked positions on
// this symbol.
func (d *Destination) RequiresStopLoss(symbol string) bool {
	return contains(d.SLRequired, symbol)
}

// MirrorsStops reports whether SL/TP changes on the source are replicated.
// Defaults to true.
func (d *Destination) MirrorsStops() bool {
	return d.MirrorStops == nil || *d.MirrorStops
}

// EffectiveLotStep returns the configured lot step or the default.
func (d *Destination) EffectiveLotStep() float64 {
	if d.LotStep > 0 {
		return d.LotStep
	}
	return DefaultLotStep
}

// EffectiveMinLot returns the configured minimum volume or the default.
func (d *Destination) EffectiveMinLot() float64 {
	if d.MinLot > 0 {
		return d.MinLot
	}
	return DefaultMinLot
}

// EffectiveMaxLot returns the configured maximum volume or the default.
func (d *Destination) EffectiveMaxLot() float64 {
	if d.MaxLot > 0 {
		return d.MaxLot
	}
	return DefaultMaxLot
}

// EffectivePipSize returns the configured pip size or the default.
func (d *Destination) EffectivePipSize() float64 {
	if d.PipSize > 0 {
		return d.PipSize
	}
	return DefaultPipSize
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Provider hands out the current routing table and swaps it atomically on
// hot reload. Read-mostly: traders read it every tick.
type Provider struct {
	mu    sync.RWMutex
	table *RoutingTable
}

// NewProvider wraps an initial table.
func NewProvider(table *RoutingTable) *Provider {
	return &Provider{table: table}
}

// Current returns the active table.
func (p *Provider) Current() *RoutingTable {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.table
}

// Swap replaces the active table.
func (p *Provider) Swap(table *RoutingTable) {
	p.mu.Lock()
	p.table = table
	p.mu.Unlock()
}

// SourceByID returns the route fan-out for one source account, or nil.
func (p *Provider) SourceByID(sourceAccountID string) *SourceRoutes {
	t := p.Current()
	for i := range t.Sources {
		if t.Sources[i].SourceAccountID == sourceAccountID {
			return &t.Sources[i]
		}
	}
	return nil
}

// RegionOf returns the region of any routed account, source or destination.
// Empty string when the account is not in the table.
func (p *Provider) RegionOf(accountID string) string {
	t := p.Current()
	for i := range t.Sources {
		src := &t.Sources[i]
		if src.SourceAccountID == accountID {
			return src.Region
		}
		for j := range src.Destinations {
			if src.Destinations[j].AccountID == accountID {
				return src.Destinations[j].Region
			}
		}
	}
	return ""
}

// Nickname returns the display name of any routed account, falling back to
// the account ID.
func (p *Provider) Nickname(accountID string) string {
	if name, ok := p.Current().Nicknames()[accountID]; ok {
		return name
	}
	return accountID
}
