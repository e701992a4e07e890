package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoutes(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validRoutes = `{
  "sources": [
    {
      "source_account_id": "src-1",
      "region": "new-york",
      "nickname": "master",
      "destinations": [
        {
          "account_id": "dest-1",
          "region": "new-york",
          "nickname": "follower-a",
          "symbol_rewrites": {"XAUUSD": "XAUUSDm"},
          "sizing": {"mode": "multiplier", "value": 0.5},
          "max_per_symbol": 2
        },
        {
          "account_id": "dest-2",
          "region": "london",
          "sizing": {"mode": "equity_ratio"}
        }
      ]
    }
  ]
}`

func TestLoadRoutesValid(t *testing.T) {
	table, err := LoadRoutes(writeRoutes(t, validRoutes))
	require.NoError(t, err)
	require.Len(t, table.Sources, 1)
	assert.Len(t, table.Sources[0].Destinations, 2)
	assert.Len(t, table.AccountIDs(), 3)
}

func TestLoadRoutesRejectsDuplicates(t *testing.T) {
	_, err := LoadRoutes(writeRoutes(t, `{
	  "sources": [
	    {"source_account_id": "src-1", "destinations": [
	      {"account_id": "dest-1", "sizing": {"mode": "fixed", "value": 0.1}},
	      {"account_id": "dest-1", "sizing": {"mode": "fixed", "value": 0.2}}
	    ]}
	  ]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate destination")
}

func TestLoadRoutesRejectsBadSizing(t *testing.T) {
	_, err := LoadRoutes(writeRoutes(t, `{
	  "sources": [
	    {"source_account_id": "src-1", "destinations": [
	      {"account_id": "dest-1", "sizing": {"mode": "fixed", "value": 0}}
	    ]}
	  ]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sizing.value")

	_, err = LoadRoutes(writeRoutes(t, `{
	  "sources": [
	    {"source_account_id": "src-1", "destinations": [
	      {"account_id": "dest-1", "sizing": {"mode": "martingale"}}
	    ]}
	  ]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sizing.mode")
}

func TestDestinationSymbolHelpers(t *testing.T) {
	d := &Destination{
		SymbolAllowlist: []string{"EURUSD", "XAUUSDm"},
		SymbolBlocklist: []string{"XAUUSDm"},
		SymbolRewrites:  map[string]string{"XAUUSD": "XAUUSDm"},
	}

	assert.Equal(t, "XAUUSDm", d.RewriteSymbol("XAUUSD"))
	assert.Equal(t, "EURUSD", d.RewriteSymbol("EURUSD"))

	ok, _ := d.SymbolAllowed("EURUSD")
	assert.True(t, ok)
	ok, reason := d.SymbolAllowed("GBPUSD")
	assert.False(t, ok)
	assert.Equal(t, "symbol not allowed", reason)
	// Blocklist wins over allowlist membership.
	ok, reason = d.SymbolAllowed("XAUUSDm")
	assert.False(t, ok)
	assert.Equal(t, "symbol blocked", reason)
}

func TestDestinationDefaults(t *testing.T) {
	d := &Destination{}
	assert.InDelta(t, DefaultLotStep, d.EffectiveLotStep(), 1e-9)
	assert.InDelta(t, DefaultMinLot, d.EffectiveMinLot(), 1e-9)
	assert.InDelta(t, DefaultMaxLot, d.EffectiveMaxLot(), 1e-9)
	assert.InDelta(t, DefaultPipSize, d.EffectivePipSize(), 1e-9)
	assert.True(t, d.MirrorsStops())

	off := false
	d.MirrorStops = &off
	assert.False(t, d.MirrorsStops())
}

func TestProviderLookupsAndSwap(t *testing.T) {
	table, err := LoadRoutes(writeRoutes(t, validRoutes))
	require.NoError(t, err)
	p := NewProvider(table)

	assert.Equal(t, "new-york", p.RegionOf("src-1"))
	assert.Equal(t, "london", p.RegionOf("dest-2"))
	assert.Equal(t, "", p.RegionOf("unknown"))

	assert.Equal(t, "master", p.Nickname("src-1"))
	assert.Equal(t, "follower-a", p.Nickname("dest-1"))
	// No nickname configured: fall back to the ID.
	assert.Equal(t, "dest-2", p.Nickname("dest-2"))

	require.NotNil(t, p.SourceByID("src-1"))
	assert.Nil(t, p.SourceByID("src-2"))

	p.Swap(&RoutingTable{Sources: []SourceRoutes{{SourceAccountID: "src-2"}}})
	assert.Nil(t, p.SourceByID("src-1"))
	require.NotNil(t, p.SourceByID("src-2"))
}
