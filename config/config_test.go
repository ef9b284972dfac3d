package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := parse([]byte("venue:\n  platform: paper\n"))
	require.NoError(t, err)

	require.Equal(t, "paper", cfg.Venue.Platform)
	require.Equal(t, "USDC", cfg.Venue.QuoteAsset)
	require.Equal(t, "10000", cfg.Venue.PaperSeed.String())
	require.Equal(t, ":8077", cfg.Server.Addr)
	require.Equal(t, "0.95", cfg.Ledger.Full.String())
	require.Equal(t, "0.45", cfg.Ledger.HalfLow.String())
	require.Equal(t, 5*time.Minute, cfg.Rebalance.Cooldown)
	require.Equal(t, "0.5", cfg.Harvest.SplitStable.String())
	require.Equal(t, "BTC", cfg.BaseToken)
	require.Equal(t, "BTCUSDC", cfg.BaseSymbol)
	require.Equal(t, 6, cfg.Risk.ConsecutiveLossLimit)
	require.Equal(t, "0.01", cfg.Book.Tolerance.String())
	// paper runs seed the book's stable bucket from the paper wallet
	require.Equal(t, "10000", cfg.Book.InitialStable.String())
}

func TestParseFullConfig(t *testing.T) {
	raw := `
venue:
  platform: binance
  api_key: key
  secret: sec
  quote_asset: USDT
server:
  addr: ":9000"
  tls_hosts: [mirra.example.com]
ingest:
  wallets: ["0x4838B106FCe9647Bdf1E7877BF73cE8B0BAD5f97"]
  poll_interval: 15s
classifier:
  full: "0.90"
mirror:
  entry_value: "500"
  symbols:
    SOL: SOLUSDT
rebalance:
  cooldown: 10m
harvest:
  sweep_a_dest: "0x4838B106FCe9647Bdf1E7877BF73cE8B0BAD5f97"
  sweep_b_dest: "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
risk:
  drawdown_limit: "0.20"
base_token: ETH
`
	cfg, err := parse([]byte(raw))
	require.NoError(t, err)

	require.Equal(t, "binance", cfg.Venue.Platform)
	require.Equal(t, "USDT", cfg.Venue.QuoteAsset)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, []string{"mirra.example.com"}, cfg.Server.TLSHosts)
	require.Equal(t, 15*time.Second, cfg.Ingest.PollInterval)
	require.Equal(t, "0.9", cfg.Ledger.Full.String())
	require.Equal(t, "500", cfg.Mirror.EntryValue.String())
	require.Equal(t, "SOLUSDT", cfg.Mirror.Symbols["SOL"])
	require.Equal(t, 10*time.Minute, cfg.Rebalance.Cooldown)
	require.Equal(t, "0.2", cfg.Risk.DrawdownLimit.String())
	require.Equal(t, "ETHUSDT", cfg.BaseSymbol)
}

func TestParseRejectsBadDecimal(t *testing.T) {
	_, err := parse([]byte("mirror:\n  entry_value: \"not a number\"\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "mirror.entry_value")
}

func TestParseRejectsLiveVenueWithoutKeys(t *testing.T) {
	_, err := parse([]byte("venue:\n  platform: bybit\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_key")
}

func TestParseRejectsUnknownPlatform(t *testing.T) {
	_, err := parse([]byte("venue:\n  platform: ftx\n"))
	require.Error(t, err)
}

func TestParseRejectsBrokenSplit(t *testing.T) {
	raw := `
harvest:
  split:
    stable: "0.60"
    sweep_a: "0.25"
    sweep_b: "0.15"
    base: "0.10"
  sweep_a_dest: "0x4838B106FCe9647Bdf1E7877BF73cE8B0BAD5f97"
  sweep_b_dest: "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
`
	_, err := parse([]byte(raw))
	require.Error(t, err)
	require.Contains(t, err.Error(), "sum to 1")
}

func TestParseRejectsSweepShareWithoutDestination(t *testing.T) {
	_, err := parse([]byte("harvest:\n  sweep_b_dest: \"0x8ba1f109551bD432803012645Ac136ddd64DBA72\"\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "sweep_a_dest")
}
