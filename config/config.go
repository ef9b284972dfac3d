// Package config loads and validates the runtime configuration. Decimal
// values travel through yaml as strings so they never pass through float64.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the fully parsed and validated runtime configuration.
type Config struct {
	Venue     Venue
	Server    Server
	Ingest    Ingest
	Ledger    Ledger
	Mirror    Mirror
	Rebalance Rebalance
	Harvest   Harvest
	Risk      Risk
	Book      Book
	// RiskInterval cadence of the risk check tick.
	RiskInterval time.Duration
	// AgentInterval cadence of the rebalance/harvest tick.
	AgentInterval time.Duration
	// BaseToken the volatile reserve asset, e.g. BTC.
	BaseToken string
	// BaseSymbol venue symbol for base/stable conversions, e.g. BTCUSDC.
	BaseSymbol string
	// DataDir root for persistent state (balance log, sweep journal, paper wallet).
	DataDir string
}

type Venue struct {
	// Platform is one of: paper, binance, bybit, hyperliquid.
	Platform string
	APIKey   string
	Secret   string
	// QuoteAsset the stable asset orders are quoted in, e.g. USDC.
	QuoteAsset string
	// PaperSeed starting quote balance for paper trading.
	PaperSeed decimal.Decimal
}

type Server struct {
	Addr string
	// TLSHosts enables autocert for the listed hostnames.
	TLSHosts []string
}

type Ingest struct {
	// Wallets polled by the chain watcher. Webhook notifications are accepted
	// for any valid address.
	Wallets []string
	// PollInterval chain watcher cadence.
	PollInterval time.Duration
	// QueueSize webhook intake buffer; the endpoint sheds load above it.
	QueueSize int
}

type Ledger struct {
	Full       decimal.Decimal
	HalfLow    decimal.Decimal
	HalfHigh   decimal.Decimal
	PartialMin decimal.Decimal
}

type Mirror struct {
	MaxSinglePositionPct decimal.Decimal
	MaxPositionsPct      decimal.Decimal
	EntryValue           decimal.Decimal
	MinTradeValue        decimal.Decimal
	// Excluded tokens never mirrored (base and stable assets at minimum).
	Excluded []string
	// Symbols maps a token to its venue trading symbol.
	Symbols map[string]string
}

type Rebalance struct {
	BaseTarget          decimal.Decimal
	BaseMin             decimal.Decimal
	BaseMax             decimal.Decimal
	StableMin           decimal.Decimal
	StableRestore       decimal.Decimal
	PositionsCrisis     decimal.Decimal
	StartupBaseMin      decimal.Decimal
	StartupPositionsMax decimal.Decimal
	Cooldown            time.Duration
	MinConversionValue  decimal.Decimal
}

type Harvest struct {
	DustThreshold decimal.Decimal
	GainMin       decimal.Decimal
	GainIncrement decimal.Decimal
	SplitStable   decimal.Decimal
	SplitSweepA   decimal.Decimal
	SplitSweepB   decimal.Decimal
	SplitBase     decimal.Decimal
	SweepADest    string
	SweepBDest    string
}

type Book struct {
	// InitialBase, InitialStable seed the coordination book at first start.
	// A paper run defaults the stable bucket to the paper seed.
	InitialBase   decimal.Decimal
	InitialStable decimal.Decimal
	// Tolerance bound on the absolute difference between a declared expected
	// value delta and the observed one before a mutation is rejected.
	Tolerance decimal.Decimal
}

type Risk struct {
	DrawdownLimit         decimal.Decimal
	ConsecutiveLossLimit  int
	ValueFloor            decimal.Decimal
	ErrorLimit            int
	RecoveryWindow        time.Duration
	StartupGrace          time.Duration
	EquitySmoothingPeriod int
}

// configTmp is the raw yaml shape. Decimals are strings here and parsed in
// one place so a malformed value fails startup instead of trading.
type configTmp struct {
	Venue struct {
		Platform   string `yaml:"platform"`
		APIKey     string `yaml:"api_key"`
		Secret     string `yaml:"secret"`
		QuoteAsset string `yaml:"quote_asset"`
		PaperSeed  string `yaml:"paper_seed"`
	} `yaml:"venue"`
	Server struct {
		Addr     string   `yaml:"addr"`
		TLSHosts []string `yaml:"tls_hosts"`
	} `yaml:"server"`
	Ingest struct {
		Wallets      []string      `yaml:"wallets"`
		PollInterval time.Duration `yaml:"poll_interval"`
		QueueSize    int           `yaml:"queue_size"`
	} `yaml:"ingest"`
	Ledger struct {
		Full       string `yaml:"full"`
		HalfLow    string `yaml:"half_low"`
		HalfHigh   string `yaml:"half_high"`
		PartialMin string `yaml:"partial_min"`
	} `yaml:"classifier"`
	Mirror struct {
		MaxSinglePositionPct string            `yaml:"max_single_position_pct"`
		MaxPositionsPct      string            `yaml:"max_positions_pct"`
		EntryValue           string            `yaml:"entry_value"`
		MinTradeValue        string            `yaml:"min_trade_value"`
		Excluded             []string          `yaml:"excluded"`
		Symbols              map[string]string `yaml:"symbols"`
	} `yaml:"mirror"`
	Rebalance struct {
		BaseTarget          string        `yaml:"base_target"`
		BaseMin             string        `yaml:"base_min"`
		BaseMax             string        `yaml:"base_max"`
		StableMin           string        `yaml:"stable_min"`
		StableRestore       string        `yaml:"stable_restore"`
		PositionsCrisis     string        `yaml:"positions_crisis"`
		StartupBaseMin      string        `yaml:"startup_base_min"`
		StartupPositionsMax string        `yaml:"startup_positions_max"`
		Cooldown            time.Duration `yaml:"cooldown"`
		MinConversionValue  string        `yaml:"min_conversion_value"`
	} `yaml:"rebalance"`
	Harvest struct {
		DustThreshold string `yaml:"dust_threshold"`
		GainMin       string `yaml:"gain_min"`
		GainIncrement string `yaml:"gain_increment"`
		Split         struct {
			Stable string `yaml:"stable"`
			SweepA string `yaml:"sweep_a"`
			SweepB string `yaml:"sweep_b"`
			Base   string `yaml:"base"`
		} `yaml:"split"`
		SweepADest string `yaml:"sweep_a_dest"`
		SweepBDest string `yaml:"sweep_b_dest"`
	} `yaml:"harvest"`
	Book struct {
		InitialBase   string `yaml:"initial_base"`
		InitialStable string `yaml:"initial_stable"`
		Tolerance     string `yaml:"tolerance"`
	} `yaml:"book"`
	Risk struct {
		DrawdownLimit         string        `yaml:"drawdown_limit"`
		ConsecutiveLossLimit  int           `yaml:"consecutive_loss_limit"`
		ValueFloor            string        `yaml:"value_floor"`
		ErrorLimit            int           `yaml:"error_limit"`
		RecoveryWindow        time.Duration `yaml:"recovery_window"`
		StartupGrace          time.Duration `yaml:"startup_grace"`
		EquitySmoothingPeriod int           `yaml:"equity_smoothing_period"`
	} `yaml:"risk"`
	RiskInterval  time.Duration `yaml:"risk_interval"`
	AgentInterval time.Duration `yaml:"agent_interval"`
	BaseToken     string        `yaml:"base_token"`
	BaseSymbol    string        `yaml:"base_symbol"`
	DataDir       string        `yaml:"data_dir"`
}

// Load reads the yaml config at path, applies defaults and validates.
func Load(path string) (*Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(f)
}

func parse(raw []byte) (*Config, error) {
	var tmp configTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}

	p := &decimalParser{}
	cfg := &Config{
		Venue: Venue{
			Platform:   defaultStr(tmp.Venue.Platform, "paper"),
			APIKey:     tmp.Venue.APIKey,
			Secret:     tmp.Venue.Secret,
			QuoteAsset: defaultStr(tmp.Venue.QuoteAsset, "USDC"),
			PaperSeed:  p.parse("venue.paper_seed", tmp.Venue.PaperSeed, "10000"),
		},
		Server: Server{
			Addr:     defaultStr(tmp.Server.Addr, ":8077"),
			TLSHosts: tmp.Server.TLSHosts,
		},
		Ingest: Ingest{
			Wallets:      tmp.Ingest.Wallets,
			PollInterval: defaultDur(tmp.Ingest.PollInterval, 30*time.Second),
			QueueSize:    defaultInt(tmp.Ingest.QueueSize, 256),
		},
		Ledger: Ledger{
			Full:       p.parse("classifier.full", tmp.Ledger.Full, "0.95"),
			HalfLow:    p.parse("classifier.half_low", tmp.Ledger.HalfLow, "0.45"),
			HalfHigh:   p.parse("classifier.half_high", tmp.Ledger.HalfHigh, "0.55"),
			PartialMin: p.parse("classifier.partial_min", tmp.Ledger.PartialMin, "0.10"),
		},
		Mirror: Mirror{
			MaxSinglePositionPct: p.parse("mirror.max_single_position_pct", tmp.Mirror.MaxSinglePositionPct, "0.10"),
			MaxPositionsPct:      p.parse("mirror.max_positions_pct", tmp.Mirror.MaxPositionsPct, "0.70"),
			EntryValue:           p.parse("mirror.entry_value", tmp.Mirror.EntryValue, "1000"),
			MinTradeValue:        p.parse("mirror.min_trade_value", tmp.Mirror.MinTradeValue, "10"),
			Excluded:             tmp.Mirror.Excluded,
			Symbols:              tmp.Mirror.Symbols,
		},
		Rebalance: Rebalance{
			BaseTarget:          p.parse("rebalance.base_target", tmp.Rebalance.BaseTarget, "0.10"),
			BaseMin:             p.parse("rebalance.base_min", tmp.Rebalance.BaseMin, "0.05"),
			BaseMax:             p.parse("rebalance.base_max", tmp.Rebalance.BaseMax, "0.20"),
			StableMin:           p.parse("rebalance.stable_min", tmp.Rebalance.StableMin, "0.15"),
			StableRestore:       p.parse("rebalance.stable_restore", tmp.Rebalance.StableRestore, "0.20"),
			PositionsCrisis:     p.parse("rebalance.positions_crisis", tmp.Rebalance.PositionsCrisis, "0.75"),
			StartupBaseMin:      p.parse("rebalance.startup_base_min", tmp.Rebalance.StartupBaseMin, "0.50"),
			StartupPositionsMax: p.parse("rebalance.startup_positions_max", tmp.Rebalance.StartupPositionsMax, "0.01"),
			Cooldown:            defaultDur(tmp.Rebalance.Cooldown, 5*time.Minute),
			MinConversionValue:  p.parse("rebalance.min_conversion_value", tmp.Rebalance.MinConversionValue, "10"),
		},
		Harvest: Harvest{
			DustThreshold: p.parse("harvest.dust_threshold", tmp.Harvest.DustThreshold, "1"),
			GainMin:       p.parse("harvest.gain_min", tmp.Harvest.GainMin, "50"),
			GainIncrement: p.parse("harvest.gain_increment", tmp.Harvest.GainIncrement, "0.05"),
			SplitStable:   p.parse("harvest.split.stable", tmp.Harvest.Split.Stable, "0.50"),
			SplitSweepA:   p.parse("harvest.split.sweep_a", tmp.Harvest.Split.SweepA, "0.25"),
			SplitSweepB:   p.parse("harvest.split.sweep_b", tmp.Harvest.Split.SweepB, "0.15"),
			SplitBase:     p.parse("harvest.split.base", tmp.Harvest.Split.Base, "0.10"),
			SweepADest:    tmp.Harvest.SweepADest,
			SweepBDest:    tmp.Harvest.SweepBDest,
		},
		Book: Book{
			InitialBase:   p.parse("book.initial_base", tmp.Book.InitialBase, "0"),
			InitialStable: p.parse("book.initial_stable", tmp.Book.InitialStable, "0"),
			Tolerance:     p.parse("book.tolerance", tmp.Book.Tolerance, "0.01"),
		},
		Risk: Risk{
			DrawdownLimit:         p.parse("risk.drawdown_limit", tmp.Risk.DrawdownLimit, "0.16"),
			ConsecutiveLossLimit:  defaultInt(tmp.Risk.ConsecutiveLossLimit, 6),
			ValueFloor:            p.parse("risk.value_floor", tmp.Risk.ValueFloor, "100"),
			ErrorLimit:            defaultInt(tmp.Risk.ErrorLimit, 5),
			RecoveryWindow:        defaultDur(tmp.Risk.RecoveryWindow, 30*time.Minute),
			StartupGrace:          defaultDur(tmp.Risk.StartupGrace, time.Minute),
			EquitySmoothingPeriod: defaultInt(tmp.Risk.EquitySmoothingPeriod, 10),
		},
		RiskInterval:  defaultDur(tmp.RiskInterval, 10*time.Second),
		AgentInterval: defaultDur(tmp.AgentInterval, time.Minute),
		BaseToken:     defaultStr(tmp.BaseToken, "BTC"),
		BaseSymbol:    tmp.BaseSymbol,
		DataDir:       defaultStr(tmp.DataDir, "./wal"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.BaseSymbol == "" {
		cfg.BaseSymbol = cfg.BaseToken + cfg.Venue.QuoteAsset
	}
	if cfg.Venue.Platform == "paper" && cfg.Book.InitialStable.IsZero() {
		cfg.Book.InitialStable = cfg.Venue.PaperSeed
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Venue.Platform {
	case "paper":
	case "binance", "bybit", "hyperliquid":
		if c.Venue.APIKey == "" || c.Venue.Secret == "" {
			return fmt.Errorf("venue %s requires api_key and secret", c.Venue.Platform)
		}
	default:
		return fmt.Errorf("unknown venue platform %q", c.Venue.Platform)
	}

	one := decimal.NewFromInt(1)
	splitSum := c.Harvest.SplitStable.Add(c.Harvest.SplitSweepA).
		Add(c.Harvest.SplitSweepB).Add(c.Harvest.SplitBase)
	if !splitSum.Equal(one) {
		return fmt.Errorf("harvest split must sum to 1, got %s", splitSum)
	}
	if c.Harvest.SplitSweepA.IsPositive() && c.Harvest.SweepADest == "" {
		return fmt.Errorf("harvest sweep_a share is set but sweep_a_dest is empty")
	}
	if c.Harvest.SplitSweepB.IsPositive() && c.Harvest.SweepBDest == "" {
		return fmt.Errorf("harvest sweep_b share is set but sweep_b_dest is empty")
	}

	if c.RiskInterval <= 0 || c.AgentInterval <= 0 {
		return fmt.Errorf("risk_interval and agent_interval must be positive")
	}
	if c.Ingest.QueueSize < 1 {
		return fmt.Errorf("ingest queue_size must be at least 1")
	}
	// the engines re-validate their own thresholds and bands on construction
	return nil
}

// decimalParser collects the first parse failure so the caller checks once.
type decimalParser struct {
	err error
}

func (p *decimalParser) parse(name, value, def string) decimal.Decimal {
	if value == "" {
		value = def
	}
	d, err := decimal.NewFromString(value)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("incorrect %q param in yaml config: %w", name, err)
	}
	return d
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultDur(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
