// Package harvest sweeps dust positions into the base asset and reallocates
// realized gains once they cross the harvest bar.
package harvest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/portfolio"
	"go.uber.org/zap"
)

// Split is the fixed reallocation vector applied to a harvested gain.
// The four fractions must sum to exactly 1; anything else is a
// configuration error caught at startup.
type Split struct {
	Stable decimal.Decimal
	SweepA decimal.Decimal
	SweepB decimal.Decimal
	Base   decimal.Decimal
	// SweepADest, SweepBDest external destinations for the two sweep shares.
	SweepADest string
	SweepBDest string
}

func (s Split) Validate() error {
	one := decimal.NewFromInt(1)
	sum := s.Stable.Add(s.SweepA).Add(s.SweepB).Add(s.Base)
	if !sum.Equal(one) {
		return fmt.Errorf("harvest split must sum to 1, got %s", sum)
	}
	for name, v := range map[string]decimal.Decimal{
		"stable": s.Stable, "sweep_a": s.SweepA, "sweep_b": s.SweepB, "base": s.Base,
	} {
		if v.IsNegative() {
			return fmt.Errorf("harvest split share %s must not be negative", name)
		}
	}
	if s.SweepA.IsPositive() && s.SweepADest == "" {
		return fmt.Errorf("sweep_a share requires a destination address")
	}
	if s.SweepB.IsPositive() && s.SweepBDest == "" {
		return fmt.Errorf("sweep_b share requires a destination address")
	}
	return nil
}

// Config for both harvest triggers.
type Config struct {
	// DustThreshold positions valued at or below this are swept into base,
	// regardless of cooldown.
	DustThreshold decimal.Decimal
	// GainMin minimum absolute realized gain before a harvest fires.
	GainMin decimal.Decimal
	// GainIncrement realized gain must also reach this fraction of total
	// portfolio value.
	GainIncrement decimal.Decimal
	Split         Split
}

func (c Config) Validate() error {
	if c.DustThreshold.IsNegative() {
		return fmt.Errorf("dust threshold must not be negative")
	}
	if !c.GainMin.IsPositive() {
		return fmt.Errorf("gain minimum must be positive")
	}
	if !c.GainIncrement.IsPositive() || c.GainIncrement.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("gain increment must be a fraction in (0, 1], got %s", c.GainIncrement)
	}
	return c.Split.Validate()
}

// DustPlan lists positions to fully liquidate into base this tick.
type DustPlan struct {
	Key    string
	Tokens []domain.Token
}

// GainPlan distributes one harvested amount across the split vector.
type GainPlan struct {
	Key    string
	Amount decimal.Decimal
	// ToStable, ToBase internal conversions.
	ToStable decimal.Decimal
	ToBase   decimal.Decimal
	// Sweeps external shares; recorded in paper mode, withdrawn in live.
	Sweeps []Sweep
}

// Sweep is one external share of a harvested gain, valued in quote terms.
// The caller sizes the actual withdrawal in base units at the fill price of
// the harvest conversion.
type Sweep struct {
	ID          string
	Destination string
	Value       decimal.Decimal
}

// Engine evaluates the two independent harvest triggers each tick.
type Engine struct {
	cfg Config
	l   *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, l: logger}, nil
}

// EvaluateDust returns positions whose market value fell to or below the dust
// threshold. Dust carries negligible market-impact risk, so no cooldown gate.
func (e *Engine) EvaluateDust(snap portfolio.Snapshot, now time.Time) *DustPlan {
	var tokens []domain.Token
	for _, pos := range snap.Positions {
		value := pos.Value()
		if value.IsPositive() && value.LessThanOrEqual(e.cfg.DustThreshold) {
			tokens = append(tokens, pos.Token)
		}
	}
	if len(tokens) == 0 {
		return nil
	}
	e.l.Info("dust positions found", zap.Int("count", len(tokens)))
	return &DustPlan{
		Key:    fmt.Sprintf("dust-%d", now.Unix()),
		Tokens: tokens,
	}
}

// EvaluateGains fires when realized gain since the last harvest clears both
// the absolute minimum and the percentage-of-portfolio increment. Gains below
// either bar are carried forward untouched.
func (e *Engine) EvaluateGains(snap portfolio.Snapshot, now time.Time) *GainPlan {
	gain := snap.RealizedGain
	if gain.LessThan(e.cfg.GainMin) {
		return nil
	}
	if !snap.Total.IsPositive() || gain.LessThan(e.cfg.GainIncrement.Mul(snap.Total)) {
		return nil
	}

	key := fmt.Sprintf("harvest-%d", now.Unix())
	plan := &GainPlan{
		Key:      key,
		Amount:   gain,
		ToStable: gain.Mul(e.cfg.Split.Stable),
		ToBase:   gain.Mul(e.cfg.Split.Base),
	}
	if e.cfg.Split.SweepA.IsPositive() {
		plan.Sweeps = append(plan.Sweeps, Sweep{
			ID:          key + "-sweep-a",
			Destination: e.cfg.Split.SweepADest,
			Value:       gain.Mul(e.cfg.Split.SweepA),
		})
	}
	if e.cfg.Split.SweepB.IsPositive() {
		plan.Sweeps = append(plan.Sweeps, Sweep{
			ID:          key + "-sweep-b",
			Destination: e.cfg.Split.SweepBDest,
			Value:       gain.Mul(e.cfg.Split.SweepB),
		})
	}

	e.l.Info("gain harvest",
		zap.String("amount", gain.String()),
		zap.String("to_stable", plan.ToStable.String()),
		zap.String("to_base", plan.ToBase.String()),
		zap.Int("sweeps", len(plan.Sweeps)))
	return plan
}
