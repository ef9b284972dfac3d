// Package rebalance keeps the portfolio inside its target allocation bands.
// Each tick evaluates the band state machine against a snapshot and emits at
// most one corrective plan.
package rebalance

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/portfolio"
	"go.uber.org/zap"
)

// Band is the discrete allocation state the portfolio is in.
type Band int

const (
	BandIdle Band = iota
	// BandStartup freshly bootstrapped, everything in base.
	BandStartup
	// BandStableCrisis stable reserve critically low while positions dominate.
	BandStableCrisis
	// BandBaseCritical base reserve below the survival floor.
	BandBaseCritical
	// BandBaseExcess base accumulated past its ceiling.
	BandBaseExcess
)

func (b Band) String() string {
	switch b {
	case BandStartup:
		return "startup"
	case BandStableCrisis:
		return "stable_crisis"
	case BandBaseCritical:
		return "base_critical"
	case BandBaseExcess:
		return "base_excess"
	default:
		return "idle"
	}
}

// StepKind is the concrete corrective action inside a plan.
type StepKind int

const (
	// StepBaseToStable sell base into stable.
	StepBaseToStable StepKind = iota
	// StepStableToBase buy base with stable funds.
	StepStableToBase
	// StepSellPosition liquidate (part of) a tracked-token position into stable.
	StepSellPosition
)

// Step is one corrective trade. Value is in quote terms.
type Step struct {
	Kind  StepKind
	Token domain.Token
	Value decimal.Decimal
}

// Plan is the single corrective action chosen for a tick.
type Plan struct {
	Band Band
	// Key idempotency key derived from the tick timestamp.
	Key   string
	Steps []Step
}

// Config holds the band thresholds, all as fractions of total value.
type Config struct {
	// BaseTarget the allocation conversions steer the base bucket toward.
	BaseTarget decimal.Decimal
	// BaseMin below this the engine buys base from stable.
	BaseMin decimal.Decimal
	// BaseMax above this the engine sells base into stable.
	BaseMax decimal.Decimal
	// StableMin stable share below which, combined with PositionsCrisis,
	// positions are liquidated.
	StableMin decimal.Decimal
	// StableRestore the stable share the crisis liquidation restores.
	StableRestore decimal.Decimal
	// PositionsCrisis positions share that must be exceeded for a stable crisis.
	PositionsCrisis decimal.Decimal
	// StartupBaseMin base share at or above which the portfolio is considered
	// freshly bootstrapped.
	StartupBaseMin decimal.Decimal
	// StartupPositionsMax positions share treated as "no positions yet".
	StartupPositionsMax decimal.Decimal
	// Cooldown minimum time between corrective trades. Conditions observed
	// inside the window are deferred, not dropped.
	Cooldown time.Duration
	// MinConversionValue corrective trades below this are suppressed.
	MinConversionValue decimal.Decimal
}

func (c Config) Validate() error {
	if !c.BaseMin.LessThan(c.BaseTarget) || !c.BaseTarget.LessThan(c.BaseMax) {
		return fmt.Errorf("base bands must satisfy min < target < max, got %s/%s/%s", c.BaseMin, c.BaseTarget, c.BaseMax)
	}
	if !c.StableMin.LessThan(c.StableRestore) {
		return fmt.Errorf("stable_min %s must be below stable_restore %s", c.StableMin, c.StableRestore)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive")
	}
	if c.MinConversionValue.IsNegative() {
		return fmt.Errorf("min conversion value must not be negative")
	}
	return nil
}

// Engine evaluates the band state machine.
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

// Evaluate returns the corrective plan for this tick, or nil when idle,
// cooling down or the correction is too small to act on. Priority when
// several bands qualify: stable crisis, then base critical, then base
// excess, then startup; solvency repair outranks everything else.
func (e *Engine) Evaluate(snap portfolio.Snapshot, now time.Time) *Plan {
	if !snap.Total.IsPositive() {
		return nil
	}

	if !snap.LastRebalance.IsZero() && now.Sub(snap.LastRebalance) < e.cfg.Cooldown {
		e.l.Debug("rebalance inside cooldown window, deferring",
			zap.Duration("remaining", e.cfg.Cooldown-now.Sub(snap.LastRebalance)))
		return nil
	}

	b, s, p := snap.BasePct(), snap.StablePct(), snap.PositionsPct()

	for _, candidate := range []struct {
		band  Band
		match bool
		build func() []Step
	}{
		{BandStableCrisis, s.LessThan(e.cfg.StableMin) && p.GreaterThan(e.cfg.PositionsCrisis), func() []Step { return e.stableCrisisSteps(snap) }},
		{BandBaseCritical, b.LessThan(e.cfg.BaseMin), func() []Step { return e.baseCriticalSteps(snap) }},
		{BandBaseExcess, b.GreaterThan(e.cfg.BaseMax), func() []Step { return e.baseExcessSteps(snap) }},
		{BandStartup, p.LessThan(e.cfg.StartupPositionsMax) && b.GreaterThanOrEqual(e.cfg.StartupBaseMin), func() []Step { return e.baseExcessSteps(snap) }},
	} {
		if !candidate.match {
			continue
		}
		steps := candidate.build()
		if len(steps) == 0 {
			// condition holds but the correction is below the conversion floor
			e.l.Debug("correction below minimum conversion value, staying idle",
				zap.String("band", candidate.band.String()))
			return nil
		}
		e.l.Info("rebalance plan",
			zap.String("band", candidate.band.String()),
			zap.String("base_pct", b.String()),
			zap.String("stable_pct", s.String()),
			zap.String("positions_pct", p.String()),
			zap.Int("steps", len(steps)))
		return &Plan{
			Band:  candidate.band,
			Key:   fmt.Sprintf("rebalance-%d", now.Unix()),
			Steps: steps,
		}
	}

	return nil
}

// stableCrisisSteps liquidates positions, largest first, until the stable
// bucket is back at its restore target.
func (e *Engine) stableCrisisSteps(snap portfolio.Snapshot) []Step {
	needed := e.cfg.StableRestore.Mul(snap.Total).Sub(snap.Stable)
	if needed.LessThan(e.cfg.MinConversionValue) {
		return nil
	}

	positions := make([]domain.Position, len(snap.Positions))
	copy(positions, snap.Positions)
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Value().GreaterThan(positions[j].Value())
	})

	var steps []Step
	remaining := needed
	for _, pos := range positions {
		if !remaining.IsPositive() {
			break
		}
		value := pos.Value()
		if value.GreaterThan(remaining) {
			value = remaining
		}
		steps = append(steps, Step{Kind: StepSellPosition, Token: pos.Token, Value: value})
		remaining = remaining.Sub(value)
	}
	return steps
}

func (e *Engine) baseCriticalSteps(snap portfolio.Snapshot) []Step {
	value := e.cfg.BaseTarget.Mul(snap.Total).Sub(snap.Base)
	if value.GreaterThan(snap.Stable) {
		value = snap.Stable
	}
	if value.LessThan(e.cfg.MinConversionValue) {
		return nil
	}
	return []Step{{Kind: StepStableToBase, Value: value}}
}

func (e *Engine) baseExcessSteps(snap portfolio.Snapshot) []Step {
	value := snap.Base.Sub(e.cfg.BaseTarget.Mul(snap.Total))
	if value.LessThan(e.cfg.MinConversionValue) {
		return nil
	}
	return []Step{{Kind: StepBaseToStable, Value: value}}
}
