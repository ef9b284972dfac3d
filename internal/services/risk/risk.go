// Package risk watches portfolio health and escalates through the halt
// ladder. Levels two and three heal themselves once conditions stay clear;
// a system halt is sticky until an operator clears it.
package risk

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/portfolio"
	"go.uber.org/zap"
)

// Config holds the escalation thresholds.
type Config struct {
	// DrawdownLimit fraction of peak value; reaching it forces selective close,
	// half of it forces a soft halt.
	DrawdownLimit decimal.Decimal
	// ConsecutiveLossLimit realized losing trades in a row before a system halt.
	ConsecutiveLossLimit int
	// ValueFloor absolute portfolio value below which the system halts.
	ValueFloor decimal.Decimal
	// ErrorLimit per-agent internal errors before a soft halt.
	ErrorLimit int
	// RecoveryWindow how long trigger conditions must stay clear before a
	// soft halt or selective close auto-recovers.
	RecoveryWindow time.Duration
	// StartupGrace window after process start during which checks are skipped,
	// so a freshly bootstrapped portfolio is not halted for looking empty.
	StartupGrace time.Duration
	// EquitySmoothingPeriod EMA period for the recovery check's equity curve.
	EquitySmoothingPeriod int
}

func (c Config) Validate() error {
	if !c.DrawdownLimit.IsPositive() || c.DrawdownLimit.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("drawdown limit must be a fraction in (0, 1), got %s", c.DrawdownLimit)
	}
	if c.ConsecutiveLossLimit < 1 {
		return fmt.Errorf("consecutive loss limit must be at least 1")
	}
	if c.ErrorLimit < 1 {
		return fmt.Errorf("error limit must be at least 1")
	}
	if c.RecoveryWindow <= 0 {
		return fmt.Errorf("recovery window must be positive")
	}
	return nil
}

// Action tells the coordinator what the ladder transition requires.
type Action struct {
	Level domain.HaltLevel
	// LiquidateAll close every open position (system halt).
	LiquidateAll bool
	// CloseTokens worst performers to close (selective close).
	CloseTokens []domain.Token
}

// Coordinator owns the RiskState singleton.
type Coordinator struct {
	mu         sync.Mutex
	cfg        Config
	state      domain.RiskState
	lastErrors map[string]string
	equity     *equityCurve
	clearSince time.Time
	startedAt  time.Time
	l          *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	period := cfg.EquitySmoothingPeriod
	if period == 0 {
		period = 10
	}
	return &Coordinator{
		cfg: cfg,
		state: domain.RiskState{
			Level:       domain.HaltNone,
			ErrorCounts: make(map[string]int),
		},
		lastErrors: make(map[string]string),
		equity:     newEquityCurve(period),
		startedAt:  time.Now(),
		l:          logger,
	}, nil
}

// RecordTradeResult feeds a realized trade outcome into the loss streak.
func (c *Coordinator) RecordTradeResult(realized decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case realized.IsNegative():
		c.state.ConsecutiveLosses++
	case realized.IsPositive():
		c.state.ConsecutiveLosses = 0
	}
}

// RecordError bumps an agent's internal error counter. Counter breaches
// contribute to soft-halt escalation on the next risk tick.
func (c *Coordinator) RecordError(agent string, err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ErrorCounts[agent]++
	c.lastErrors[agent] = err.Error()
}

// State returns a copy of the current risk posture.
func (c *Coordinator) State() domain.RiskState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateCopy()
}

// LastErrors returns the most recent error message per agent.
func (c *Coordinator) LastErrors() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.lastErrors))
	for k, v := range c.lastErrors {
		out[k] = v
	}
	return out
}

func (c *Coordinator) stateCopy() domain.RiskState {
	cp := c.state
	cp.ErrorCounts = make(map[string]int, len(c.state.ErrorCounts))
	for k, v := range c.state.ErrorCounts {
		cp.ErrorCounts[k] = v
	}
	return cp
}

// ClearHalts is the single operator action that resets the ladder. It unsets
// the manual-review flag, returns the level to NONE and zeroes the counters.
func (c *Coordinator) ClearHalts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.l.Warn("operator cleared halts",
		zap.String("previous_level", c.state.Level.String()))
	c.state.Level = domain.HaltNone
	c.state.RequiresManualReview = false
	c.state.ConsecutiveLosses = 0
	c.state.ErrorCounts = make(map[string]int)
	c.state.LastChange = time.Now()
	c.clearSince = time.Time{}
}

// Allows gates a mutation by reason and side against the current halt level.
func (c *Coordinator) Allows(reason domain.OrderReason, side domain.Side) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.RequiresManualReview || c.state.Level == domain.HaltSystem {
		// only the mandatory liquidation that accompanies the halt itself
		if reason == domain.ReasonRisk {
			return nil
		}
		return errors.Wrapf(domain.ErrHalted, "level %s, manual review required", c.state.Level)
	}

	if c.state.Level == domain.HaltSoft || c.state.Level == domain.HaltSelectiveClose {
		// new entries suspended; existing positions continue to be managed
		if reason == domain.ReasonMirror && side == domain.SideBuy {
			return errors.Wrapf(domain.ErrHalted, "new entries suspended at level %s", c.state.Level)
		}
	}
	return nil
}

// Evaluate runs one risk tick. It escalates when trigger conditions demand a
// higher level and auto-recovers soft halts and selective closes after a
// sustained clear window. It never steps down from a system halt; while one
// is in force it keeps demanding liquidation until the book is flat.
func (c *Coordinator) Evaluate(snap portfolio.Snapshot, now time.Time) *Action {
	c.mu.Lock()
	defer c.mu.Unlock()

	total, _ := snap.Total.Float64()
	c.equity.push(total)

	if now.Sub(c.startedAt) < c.cfg.StartupGrace {
		return nil
	}

	c.state.Drawdown = drawdown(snap.Peak, snap.Total)

	// a liquidation order that failed on the escalation tick is retried
	// here on every later tick
	if c.state.Level == domain.HaltSystem {
		if hasExposure(snap) {
			return &Action{Level: domain.HaltSystem, LiquidateAll: true}
		}
		return nil
	}

	target := c.targetLevel(snap)

	if target > c.state.Level {
		return c.escalate(target, snap, now)
	}

	if target == domain.HaltNone && c.state.Level != domain.HaltNone {
		c.tryRecover(snap, now)
	} else if target != domain.HaltNone {
		// triggers still present, restart the clear clock
		c.clearSince = time.Time{}
	}
	return nil
}

func (c *Coordinator) targetLevel(snap portfolio.Snapshot) domain.HaltLevel {
	// critical: unattended operation judged unsafe
	if c.state.ConsecutiveLosses >= c.cfg.ConsecutiveLossLimit {
		return domain.HaltSystem
	}
	if c.cfg.ValueFloor.IsPositive() && snap.Total.LessThan(c.cfg.ValueFloor) {
		return domain.HaltSystem
	}

	// high: cut exposure
	if c.state.Drawdown.GreaterThanOrEqual(c.cfg.DrawdownLimit) {
		return domain.HaltSelectiveClose
	}

	// minor: stop adding risk
	half := c.cfg.DrawdownLimit.Div(decimal.NewFromInt(2))
	if c.state.Drawdown.GreaterThanOrEqual(half) {
		return domain.HaltSoft
	}
	for _, count := range c.state.ErrorCounts {
		if count >= c.cfg.ErrorLimit {
			return domain.HaltSoft
		}
	}
	return domain.HaltNone
}

func (c *Coordinator) escalate(target domain.HaltLevel, snap portfolio.Snapshot, now time.Time) *Action {
	c.l.Warn("risk escalation",
		zap.String("from", c.state.Level.String()),
		zap.String("to", target.String()),
		zap.String("drawdown", c.state.Drawdown.String()),
		zap.Int("consecutive_losses", c.state.ConsecutiveLosses))

	c.state.Level = target
	c.state.LastChange = now
	c.clearSince = time.Time{}

	action := &Action{Level: target}
	switch target {
	case domain.HaltSystem:
		c.state.RequiresManualReview = true
		action.LiquidateAll = true
	case domain.HaltSelectiveClose:
		action.CloseTokens = worstPerformers(snap.Positions)
	}
	return action
}

// tryRecover steps a soft halt or selective close back to NONE once triggers
// have stayed clear for the recovery window and the smoothed equity curve
// confirms the portfolio is off its lows.
func (c *Coordinator) tryRecover(snap portfolio.Snapshot, now time.Time) {
	if c.state.RequiresManualReview {
		return
	}
	if c.state.Level != domain.HaltSoft && c.state.Level != domain.HaltSelectiveClose {
		return
	}

	if c.clearSince.IsZero() {
		c.clearSince = now
		return
	}
	if now.Sub(c.clearSince) < c.cfg.RecoveryWindow {
		return
	}

	if smoothedTotal, ok := c.equity.smoothed(); ok {
		peak, _ := snap.Peak.Float64()
		limit, _ := c.cfg.DrawdownLimit.Float64()
		if peak > 0 && (peak-smoothedTotal)/peak >= limit {
			// equity still depressed on average, keep holding
			return
		}
	}

	c.l.Info("risk auto-recovery",
		zap.String("from", c.state.Level.String()),
		zap.Duration("clear_for", now.Sub(c.clearSince)))
	c.state.Level = domain.HaltNone
	c.state.LastChange = now
	c.state.ErrorCounts = make(map[string]int)
	c.clearSince = time.Time{}
}

// hasExposure reports whether anything remains to liquidate.
func hasExposure(snap portfolio.Snapshot) bool {
	if snap.Base.IsPositive() {
		return true
	}
	for _, pos := range snap.Positions {
		if !pos.Closed() {
			return true
		}
	}
	return false
}

func drawdown(peak, total decimal.Decimal) decimal.Decimal {
	if !peak.IsPositive() {
		return decimal.Zero
	}
	dd := peak.Sub(total).Div(peak)
	if dd.IsNegative() {
		return decimal.Zero
	}
	return dd
}

// worstPerformers picks positions to close under a selective close: every
// losing position, worst PnL first, capped at half the open count but always
// at least one.
func worstPerformers(positions []domain.Position) []domain.Token {
	if len(positions) == 0 {
		return nil
	}

	sorted := make([]domain.Position, len(positions))
	copy(sorted, positions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].UnrealizedPnLPercent().LessThan(sorted[j].UnrealizedPnLPercent())
	})

	limit := len(sorted) / 2
	if limit < 1 {
		limit = 1
	}

	var tokens []domain.Token
	for _, pos := range sorted {
		if len(tokens) >= limit {
			break
		}
		if pos.UnrealizedPnL().IsNegative() || len(tokens) == 0 {
			tokens = append(tokens, pos.Token)
		}
	}
	return tokens
}
