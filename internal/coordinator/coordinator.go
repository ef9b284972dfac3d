// Package coordinator runs the agent loop: balance notifications flow through
// the ledger into mirror intents, periodic ticks drive rebalancing, harvesting
// and the risk ladder, and every resulting fill is booked through the
// portfolio's exclusive section. External calls (venues, transfers) always
// happen outside the book lock; only the bookkeeping runs inside it.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/portfolio"
	"github.com/vadiminshakov/mirra/internal/services/harvest"
	"github.com/vadiminshakov/mirra/internal/services/ledger"
	"github.com/vadiminshakov/mirra/internal/services/mirror"
	"github.com/vadiminshakov/mirra/internal/services/pricer"
	"github.com/vadiminshakov/mirra/internal/services/rebalance"
	"github.com/vadiminshakov/mirra/internal/services/risk"
	"github.com/vadiminshakov/mirra/internal/services/trader"
	"github.com/vadiminshakov/mirra/internal/services/transfer"
	"github.com/vadiminshakov/mirra/pkg/retrier"
	"go.uber.org/zap"
)

// Config holds the loop cadence and the portfolio's fixed assets.
type Config struct {
	// RiskInterval cadence of the risk tick; kept tight so halts land fast.
	RiskInterval time.Duration
	// AgentInterval cadence of the rebalance/harvest tick.
	AgentInterval time.Duration
	// BaseToken the volatile reserve asset (e.g. BTC).
	BaseToken domain.Token
	// BaseSymbol venue symbol for converting base against the stable asset.
	BaseSymbol string
}

func (c Config) Validate() error {
	if c.RiskInterval <= 0 || c.AgentInterval <= 0 {
		return fmt.Errorf("tick intervals must be positive")
	}
	if c.BaseToken == "" || c.BaseSymbol == "" {
		return fmt.Errorf("base token and symbol are required")
	}
	return nil
}

// Deps are the collaborators the coordinator drives.
type Deps struct {
	Book        *portfolio.Book
	Ledger      *ledger.Ledger
	Mirror      *mirror.Executor
	Rebalancer  *rebalance.Engine
	Harvester   *harvest.Engine
	Risk        *risk.Coordinator
	Trader      trader.Trader
	Transferrer transfer.Transferrer
	Pricer      pricer.Pricer
	Intake      <-chan domain.BalanceNotification
}

type Coordinator struct {
	cfg   Config
	deps  Deps
	retry *retrier.Retrier
	l     *zap.Logger
}

func New(cfg Config, deps Deps, logger *zap.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Book == nil || deps.Ledger == nil || deps.Mirror == nil ||
		deps.Rebalancer == nil || deps.Harvester == nil || deps.Risk == nil ||
		deps.Trader == nil || deps.Transferrer == nil || deps.Pricer == nil {
		return nil, errors.New("all coordinator dependencies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:  cfg,
		deps: deps,
		retry: retrier.New(
			retrier.WithMaxRetries(3),
			retrier.WithInitialInterval(500*time.Millisecond),
		),
		l: logger,
	}, nil
}

// Run drives the loop until the context is canceled.
func (c *Coordinator) Run(ctx context.Context) error {
	riskTicker := time.NewTicker(c.cfg.RiskInterval)
	defer riskTicker.Stop()
	agentTicker := time.NewTicker(c.cfg.AgentInterval)
	defer agentTicker.Stop()

	c.l.Info("coordinator started",
		zap.Duration("risk_interval", c.cfg.RiskInterval),
		zap.Duration("agent_interval", c.cfg.AgentInterval))

	for {
		select {
		case <-ctx.Done():
			c.l.Info("coordinator stopped")
			return ctx.Err()
		case n, ok := <-c.deps.Intake:
			if !ok {
				return errors.New("intake channel closed")
			}
			c.handleNotification(ctx, n)
		case <-riskTicker.C:
			c.riskTick(ctx)
		case <-agentTicker.C:
			c.agentTick(ctx)
		}
	}
}

// handleNotification runs one notification through ledger classification and,
// when actionable, through mirror sizing and execution.
func (c *Coordinator) handleNotification(ctx context.Context, n domain.BalanceNotification) {
	event, err := c.deps.Ledger.Observe(n)
	if err != nil {
		c.deps.Risk.RecordError("ledger", err)
		if errors.Is(err, domain.ErrLedgerUnavailable) {
			c.l.Error("ledger unavailable, notification not processed",
				zap.String("tx_id", n.TxID), zap.Error(err))
			return
		}
		c.l.Warn("notification rejected", zap.String("tx_id", n.TxID), zap.Error(err))
		return
	}
	if event == nil || !event.Actionable() {
		return
	}

	snap := c.deps.Book.Snapshot()
	view := mirror.View{
		Total:          snap.Total,
		PositionsValue: snap.PositionsValue,
		Position:       positionFor(snap, event.Token),
	}
	intent, ok := c.deps.Mirror.Mirror(event, view)
	if !ok {
		return
	}

	if err := c.deps.Risk.Allows(intent.Reason, intent.Side); err != nil {
		c.l.Info("mirror intent blocked by risk gate",
			zap.String("id", intent.ID), zap.Error(err))
		return
	}

	result, err := c.submit(ctx, *intent)
	if err != nil {
		c.deps.Risk.RecordError("mirror", err)
		c.l.Error("mirror execution failed", zap.String("id", intent.ID), zap.Error(err))
		return
	}
	if !result.Filled.IsPositive() {
		c.l.Warn("mirror order not filled", zap.String("id", intent.ID))
		return
	}

	if intent.Side == domain.SideBuy {
		err = c.bookBuyFill(*intent, result)
	} else {
		err = c.bookSellFill(*intent, result, stableBucket)
	}
	if err != nil && !errors.Is(err, domain.ErrDuplicate) {
		c.deps.Risk.RecordError("mirror", err)
		c.l.Error("mirror fill not booked", zap.String("id", intent.ID), zap.Error(err))
	}
}

// riskTick evaluates the halt ladder and executes whatever the transition
// demands.
func (c *Coordinator) riskTick(ctx context.Context) {
	snap := c.deps.Book.Snapshot()
	action := c.deps.Risk.Evaluate(snap, time.Now())
	if action == nil {
		return
	}

	if action.LiquidateAll {
		c.liquidateAll(ctx, snap)
		return
	}
	for _, token := range action.CloseTokens {
		pos := positionFor(snap, token)
		if pos.Closed() {
			continue
		}
		key := fmt.Sprintf("risk-close-%s-%d", token, time.Now().Unix())
		c.closePosition(ctx, pos, key, stableBucket)
	}
}

// agentTick refreshes marks, then runs rebalancing before harvesting so both
// see a consistent ordering of corrections within one tick.
func (c *Coordinator) agentTick(ctx context.Context) {
	c.refreshMarks(ctx)
	now := time.Now()

	if err := c.deps.Risk.Allows(domain.ReasonRebalance, domain.SideSell); err == nil {
		snap := c.deps.Book.Snapshot()
		if plan := c.deps.Rebalancer.Evaluate(snap, now); plan != nil {
			c.executeRebalance(ctx, snap, plan)
		}
	}

	if err := c.deps.Risk.Allows(domain.ReasonDust, domain.SideSell); err == nil {
		snap := c.deps.Book.Snapshot()
		if plan := c.deps.Harvester.EvaluateDust(snap, now); plan != nil {
			c.executeDust(ctx, snap, plan)
		}
		snap = c.deps.Book.Snapshot()
		if plan := c.deps.Harvester.EvaluateGains(snap, now); plan != nil {
			c.executeGains(ctx, plan)
		}
	}
}

// refreshMarks reprices every open position. A failed quote keeps the last
// mark and flags it stale instead of zeroing the valuation.
func (c *Coordinator) refreshMarks(ctx context.Context) {
	snap := c.deps.Book.Snapshot()
	if len(snap.Positions) == 0 {
		return
	}

	prices := make(map[domain.Token]decimal.Decimal, len(snap.Positions))
	stale := make(map[domain.Token]bool, len(snap.Positions))
	for _, pos := range snap.Positions {
		quote, err := c.deps.Pricer.Price(ctx, pos.Symbol)
		if err != nil {
			c.deps.Risk.RecordError("pricer", err)
			stale[pos.Token] = true
			prices[pos.Token] = pos.MarkPrice
			continue
		}
		prices[pos.Token] = quote.Price
		stale[pos.Token] = quote.Stale
	}
	c.deps.Book.Refresh(prices, stale)
}

func (c *Coordinator) executeRebalance(ctx context.Context, snap portfolio.Snapshot, plan *rebalance.Plan) {
	executed := 0
	for i, step := range plan.Steps {
		key := fmt.Sprintf("%s-step-%d", plan.Key, i)
		var err error
		switch step.Kind {
		case rebalance.StepBaseToStable:
			err = c.convertBase(ctx, key, domain.SideSell, step.Value)
		case rebalance.StepStableToBase:
			err = c.convertBase(ctx, key, domain.SideBuy, step.Value)
		case rebalance.StepSellPosition:
			err = c.sellPositionValue(ctx, snap, step.Token, step.Value, key)
		}
		if err != nil {
			c.deps.Risk.RecordError("rebalance", err)
			c.l.Error("rebalance step failed",
				zap.String("band", plan.Band.String()),
				zap.String("key", key), zap.Error(err))
			continue
		}
		executed++
	}
	if executed == 0 {
		return
	}

	err := c.deps.Book.Update(portfolio.Mutation{
		Agent: "rebalance",
		Key:   plan.Key,
		Apply: func(st *portfolio.State) error {
			st.LastRebalance = time.Now()
			return nil
		},
	})
	if err != nil && !errors.Is(err, domain.ErrDuplicate) {
		c.l.Error("rebalance cooldown not recorded", zap.Error(err))
	}
	c.l.Info("rebalance executed",
		zap.String("band", plan.Band.String()),
		zap.Int("steps", executed))
}

// convertBase trades between the base and stable buckets. Side is relative to
// the base asset: sell moves base into stable, buy the other way. Value is
// quoted in stable terms either way.
func (c *Coordinator) convertBase(ctx context.Context, key string, side domain.Side, value decimal.Decimal) error {
	intent := domain.OrderIntent{
		ID:        key,
		Token:     c.cfg.BaseToken,
		Symbol:    c.cfg.BaseSymbol,
		Side:      side,
		Amount:    value,
		Reason:    domain.ReasonRebalance,
		CreatedAt: time.Now(),
	}
	if side == domain.SideSell {
		quote, err := c.deps.Pricer.Price(ctx, c.cfg.BaseSymbol)
		if err != nil {
			return errors.Wrap(err, "price base conversion")
		}
		if quote.Stale || !quote.Price.IsPositive() {
			return errors.Errorf("no fresh price for %s", c.cfg.BaseSymbol)
		}
		intent.Amount = value.Div(quote.Price)
	}

	result, err := c.submit(ctx, intent)
	if err != nil {
		return err
	}
	if !result.Filled.IsPositive() {
		return errors.Errorf("conversion %s not filled", key)
	}

	// slippage on the conversion is the only value legitimately created or
	// destroyed here
	proceeds := result.Filled.Mul(result.AvgPrice)
	err = c.deps.Book.Update(portfolio.Mutation{
		Agent:         "rebalance",
		Key:           key,
		ExpectedDelta: proceeds.Sub(value),
		Apply: func(st *portfolio.State) error {
			if side == domain.SideSell {
				st.Base = st.Base.Sub(value)
				st.Stable = st.Stable.Add(proceeds)
			} else {
				st.Stable = st.Stable.Sub(value)
				st.Base = st.Base.Add(proceeds)
			}
			return nil
		},
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return nil
	}
	return err
}

// sellPositionValue sells the given quote value out of a position.
func (c *Coordinator) sellPositionValue(ctx context.Context, snap portfolio.Snapshot, token domain.Token, value decimal.Decimal, key string) error {
	pos := positionFor(snap, token)
	if pos.Closed() || !pos.MarkPrice.IsPositive() {
		return errors.Errorf("no sellable position in %s", token)
	}

	units := value.Div(pos.MarkPrice)
	if units.GreaterThan(pos.Size) {
		units = pos.Size
	}

	intent := domain.OrderIntent{
		ID:        key,
		Token:     token,
		Symbol:    pos.Symbol,
		Side:      domain.SideSell,
		Amount:    units,
		Reason:    domain.ReasonRebalance,
		CreatedAt: time.Now(),
	}
	result, err := c.submit(ctx, intent)
	if err != nil {
		return err
	}
	if !result.Filled.IsPositive() {
		return errors.Errorf("position sale %s not filled", key)
	}
	return c.bookSellFill(intent, result, stableBucket)
}

// closePosition fully unwinds one position into the given bucket.
func (c *Coordinator) closePosition(ctx context.Context, pos *domain.Position, key string, bucket proceedsBucket) {
	intent := domain.OrderIntent{
		ID:        key,
		Token:     pos.Token,
		Symbol:    pos.Symbol,
		Side:      domain.SideSell,
		Amount:    pos.Size,
		Reason:    domain.ReasonRisk,
		CreatedAt: time.Now(),
	}
	result, err := c.submit(ctx, intent)
	if err != nil {
		c.deps.Risk.RecordError("risk", err)
		c.l.Error("forced close failed", zap.String("token", string(pos.Token)), zap.Error(err))
		return
	}
	if !result.Filled.IsPositive() {
		return
	}
	if err := c.bookSellFill(intent, result, bucket); err != nil && !errors.Is(err, domain.ErrDuplicate) {
		c.l.Error("forced close not booked", zap.String("token", string(pos.Token)), zap.Error(err))
	}
}

// liquidateAll closes every position and converts the base bucket to stable.
// Runs under a system halt, so orders carry the risk reason and pass the gate.
func (c *Coordinator) liquidateAll(ctx context.Context, snap portfolio.Snapshot) {
	c.l.Warn("full liquidation", zap.String("total", snap.Total.String()))
	now := time.Now().Unix()

	for i := range snap.Positions {
		pos := snap.Positions[i]
		key := fmt.Sprintf("risk-liquidate-%s-%d", pos.Token, now)
		c.closePosition(ctx, &pos, key, stableBucket)
	}

	if snap.Base.IsPositive() {
		key := fmt.Sprintf("risk-liquidate-base-%d", now)
		quote, err := c.deps.Pricer.Price(ctx, c.cfg.BaseSymbol)
		if err != nil || quote.Stale || !quote.Price.IsPositive() {
			c.l.Error("cannot price base for liquidation", zap.Error(err))
			return
		}
		intent := domain.OrderIntent{
			ID:        key,
			Token:     c.cfg.BaseToken,
			Symbol:    c.cfg.BaseSymbol,
			Side:      domain.SideSell,
			Amount:    snap.Base.Div(quote.Price),
			Reason:    domain.ReasonRisk,
			CreatedAt: time.Now(),
		}
		result, err := c.submit(ctx, intent)
		if err != nil || !result.Filled.IsPositive() {
			c.l.Error("base liquidation failed", zap.Error(err))
			return
		}
		proceeds := result.Filled.Mul(result.AvgPrice)
		err = c.deps.Book.Update(portfolio.Mutation{
			Agent:         "risk",
			Key:           key,
			ExpectedDelta: proceeds.Sub(snap.Base),
			Apply: func(st *portfolio.State) error {
				st.Stable = st.Stable.Add(proceeds)
				st.Base = decimal.Zero
				return nil
			},
		})
		if err != nil && !errors.Is(err, domain.ErrDuplicate) {
			c.l.Error("base liquidation not booked", zap.Error(err))
		}
	}
}

func (c *Coordinator) executeDust(ctx context.Context, snap portfolio.Snapshot, plan *harvest.DustPlan) {
	for _, token := range plan.Tokens {
		pos := positionFor(snap, token)
		if pos.Closed() {
			continue
		}
		key := fmt.Sprintf("%s-%s", plan.Key, token)
		intent := domain.OrderIntent{
			ID:        key,
			Token:     token,
			Symbol:    pos.Symbol,
			Side:      domain.SideSell,
			Amount:    pos.Size,
			Reason:    domain.ReasonDust,
			CreatedAt: time.Now(),
		}
		result, err := c.submit(ctx, intent)
		if err != nil {
			c.deps.Risk.RecordError("harvest", err)
			c.l.Error("dust sweep failed", zap.String("token", string(token)), zap.Error(err))
			continue
		}
		if !result.Filled.IsPositive() {
			continue
		}
		// dust proceeds accrue to the base reserve
		if err := c.bookSellFill(intent, result, baseBucket); err != nil && !errors.Is(err, domain.ErrDuplicate) {
			c.l.Error("dust sweep not booked", zap.String("token", string(token)), zap.Error(err))
		}
	}
}

// executeGains converts the harvested amount's base and sweep shares out of
// stable in one buy, withdraws the sweep shares in base units, then resets
// the accumulator.
func (c *Coordinator) executeGains(ctx context.Context, plan *harvest.GainPlan) {
	sweepTotal := decimal.Zero
	for _, sw := range plan.Sweeps {
		sweepTotal = sweepTotal.Add(sw.Value)
	}

	buyValue := plan.ToBase.Add(sweepTotal)
	if buyValue.IsPositive() {
		fillPrice, err := c.convertHarvestToBase(ctx, plan.Key, buyValue)
		if err != nil {
			c.deps.Risk.RecordError("harvest", err)
			c.l.Error("harvest conversion failed", zap.Error(err))
			return
		}
		c.executeSweeps(ctx, plan.Sweeps, fillPrice)
	}

	err := c.deps.Book.Update(portfolio.Mutation{
		Agent: "harvest",
		Key:   plan.Key,
		Apply: func(st *portfolio.State) error {
			st.RealizedGain = decimal.Zero
			st.LastHarvest = time.Now()
			return nil
		},
	})
	if err != nil && !errors.Is(err, domain.ErrDuplicate) {
		c.l.Error("harvest accumulator not reset", zap.Error(err))
	}
}

// executeSweeps withdraws each sweep share. Shares are sized in quote terms;
// the venue withdraws base coin, so the quantity is the share value at the
// conversion's fill price. The book keeps moving in quote terms.
func (c *Coordinator) executeSweeps(ctx context.Context, sweeps []harvest.Sweep, fillPrice decimal.Decimal) {
	for _, sw := range sweeps {
		intent := domain.TransferIntent{
			ID:          sw.ID,
			Destination: sw.Destination,
			Asset:       string(c.cfg.BaseToken),
			Amount:      sw.Value.Div(fillPrice),
			CreatedAt:   time.Now(),
		}
		result, err := c.deps.Transferrer.Transfer(ctx, intent)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				continue
			}
			c.deps.Risk.RecordError("harvest", err)
			c.l.Error("sweep transfer failed", zap.String("id", sw.ID), zap.Error(err))
			continue
		}
		value := sw.Value
		err = c.deps.Book.Update(portfolio.Mutation{
			Agent:         "harvest",
			Key:           sw.ID,
			ExpectedDelta: value.Neg(),
			Apply: func(st *portfolio.State) error {
				st.Base = st.Base.Sub(value)
				return nil
			},
		})
		if err != nil && !errors.Is(err, domain.ErrDuplicate) {
			c.l.Error("sweep transfer not booked", zap.String("id", sw.ID), zap.Error(err))
			continue
		}
		c.l.Info("sweep transfer done",
			zap.String("id", sw.ID),
			zap.String("asset", intent.Asset),
			zap.String("quantity", intent.Amount.String()),
			zap.String("tx_ref", result.TxRef))
	}
}

// convertHarvestToBase buys the harvested base and sweep shares out of stable
// and returns the fill price the sweeps are sized at.
func (c *Coordinator) convertHarvestToBase(ctx context.Context, planKey string, value decimal.Decimal) (decimal.Decimal, error) {
	key := planKey + "-to-base"
	intent := domain.OrderIntent{
		ID:        key,
		Token:     c.cfg.BaseToken,
		Symbol:    c.cfg.BaseSymbol,
		Side:      domain.SideBuy,
		Amount:    value,
		Reason:    domain.ReasonHarvest,
		CreatedAt: time.Now(),
	}
	result, err := c.submit(ctx, intent)
	if err != nil {
		return decimal.Zero, err
	}
	if !result.Filled.IsPositive() || !result.AvgPrice.IsPositive() {
		return decimal.Zero, errors.Errorf("harvest conversion %s not filled", key)
	}

	proceeds := result.Filled.Mul(result.AvgPrice)
	err = c.deps.Book.Update(portfolio.Mutation{
		Agent:         "harvest",
		Key:           key,
		ExpectedDelta: proceeds.Sub(value),
		Apply: func(st *portfolio.State) error {
			st.Stable = st.Stable.Sub(value)
			st.Base = st.Base.Add(proceeds)
			return nil
		},
	})
	if err != nil && !errors.Is(err, domain.ErrDuplicate) {
		return decimal.Zero, err
	}
	return result.AvgPrice, nil
}

// submit sends the order with retries. Halt-gate rejections are permanent;
// transient venue errors back off and retry.
func (c *Coordinator) submit(ctx context.Context, intent domain.OrderIntent) (domain.OrderResult, error) {
	return retrier.DoWithData(c.retry, ctx, func(ctx context.Context) (domain.OrderResult, error) {
		if err := c.deps.Risk.Allows(intent.Reason, intent.Side); err != nil {
			return domain.OrderResult{}, retrier.Permanent(err)
		}
		return c.deps.Trader.SubmitOrder(ctx, intent)
	})
}

// bookBuyFill applies a mirror buy: quote spent out of stable, position
// grown or opened at the fill price.
func (c *Coordinator) bookBuyFill(intent domain.OrderIntent, result domain.OrderResult) error {
	spent := result.Filled.Mul(result.AvgPrice)
	snap := c.deps.Book.Snapshot()
	expected := repriceDrift(positionFor(snap, intent.Token), result)

	return c.deps.Book.Update(portfolio.Mutation{
		Agent:         string(intent.Reason),
		Key:           intent.ID,
		ExpectedDelta: expected,
		Apply: func(st *portfolio.State) error {
			if st.Stable.LessThan(spent) {
				return errors.Errorf("stable bucket %s cannot fund buy of %s", st.Stable, spent)
			}
			st.Stable = st.Stable.Sub(spent)

			pos := st.Position(intent.Token)
			if pos == nil {
				fresh, err := domain.NewPosition(intent.Token, intent.Symbol, result.Filled, result.AvgPrice, time.Now())
				if err != nil {
					return err
				}
				st.Upsert(fresh)
				return nil
			}
			if err := pos.ApplyBuy(result.Filled, result.AvgPrice); err != nil {
				return err
			}
			st.Upsert(pos)
			return nil
		},
	})
}

// proceedsBucket picks where sell proceeds land.
type proceedsBucket int

const (
	stableBucket proceedsBucket = iota
	baseBucket
)

// bookSellFill applies a sell: position reduced at the fill price, proceeds
// credited, realized gain accumulated and fed to the risk loss streak.
func (c *Coordinator) bookSellFill(intent domain.OrderIntent, result domain.OrderResult, bucket proceedsBucket) error {
	proceeds := result.Filled.Mul(result.AvgPrice)
	snap := c.deps.Book.Snapshot()
	expected := repriceDrift(positionFor(snap, intent.Token), result)

	var realized decimal.Decimal
	err := c.deps.Book.Update(portfolio.Mutation{
		Agent:         string(intent.Reason),
		Key:           intent.ID,
		ExpectedDelta: expected,
		Apply: func(st *portfolio.State) error {
			pos := st.Position(intent.Token)
			if pos == nil {
				return errors.Errorf("no position in %s to book sell against", intent.Token)
			}
			size := result.Filled
			if size.GreaterThan(pos.Size) {
				size = pos.Size
			}
			gain, err := pos.ApplySell(size, result.AvgPrice)
			if err != nil {
				return err
			}
			realized = gain
			st.Upsert(pos)

			if bucket == baseBucket {
				st.Base = st.Base.Add(proceeds)
			} else {
				st.Stable = st.Stable.Add(proceeds)
			}
			st.RealizedGain = st.RealizedGain.Add(gain)
			return nil
		},
	})
	if err != nil {
		return err
	}

	c.deps.Risk.RecordTradeResult(realized)
	return nil
}

// repriceDrift accounts for fills remarking the whole position at the fill
// price: booking a fill moves the total by heldSize * (fillPrice - markPrice)
// beyond the trade itself.
func repriceDrift(pos *domain.Position, result domain.OrderResult) decimal.Decimal {
	if pos.Closed() {
		return decimal.Zero
	}
	return pos.Size.Mul(result.AvgPrice.Sub(pos.MarkPrice))
}

func positionFor(snap portfolio.Snapshot, token domain.Token) *domain.Position {
	for i := range snap.Positions {
		if snap.Positions[i].Token == token {
			return &snap.Positions[i]
		}
	}
	return nil
}
