package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/portfolio"
	"github.com/vadiminshakov/mirra/internal/services/harvest"
	"github.com/vadiminshakov/mirra/internal/services/ledger"
	"github.com/vadiminshakov/mirra/internal/services/mirror"
	"github.com/vadiminshakov/mirra/internal/services/pricer"
	"github.com/vadiminshakov/mirra/internal/services/rebalance"
	"github.com/vadiminshakov/mirra/internal/services/risk"
	"github.com/vadiminshakov/mirra/internal/services/transfer"
	"github.com/vadiminshakov/mirra/internal/storage/balances"
	"github.com/vadiminshakov/mirra/internal/storage/sweeps"
	"github.com/vadiminshakov/mirra/pkg/retrier"
	"go.uber.org/zap"
)

const testWallet = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"

// mapPricer returns fixed prices per symbol.
type mapPricer struct {
	prices map[string]decimal.Decimal
}

func (m *mapPricer) Price(ctx context.Context, symbol string) (pricer.Quote, error) {
	price, ok := m.prices[symbol]
	if !ok {
		price = decimal.NewFromInt(1)
	}
	return pricer.Quote{Price: price, AsOf: time.Now()}, nil
}

// stubTrader fills every order at the pricer's fixed price. Setting fail
// rejects orders until it is cleared again.
type stubTrader struct {
	pricer *mapPricer
	fills  []domain.OrderIntent
	fail   error
}

func (s *stubTrader) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderResult, error) {
	if s.fail != nil {
		return domain.OrderResult{}, s.fail
	}
	s.fills = append(s.fills, intent)
	quote, _ := s.pricer.Price(ctx, intent.Symbol)
	if intent.Side == domain.SideBuy {
		return domain.OrderResult{Filled: intent.Amount.Div(quote.Price), AvgPrice: quote.Price}, nil
	}
	return domain.OrderResult{Filled: intent.Amount, AvgPrice: quote.Price}, nil
}

// recordingTransferrer keeps the submitted intents and delegates to the paper
// transferrer.
type recordingTransferrer struct {
	inner   transfer.Transferrer
	intents []domain.TransferIntent
}

func (r *recordingTransferrer) Transfer(ctx context.Context, intent domain.TransferIntent) (domain.TransferResult, error) {
	r.intents = append(r.intents, intent)
	return r.inner.Transfer(ctx, intent)
}

type fixture struct {
	coord       *Coordinator
	book        *portfolio.Book
	risk        *risk.Coordinator
	trader      *stubTrader
	transferrer *recordingTransferrer
	journal     *sweeps.Store
	intake      chan domain.BalanceNotification
}

func newFixture(t *testing.T, state *portfolio.State, prices map[string]decimal.Decimal) *fixture {
	t.Helper()

	book := portfolio.NewBook(state, decimal.RequireFromString("0.01"))

	store, err := balances.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	led := ledger.New(store, ledger.DefaultThresholds(), zap.NewNop())

	mir := mirror.New(mirror.Caps{
		MaxSinglePositionPct: decimal.RequireFromString("0.10"),
		MaxPositionsPct:      decimal.RequireFromString("0.70"),
		EntryValue:           decimal.NewFromInt(1000),
		MinTradeValue:        decimal.NewFromInt(10),
	}, []domain.Token{"BTC", "USDC"}, map[domain.Token]string{
		"AAA": "AAAUSDC",
		"DDD": "DDDUSDC",
	}, zap.NewNop())

	reb, err := rebalance.New(rebalance.Config{
		BaseTarget:          decimal.RequireFromString("0.10"),
		BaseMin:             decimal.RequireFromString("0.05"),
		BaseMax:             decimal.RequireFromString("0.20"),
		StableMin:           decimal.RequireFromString("0.15"),
		StableRestore:       decimal.RequireFromString("0.20"),
		PositionsCrisis:     decimal.RequireFromString("0.50"),
		StartupBaseMin:      decimal.RequireFromString("0.95"),
		StartupPositionsMax: decimal.RequireFromString("0.01"),
		Cooldown:            5 * time.Minute,
		MinConversionValue:  decimal.NewFromInt(10),
	}, zap.NewNop())
	require.NoError(t, err)

	har, err := harvest.New(harvest.Config{
		DustThreshold: decimal.NewFromInt(1),
		GainMin:       decimal.NewFromInt(50),
		GainIncrement: decimal.RequireFromString("0.05"),
		Split: harvest.Split{
			Stable:     decimal.RequireFromString("0.50"),
			SweepA:     decimal.RequireFromString("0.25"),
			SweepB:     decimal.RequireFromString("0.15"),
			Base:       decimal.RequireFromString("0.10"),
			SweepADest: "0x1111111111111111111111111111111111111111",
			SweepBDest: "0x2222222222222222222222222222222222222222",
		},
	}, zap.NewNop())
	require.NoError(t, err)

	riskCoord, err := risk.New(risk.Config{
		DrawdownLimit:        decimal.RequireFromString("0.16"),
		ConsecutiveLossLimit: 6,
		ValueFloor:           decimal.NewFromInt(1),
		ErrorLimit:           100,
		RecoveryWindow:       10 * time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)

	mp := &mapPricer{prices: prices}
	tr := &stubTrader{pricer: mp}

	journal, err := sweeps.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })
	paper, err := transfer.NewPaperTransferrer(journal, zap.NewNop())
	require.NoError(t, err)
	transferrer := &recordingTransferrer{inner: paper}

	intake := make(chan domain.BalanceNotification, 16)
	coord, err := New(Config{
		RiskInterval:  time.Second,
		AgentInterval: time.Second,
		BaseToken:     "BTC",
		BaseSymbol:    "BTCUSDC",
	}, Deps{
		Book:        book,
		Ledger:      led,
		Mirror:      mir,
		Rebalancer:  reb,
		Harvester:   har,
		Risk:        riskCoord,
		Trader:      tr,
		Transferrer: transferrer,
		Pricer:      mp,
		Intake:      intake,
	}, zap.NewNop())
	require.NoError(t, err)

	return &fixture{
		coord:       coord,
		book:        book,
		risk:        riskCoord,
		trader:      tr,
		transferrer: transferrer,
		journal:     journal,
		intake:      intake,
	}
}

func notification(token string, balance int64, txID string) domain.BalanceNotification {
	return domain.BalanceNotification{
		Wallet:     domain.Wallet(testWallet),
		Token:      domain.Token(token),
		NewBalance: decimal.NewFromInt(balance),
		TxID:       txID,
		Timestamp:  time.Now(),
	}
}

func TestMirrorBuyOpensPosition(t *testing.T) {
	f := newFixture(t, portfolio.NewState(decimal.NewFromInt(1000), decimal.NewFromInt(9000)),
		map[string]decimal.Decimal{"AAAUSDC": decimal.NewFromInt(5)})

	// first sighting of the token classifies as a full buy
	f.coord.handleNotification(context.Background(), notification("AAA", 500, "tx-1"))

	snap := f.book.Snapshot()
	require.Len(t, snap.Positions, 1)
	pos := snap.Positions[0]
	require.Equal(t, domain.Token("AAA"), pos.Token)
	// $1000 entry clipped by the 10% single-position cap is still $1000 on a
	// $10000 book; at price 5 that is 200 units
	require.True(t, pos.Size.Equal(decimal.NewFromInt(200)), "got %s", pos.Size)
	require.True(t, snap.Stable.Equal(decimal.NewFromInt(8000)))
	require.True(t, snap.Total.Equal(decimal.NewFromInt(10000)), "buy is an internal conversion")
}

func TestMirrorSellRealizesGain(t *testing.T) {
	f := newFixture(t, portfolio.NewState(decimal.NewFromInt(1000), decimal.NewFromInt(9000)),
		map[string]decimal.Decimal{"AAAUSDC": decimal.NewFromInt(5)})

	f.coord.handleNotification(context.Background(), notification("AAA", 500, "tx-1"))

	// price doubles, then the tracked wallet exits half
	f.trader.pricer.prices["AAAUSDC"] = decimal.NewFromInt(10)
	f.coord.handleNotification(context.Background(), notification("AAA", 250, "tx-2"))

	snap := f.book.Snapshot()
	require.Len(t, snap.Positions, 1)
	require.True(t, snap.Positions[0].Size.Equal(decimal.NewFromInt(100)), "half of 200 units sold, got %s", snap.Positions[0].Size)
	// 100 units sold at 10 against entry 5 realizes 500
	require.True(t, snap.RealizedGain.Equal(decimal.NewFromInt(500)), "got %s", snap.RealizedGain)
	require.True(t, snap.Stable.Equal(decimal.NewFromInt(9000)), "8000 + 1000 proceeds")
}

func TestDuplicateNotificationBooksOnce(t *testing.T) {
	f := newFixture(t, portfolio.NewState(decimal.NewFromInt(1000), decimal.NewFromInt(9000)),
		map[string]decimal.Decimal{"AAAUSDC": decimal.NewFromInt(5)})

	f.coord.handleNotification(context.Background(), notification("AAA", 500, "tx-1"))
	f.coord.handleNotification(context.Background(), notification("AAA", 500, "tx-1"))

	snap := f.book.Snapshot()
	require.Len(t, snap.Positions, 1)
	require.True(t, snap.Positions[0].Size.Equal(decimal.NewFromInt(200)))
	require.True(t, snap.Stable.Equal(decimal.NewFromInt(8000)), "replayed tx must not double-book")
}

func TestStartupRebalanceConverts(t *testing.T) {
	f := newFixture(t, portfolio.NewState(decimal.NewFromInt(10000), decimal.Zero),
		map[string]decimal.Decimal{"BTCUSDC": decimal.NewFromInt(100)})

	f.coord.agentTick(context.Background())

	snap := f.book.Snapshot()
	require.True(t, snap.Base.Equal(decimal.NewFromInt(1000)), "got base %s", snap.Base)
	require.True(t, snap.Stable.Equal(decimal.NewFromInt(9000)), "got stable %s", snap.Stable)
	require.False(t, snap.LastRebalance.IsZero(), "cooldown stamp must be set")

	// immediately after, the book is at target and inside cooldown
	f.coord.agentTick(context.Background())
	snap = f.book.Snapshot()
	require.True(t, snap.Base.Equal(decimal.NewFromInt(1000)))
}

func TestSystemHaltLiquidatesAndBlocksMirror(t *testing.T) {
	f := newFixture(t, portfolio.NewState(decimal.NewFromInt(1000), decimal.NewFromInt(9000)),
		map[string]decimal.Decimal{"AAAUSDC": decimal.NewFromInt(5), "BTCUSDC": decimal.NewFromInt(100)})

	f.coord.handleNotification(context.Background(), notification("AAA", 500, "tx-1"))
	require.Len(t, f.book.Snapshot().Positions, 1)

	for i := 0; i < 6; i++ {
		f.risk.RecordTradeResult(decimal.NewFromInt(-10))
	}
	f.coord.riskTick(context.Background())

	snap := f.book.Snapshot()
	require.Empty(t, snap.Positions, "system halt liquidates all positions")
	require.True(t, snap.Base.IsZero(), "base reserve converted to stable")
	require.True(t, snap.Stable.Equal(decimal.NewFromInt(10000)), "got %s", snap.Stable)
	require.Equal(t, domain.HaltSystem, f.risk.State().Level)

	// further mirroring is refused until an operator clears the halt
	f.coord.handleNotification(context.Background(), notification("DDD", 300, "tx-9"))
	require.Empty(t, f.book.Snapshot().Positions)
}

func TestDustSweptIntoBase(t *testing.T) {
	state := portfolio.NewState(decimal.NewFromInt(1000), decimal.NewFromInt(9000))
	pos, err := domain.NewPosition("DDD", "DDDUSDC", decimal.NewFromInt(1), decimal.RequireFromString("0.5"), time.Now())
	require.NoError(t, err)
	state.Upsert(pos)

	f := newFixture(t, state, map[string]decimal.Decimal{
		"DDDUSDC": decimal.RequireFromString("0.5"),
		"BTCUSDC": decimal.NewFromInt(100),
	})

	f.coord.agentTick(context.Background())

	snap := f.book.Snapshot()
	require.Empty(t, snap.Positions, "dust position fully swept")
	require.True(t, snap.Base.Equal(decimal.RequireFromString("1000.5")), "proceeds accrue to base, got %s", snap.Base)
}

func TestGainHarvestSplitsAndResets(t *testing.T) {
	state := portfolio.NewState(decimal.NewFromInt(100), decimal.NewFromInt(1900))
	state.RealizedGain = decimal.NewFromInt(100) // 5% of the $2000 book

	f := newFixture(t, state, map[string]decimal.Decimal{"BTCUSDC": decimal.NewFromInt(100)})

	f.coord.agentTick(context.Background())

	snap := f.book.Snapshot()
	require.True(t, snap.RealizedGain.IsZero(), "accumulator resets after harvest")
	require.False(t, snap.LastHarvest.IsZero())
	// $10 base share + $40 sweeps bought into base, $40 transferred out
	require.True(t, snap.Stable.Equal(decimal.NewFromInt(1850)), "got stable %s", snap.Stable)
	require.True(t, snap.Base.Equal(decimal.NewFromInt(110)), "got base %s", snap.Base)
	require.True(t, snap.Total.Equal(decimal.NewFromInt(1960)), "sweeps leave the book, got %s", snap.Total)

	records, err := f.journal.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	// $25 and $15 shares withdrawn as base coin at the $100 fill
	require.Equal(t, "BTC", records[0].Asset)
	require.Equal(t, "0.25", records[0].Amount)
	require.Equal(t, "BTC", records[1].Asset)
	require.Equal(t, "0.15", records[1].Amount)
}

func TestSweepWithdrawalsDenominatedInBaseUnits(t *testing.T) {
	state := portfolio.NewState(decimal.NewFromInt(100), decimal.NewFromInt(1900))
	state.RealizedGain = decimal.NewFromInt(100)

	f := newFixture(t, state, map[string]decimal.Decimal{"BTCUSDC": decimal.NewFromInt(100)})

	f.coord.agentTick(context.Background())

	require.Len(t, f.transferrer.intents, 2)
	for _, intent := range f.transferrer.intents {
		require.Equal(t, "BTC", intent.Asset, "withdrawal must name the venue coin")
	}
	require.True(t, f.transferrer.intents[0].Amount.Equal(decimal.RequireFromString("0.25")),
		"got %s", f.transferrer.intents[0].Amount)
	require.True(t, f.transferrer.intents[1].Amount.Equal(decimal.RequireFromString("0.15")),
		"got %s", f.transferrer.intents[1].Amount)

	// the book still moves by the quote value of the shares
	snap := f.book.Snapshot()
	require.True(t, snap.Base.Equal(decimal.NewFromInt(110)), "got base %s", snap.Base)
}

func TestSystemHaltRetriesLiquidationNextTick(t *testing.T) {
	f := newFixture(t, portfolio.NewState(decimal.NewFromInt(1000), decimal.NewFromInt(9000)),
		map[string]decimal.Decimal{"AAAUSDC": decimal.NewFromInt(5), "BTCUSDC": decimal.NewFromInt(100)})

	f.coord.handleNotification(context.Background(), notification("AAA", 500, "tx-1"))
	require.Len(t, f.book.Snapshot().Positions, 1)

	for i := 0; i < 6; i++ {
		f.risk.RecordTradeResult(decimal.NewFromInt(-10))
	}

	// venue rejects orders on the escalation tick, the position survives
	f.trader.fail = retrier.Permanent(errors.New("venue unavailable"))
	f.coord.riskTick(context.Background())
	require.Equal(t, domain.HaltSystem, f.risk.State().Level)
	require.Len(t, f.book.Snapshot().Positions, 1, "failed liquidation leaves the position open")

	// venue back: the next tick finishes the liquidation
	f.trader.fail = nil
	f.coord.riskTick(context.Background())

	snap := f.book.Snapshot()
	require.Empty(t, snap.Positions, "liquidation must complete once the venue recovers")
	require.True(t, snap.Base.IsZero(), "got base %s", snap.Base)
	require.True(t, snap.Stable.Equal(decimal.NewFromInt(10000)), "got stable %s", snap.Stable)
}
