package mirror

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/mirra/internal/domain"
	"go.uber.org/zap"
)

const (
	tokenX      = domain.Token("TokenXMintAddr111111111111111111111111111111")
	baseToken   = domain.Token("So11111111111111111111111111111111111111112")
	stableToken = domain.Token("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func testCaps() Caps {
	return Caps{
		MaxSinglePositionPct: decimal.NewFromFloat(0.10),
		MaxPositionsPct:      decimal.NewFromFloat(0.70),
		EntryValue:           decimal.NewFromInt(1000),
		MinTradeValue:        decimal.NewFromInt(10),
	}
}

func testExecutor() *Executor {
	symbols := map[domain.Token]string{tokenX: "XUSDC"}
	return New(testCaps(), []domain.Token{baseToken, stableToken}, symbols, zap.NewNop())
}

func openPosition(t *testing.T, size, price int64) *domain.Position {
	t.Helper()
	pos, err := domain.NewPosition(tokenX, "XUSDC", decimal.NewFromInt(size), decimal.NewFromInt(price), time.Now())
	require.NoError(t, err)
	return pos
}

func sellEvent(kind domain.Kind, pct string) *domain.ClassifiedEvent {
	return &domain.ClassifiedEvent{
		Wallet:     "wallet",
		Token:      tokenX,
		Direction:  domain.DirectionSell,
		Kind:       kind,
		Percentage: decimal.RequireFromString(pct),
		TxID:       "tx-abc",
		Timestamp:  time.Now(),
	}
}

func TestMirrorHalfSell(t *testing.T) {
	e := testExecutor()
	pos := openPosition(t, 200, 5) // $1000 position

	intent, ok := e.Mirror(sellEvent(domain.KindHalf, "0.5"), View{
		Total:          decimal.NewFromInt(10000),
		PositionsValue: decimal.NewFromInt(1000),
		Position:       pos,
	})
	require.True(t, ok)
	require.Equal(t, domain.SideSell, intent.Side)
	require.True(t, intent.Amount.Equal(decimal.NewFromInt(100)), "should liquidate half the 200 units, got %s", intent.Amount)
	require.Equal(t, "mirror-tx-abc", intent.ID)
}

func TestMirrorFullSellLiquidatesEverything(t *testing.T) {
	e := testExecutor()
	pos := openPosition(t, 123, 4)

	intent, ok := e.Mirror(sellEvent(domain.KindFull, "1"), View{
		Total:    decimal.NewFromInt(10000),
		Position: pos,
	})
	require.True(t, ok)
	require.True(t, intent.Amount.Equal(decimal.NewFromInt(123)))
}

func TestMirrorSellWithoutPositionIsNoop(t *testing.T) {
	e := testExecutor()
	_, ok := e.Mirror(sellEvent(domain.KindHalf, "0.5"), View{Total: decimal.NewFromInt(10000)})
	require.False(t, ok)
}

func TestMirrorSellBelowMinValueIsNoop(t *testing.T) {
	e := testExecutor()
	pos := openPosition(t, 10, 1) // $10 position, half sell is $5

	_, ok := e.Mirror(sellEvent(domain.KindHalf, "0.5"), View{
		Total:    decimal.NewFromInt(10000),
		Position: pos,
	})
	require.False(t, ok)
}

func TestExcludedTokensNeverMirrored(t *testing.T) {
	e := testExecutor()
	ev := sellEvent(domain.KindFull, "1")
	ev.Token = baseToken

	pos, err := domain.NewPosition(baseToken, "SOLUSDC", decimal.NewFromInt(100), decimal.NewFromInt(100), time.Now())
	require.NoError(t, err)

	_, ok := e.Mirror(ev, View{Total: decimal.NewFromInt(10000), Position: pos})
	require.False(t, ok)
}

func TestMirrorBuyClippedBySingleCap(t *testing.T) {
	e := testExecutor()
	ev := &domain.ClassifiedEvent{
		Token:      tokenX,
		Direction:  domain.DirectionBuy,
		Kind:       domain.KindFull,
		Percentage: decimal.NewFromInt(1),
		TxID:       "tx-buy",
	}

	// fresh entry of $1000 against a $5000 portfolio: single cap is 10% = $500
	intent, ok := e.Mirror(ev, View{Total: decimal.NewFromInt(5000)})
	require.True(t, ok)
	require.Equal(t, domain.SideBuy, intent.Side)
	require.True(t, intent.Amount.Equal(decimal.NewFromInt(500)), "got %s", intent.Amount)
}

func TestMirrorBuyClippedByAggregateCap(t *testing.T) {
	e := testExecutor()
	ev := &domain.ClassifiedEvent{
		Token:      tokenX,
		Direction:  domain.DirectionBuy,
		Kind:       domain.KindFull,
		Percentage: decimal.NewFromInt(1),
		TxID:       "tx-buy",
	}

	// aggregate bucket nearly full: 70% of $10000 = $7000, $6950 held
	intent, ok := e.Mirror(ev, View{
		Total:          decimal.NewFromInt(10000),
		PositionsValue: decimal.NewFromInt(6950),
	})
	require.True(t, ok)
	require.True(t, intent.Amount.Equal(decimal.NewFromInt(50)), "got %s", intent.Amount)
}

func TestMirrorBuyClippedToZeroIsNoop(t *testing.T) {
	e := testExecutor()
	ev := &domain.ClassifiedEvent{
		Token:      tokenX,
		Direction:  domain.DirectionBuy,
		Kind:       domain.KindFull,
		Percentage: decimal.NewFromInt(1),
		TxID:       "tx-buy",
	}

	_, ok := e.Mirror(ev, View{
		Total:          decimal.NewFromInt(10000),
		PositionsValue: decimal.NewFromInt(7000), // aggregate cap exhausted
	})
	require.False(t, ok)
}

func TestProportionalBuyScalesExistingPosition(t *testing.T) {
	e := testExecutor()
	pos := openPosition(t, 100, 5) // $500 held
	ev := &domain.ClassifiedEvent{
		Token:      tokenX,
		Direction:  domain.DirectionBuy,
		Kind:       domain.KindNone,
		Percentage: decimal.RequireFromString("0.2"),
		TxID:       "tx-buy",
	}

	intent, ok := e.Mirror(ev, View{
		Total:          decimal.NewFromInt(100000),
		PositionsValue: decimal.NewFromInt(500),
		Position:       pos,
	})
	require.True(t, ok)
	require.True(t, intent.Amount.Equal(decimal.NewFromInt(100)), "20%% of $500, got %s", intent.Amount)
}

func TestDuplicateEventNotActionable(t *testing.T) {
	e := testExecutor()
	ev := sellEvent(domain.KindHalf, "0.5")
	ev.Duplicate = true

	_, ok := e.Mirror(ev, View{Total: decimal.NewFromInt(10000), Position: openPosition(t, 100, 10)})
	require.False(t, ok)
}
