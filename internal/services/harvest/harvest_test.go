package harvest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/portfolio"
	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		DustThreshold: decimal.NewFromInt(1),
		GainMin:       decimal.NewFromInt(50),
		GainIncrement: decimal.RequireFromString("0.05"),
		Split: Split{
			Stable:     decimal.RequireFromString("0.50"),
			SweepA:     decimal.RequireFromString("0.25"),
			SweepB:     decimal.RequireFromString("0.15"),
			Base:       decimal.RequireFromString("0.10"),
			SweepADest: "SweepDestA1111111111111111111111111111111111",
			SweepBDest: "SweepDestB1111111111111111111111111111111111",
		},
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testConfig(), zap.NewNop())
	require.NoError(t, err)
	return e
}

func position(t *testing.T, token string, size, price string) domain.Position {
	t.Helper()
	pos, err := domain.NewPosition(domain.Token(token), token+"USDC",
		decimal.RequireFromString(size), decimal.RequireFromString(price), time.Now())
	require.NoError(t, err)
	return *pos
}

func TestDustDetection(t *testing.T) {
	e := newEngine(t)

	snap := portfolio.Snapshot{
		Total: decimal.NewFromInt(10000),
		Positions: []domain.Position{
			position(t, "AAA", "100", "5"),    // $500, healthy
			position(t, "BBB", "10", "0.05"),  // $0.50, dust
			position(t, "CCC", "1", "1"),      // exactly $1, dust (inclusive)
			position(t, "DDD", "2", "0.5001"), // $1.0002, not dust
		},
	}

	plan := e.EvaluateDust(snap, time.Now())
	require.NotNil(t, plan)
	require.ElementsMatch(t, []domain.Token{"BBB", "CCC"}, plan.Tokens)
}

func TestNoDustNoPlan(t *testing.T) {
	e := newEngine(t)
	snap := portfolio.Snapshot{
		Total:     decimal.NewFromInt(10000),
		Positions: []domain.Position{position(t, "AAA", "100", "5")},
	}
	require.Nil(t, e.EvaluateDust(snap, time.Now()))
}

func TestGainHarvestAtExactIncrement(t *testing.T) {
	e := newEngine(t)

	// exactly 5% of a $2000 portfolio and above the $50 floor
	snap := portfolio.Snapshot{
		Total:        decimal.NewFromInt(2000),
		RealizedGain: decimal.NewFromInt(100),
	}

	plan := e.EvaluateGains(snap, time.Now())
	require.NotNil(t, plan)
	require.True(t, plan.Amount.Equal(decimal.NewFromInt(100)))
	require.True(t, plan.ToStable.Equal(decimal.NewFromInt(50)))
	require.True(t, plan.ToBase.Equal(decimal.NewFromInt(10)))
	require.Len(t, plan.Sweeps, 2)
	require.True(t, plan.Sweeps[0].Value.Equal(decimal.NewFromInt(25)))
	require.Equal(t, "SweepDestA1111111111111111111111111111111111", plan.Sweeps[0].Destination)
	require.True(t, plan.Sweeps[1].Value.Equal(decimal.NewFromInt(15)))
	require.Equal(t, "SweepDestB1111111111111111111111111111111111", plan.Sweeps[1].Destination)
}

func TestGainBelowIncrementCarriedForward(t *testing.T) {
	e := newEngine(t)

	// 4.9% of portfolio: above the absolute floor, below the increment
	snap := portfolio.Snapshot{
		Total:        decimal.NewFromInt(2000),
		RealizedGain: decimal.NewFromInt(98),
	}
	require.Nil(t, e.EvaluateGains(snap, time.Now()))
}

func TestGainBelowAbsoluteMinimum(t *testing.T) {
	e := newEngine(t)

	// 10% of a tiny portfolio but under the $50 floor
	snap := portfolio.Snapshot{
		Total:        decimal.NewFromInt(400),
		RealizedGain: decimal.NewFromInt(40),
	}
	require.Nil(t, e.EvaluateGains(snap, time.Now()))
}

func TestSplitMustSumToOne(t *testing.T) {
	cfg := testConfig()
	cfg.Split.Base = decimal.RequireFromString("0.20") // sum 1.10
	_, err := New(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestSweepShareRequiresDestination(t *testing.T) {
	cfg := testConfig()
	cfg.Split.SweepADest = ""
	_, err := New(cfg, zap.NewNop())
	require.Error(t, err)
}
