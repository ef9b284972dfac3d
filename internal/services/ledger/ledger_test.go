package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/storage/balances"
	"go.uber.org/zap"
)

const (
	testWallet = domain.Wallet("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	testToken  = domain.Token("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263")
)

func newTestLedger(t *testing.T) (*Ledger, *balances.Store) {
	t.Helper()
	store, err := balances.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, DefaultThresholds(), zap.NewNop()), store
}

func observe(t *testing.T, l *Ledger, balance string, txID string) *domain.ClassifiedEvent {
	t.Helper()
	ev, err := l.Observe(domain.BalanceNotification{
		Wallet:     testWallet,
		Token:      testToken,
		NewBalance: decimal.RequireFromString(balance),
		TxID:       txID,
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)
	return ev
}

func TestObserveFirstSeen(t *testing.T) {
	l, _ := newTestLedger(t)

	ev := observe(t, l, "100", "tx-1")
	require.Equal(t, domain.DirectionBuy, ev.Direction)
	require.Equal(t, domain.KindFull, ev.Kind)
	require.True(t, ev.Percentage.Equal(decimal.NewFromInt(1)))
	require.True(t, ev.Actionable())
}

func TestObserveBootstrapSkips(t *testing.T) {
	l, store := newTestLedger(t)

	ev, err := l.Observe(domain.BalanceNotification{
		Wallet:     testWallet,
		Token:      testToken,
		NewBalance: decimal.NewFromInt(500),
		TxID:       "bootstrap-1",
		Timestamp:  time.Now(),
		Bootstrap:  true,
	})
	require.NoError(t, err)
	require.Equal(t, domain.KindSkip, ev.Kind)
	require.False(t, ev.Actionable())

	// baseline still seeded
	bal, ok := store.PreviousBalance(testWallet, testToken)
	require.True(t, ok)
	require.True(t, bal.Equal(decimal.NewFromInt(500)))
}

func TestSellClassificationBoundaries(t *testing.T) {
	cases := []struct {
		name       string
		newBalance string
		wantKind   domain.Kind
		wantPct    string
	}{
		{"full exit", "0", domain.KindFull, "1"},
		{"exact full boundary 95%", "5", domain.KindFull, "1"},
		{"just below full 94.99%", "5.01", domain.KindPartial, "0.9499"},
		{"exact half 50%", "50", domain.KindHalf, "0.5"},
		{"half band low edge 45%", "55", domain.KindHalf, "0.5"},
		{"half band high edge 55%", "45", domain.KindHalf, "0.5"},
		{"above half band 56%", "44", domain.KindPartial, "0.56"},
		{"partial 30%", "70", domain.KindPartial, "0.3"},
		{"exact partial boundary 10%", "90", domain.KindPartial, "0.1"},
		{"below partial 9.99%", "90.01", domain.KindSkip, "0.0999"},
		{"tiny 1%", "99", domain.KindSkip, "0.01"},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _ := newTestLedger(t)
			observe(t, l, "100", fmt.Sprintf("seed-%d", i))

			ev := observe(t, l, tc.newBalance, fmt.Sprintf("sell-%d", i))
			require.Equal(t, domain.DirectionSell, ev.Direction)
			require.Equal(t, tc.wantKind, ev.Kind)
			require.True(t, ev.Percentage.Equal(decimal.RequireFromString(tc.wantPct)),
				"want pct %s got %s", tc.wantPct, ev.Percentage)
		})
	}
}

func TestSkipStillCommitsBaseline(t *testing.T) {
	l, store := newTestLedger(t)
	observe(t, l, "100", "tx-1")

	ev := observe(t, l, "99", "tx-2") // 1% drop, below the partial floor
	require.Equal(t, domain.KindSkip, ev.Kind)
	require.False(t, ev.Actionable())

	bal, _ := store.PreviousBalance(testWallet, testToken)
	require.True(t, bal.Equal(decimal.NewFromInt(99)), "baseline must advance even on skip")
}

func TestDuplicateTxIDNotReclassified(t *testing.T) {
	l, store := newTestLedger(t)
	observe(t, l, "100", "tx-1")

	first := observe(t, l, "50", "tx-2")
	require.Equal(t, domain.KindHalf, first.Kind)

	replay := observe(t, l, "50", "tx-2")
	require.True(t, replay.Duplicate)
	require.False(t, replay.Actionable())

	history, err := store.History(testWallet, testToken, 0)
	require.NoError(t, err)
	require.Len(t, history, 2, "replay must not append a second history entry")
}

func TestProportionalBuy(t *testing.T) {
	l, _ := newTestLedger(t)
	observe(t, l, "100", "tx-1")

	ev := observe(t, l, "120", "tx-2")
	require.Equal(t, domain.DirectionBuy, ev.Direction)
	require.Equal(t, domain.KindNone, ev.Kind)
	require.True(t, ev.Percentage.Equal(decimal.RequireFromString("0.2")))
}

func TestLedgerUnavailable(t *testing.T) {
	store, err := balances.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close()) // writes on a closed WAL fail

	l := New(store, DefaultThresholds(), zap.NewNop())
	_, err = l.Observe(domain.BalanceNotification{
		Wallet:     testWallet,
		Token:      testToken,
		NewBalance: decimal.NewFromInt(100),
		TxID:       "tx-1",
		Timestamp:  time.Now(),
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrLedgerUnavailable))
}

func TestThresholdValidation(t *testing.T) {
	_, err := NewThresholds(
		decimal.NewFromFloat(0.5), // full below half band
		decimal.NewFromFloat(0.45),
		decimal.NewFromFloat(0.55),
		decimal.NewFromFloat(0.1),
	)
	require.Error(t, err)

	_, err = NewThresholds(
		decimal.NewFromFloat(0.95),
		decimal.NewFromFloat(0.45),
		decimal.NewFromFloat(0.55),
		decimal.NewFromFloat(0.45), // partial floor not below half band
	)
	require.Error(t, err)
}
