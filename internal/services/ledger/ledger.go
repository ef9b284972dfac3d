// Package ledger tracks per-wallet per-token balances and classifies balance
// deltas into discrete trade-mirroring events.
package ledger

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/mirra/internal/domain"
	"go.uber.org/zap"
)

type store interface {
	PreviousBalance(wallet domain.Wallet, token domain.Token) (decimal.Decimal, bool)
	Seen(txID string) bool
	Commit(entry domain.BalanceHistoryEntry) error
}

// Ledger owns wallet balance records. All observations go through
// Observe, which classifies the delta and commits the new baseline
// in one step.
type Ledger struct {
	store      store
	thresholds Thresholds
	l          *zap.Logger
}

func New(store store, thresholds Thresholds, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, thresholds: thresholds, l: logger}
}

// Observe looks up the previous balance for the pair, classifies the delta
// and durably commits the new baseline together with an audit entry.
// Every observation commits, including skips, so the baseline never drifts
// from the true observed balance.
//
// A replayed transaction id returns a duplicate event without a second
// commit. A storage failure returns ErrLedgerUnavailable and the caller must
// not advance to the mirror executor.
func (l *Ledger) Observe(n domain.BalanceNotification) (*domain.ClassifiedEvent, error) {
	if n.NewBalance.IsNegative() {
		return nil, errors.Errorf("negative balance %s for wallet %s token %s", n.NewBalance, n.Wallet, n.Token)
	}

	if l.store.Seen(n.TxID) {
		l.l.Debug("duplicate notification",
			zap.String("tx_id", n.TxID),
			zap.String("wallet", string(n.Wallet)),
			zap.String("token", string(n.Token)))
		return &domain.ClassifiedEvent{
			Wallet:    n.Wallet,
			Token:     n.Token,
			Kind:      domain.KindSkip,
			TxID:      n.TxID,
			Timestamp: n.Timestamp,
			Duplicate: true,
		}, nil
	}

	prev, _ := l.store.PreviousBalance(n.Wallet, n.Token)
	delta := n.NewBalance.Sub(prev)

	event := l.classify(n, prev, delta)

	entry := domain.BalanceHistoryEntry{
		Wallet:     n.Wallet,
		Token:      n.Token,
		Previous:   prev,
		Current:    n.NewBalance,
		Delta:      delta,
		Percentage: event.Percentage,
		Direction:  event.Direction,
		Kind:       event.Kind,
		TxID:       n.TxID,
		Timestamp:  n.Timestamp,
	}
	if err := l.store.Commit(entry); err != nil {
		l.l.Error("balance commit failed", zap.Error(err), zap.String("tx_id", n.TxID))
		return nil, errors.Wrapf(domain.ErrLedgerUnavailable, "commit balance for %s/%s: %v", n.Wallet, n.Token, err)
	}

	l.l.Info("balance observed",
		zap.String("wallet", string(n.Wallet)),
		zap.String("token", string(n.Token)),
		zap.String("previous", prev.String()),
		zap.String("current", n.NewBalance.String()),
		zap.String("direction", event.Direction.String()),
		zap.String("kind", event.Kind.String()),
		zap.String("percentage", event.Percentage.String()))

	return event, nil
}

func (l *Ledger) classify(n domain.BalanceNotification, prev, delta decimal.Decimal) *domain.ClassifiedEvent {
	event := &domain.ClassifiedEvent{
		Wallet:    n.Wallet,
		Token:     n.Token,
		TxID:      n.TxID,
		Timestamp: n.Timestamp,
	}

	switch {
	case n.Bootstrap:
		// baseline snapshot: seed the record, never trade on it
		event.Direction = domain.DirectionBuy
		event.Kind = domain.KindSkip
		event.Percentage = decimal.Zero

	case prev.IsZero():
		// first observation: a full acquisition relative to a zero baseline
		event.Direction = domain.DirectionBuy
		event.Kind = domain.KindFull
		event.Percentage = decimal.NewFromInt(1)

	case delta.IsPositive():
		event.Direction = domain.DirectionBuy
		event.Kind = domain.KindNone
		event.Percentage = delta.Div(prev)

	case delta.IsNegative():
		event.Direction = domain.DirectionSell
		event.Kind, event.Percentage = l.classifySell(delta.Abs().Div(prev))

	default:
		// no change; recorded for audit only
		event.Direction = domain.DirectionBuy
		event.Kind = domain.KindSkip
		event.Percentage = decimal.Zero
	}

	return event
}

// classifySell buckets the sold fraction. Ordering matters: full is checked
// before half and half before partial so the boundary values land exactly
// where the bands put them (0.95 is full, 0.55 is half, 0.10 is partial).
func (l *Ledger) classifySell(pct decimal.Decimal) (domain.Kind, decimal.Decimal) {
	t := l.thresholds
	switch {
	case pct.GreaterThanOrEqual(t.Full):
		return domain.KindFull, decimal.NewFromInt(1)
	case pct.GreaterThanOrEqual(t.HalfLow) && pct.LessThanOrEqual(t.HalfHigh):
		return domain.KindHalf, decimal.NewFromFloat(0.5)
	case pct.GreaterThanOrEqual(t.PartialMin):
		return domain.KindPartial, pct
	default:
		return domain.KindSkip, pct
	}
}
