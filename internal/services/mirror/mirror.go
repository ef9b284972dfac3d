// Package mirror translates classified external wallet events into
// own-portfolio order intents.
package mirror

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/mirra/internal/domain"
	"go.uber.org/zap"
)

// Caps bound mirror sizing so a single tracked wallet cannot dominate the
// portfolio. Requests over a cap are clipped, not rejected.
type Caps struct {
	// MaxSinglePositionPct ceiling for one position as a fraction of total value.
	MaxSinglePositionPct decimal.Decimal
	// MaxPositionsPct ceiling for the aggregate non-base/non-stable bucket.
	MaxPositionsPct decimal.Decimal
	// EntryValue quote value for a fresh full-size mirror entry.
	EntryValue decimal.Decimal
	// MinTradeValue intents below this degrade to no-ops to avoid
	// fee-dominated micro-trades.
	MinTradeValue decimal.Decimal
}

// View is the portfolio slice the executor needs to size an intent.
// It is read inside the coordination layer's exclusive section and passed in
// by value so sizing happens without holding the lock.
type View struct {
	// Total portfolio value.
	Total decimal.Decimal
	// PositionsValue aggregate value of all tracked-token positions.
	PositionsValue decimal.Decimal
	// Position own holding in the event's token, nil when not held.
	Position *domain.Position
}

// Executor sizes own-portfolio orders from classified events.
type Executor struct {
	caps     Caps
	excluded map[domain.Token]bool
	symbols  map[domain.Token]string
	l        *zap.Logger
}

// New creates an executor. Excluded tokens (the base and stable assets) are
// never mirrored; dust conversion owns them.
func New(caps Caps, excluded []domain.Token, symbols map[domain.Token]string, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	ex := make(map[domain.Token]bool, len(excluded))
	for _, t := range excluded {
		ex[t] = true
	}
	return &Executor{caps: caps, excluded: ex, symbols: symbols, l: logger}
}

// Mirror produces an order intent for the event, or ok=false for a no-op.
// The intent's client order id is derived from the source transaction id, so
// a redelivered notification that slips past the ledger cannot double-execute
// at the venue.
func (e *Executor) Mirror(event *domain.ClassifiedEvent, view View) (*domain.OrderIntent, bool) {
	if !event.Actionable() {
		return nil, false
	}
	if e.excluded[event.Token] {
		e.l.Debug("token excluded from mirroring", zap.String("token", string(event.Token)))
		return nil, false
	}
	symbol, ok := e.symbols[event.Token]
	if !ok {
		e.l.Warn("no venue symbol for token, skipping", zap.String("token", string(event.Token)))
		return nil, false
	}

	if event.Direction == domain.DirectionSell {
		return e.mirrorSell(event, symbol, view)
	}
	return e.mirrorBuy(event, symbol, view)
}

// mirrorSell liquidates the classified percentage of the own position.
func (e *Executor) mirrorSell(event *domain.ClassifiedEvent, symbol string, view View) (*domain.OrderIntent, bool) {
	pos := view.Position
	if pos.Closed() {
		e.l.Debug("no own position to mirror sell", zap.String("token", string(event.Token)))
		return nil, false
	}

	qty := pos.Size.Mul(event.Percentage)
	if event.Kind == domain.KindFull {
		qty = pos.Size
	}

	if qty.Mul(pos.MarkPrice).LessThan(e.caps.MinTradeValue) {
		e.l.Debug("mirror sell below minimum trade value",
			zap.String("token", string(event.Token)),
			zap.String("value", qty.Mul(pos.MarkPrice).String()))
		return nil, false
	}

	return &domain.OrderIntent{
		ID:         clientOrderID(event),
		Token:      event.Token,
		Symbol:     symbol,
		Side:       domain.SideSell,
		Amount:     qty,
		Reason:     domain.ReasonMirror,
		SourceTxID: event.TxID,
		CreatedAt:  time.Now(),
	}, true
}

// mirrorBuy scales an existing position by the observed percentage, or opens
// a fresh entry sized from the configured entry value, then clips against
// both allocation caps.
func (e *Executor) mirrorBuy(event *domain.ClassifiedEvent, symbol string, view View) (*domain.OrderIntent, bool) {
	var value decimal.Decimal
	if view.Position.Closed() {
		value = e.caps.EntryValue.Mul(event.Percentage)
	} else {
		value = view.Position.Value().Mul(event.Percentage)
	}

	value = e.clip(value, view)
	if value.LessThan(e.caps.MinTradeValue) {
		e.l.Debug("mirror buy below minimum trade value after caps",
			zap.String("token", string(event.Token)),
			zap.String("value", value.String()))
		return nil, false
	}

	return &domain.OrderIntent{
		ID:         clientOrderID(event),
		Token:      event.Token,
		Symbol:     symbol,
		Side:       domain.SideBuy,
		Amount:     value,
		Reason:     domain.ReasonMirror,
		SourceTxID: event.TxID,
		CreatedAt:  time.Now(),
	}, true
}

func (e *Executor) clip(value decimal.Decimal, view View) decimal.Decimal {
	if view.Total.IsPositive() {
		held := decimal.Zero
		if !view.Position.Closed() {
			held = view.Position.Value()
		}
		singleRoom := e.caps.MaxSinglePositionPct.Mul(view.Total).Sub(held)
		if value.GreaterThan(singleRoom) {
			value = singleRoom
		}
		aggregateRoom := e.caps.MaxPositionsPct.Mul(view.Total).Sub(view.PositionsValue)
		if value.GreaterThan(aggregateRoom) {
			value = aggregateRoom
		}
	}
	if value.IsNegative() {
		return decimal.Zero
	}
	return value
}

func clientOrderID(event *domain.ClassifiedEvent) string {
	return fmt.Sprintf("mirror-%s", event.TxID)
}
