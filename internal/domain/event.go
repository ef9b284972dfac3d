package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction represents which way a tracked wallet moved.
type Direction int

const (
	DirectionBuy Direction = iota
	DirectionSell
)

func (d Direction) String() string {
	if d == DirectionSell {
		return "sell"
	}
	return "buy"
}

// Kind is the classified magnitude of a balance change.
type Kind int

const (
	// KindNone is used for buy events, which mirror proportionally and carry
	// no magnitude bucket.
	KindNone Kind = iota
	// KindFull is a complete (>=95%) exit, normalized to 100%.
	KindFull
	// KindHalf is a 45-55% reduction, normalized to exactly 50%.
	KindHalf
	// KindPartial is any actionable reduction mirrored at the observed percentage.
	KindPartial
	// KindDust marks a sweep of a below-threshold position. The classifier never
	// produces it; the harvesting engine tags dust liquidations with it.
	KindDust
	// KindSkip is a change too small to act on. Recorded for audit only.
	KindSkip
)

func (k Kind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindHalf:
		return "half"
	case KindPartial:
		return "partial"
	case KindDust:
		return "dust"
	case KindSkip:
		return "skip"
	default:
		return "none"
	}
}

// ClassifiedEvent is the transient result of classifying one balance change.
// It is consumed at most once by the mirror executor and never persisted
// beyond the ledger's history entry.
type ClassifiedEvent struct {
	Wallet    Wallet
	Token     Token
	Direction Direction
	Kind      Kind
	// Percentage fraction of the tracked position affected, in [0, 1].
	// Normalized for full (1) and half (0.5) sells.
	Percentage decimal.Decimal
	TxID       string
	Timestamp  time.Time
	// Duplicate is set when the source transaction was already processed.
	// Duplicate events must not reach the mirror executor.
	Duplicate bool
}

// Actionable reports whether the mirror executor should act on the event.
func (e *ClassifiedEvent) Actionable() bool {
	if e == nil || e.Duplicate {
		return false
	}
	if e.Direction == DirectionSell {
		return e.Kind == KindFull || e.Kind == KindHalf || e.Kind == KindPartial
	}
	return e.Percentage.IsPositive()
}
