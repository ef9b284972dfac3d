package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order against the venue.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// OrderReason records which agent produced an intent.
type OrderReason string

const (
	ReasonMirror    OrderReason = "mirror"
	ReasonRebalance OrderReason = "rebalance"
	ReasonDust      OrderReason = "dust"
	ReasonHarvest   OrderReason = "harvest"
	ReasonRisk      OrderReason = "risk"
)

// OrderIntent is a fully sized order ready for submission to the execution
// boundary. Amount semantics follow the venue convention:
// for buys Amount is in QUOTE currency (value to spend),
// for sells Amount is in BASE units (quantity to liquidate).
type OrderIntent struct {
	// ID client order id, unique per intent; venues use it for dedup.
	ID     string
	Token  Token
	Symbol string
	Side   Side
	Amount decimal.Decimal
	Reason OrderReason
	// SourceTxID originating notification id for mirror intents, empty otherwise.
	SourceTxID string
	CreatedAt  time.Time
}

func (o *OrderIntent) String() string {
	return fmt.Sprintf("%s %s %s amount=%s reason=%s", o.Side, o.Symbol, o.Token, o.Amount, o.Reason)
}

// OrderResult is the venue's answer to a submitted intent.
type OrderResult struct {
	// Filled executed quantity in BASE units.
	Filled decimal.Decimal
	// AvgPrice average execution price.
	AvgPrice decimal.Decimal
}

// TransferIntent moves an asset out of the portfolio to an external destination.
type TransferIntent struct {
	ID          string
	Destination string
	// Asset venue coin symbol being withdrawn.
	Asset string
	// Amount quantity in Asset units.
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// TransferResult acknowledges a sweep transfer. Paper implementations record
// the intent without external movement.
type TransferResult struct {
	TxRef    string
	Recorded bool
}
