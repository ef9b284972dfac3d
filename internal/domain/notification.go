package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceNotification is a raw balance observation delivered by the event
// ingestion boundary (webhook or polling watcher).
type BalanceNotification struct {
	// Wallet tracked wallet the balance belongs to.
	Wallet Wallet
	// Token token whose balance changed.
	Token Token
	// NewBalance absolute balance after the change, in token units.
	NewBalance decimal.Decimal
	// TxID source transaction identifier, used as the idempotency key.
	TxID string
	// Timestamp when the change was observed at the source.
	Timestamp time.Time
	// Bootstrap marks the initial baseline snapshot taken at startup.
	// Bootstrap observations seed the ledger without producing a trade event.
	Bootstrap bool
}
