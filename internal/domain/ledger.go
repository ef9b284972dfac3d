package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletBalanceRecord is the current balance of one (wallet, token) pair.
// One row per pair, overwritten in place by the ledger.
type WalletBalanceRecord struct {
	Wallet    Wallet          `json:"wallet"`
	Token     Token           `json:"token"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BalanceHistoryEntry is the append-only audit record written for every
// observation, including skips, so the running baseline can be replayed.
type BalanceHistoryEntry struct {
	Wallet     Wallet          `json:"wallet"`
	Token      Token           `json:"token"`
	Previous   decimal.Decimal `json:"previous"`
	Current    decimal.Decimal `json:"current"`
	Delta      decimal.Decimal `json:"delta"`
	Percentage decimal.Decimal `json:"percentage"`
	Direction  Direction       `json:"direction"`
	Kind       Kind            `json:"kind"`
	TxID       string          `json:"tx_id"`
	Timestamp  time.Time       `json:"timestamp"`
}
