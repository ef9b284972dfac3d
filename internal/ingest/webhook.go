// Package ingest turns external balance observations into notifications on a
// single intake channel. Two feeds exist: a push webhook and a polling
// watcher; the ledger downstream deduplicates by transaction ID, so both can
// run at once without double-processing.
package ingest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/mirra/internal/domain"
	"go.uber.org/zap"
)

// webhookPayload is the wire form of one balance notification.
type webhookPayload struct {
	Wallet     string `json:"wallet"`
	Token      string `json:"token"`
	NewBalance string `json:"new_balance"`
	TxID       string `json:"tx_id"`
	Timestamp  int64  `json:"timestamp"`
	Bootstrap  bool   `json:"bootstrap"`
}

// Webhook accepts pushed balance notifications over HTTP.
type Webhook struct {
	out chan<- domain.BalanceNotification
	l   *zap.Logger
}

func NewWebhook(out chan<- domain.BalanceNotification, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{out: out, l: logger}
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	notification, err := payload.toNotification()
	if err != nil {
		h.l.Warn("rejected webhook notification", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	select {
	case h.out <- notification:
		w.WriteHeader(http.StatusAccepted)
	default:
		// intake is backed up; the watcher will pick the change up on its
		// next poll, so shedding here loses nothing
		http.Error(w, "intake saturated", http.StatusServiceUnavailable)
	}
}

func (p webhookPayload) toNotification() (domain.BalanceNotification, error) {
	var n domain.BalanceNotification

	if !common.IsHexAddress(p.Wallet) {
		return n, errInvalid("wallet must be a valid hex address")
	}
	if p.Token == "" {
		return n, errInvalid("token is required")
	}
	if p.TxID == "" && !p.Bootstrap {
		return n, errInvalid("tx_id is required for non-bootstrap notifications")
	}

	balance, err := decimal.NewFromString(p.NewBalance)
	if err != nil {
		return n, errInvalid("new_balance must be a decimal string")
	}
	if balance.IsNegative() {
		return n, errInvalid("new_balance must not be negative")
	}

	ts := time.Now()
	if p.Timestamp > 0 {
		ts = time.Unix(p.Timestamp, 0)
	}

	return domain.BalanceNotification{
		Wallet:     domain.Wallet(common.HexToAddress(p.Wallet).Hex()),
		Token:      domain.Token(p.Token),
		NewBalance: balance,
		TxID:       p.TxID,
		Timestamp:  ts,
		Bootstrap:  p.Bootstrap,
	}, nil
}

type errInvalid string

func (e errInvalid) Error() string { return string(e) }
