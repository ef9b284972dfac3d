package ingest

import (
	"context"
	"time"

	"github.com/vadiminshakov/mirra/internal/domain"
	"go.uber.org/zap"
)

// Source is a pollable view of the observed wallets' balances.
type Source interface {
	FetchBalances(ctx context.Context) ([]domain.BalanceNotification, error)
}

// Watcher polls a source and forwards changed balances to the intake channel.
// It is the safety net under the webhook: a missed push surfaces on the next
// poll at the latest.
type Watcher struct {
	source   Source
	out      chan<- domain.BalanceNotification
	interval time.Duration
	l        *zap.Logger

	// last observed balance per wallet/token, to forward only changes
	seen map[string]string
}

func NewWatcher(source Source, out chan<- domain.BalanceNotification, interval time.Duration, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		source:   source,
		out:      out,
		interval: interval,
		l:        logger,
		seen:     make(map[string]string),
	}
}

// Run polls until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.l.Info("balance watcher started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.l.Info("balance watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	notifications, err := w.source.FetchBalances(ctx)
	if err != nil {
		w.l.Warn("balance poll failed", zap.Error(err))
		return
	}

	for _, n := range notifications {
		key := string(n.Wallet) + "/" + string(n.Token)
		balance := n.NewBalance.String()
		if w.seen[key] == balance {
			continue
		}
		w.seen[key] = balance

		select {
		case w.out <- n:
		case <-ctx.Done():
			return
		}
	}
}
