package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/mirra/internal/domain"
)

// HyperliquidSource polls spot balances of the observed wallets through the
// public info endpoint. No credentials are needed to read third-party state.
type HyperliquidSource struct {
	info    *hyperliquid.Info
	wallets []string
}

func NewHyperliquidSource(info *hyperliquid.Info, wallets []string) (*HyperliquidSource, error) {
	if info == nil {
		return nil, errors.New("hyperliquid info client is required")
	}
	if len(wallets) == 0 {
		return nil, errors.New("at least one wallet to observe is required")
	}
	return &HyperliquidSource{info: info, wallets: wallets}, nil
}

func (s *HyperliquidSource) FetchBalances(ctx context.Context) ([]domain.BalanceNotification, error) {
	var out []domain.BalanceNotification
	now := time.Now()

	for _, wallet := range s.wallets {
		st, err := s.info.SpotUserState(ctx, wallet)
		if err != nil {
			return nil, errors.Wrapf(err, "spot state for wallet %s", wallet)
		}

		for _, b := range st.Balances {
			total, err := decimal.NewFromString(b.Total)
			if err != nil {
				return nil, errors.Wrapf(err, "parse balance %q for %s/%s", b.Total, wallet, b.Coin)
			}
			out = append(out, domain.BalanceNotification{
				Wallet:     domain.Wallet(wallet),
				Token:      domain.Token(b.Coin),
				NewBalance: total,
				// poll observations have no source transaction; the id is
				// unique per emission and the watcher only emits on change
				TxID:      fmt.Sprintf("poll-%s-%s-%d", wallet, b.Coin, now.UnixNano()),
				Timestamp: now,
			})
		}
	}
	return out, nil
}
