package pricer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// HyperliquidPricer fetches mid prices from the Hyperliquid public Info API.
// Mids are keyed by base coin, so the quote suffix is stripped from symbols.
type HyperliquidPricer struct {
	info  *hyperliquid.Info
	quote string
}

func NewHyperliquidPricer(info *hyperliquid.Info, quote string) *HyperliquidPricer {
	return &HyperliquidPricer{info: info, quote: quote}
}

func (p *HyperliquidPricer) Price(ctx context.Context, symbol string) (Quote, error) {
	if p.info == nil {
		return Quote{}, fmt.Errorf("hyperliquid info client is nil")
	}

	mids, err := p.info.AllMids(ctx)
	if err != nil {
		return Quote{}, err
	}

	coin := strings.TrimSuffix(symbol, p.quote)
	mid, ok := mids[coin]
	if !ok || mid == "" {
		return Quote{}, fmt.Errorf("hyperliquid API returned empty mid price for %s", coin)
	}

	price, err := decimal.NewFromString(mid)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Price: price, AsOf: time.Now()}, nil
}
