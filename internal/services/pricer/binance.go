package pricer

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

type BinancePricer struct {
	client *binance.Client
}

func NewBinancePricer(client *binance.Client) *BinancePricer {
	return &BinancePricer{client: client}
}

func (p *BinancePricer) Price(ctx context.Context, symbol string) (Quote, error) {
	prices, err := p.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return Quote{}, err
	}
	if len(prices) == 0 {
		return Quote{}, fmt.Errorf("binance API returned empty prices for %s", symbol)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Price: price, AsOf: time.Now()}, nil
}
