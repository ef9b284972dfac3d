package pricer

import (
	"context"
	"fmt"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"
)

type BybitPricer struct {
	client *bybit.Client
}

func NewBybitPricer(client *bybit.Client) *BybitPricer {
	return &BybitPricer{client: client}
}

func (p *BybitPricer) Price(ctx context.Context, symbol string) (Quote, error) {
	sym := bybit.SymbolV5(symbol)

	result, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &sym,
	})
	if err != nil {
		return Quote{}, err
	}

	if len(result.Result.Spot.List) == 0 {
		return Quote{}, fmt.Errorf("bybit API returned empty prices for %s", symbol)
	}

	price, err := decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Price: price, AsOf: time.Now()}, nil
}
