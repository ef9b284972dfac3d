package trader

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/mirra/internal/domain"
)

type BinanceTrader struct {
	client *binance.Client
}

func NewBinanceTrader(client *binance.Client) *BinanceTrader {
	return &BinanceTrader{client: client}
}

func (t *BinanceTrader) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderResult, error) {
	svc := t.client.NewCreateOrderService().
		Symbol(intent.Symbol).
		Type(binance.OrderTypeMarket).
		NewClientOrderID(intent.ID)

	switch intent.Side {
	case domain.SideBuy:
		// buys are denominated in quote value
		svc = svc.Side(binance.SideTypeBuy).QuoteOrderQty(intent.Amount.RoundFloor(4).String())
	case domain.SideSell:
		svc = svc.Side(binance.SideTypeSell).Quantity(intent.Amount.RoundFloor(4).String())
	default:
		return domain.OrderResult{}, errors.Errorf("unknown order side %q", intent.Side)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderResult{}, errors.Wrapf(err, "binance order %s", intent.ID)
	}

	executed, err := decimal.NewFromString(resp.ExecutedQuantity)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "parse executed quantity")
	}
	quoteSpent, err := decimal.NewFromString(resp.CummulativeQuoteQuantity)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "parse cumulative quote quantity")
	}

	avgPrice := decimal.Zero
	if executed.IsPositive() {
		avgPrice = quoteSpent.Div(executed)
	}
	return domain.OrderResult{Filled: executed, AvgPrice: avgPrice}, nil
}
