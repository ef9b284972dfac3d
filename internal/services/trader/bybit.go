package trader

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/services/pricer"
)

// BybitTrader submits spot market orders. Bybit's create-order response
// carries no fill data, so fills are estimated from the last market price.
type BybitTrader struct {
	client *bybit.Client
	pricer pricer.Pricer
}

func NewBybitTrader(client *bybit.Client, p pricer.Pricer) *BybitTrader {
	return &BybitTrader{client: client, pricer: p}
}

func (t *BybitTrader) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderResult, error) {
	var side bybit.Side
	switch intent.Side {
	case domain.SideBuy:
		side = bybit.SideBuy
	case domain.SideSell:
		side = bybit.SideSell
	default:
		return domain.OrderResult{}, errors.Errorf("unknown order side %q", intent.Side)
	}

	orderLinkID := intent.ID
	// spot market buys are quoted in quote currency, sells in base units,
	// which matches the intent amount semantics directly
	_, err := t.client.V5().Order().CreateOrder(bybit.V5CreateOrderParam{
		Category:    bybit.CategoryV5Spot,
		Symbol:      bybit.SymbolV5(intent.Symbol),
		Side:        side,
		OrderType:   bybit.OrderTypeMarket,
		Qty:         intent.Amount.RoundFloor(4).String(),
		OrderLinkID: &orderLinkID,
	})
	if err != nil {
		return domain.OrderResult{}, errors.Wrapf(err, "bybit order %s", intent.ID)
	}

	quote, err := t.pricer.Price(ctx, intent.Symbol)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "price bybit fill")
	}

	filled := intent.Amount
	if intent.Side == domain.SideBuy && quote.Price.IsPositive() {
		filled = intent.Amount.Div(quote.Price)
	}
	return domain.OrderResult{Filled: filled, AvgPrice: quote.Price}, nil
}
