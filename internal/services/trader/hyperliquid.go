package trader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/services/pricer"
)

// HyperliquidTrader executes orders as IOC limit orders priced with a small
// slippage allowance, which is how market orders are emulated on Hyperliquid.
type HyperliquidTrader struct {
	ex          *hyperliquid.Exchange
	info        *hyperliquid.Info
	accountAddr string
	quote       string
	pricer      pricer.Pricer
}

func NewHyperliquidTrader(ex *hyperliquid.Exchange, accountAddr, quote string, p pricer.Pricer) (*HyperliquidTrader, error) {
	if ex == nil {
		return nil, fmt.Errorf("hyperliquid exchange is nil")
	}
	return &HyperliquidTrader{
		ex:          ex,
		info:        ex.Info(),
		accountAddr: accountAddr,
		quote:       quote,
		pricer:      p,
	}, nil
}

// cloidFromID converts a free-form intent ID into a valid Hyperliquid cloid
// (0x + 32 hex chars). Deterministic, so a resubmitted intent maps to the
// same cloid and the venue deduplicates it.
func (t *HyperliquidTrader) cloidFromID(id string) string {
	s := strings.TrimSpace(id)
	if s == "" {
		s = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	sum := sha256.Sum256([]byte(s))
	return "0x" + hex.EncodeToString(sum[:16])
}

func (t *HyperliquidTrader) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderResult, error) {
	coin := strings.TrimSuffix(intent.Symbol, t.quote)
	isBuy := intent.Side == domain.SideBuy

	quote, err := t.pricer.Price(ctx, intent.Symbol)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "price hyperliquid order")
	}
	if quote.Stale || !quote.Price.IsPositive() {
		return domain.OrderResult{}, errors.Errorf("no fresh price for %s", intent.Symbol)
	}

	// buys carry quote value, convert to base size for the wire
	size := intent.Amount
	if isBuy {
		size = intent.Amount.Div(quote.Price)
	}
	sizeF, _ := size.Round(8).Float64()

	px, err := t.ex.SlippagePrice(ctx, coin, isBuy, 0.005, nil) // 0.5% slippage
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "slippage price")
	}

	cloid := t.cloidFromID(intent.ID)
	req := hyperliquid.CreateOrderRequest{
		Coin:          coin,
		IsBuy:         isBuy,
		Price:         px,
		Size:          sizeF,
		ClientOrderID: &cloid,
		OrderType: hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: hyperliquid.TifIoc},
		},
	}
	if _, err := t.ex.Order(ctx, req, nil); err != nil {
		return domain.OrderResult{}, errors.Wrapf(err, "hyperliquid order %s", intent.ID)
	}

	filled, err := t.filledSize(ctx, cloid)
	if err != nil {
		return domain.OrderResult{}, err
	}
	return domain.OrderResult{Filled: filled, AvgPrice: quote.Price}, nil
}

func (t *HyperliquidTrader) filledSize(ctx context.Context, cloid string) (decimal.Decimal, error) {
	res, err := t.info.QueryOrderByCloid(ctx, t.accountAddr, cloid)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "query order by cloid")
	}
	if res == nil || res.Status != hyperliquid.OrderQueryStatusSuccess {
		return decimal.Zero, nil
	}
	if res.Order.Status != hyperliquid.OrderStatusValueFilled {
		return decimal.Zero, nil
	}
	if res.Order.Order.OrigSz == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(res.Order.Order.OrigSz)
}
