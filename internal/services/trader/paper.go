package trader

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/services/pricer"
	"github.com/vadiminshakov/mirra/internal/storage/paperstate"
	"go.uber.org/zap"
)

// PaperTrader fills orders at the live market price against a simulated
// wallet. Wallet state survives restarts through the paper state store.
type PaperTrader struct {
	mu         sync.Mutex
	quoteAsset string
	wallet     map[string]decimal.Decimal
	pricer     pricer.Pricer
	store      *paperstate.Store
	l          *zap.Logger
}

// NewPaperTrader seeds the wallet with seedQuote of the quote asset unless a
// persisted wallet exists for the scope.
func NewPaperTrader(quoteAsset string, seedQuote decimal.Decimal, p pricer.Pricer, scope string, logger *zap.Logger) (*PaperTrader, error) {
	if p == nil {
		return nil, errors.New("pricer is required for paper trading")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := paperstate.NewStore(scope)
	if err != nil {
		return nil, errors.Wrap(err, "init paper state store")
	}

	wallet, err := store.Load()
	if err != nil {
		logger.Warn("failed to restore paper wallet, reseeding", zap.Error(err))
		wallet = nil
	}
	if wallet == nil {
		wallet = map[string]decimal.Decimal{quoteAsset: seedQuote}
	}

	t := &PaperTrader{
		quoteAsset: quoteAsset,
		wallet:     wallet,
		pricer:     p,
		store:      store,
		l:          logger,
	}
	logger.Info("paper trader ready",
		zap.String("quote_asset", quoteAsset),
		zap.String("quote_balance", t.wallet[quoteAsset].String()))
	return t, nil
}

func (t *PaperTrader) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderResult, error) {
	if !intent.Amount.IsPositive() {
		return domain.OrderResult{}, fmt.Errorf("order amount must be positive, got %s", intent.Amount)
	}

	quote, err := t.pricer.Price(ctx, intent.Symbol)
	if err != nil {
		return domain.OrderResult{}, errors.Wrapf(err, "price %s for paper fill", intent.Symbol)
	}
	if quote.Stale {
		return domain.OrderResult{}, errors.Errorf("refusing to fill %s on a stale quote", intent.Symbol)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var result domain.OrderResult
	switch intent.Side {
	case domain.SideBuy:
		result, err = t.fillBuy(intent, quote.Price)
	case domain.SideSell:
		result, err = t.fillSell(intent, quote.Price)
	default:
		return domain.OrderResult{}, fmt.Errorf("unknown order side %q", intent.Side)
	}
	if err != nil {
		return domain.OrderResult{}, err
	}

	if err := t.store.Save(t.wallet); err != nil {
		t.l.Warn("failed to persist paper wallet", zap.Error(err))
	}

	t.l.Info("paper fill",
		zap.String("id", intent.ID),
		zap.String("symbol", intent.Symbol),
		zap.String("side", intent.Side.String()),
		zap.String("filled", result.Filled.String()),
		zap.String("avg_price", result.AvgPrice.String()))
	return result, nil
}

// fillBuy spends intent.Amount of quote for base at the market price.
func (t *PaperTrader) fillBuy(intent domain.OrderIntent, price decimal.Decimal) (domain.OrderResult, error) {
	if t.wallet[t.quoteAsset].LessThan(intent.Amount) {
		return domain.OrderResult{}, errors.Errorf("insufficient %s: have %s need %s",
			t.quoteAsset, t.wallet[t.quoteAsset], intent.Amount)
	}

	baseFilled := intent.Amount.Div(price)
	t.wallet[t.quoteAsset] = t.wallet[t.quoteAsset].Sub(intent.Amount)
	asset := string(intent.Token)
	t.wallet[asset] = t.wallet[asset].Add(baseFilled)

	return domain.OrderResult{Filled: baseFilled, AvgPrice: price}, nil
}

// fillSell converts intent.Amount base units into quote at the market price.
func (t *PaperTrader) fillSell(intent domain.OrderIntent, price decimal.Decimal) (domain.OrderResult, error) {
	asset := string(intent.Token)
	if t.wallet[asset].LessThan(intent.Amount) {
		return domain.OrderResult{}, errors.Errorf("insufficient %s: have %s need %s",
			asset, t.wallet[asset], intent.Amount)
	}

	t.wallet[asset] = t.wallet[asset].Sub(intent.Amount)
	t.wallet[t.quoteAsset] = t.wallet[t.quoteAsset].Add(intent.Amount.Mul(price))

	return domain.OrderResult{Filled: intent.Amount, AvgPrice: price}, nil
}

// Balance returns the simulated balance for an asset.
func (t *PaperTrader) Balance(asset string) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wallet[asset]
}
