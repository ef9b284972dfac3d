package internal

import (
	"fmt"
	"time"

	"github.com/vadiminshakov/mirra/config"
	"github.com/vadiminshakov/mirra/internal/clients"
	"github.com/vadiminshakov/mirra/internal/ingest"
	"github.com/vadiminshakov/mirra/internal/services/pricer"
	"github.com/vadiminshakov/mirra/internal/services/trader"
	"github.com/vadiminshakov/mirra/internal/services/transfer"
	"github.com/vadiminshakov/mirra/internal/storage/sweeps"
	"go.uber.org/zap"
)

const (
	hyperliquidAPIURL = "https://api.hyperliquid.xyz"
	// quoteMaxAge bounds how old a cached quote may get before the pricer
	// refuses to serve it.
	quoteMaxAge = 2 * time.Minute
)

// VenueServices bundles the venue-specific collaborators.
type VenueServices struct {
	Pricer      pricer.Pricer
	Trader      trader.Trader
	Transferrer transfer.Transferrer
	// Source polls observed wallet balances. Nil when the venue exposes no
	// public balance endpoint; the webhook is the only intake then.
	Source ingest.Source
}

// NewVenueServices is the single point of truth for dispatching to
// platform-specific implementations.
func NewVenueServices(cfg *config.Config, journal *sweeps.Store, logger *zap.Logger) (*VenueServices, error) {
	switch cfg.Venue.Platform {
	case "paper":
		return newPaperServices(cfg, journal, logger)
	case "binance":
		return newBinanceServices(cfg, journal, logger)
	case "bybit":
		return newBybitServices(cfg, journal, logger)
	case "hyperliquid":
		return newHyperliquidServices(cfg, journal, logger)
	default:
		return nil, fmt.Errorf("unsupported venue platform: %s", cfg.Venue.Platform)
	}
}

func newPaperServices(cfg *config.Config, journal *sweeps.Store, logger *zap.Logger) (*VenueServices, error) {
	// paper fills price off the public market data API, no credentials needed
	cached := pricer.NewCachedPricer(pricer.NewBinancePricer(clients.NewPublicDataClient()), quoteMaxAge, logger)

	t, err := trader.NewPaperTrader(cfg.Venue.QuoteAsset, cfg.Venue.PaperSeed, cached, "paper", logger)
	if err != nil {
		return nil, err
	}
	tr, err := transfer.NewPaperTransferrer(journal, logger)
	if err != nil {
		return nil, err
	}
	return &VenueServices{Pricer: cached, Trader: t, Transferrer: tr}, nil
}

func newBinanceServices(cfg *config.Config, journal *sweeps.Store, logger *zap.Logger) (*VenueServices, error) {
	client := clients.NewBinanceClient(cfg.Venue.APIKey, cfg.Venue.Secret)
	cached := pricer.NewCachedPricer(pricer.NewBinancePricer(client), quoteMaxAge, logger)

	tr, err := transfer.NewBinanceTransferrer(client, journal, logger)
	if err != nil {
		return nil, err
	}
	return &VenueServices{
		Pricer:      cached,
		Trader:      trader.NewBinanceTrader(client),
		Transferrer: tr,
	}, nil
}

func newBybitServices(cfg *config.Config, journal *sweeps.Store, logger *zap.Logger) (*VenueServices, error) {
	client := clients.NewBybitClient(cfg.Venue.APIKey, cfg.Venue.Secret)
	cached := pricer.NewCachedPricer(pricer.NewBybitPricer(client), quoteMaxAge, logger)

	// bybit withdrawals are not wired; sweeps are journaled without sending
	logger.Warn("bybit venue journals sweeps without sending withdrawals")
	tr, err := transfer.NewPaperTransferrer(journal, logger)
	if err != nil {
		return nil, err
	}
	return &VenueServices{
		Pricer:      cached,
		Trader:      trader.NewBybitTrader(client, cached),
		Transferrer: tr,
	}, nil
}

func newHyperliquidServices(cfg *config.Config, journal *sweeps.Store, logger *zap.Logger) (*VenueServices, error) {
	hl, err := clients.NewHyperliquidClient(cfg.Venue.Secret, hyperliquidAPIURL)
	if err != nil {
		return nil, err
	}
	info := hl.Exchange().Info()
	cached := pricer.NewCachedPricer(pricer.NewHyperliquidPricer(info, cfg.Venue.QuoteAsset), quoteMaxAge, logger)

	t, err := trader.NewHyperliquidTrader(hl.Exchange(), hl.AccountAddress(), cfg.Venue.QuoteAsset, cached)
	if err != nil {
		return nil, err
	}
	logger.Warn("hyperliquid venue journals sweeps without sending withdrawals")
	tr, err := transfer.NewPaperTransferrer(journal, logger)
	if err != nil {
		return nil, err
	}

	var src ingest.Source
	if len(cfg.Ingest.Wallets) > 0 {
		src, err = ingest.NewHyperliquidSource(info, cfg.Ingest.Wallets)
		if err != nil {
			return nil, err
		}
	}
	return &VenueServices{Pricer: cached, Trader: t, Transferrer: tr, Source: src}, nil
}
