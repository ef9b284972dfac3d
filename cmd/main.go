// Command mirra runs the portfolio coordination core: it ingests balance
// notifications from observed wallets, mirrors their trades, keeps the
// base/stable allocation inside its bands and harvests realized gains.
//
// Usage:
//
//	mirra --config config.yaml
//	mirra setup   (interactive configuration wizard)
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vadiminshakov/mirra/config"
	"github.com/vadiminshakov/mirra/internal"
	"github.com/vadiminshakov/mirra/internal/coordinator"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/ingest"
	"github.com/vadiminshakov/mirra/internal/portfolio"
	"github.com/vadiminshakov/mirra/internal/services/harvest"
	"github.com/vadiminshakov/mirra/internal/services/ledger"
	"github.com/vadiminshakov/mirra/internal/services/mirror"
	"github.com/vadiminshakov/mirra/internal/services/rebalance"
	"github.com/vadiminshakov/mirra/internal/services/risk"
	"github.com/vadiminshakov/mirra/internal/setup"
	"github.com/vadiminshakov/mirra/internal/storage/balances"
	"github.com/vadiminshakov/mirra/internal/storage/sweeps"
	"github.com/vadiminshakov/mirra/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Get()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("mirra stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	balanceStore, err := balances.NewStore(filepath.Join(cfg.DataDir, "balances"))
	if err != nil {
		return err
	}
	defer balanceStore.Close()

	journal, err := sweeps.NewStore(filepath.Join(cfg.DataDir, "sweeps"))
	if err != nil {
		return err
	}
	defer journal.Close()

	venue, err := internal.NewVenueServices(cfg, journal, logger)
	if err != nil {
		return err
	}

	thresholds, err := ledger.NewThresholds(cfg.Ledger.Full, cfg.Ledger.HalfLow, cfg.Ledger.HalfHigh, cfg.Ledger.PartialMin)
	if err != nil {
		return err
	}
	led := ledger.New(balanceStore, thresholds, logger)

	book := portfolio.NewBook(portfolio.NewState(cfg.Book.InitialBase, cfg.Book.InitialStable), cfg.Book.Tolerance)

	mirrorExec := mirror.New(mirror.Caps{
		MaxSinglePositionPct: cfg.Mirror.MaxSinglePositionPct,
		MaxPositionsPct:      cfg.Mirror.MaxPositionsPct,
		EntryValue:           cfg.Mirror.EntryValue,
		MinTradeValue:        cfg.Mirror.MinTradeValue,
	}, excludedTokens(cfg), mirrorSymbols(cfg), logger)

	rebalancer, err := rebalance.New(rebalance.Config{
		BaseTarget:          cfg.Rebalance.BaseTarget,
		BaseMin:             cfg.Rebalance.BaseMin,
		BaseMax:             cfg.Rebalance.BaseMax,
		StableMin:           cfg.Rebalance.StableMin,
		StableRestore:       cfg.Rebalance.StableRestore,
		PositionsCrisis:     cfg.Rebalance.PositionsCrisis,
		StartupBaseMin:      cfg.Rebalance.StartupBaseMin,
		StartupPositionsMax: cfg.Rebalance.StartupPositionsMax,
		Cooldown:            cfg.Rebalance.Cooldown,
		MinConversionValue:  cfg.Rebalance.MinConversionValue,
	}, logger)
	if err != nil {
		return err
	}

	harvester, err := harvest.New(harvest.Config{
		DustThreshold: cfg.Harvest.DustThreshold,
		GainMin:       cfg.Harvest.GainMin,
		GainIncrement: cfg.Harvest.GainIncrement,
		Split: harvest.Split{
			Stable:     cfg.Harvest.SplitStable,
			SweepA:     cfg.Harvest.SplitSweepA,
			SweepB:     cfg.Harvest.SplitSweepB,
			Base:       cfg.Harvest.SplitBase,
			SweepADest: cfg.Harvest.SweepADest,
			SweepBDest: cfg.Harvest.SweepBDest,
		},
	}, logger)
	if err != nil {
		return err
	}

	riskCoord, err := risk.New(risk.Config{
		DrawdownLimit:         cfg.Risk.DrawdownLimit,
		ConsecutiveLossLimit:  cfg.Risk.ConsecutiveLossLimit,
		ValueFloor:            cfg.Risk.ValueFloor,
		ErrorLimit:            cfg.Risk.ErrorLimit,
		RecoveryWindow:        cfg.Risk.RecoveryWindow,
		StartupGrace:          cfg.Risk.StartupGrace,
		EquitySmoothingPeriod: cfg.Risk.EquitySmoothingPeriod,
	}, logger)
	if err != nil {
		return err
	}

	intake := make(chan domain.BalanceNotification, cfg.Ingest.QueueSize)
	webhook := ingest.NewWebhook(intake, logger)

	coord, err := coordinator.New(coordinator.Config{
		RiskInterval:  cfg.RiskInterval,
		AgentInterval: cfg.AgentInterval,
		BaseToken:     domain.Token(cfg.BaseToken),
		BaseSymbol:    cfg.BaseSymbol,
	}, coordinator.Deps{
		Book:        book,
		Ledger:      led,
		Mirror:      mirrorExec,
		Rebalancer:  rebalancer,
		Harvester:   harvester,
		Risk:        riskCoord,
		Trader:      venue.Trader,
		Transferrer: venue.Transferrer,
		Pricer:      venue.Pricer,
		Intake:      intake,
	}, logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(ctx) })
	if venue.Source != nil {
		watcher := ingest.NewWatcher(venue.Source, intake, cfg.Ingest.PollInterval, logger)
		g.Go(func() error { return watcher.Run(ctx) })
	}
	srv := web.NewServer(cfg.Server.Addr, book, riskCoord, journal, webhook, cfg.Server.TLSHosts, logger)
	g.Go(func() error { return srv.Start(ctx) })

	logger.Info("mirra started",
		zap.String("venue", cfg.Venue.Platform),
		zap.String("addr", cfg.Server.Addr),
		zap.String("base", cfg.BaseToken),
		zap.Int("watched_wallets", len(cfg.Ingest.Wallets)))

	return g.Wait()
}

// excludedTokens merges the configured exclusions with the base and stable
// assets, which are never mirrored.
func excludedTokens(cfg *config.Config) []domain.Token {
	seen := map[string]bool{}
	var out []domain.Token
	for _, t := range append([]string{cfg.BaseToken, cfg.Venue.QuoteAsset}, cfg.Mirror.Excluded...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, domain.Token(t))
	}
	return out
}

func mirrorSymbols(cfg *config.Config) map[domain.Token]string {
	symbols := make(map[domain.Token]string, len(cfg.Mirror.Symbols))
	for token, symbol := range cfg.Mirror.Symbols {
		symbols[domain.Token(token)] = symbol
	}
	return symbols
}
