// Command gridcore runs the grid trading orchestrator: it loads a YAML
// configuration, brings up every configured account and strategy, and
// drives the process until an interrupt signal requests a graceful
// shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"gridcore/internal/alert"
	"gridcore/internal/anchorstore"
	"gridcore/internal/config"
	"gridcore/internal/core"
	"gridcore/internal/health"
	"gridcore/internal/logging"
	"gridcore/internal/metrics"
	"gridcore/internal/mockexchange"
	"gridcore/internal/notifier"
	"gridcore/internal/orchestrator"
	"gridcore/internal/risklimit"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/gridcore.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gridcore version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.System.LogLevel)
	defer logger.Sync()
	logging.SetGlobalLogger(logger)

	logger.Info("starting gridcore",
		"version", version,
		"accounts", len(cfg.Accounts),
		"strategies", len(cfg.Strategies),
	)

	if cfg.Telemetry.EnableMetrics {
		metricsSrv := metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Stop(shutdownCtx)
		}()
	}

	healthMgr := health.NewHealthManager(logger)

	alertMgr := alert.NewAlertManager(logger)
	if url := os.Getenv("GRIDCORE_SLACK_WEBHOOK"); url != "" {
		alertMgr.AddChannel(alert.NewSlackChannel(url))
	}
	notif := notifier.New(alertMgr)

	anchors, err := anchorstore.Open(cfg.System.AnchorDBPath)
	if err != nil {
		logger.Fatal("failed to open anchor store", "error", err)
	}
	defer anchors.Close()

	riskCache := risklimit.New(cfg.System.RiskCachePath, time.Hour, nil)

	orch := orchestrator.New(cfg, orchestrator.Dependencies{
		Logger:         logger,
		Notifier:       notif,
		AnchorStore:    anchors,
		RiskLimit:      riskCache,
		Health:         healthMgr,
		AccountFactory: mockAccountFactory(cfg, logger),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		logger.Fatal("failed to start orchestrator", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	logger.Info("received shutdown signal, stopping gridcore")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	orch.Stop(shutdownCtx)

	logger.Info("gridcore stopped")
}

// mockAccountFactory builds an in-memory exchange simulator per account,
// seeded with a starting price per strategy symbol. It stands in for the
// real Bybit REST/WS adapter, which lives outside this module's scope;
// wiring a live account here means swapping this factory for one that
// constructs the real gateway and websocket connector, with no change to
// the orchestrator itself.
func mockAccountFactory(cfg *config.Config, logger core.ILogger) orchestrator.AccountFactory {
	startPrices := map[string]decimal.Decimal{}
	for _, s := range cfg.Strategies {
		if _, ok := startPrices[s.Symbol]; !ok {
			startPrices[s.Symbol] = decimal.NewFromInt(50000)
		}
	}

	return func(name string, accCfg config.AccountConfig) (orchestrator.AccountDeps, error) {
		gw := mockexchange.New(decimal.NewFromInt(100000))

		var feed *mockexchange.Feed
		for _, s := range cfg.Strategies {
			if s.Account != name {
				continue
			}
			start := startPrices[s.Symbol]
			feed = mockexchange.NewFeed(s.Symbol, gw, start, s.GridStep.Mul(start).Div(decimal.NewFromInt(100)), 2*time.Second)
			break
		}

		logger.Info("bringing up simulated account", "account", name, "testnet", accCfg.Testnet)
		return orchestrator.AccountDeps{Gateway: gw, WS: feed}, nil
	}
}
