package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"equityBot/config"
	"equityBot/internal/adapters/binanceclient"
	"equityBot/internal/adapters/csvfeed"
	"equityBot/internal/adapters/logger"
	"equityBot/internal/adapters/metrics"
	"equityBot/internal/adapters/paper"
	"equityBot/internal/adapters/sqlite"
	"equityBot/internal/app"
	"equityBot/internal/engine"
	"equityBot/internal/exit"
	"equityBot/internal/pipeline"
	"equityBot/internal/ports"
	"equityBot/internal/risk"
	"equityBot/internal/strategy"
	"equityBot/internal/validator"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, closer, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{
		"level":     cfg.Log.Level,
		"paper":     cfg.Broker.Paper,
		"source":    cfg.Data.Source,
		"watchlist": len(cfg.Watchlist),
	})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Market data, order flow and broker
	var (
		market ports.MarketDataProvider
		flow   ports.OrderFlowProvider
		broker ports.BrokerClient
		client *binanceclient.Client
	)
	if cfg.Data.Source == "binance" || !cfg.Broker.Paper {
		client, err = binanceclient.New(binanceclient.Config{
			APIKey:         cfg.Broker.APIKey,
			SecretKey:      cfg.Broker.SecretKey,
			UseTestnet:     cfg.Broker.UseTestnet,
			BaseURL:        cfg.Broker.BaseURL,
			QuoteAsset:     cfg.Broker.QuoteAsset,
			PricePrecision: cfg.Broker.PricePrecision,
			DepthLimit:     cfg.Broker.DepthLimit,
			Logger:         appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
			log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
		}
		if err := client.SetServerTime(ctx); err != nil {
			appLogger.Warn(ctx, "Failed to synchronize server time", map[string]interface{}{"error": err.Error()})
		}
	}

	switch cfg.Data.Source {
	case "csv":
		feed, err := csvfeed.New(cfg.Data.CSVDir)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to open CSV feed")
			log.Fatalf("FATAL: Failed to open CSV feed: %v", err)
		}
		market = feed
	default:
		market = client
		if cfg.Data.OrderFlow {
			flow = client
		}
	}

	if cfg.Broker.Paper {
		paperBroker, err := paper.New(paper.Config{
			InitialCash: cfg.Broker.PaperCash,
			SlippageBps: cfg.Broker.SlippageBps,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize paper broker")
			log.Fatalf("FATAL: Failed to initialize paper broker: %v", err)
		}
		market = paper.NewMarkingFeed(market, paperBroker)
		broker = paperBroker
	} else {
		broker = client
	}

	// 5. Decision engine
	eng, err := buildEngine(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize decision engine")
		log.Fatalf("FATAL: Failed to initialize decision engine: %v", err)
	}

	// 6. Metrics endpoint
	recorder := metrics.NewRecorder()
	var metricsServer *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsServer = metrics.Serve(cfg.MetricsAddr, recorder, func(err error) {
			appLogger.Error(context.Background(), err, "Metrics endpoint stopped")
		})
		appLogger.Info(ctx, "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	// 7. Trading Service
	tradingService, err := app.NewTradingService(cfg.ServiceConfig(), appLogger, eng, market, flow, broker, repo, repo, recorder)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to create trading service")
		log.Fatalf("FATAL: Failed to create trading service: %v", err)
	}

	appLogger.Info(ctx, "Starting Trading Service...")
	if err := tradingService.Run(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Trading service terminated with error")
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(context.Background(), err, "Error stopping metrics endpoint")
		}
	}
	appLogger.Info(context.Background(), "Application shutdown complete.")
}

func buildEngine(cfg *config.Config, appLogger ports.Logger) (*engine.Engine, error) {
	strat, err := strategy.New(cfg.StrategyConfig(), appLogger)
	if err != nil {
		return nil, err
	}

	exitCfg, err := cfg.ExitConfig()
	if err != nil {
		return nil, err
	}
	machine, err := exit.New(exitCfg)
	if err != nil {
		return nil, err
	}

	v, err := validator.New(strat, machine, cfg.ExitPeriods(), cfg.ValidatorCriteria(), appLogger)
	if err != nil {
		return nil, err
	}

	pipeCfg, err := cfg.PipelineConfig()
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(pipeCfg, v)
	if err != nil {
		return nil, err
	}

	sizer, err := risk.NewManager(cfg.RiskConfig())
	if err != nil {
		return nil, err
	}
	guards, err := risk.NewTradeStateManager(cfg.TradeStateConfig())
	if err != nil {
		return nil, err
	}
	return engine.New(p, sizer, machine, guards, cfg.ExitPeriods(), appLogger)
}
