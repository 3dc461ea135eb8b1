package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cryptofolio/internal/adapters/ai"
	"cryptofolio/internal/adapters/clickhouse"
	"cryptofolio/internal/adapters/config"
	"cryptofolio/internal/adapters/database"
	"cryptofolio/internal/adapters/quotes"
	redisAdapter "cryptofolio/internal/adapters/redis"
	"cryptofolio/internal/adapters/telegram"
	"cryptofolio/internal/alerts"
	"cryptofolio/internal/health"
	"cryptofolio/internal/insight"
	"cryptofolio/internal/ledger"
	"cryptofolio/internal/portfolio"
	"cryptofolio/internal/snapshot"
	"cryptofolio/internal/workers"
	"cryptofolio/pkg/logger"
	"cryptofolio/pkg/worker"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("portfolio tracker starting")

	// Core infrastructure
	db, redisClient, err := initInfrastructure(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer redisClient.Close()

	// Snapshot store is optional; without it the tracker still works, just
	// without historical series.
	chDB, err := initClickHouse(ctx, cfg)
	if err != nil {
		logger.Warn("clickhouse not available, snapshots disabled", zap.Error(err))
		chDB = nil
	}
	if chDB != nil {
		defer chDB.Close()
	}

	// Repositories
	ledgerRepo := ledger.NewRepository(db.DB())
	insightRepo := insight.NewRepository(db.DB())
	alertRepo := alerts.NewRepository(db.DB())

	var snapshotRepo *snapshot.Repository
	if chDB != nil {
		snapshotRepo = snapshot.NewRepository(chDB.DB())
	}

	// Quote source: CoinGecko behind a Redis cache
	quoteSource := quotes.NewCachedSource(
		quotes.NewCoinGeckoSource(cfg.Quotes.RequestTimeout),
		redisClient,
		cfg.Quotes.CacheTTL,
	)

	// Insight engine and portfolio service
	engine := insight.NewEngine(engineConfig(cfg))

	opts := []portfolio.Option{}

	narrative := ai.NewOpenAIGenerator(&cfg.AI)
	if narrative.IsEnabled() {
		opts = append(opts, portfolio.WithNarrative(narrative, cfg.AI.Timeout))
		logger.Info("narrative insight generator enabled",
			zap.String("model", cfg.AI.Model),
		)
	}

	notifier := initNotifier(cfg)
	if notifier != nil {
		opts = append(opts, portfolio.WithNotifier(notifier))
	}

	service := portfolio.NewService(ledgerRepo, insightRepo, quoteSource, engine, opts...)

	// Background workers
	group := worker.NewGroup(ctx)
	group.Add(workers.NewQuotesWorker(ledgerRepo, quoteSource), cfg.Quotes.RefreshInterval)
	group.Add(newInsightsWorker(ledgerRepo, service, snapshotRepo), cfg.Insights.RegenerateInterval)
	if snapshotRepo != nil {
		group.Add(workers.NewSnapshotWorker(ledgerRepo, quoteSource, snapshotRepo), cfg.Snapshots.Interval)
	}

	var alertNotifier alerts.Notifier
	if notifier != nil {
		alertNotifier = notifier
	}
	checker := alerts.NewChecker(alertRepo, quoteSource, ledgerRepo, alertNotifier)
	group.Add(workers.NewAlertsWorker(checker), cfg.Alerts.Interval)

	group.Start()

	// Health server
	healthServer := startHealthServer(cfg, db, redisClient, chDB)
	healthServer.SetReady(true)

	// Wait for shutdown signal
	<-ctx.Done()

	return performGracefulShutdown(healthServer, group)
}

// initConfig loads configuration and initializes logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initInfrastructure initializes database and Redis connections
func initInfrastructure(cfg *config.Config) (*database.DB, *redisAdapter.Client, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	return db, redisClient, nil
}

// initClickHouse connects to the snapshot store and ensures its schema
func initClickHouse(ctx context.Context, cfg *config.Config) (*clickhouse.DB, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, fmt.Errorf("clickhouse disabled in config")
	}

	chDB, err := clickhouse.New(&cfg.ClickHouse)
	if err != nil {
		return nil, err
	}

	if err := snapshot.NewRepository(chDB.DB()).EnsureSchema(ctx); err != nil {
		chDB.Close()
		return nil, fmt.Errorf("failed to ensure snapshot schema: %w", err)
	}

	return chDB, nil
}

// initNotifier initializes the Telegram notifier if configured
func initNotifier(cfg *config.Config) *telegram.Notifier {
	if !cfg.Telegram.Enabled {
		return nil
	}

	notifier, err := telegram.NewNotifier(&cfg.Telegram)
	if err != nil {
		logger.Warn("failed to initialize telegram notifier", zap.Error(err))
		return nil
	}

	return notifier
}

// newInsightsWorker wires the insights refresh worker, tolerating an absent
// snapshot store
func newInsightsWorker(ledgerRepo *ledger.Repository, service *portfolio.Service, snapshotRepo *snapshot.Repository) *workers.InsightsWorker {
	var store workers.PortfolioSnapshotStore
	if snapshotRepo != nil {
		store = snapshotRepo
	}
	return workers.NewInsightsWorker(ledgerRepo, service, store)
}

// engineConfig maps configured thresholds onto the insight engine
func engineConfig(cfg *config.Config) insight.Config {
	return insight.Config{
		ConcentrationThreshold:      cfg.Insights.ConcentrationThreshold,
		ConcentrationTarget:         cfg.Insights.ConcentrationTarget,
		RebalanceDeviationThreshold: cfg.Insights.RebalanceDeviationThreshold,
		SevereDropThreshold:         cfg.Insights.SevereDropThreshold,
		OutperformMargin:            cfg.Insights.OutperformMargin,
		BenchmarkAssetID:            cfg.Insights.BenchmarkAssetID,
		BenchmarkFallbackChange:     cfg.Insights.BenchmarkFallbackChange,
		MinTemporalTransactions:     cfg.Insights.MinTemporalTransactions,
	}
}

// startHealthServer starts health check HTTP server
func startHealthServer(cfg *config.Config, db *database.DB, redisClient *redisAdapter.Client, chDB *clickhouse.DB) *health.Server {
	checks := map[string]health.Checker{
		"database": db,
		"redis":    redisClient,
	}
	if chDB != nil {
		checks["clickhouse"] = chDB
	}

	healthServer := health.NewServer(cfg.Health.Port, checks)

	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error("health server error", zap.Error(err))
		}
	}()

	return healthServer
}

// performGracefulShutdown stops workers and the health server
func performGracefulShutdown(healthServer *health.Server, group *worker.Group) error {
	logger.Info("shutting down...")

	healthServer.SetReady(false)
	group.Stop(30 * time.Second)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
