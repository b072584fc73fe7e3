package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xoranyx-bot/internal/bot"
	"xoranyx-bot/internal/config"
	"xoranyx-bot/internal/database"
	"xoranyx-bot/internal/ledger"
	"xoranyx-bot/internal/logging"
	"xoranyx-bot/internal/metrics"
	"xoranyx-bot/internal/models"
	"xoranyx-bot/internal/server"
	"xoranyx-bot/internal/storage"
	"xoranyx-bot/internal/worker"
)

func main() {
	// Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Could not create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
	logger.Info("Service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Redis backs the worker lock even when the ledger lives elsewhere.
	rdb, err := database.ConnectRedis(ctx, cfg, logger)
	if err != nil {
		if cfg.LedgerBackend == config.BackendRedis {
			return err
		}
		logger.Warn("Redis unavailable, settlement worker runs without lock", zap.Error(err))
		rdb = nil
	}
	if rdb != nil && cfg.LedgerBackend != config.BackendRedis {
		defer func() { _ = rdb.Close() }()
	}

	store, err := openStore(cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewLedger(registry)

	service := ledger.NewService(store, cfg.Ledger, logger, ledger.WithRecorder(recorder))

	tgBot, err := bot.NewBot(cfg.BotToken, service, bot.Options{
		BotName:   cfg.BotName,
		AdminID:   cfg.AdminID,
		WebAppURL: cfg.WebAppURL,
	}, logger)
	if err != nil {
		return err
	}

	checker := worker.NewChecker(store, service, rdb, tgBot, cfg.SettleInterval, logger)
	checker.Message = bot.InviteRewardText
	checker.OnSettle = recorder.ReferralSettled

	checks := map[string]server.Check{
		"store": func(ctx context.Context) error {
			return store.Range(ctx, func(*models.User) bool { return false })
		},
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	srv := server.New(server.Config{
		Addr:             cfg.HTTPAddr,
		Env:              cfg.AppEnv,
		MetricsAllowlist: cfg.MetricsCIDRs,
	}, registry, checks, logger)

	logger.Info("Service started successfully", zap.String("backend", cfg.LedgerBackend))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tgBot.Start(gctx) })
	g.Go(func() error {
		checker.Start(gctx)
		return nil
	})
	g.Go(func() error { return srv.Run(gctx) })
	return g.Wait()
}

func openStore(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (storage.Store, error) {
	opts := []storage.Option{storage.WithLogger(logger)}

	switch cfg.LedgerBackend {
	case config.BackendPostgres:
		db, err := database.ConnectPostgres(cfg, logger)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresStore(db, opts...), nil
	case config.BackendRedis:
		return storage.NewRedisStore(rdb, opts...), nil
	case config.BackendFile:
		return storage.NewFileStore(cfg.LedgerFile, opts...)
	case config.BackendMemory:
		logger.Warn("Using in-memory ledger, balances are lost on restart")
		return storage.NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}
