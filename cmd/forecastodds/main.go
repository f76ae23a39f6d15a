package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/forecastodds/internal/alerts"
	"github.com/rewired-gh/forecastodds/internal/analytics"
	"github.com/rewired-gh/forecastodds/internal/api"
	"github.com/rewired-gh/forecastodds/internal/config"
	"github.com/rewired-gh/forecastodds/internal/engine"
	"github.com/rewired-gh/forecastodds/internal/logger"
	"github.com/rewired-gh/forecastodds/internal/publisher"
	"github.com/rewired-gh/forecastodds/internal/storage"
	"github.com/rewired-gh/forecastodds/internal/telegram"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file (empty for defaults and environment only)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("Service failed: %v", err)
	}
	logger.Info("Service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Initialize storage
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	var opts []engine.Option

	if cfg.Redis.Enabled {
		redisClient, err := publisher.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		opts = append(opts, engine.WithChangeSink(publisher.NewStreamPublisher(redisClient, cfg.Redis.StreamMaxLen)))
		logger.Info("Publishing change events to Redis streams")
	} else {
		logger.Debug("Redis change stream disabled")
	}

	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
			cfg.Telegram.LeaderboardSize,
		)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithNotifier(telegramClient))
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if cfg.Alerts.Enabled {
		opts = append(opts, engine.WithDetector(alerts.NewDetector(cfg.Alerts.Threshold, cfg.Alerts.Cooldown)))
	}

	eng := engine.New(store, opts...)
	if err := eng.Restore(ctx); err != nil {
		return err
	}

	handler := api.NewHandler(eng, analytics.FromEngine(eng), store,
		cfg.Analytics.DefaultHistoryLimit, cfg.Analytics.DefaultRecentChanges)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Storage.RotationCron, func() {
		if err := eng.RotateSnapshots(ctx, cfg.Storage.MaxSealedSnapshots); err != nil {
			logger.Error("Snapshot rotation failed: %v", err)
		}
	}); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc(cfg.Analytics.LeaderboardRefreshCron, func() {
		if _, err := eng.RefreshLeaderboard(ctx); err != nil {
			logger.Warn("Leaderboard refresh failed, keeping previous board: %v", err)
		}
	}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP API listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return eng.Run(gctx)
	})

	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
