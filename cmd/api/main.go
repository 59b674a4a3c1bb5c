package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/buhgalteriya/buhgalteriya/internal/app"
	"github.com/buhgalteriya/buhgalteriya/internal/config"
	"github.com/buhgalteriya/buhgalteriya/internal/infra"
	"github.com/buhgalteriya/buhgalteriya/internal/logging"
	"github.com/buhgalteriya/buhgalteriya/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, "app", cfg.AppName, "env", cfg.AppEnv)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			if err := infra.Migrate(cfg.DatabaseURL); err != nil {
				logger.Error("migrate database", "error", err)
				os.Exit(1)
			}
		}
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	bot, err := app.New(ctx, cfg, db, cache, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(bot.RouteDeps())
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.Listen()
	}()

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	if cfg.DeliveryMode == config.DeliveryPolling {
		if err := bot.Telegram.DeleteWebhook(pollCtx); err != nil {
			logger.Warn("delete webhook", "error", err)
		}
		go func() {
			if err := bot.Poller().Run(pollCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("poller: %w", err)
			}
		}()
	}
	logger.Info("bot started", "delivery", cfg.DeliveryMode, "address", cfg.Address(), "debit_policy", cfg.DebitPolicy)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		exitCode = 1
	}
	// stop polling, then let queued events finish
	stopPolling()
	if err := bot.Close(); err != nil {
		logger.Warn("close app", "error", err)
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	logger.Info("bot exited cleanly")
}
