package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/iudanet/roomsync/internal/config"
	"github.com/iudanet/roomsync/internal/server"
	"github.com/iudanet/roomsync/internal/server/fanout"
	"github.com/iudanet/roomsync/internal/server/storage"
	"github.com/iudanet/roomsync/internal/server/storage/bolt"
	"github.com/iudanet/roomsync/internal/server/storage/postgres"
	"github.com/iudanet/roomsync/internal/server/storage/sqlite"
	"github.com/iudanet/roomsync/internal/server/sync"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	envFile := flag.String("env", "", "Path to .env file (optional)")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load env file: %v\n", err)
			os.Exit(1)
		}
	} else {
		// best effort; a missing .env is the normal case in production
		_ = godotenv.Load()
	}

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	engineCfg := sync.Config{
		LoopInterval: cfg.LoopInterval,
		StepTimeout:  cfg.StepTimeout,
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("failed to close redis", "error", err)
			}
		}()
		engineCfg.Fanout = fanout.NewRedis(rdb, logger)
		logger.Info("redis poke fanout enabled")
	}

	engine := sync.NewEngine(store, sync.NewRegistry(), sync.DefaultMutators(), logger, engineCfg)

	logger.Info("starting server",
		"version", Version,
		"storage_driver", cfg.StorageDriver,
		"addr", cfg.Addr)

	srv := server.New(cfg, store, engine, Version, logger)
	return srv.Run(ctx)
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case "sqlite":
		return sqlite.New(ctx, cfg.StorageDSN)
	case "postgres":
		return postgres.New(ctx, cfg.StorageDSN)
	case "bolt":
		return bolt.New(ctx, cfg.StorageDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func printVersion() {
	fmt.Printf("roomsync server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
