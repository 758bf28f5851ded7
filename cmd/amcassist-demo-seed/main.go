package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amcassist/amcassist/internal/config"
	"github.com/amcassist/amcassist/internal/demo/seed"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := config.LoadDotEnv(config.DefaultEnvFile); err != nil {
		logger.Error("failed to load env file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		logger.Error("failed to load demo seed config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(
		"demo seed started",
		slog.String("output_dir", cfg.OutputDir),
		slog.Int64("seed", cfg.Seed),
		slog.Int("days", cfg.Days),
		slog.String("end_date", cfg.EndDate.Format(time.DateOnly)),
	)
	files, err := seed.Run(ctx, cfg, logger)
	if err != nil {
		logger.Error("demo seed failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo seed finished", slog.Int("tables", len(files)),
		slog.String("hint", "set AMCASSIST_WAREHOUSE_DRIVER=duckdb and AMCASSIST_WAREHOUSE_DSN="+cfg.OutputDir))
}
