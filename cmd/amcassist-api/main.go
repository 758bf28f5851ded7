package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amcassist/amcassist/internal/agent"
	"github.com/amcassist/amcassist/internal/api"
	"github.com/amcassist/amcassist/internal/auth"
	"github.com/amcassist/amcassist/internal/catalog"
	chatsqlite "github.com/amcassist/amcassist/internal/chat/sqlite"
	"github.com/amcassist/amcassist/internal/config"
	"github.com/amcassist/amcassist/internal/explorer"
	"github.com/amcassist/amcassist/internal/export"
	"github.com/amcassist/amcassist/internal/llm"
	"github.com/amcassist/amcassist/internal/migrations"
	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/scenario"
	"github.com/amcassist/amcassist/internal/scope"
	s3store "github.com/amcassist/amcassist/internal/storage/s3"
	"github.com/amcassist/amcassist/internal/translator"
	"github.com/amcassist/amcassist/internal/warehouse"
	whduckdb "github.com/amcassist/amcassist/internal/warehouse/duckdb"
	whpostgres "github.com/amcassist/amcassist/internal/warehouse/postgres"
)

func main() {
	if err := config.LoadDotEnv(config.DefaultEnvFile); err != nil {
		slog.Error("failed to load env file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("amcassist-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat := catalog.Default()
	wh, err := openWarehouse(ctx, cfg.Warehouse, cat)
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	if wh.db != nil {
		defer func() { _ = wh.db.Close() }()
	} else {
		logger.Warn("no warehouse configured; scenarios serve synthetic data")
	}

	chatDB, err := chatsqlite.Open(ctx, cfg.ChatStore.DSN)
	if err != nil {
		logger.Error("failed to open chat store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = chatDB.Close() }()
	if cfg.ChatStore.AutoMigrate {
		applied, err := migrations.NewRunner().Up(ctx, chatDB, 0)
		if err != nil {
			logger.Error("failed to migrate chat store", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("chat store migrated", slog.Int("applied", applied))
	}
	chats := chatsqlite.NewStore(chatDB)

	model, err := llm.New(cfg.AI)
	if err != nil {
		logger.Error("failed to initialize language model", slog.Any("error", err))
		os.Exit(1)
	}
	if model != nil {
		model = llm.Instrumented{Model: model}
	} else {
		logger.Warn("no language model configured; free-form questions are disabled")
	}

	enforcer := scope.NewEnforcer(cat, wh.directory, wh.querier, logger)
	assistant := agent.New(agent.Deps{
		Library: scenario.Default(),
		Runner:  scenario.NewRunner(wh.querier, enforcer, logger),
		Translator: translator.New(model, cat, enforcer, wh.querier, translator.Options{
			HistoryTurns: cfg.Agent.HistoryTurns,
			PreviewRows:  cfg.Agent.PreviewRows,
			DefaultLimit: cfg.Agent.DefaultLimit,
			MaxLimit:     cfg.Agent.MaxLimit,
		}, logger),
		Enforcer: enforcer,
		Model:    model,
		Querier:  wh.querier,
		Logger:   logger,
	})

	deps := api.Dependencies{
		Logger:            logger,
		Chats:             chats,
		Assistant:         assistant,
		Resolver:          scope.NewResolver(wh.directory, logger),
		Explorer:          explorer.New(cat, enforcer, wh.querier, logger),
		DependencyTimeout: time.Second,
	}
	readiness := []api.ReadinessCheck{api.CheckPing("chat store", chats.HealthCheck)}
	deps.Tenants = wh.directory
	if wh.querier != nil {
		readiness = append(readiness, api.CheckPing("warehouse", wh.querier.Ping))
	}

	if cfg.ObjectStore.ArchiveExports {
		objectStore, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		archiver, err := export.NewArchiver(objectStore, chats, export.DefaultLinkExpiry, logger)
		if err != nil {
			logger.Error("failed to initialize export archiver", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Archiver = archiver
		readiness = append(readiness, api.CheckObjectStoreConfig(cfg), api.CheckPing("object store", objectStore.HealthCheck))
	}
	deps.Readiness = api.CombineReadinessChecks(readiness...)

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("warehouse", cfg.Warehouse.Driver),
			slog.String("ai_provider", cfg.AI.Provider),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

type warehouseHandle struct {
	db        *sql.DB
	querier   warehouse.Querier
	directory scope.TenantDirectory
}

// openWarehouse leaves db and querier nil for the "none" driver so scenarios
// fall back to synthetic data; tenants then come from the synthetic directory.
func openWarehouse(ctx context.Context, cfg config.WarehouseConfig, cat *catalog.Catalog) (warehouseHandle, error) {
	switch cfg.Driver {
	case config.WarehouseDriverNone, "":
		return warehouseHandle{directory: scenario.SyntheticDirectory{}}, nil
	case config.WarehouseDriverPostgres:
		db, err := whpostgres.Open(ctx, whpostgres.DBConfig{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return warehouseHandle{}, err
		}
		return warehouseHandle{db: db, querier: whpostgres.NewQuerier(db, cat), directory: whpostgres.NewDirectory(db)}, nil
	case config.WarehouseDriverDuckDB:
		db, err := whduckdb.Open(ctx, cfg.DSN)
		if err != nil {
			return warehouseHandle{}, err
		}
		return warehouseHandle{db: db, querier: whduckdb.NewQuerier(db, cat), directory: whduckdb.NewDirectory(db)}, nil
	default:
		return warehouseHandle{}, fmt.Errorf("unsupported warehouse driver %q", cfg.Driver)
	}
}
