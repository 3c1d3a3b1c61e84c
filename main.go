package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/catalog"
	"github.com/meridianmed/insight-engine/pkg/config"
	"github.com/meridianmed/insight-engine/pkg/database"
	"github.com/meridianmed/insight-engine/pkg/embedding"
	"github.com/meridianmed/insight-engine/pkg/entity"
	"github.com/meridianmed/insight-engine/pkg/examples"
	"github.com/meridianmed/insight-engine/pkg/generator"
	"github.com/meridianmed/insight-engine/pkg/handlers"
	"github.com/meridianmed/insight-engine/pkg/llm"
	"github.com/meridianmed/insight-engine/pkg/logging"
	"github.com/meridianmed/insight-engine/pkg/mcp"
	mcptools "github.com/meridianmed/insight-engine/pkg/mcp/tools"
	"github.com/meridianmed/insight-engine/pkg/middleware"
	"github.com/meridianmed/insight-engine/pkg/prompts"
	"github.com/meridianmed/insight-engine/pkg/querylog"
	"github.com/meridianmed/insight-engine/pkg/registry"
	"github.com/meridianmed/insight-engine/pkg/repositories"
	"github.com/meridianmed/insight-engine/pkg/services"
	"github.com/meridianmed/insight-engine/pkg/vecindex"
	"github.com/meridianmed/insight-engine/pkg/warehouse"

	// Dialect adapters register themselves with the warehouse registry.
	_ "github.com/meridianmed/insight-engine/pkg/warehouse/mssql"
	_ "github.com/meridianmed/insight-engine/pkg/warehouse/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Version is set at build time via ldflags
var Version = "dev"

// Exit codes follow sysexits conventions: 64 usage/config, 69 unavailable
// dependency, 70 internal failure, 73 a pipeline limit breached at startup.
const (
	exitConfig      = 64
	exitUnavailable = 69
	exitInternal    = 70
	exitLimits      = 73
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		if errors.Is(err, config.ErrLimits) {
			return exitLimits
		}
		return exitConfig
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return exitInternal
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("warehouse_driver", cfg.Warehouse.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("store", logging.SanitizeConnString(cfg.Store.ConnectionString())))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Engine store and migrations.
	store, err := database.NewConnection(ctx, &cfg.Store)
	if err != nil {
		logger.Error("engine store unavailable", zap.Error(err))
		return exitUnavailable
	}
	defer store.Close()

	migrationDB, err := sql.Open("pgx", cfg.Store.ConnectionString())
	if err != nil {
		logger.Error("failed to open migration connection", zap.Error(err))
		return exitUnavailable
	}
	if err := database.RunMigrations(migrationDB, cfg.Store.MigrationsPath, logger); err != nil {
		_ = migrationDB.Close()
		logger.Error("migrations failed", zap.Error(err))
		return exitInternal
	}
	_ = migrationDB.Close()

	// Redis is optional; a nil client disables the shared SQL cache.
	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Error("redis unavailable", zap.Error(err))
		return exitUnavailable
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Warehouse.
	wh, err := warehouse.Open(ctx, &cfg.Warehouse, logger)
	if err != nil {
		logger.Error("warehouse unavailable",
			zap.String("driver", cfg.Warehouse.Driver), zap.Error(err))
		return exitUnavailable
	}
	defer wh.Close()

	// LLM and embedding providers.
	llmClient, err := llm.NewFromConfig(&cfg.LLM, logger)
	if err != nil {
		logger.Error("LLM client setup failed", zap.Error(err))
		return exitConfig
	}
	embedClient, err := llm.NewEmbeddingFromConfig(&cfg.Embedding, cfg.EmbeddingAPIKey(), logger)
	if err != nil {
		logger.Error("embedding client setup failed", zap.Error(err))
		return exitConfig
	}
	embedder := embedding.NewFromConfig(cfg, embedClient, logger)

	// Schema catalog and vector index.
	cat := catalog.New(wh, logger)
	if err := cat.Refresh(ctx); err != nil {
		logger.Error("schema introspection failed", zap.Error(err))
		return exitUnavailable
	}
	index := vecindex.New(embedder.Dimension())
	if err := services.BuildIndex(ctx, cat, embedder, index, logger); err != nil {
		logger.Error("vector index build failed", zap.Error(err))
		return exitInternal
	}

	// Domain knowledge: registry, examples, entities.
	reg, err := registry.Load()
	if err != nil {
		logger.Error("table registry load failed", zap.Error(err))
		return exitInternal
	}
	library, err := examples.Load()
	if err != nil {
		logger.Error("example library load failed", zap.Error(err))
		return exitInternal
	}
	resolver := entity.NewResolver(logger)
	if err := resolver.Seed(ctx, wh); err != nil {
		logger.Warn("entity seeding incomplete", zap.Error(err))
	}

	// Pipeline services.
	composer := prompts.NewComposer(reg, resolver,
		cfg.Warehouse.Project, cfg.Warehouse.Dataset, wh.Dialect())
	gen := generator.New(llmClient, composer, redisClient, cfg.Warehouse.Dataset,
		time.Duration(cfg.Limits.CacheTTLMinutes)*time.Minute, logger)

	conversationRepo := repositories.NewPgConversationRepository(store, logger)
	historyRepo := repositories.NewPgQueryHistoryRepository(store, logger)
	conversations := services.NewConversationService(conversationRepo,
		cfg.Limits.ConversationContextTurns, logger)
	log := querylog.NewRing(cfg.Limits.QueryLogCapacity)

	queries := services.NewQueryService(services.QueryServiceDeps{
		Catalog:       cat,
		Embedder:      embedder,
		Index:         index,
		Registry:      reg,
		Examples:      library,
		Composer:      composer,
		Generator:     gen,
		Warehouse:     wh,
		Errors:        apperrors.NewHandler(logger),
		Conversations: conversations,
		History:       historyRepo,
		Log:           log,
		Limits:        cfg.Limits,
		Dataset:       cfg.Warehouse.Dataset,
		Logger:        logger,
	})

	// HTTP surface.
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(queries, logger).RegisterRoutes(mux)
	handlers.NewSchemaHandler(cat, reg, embedder, index,
		cfg.Warehouse.Project, cfg.Warehouse.Dataset, wh.Dialect(), logger).RegisterRoutes(mux)
	handlers.NewConversationHandler(conversations, logger).RegisterRoutes(mux)
	handlers.NewQueryLogHandler(log, logger).RegisterRoutes(mux)

	// MCP surface.
	mcpServer := mcp.NewServer("insight-engine", cfg.Version, logger)
	mcptools.Register(mcpServer.MCP(), &mcptools.Deps{
		Queries: queries,
		Catalog: cat,
		Logger:  logger,
	})
	mux.Handle("/mcp", mcpServer.NewStreamableHTTPServer())

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("insight-engine listening",
			zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			return exitInternal
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown incomplete", zap.Error(err))
		}
	}
	return 0
}
