// Package main provides the entry point for the recall MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/perso-labs/recall/internal/config"
	"github.com/perso-labs/recall/internal/db"
	"github.com/perso-labs/recall/internal/llm"
	"github.com/perso-labs/recall/internal/metrics"
	"github.com/perso-labs/recall/internal/server"
	"github.com/perso-labs/recall/internal/service"
	"github.com/perso-labs/recall/internal/tools"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	// Log startup info
	logger.Info("recall starting",
		"version", version,
		"surrealdb_url", cfg.SurrealDBURL,
		"embed_model", cfg.EmbedModel,
		"llm_model", cfg.LLMModel,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load scoring and consolidation policy
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		logger.Error("failed to load policy", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()

	// Connect to database
	dbCfg := db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}

	dbClient, err := db.NewClient(ctx, dbCfg, logger, collector)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing database connection")
		_ = dbClient.Close(ctx)
	}()

	// Initialize database schema
	if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
		logger.Error("failed to initialize database schema", "error", err)
		os.Exit(1)
	}

	// Create LLM components
	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		logger.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	logger.Info("embedder initialized", "model", embedder.Model(), "dimension", embedder.Dimension())

	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		logger.Error("failed to create model", "error", err)
		os.Exit(1)
	}
	logger.Info("model initialized", "model", model.Model())

	counter, err := service.NewTokenCounter()
	if err != nil {
		logger.Error("failed to create token counter", "error", err)
		os.Exit(1)
	}

	// Build services
	memories := service.NewMemoryService(dbClient, embedder, policy, collector)
	consolidation := service.NewConsolidationService(dbClient, embedder, model, policy, collector)
	ingest := service.NewIngestService(dbClient, model, memories, consolidation, collector)
	assembly := service.NewAssemblyService(dbClient, memories, counter, policy, collector)
	reembed := service.NewReembedManager(dbClient, embedder, 0)

	// Create and setup server
	srv := server.New(version, logger)
	srv.Setup()

	// Register tools
	deps := &tools.Dependencies{
		Memories:      memories,
		Ingest:        ingest,
		Consolidation: consolidation,
		Assembly:      assembly,
		Reembed:       reembed,
		Metrics:       collector,
		Logger:        logger,
	}
	tools.RegisterAll(srv.MCPServer(), deps, &cfg)
	logger.Info("tools registered", "count", 8)

	// Log ready state
	logger.Info("server ready, awaiting connections")

	// Run server (blocks until disconnect or context cancelled)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
