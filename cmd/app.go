package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/genai"

	"github.com/plateiq/plateiq/internal/audit"
	"github.com/plateiq/plateiq/internal/chunker"
	"github.com/plateiq/plateiq/internal/config"
	"github.com/plateiq/plateiq/internal/embedding"
	"github.com/plateiq/plateiq/internal/estimate"
	"github.com/plateiq/plateiq/internal/knowledge"
	"github.com/plateiq/plateiq/internal/log"
	"github.com/plateiq/plateiq/internal/rag"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg          *config.Config
	logger       log.Logger
	pool         *pgxpool.Pool
	store        *knowledge.Store
	retriever    *rag.Retriever
	orchestrator *estimate.Orchestrator
}

func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagJSONLogs})
}

// setup loads configuration and wires the full pipeline. Components degrade
// individually: a missing API key disables embedding and generation but the
// store, text retrieval, and health check stay usable.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	logger := newLogger()

	pool, err := knowledge.NewPool(ctx, cfg.PostgresConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	embedder := embedding.NewClient(ctx, cfg, logger.With("component", "embedding"))
	store := knowledge.NewStore(pool, embedder, chunker.Options{
		TargetTokens:  cfg.ChunkTargetTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
	}, logger.With("component", "knowledge"))
	retriever := rag.New(store, embedder, logger.With("component", "rag"))
	auditor := audit.New(pool, logger.With("component", "audit"))

	var models *genai.Models
	if cfg.GeminiAPIKey != "" {
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.GeminiAPIKey})
		if err != nil {
			logger.Warn("generation client construction failed, estimation unavailable", "error", err)
		} else {
			models = gc.Models
		}
	}

	orchestrator := estimate.NewOrchestrator(
		retriever, models, auditor, cfg.GenerationModel,
		logger.With("component", "estimate"),
		estimate.WithAttemptTimeout(time.Duration(cfg.GenerateTimeoutMS)*time.Millisecond),
	)

	return &app{
		cfg:          cfg,
		logger:       logger,
		pool:         pool,
		store:        store,
		retriever:    retriever,
		orchestrator: orchestrator,
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}
