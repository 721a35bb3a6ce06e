package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/darasa-ai/darasa/internal/config"
	"github.com/darasa-ai/darasa/internal/embedding"
	"github.com/darasa-ai/darasa/internal/index"
	"github.com/darasa-ai/darasa/internal/ingest"
	"github.com/darasa-ai/darasa/internal/log"
)

// env bundles the shared dependencies behind every subcommand.
type env struct {
	cfg      *config.Config
	logger   log.Logger
	pool     *pgxpool.Pool
	store    *index.Store
	embedder *embedding.Client
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger()

	pool, err := index.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	embedder, err := embedding.NewClient(embedding.ClientConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.EmbedderModel,
		Dimensions: cfg.Dimensions,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		store:    index.NewStore(pool, logger),
		embedder: embedder,
	}, nil
}

func (e *env) close() {
	e.pool.Close()
}

// ingestOptions derives pipeline options from configuration. The
// limiter allows one embedding batch per configured delay.
func (e *env) ingestOptions() ingest.Options {
	opts := ingest.Options{
		ChunkSize:       e.cfg.ChunkSize,
		ChunkOverlap:    e.cfg.ChunkOverlap,
		EmbedBatchSize:  e.cfg.EmbedBatchSize,
		InsertBatchSize: e.cfg.InsertBatchSize,
	}
	if delay := e.cfg.BatchDelay(); delay > 0 {
		opts.Limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return opts
}
