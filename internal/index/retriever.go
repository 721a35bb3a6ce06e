package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/darasa-ai/darasa/internal/embedding"
)

// Retrieval defaults. A limit of 6 chunks keeps grounding prompts
// small; 0.25 is the similarity floor below which a chunk is noise for
// any query.
const (
	DefaultLimit     = 6
	DefaultThreshold = 0.25
	filteredAlpha    = 0.4
	filteredGamma    = 0.6
)

// Searcher is the slice of Store the retriever needs.
type Searcher interface {
	SearchChunks(ctx context.Context, q SearchQuery) ([]RetrievalResult, error)
}

// Retriever answers hybrid dense+metadata queries over the chunk
// index. It is the sole entry point the conversational layer uses to
// ground answers.
type Retriever struct {
	searcher Searcher
	embedder embedding.Embedder
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. The embedder must be the same
// model the ingestion pipeline used; mixing models makes the cosine
// similarity meaningless.
func NewRetriever(searcher Searcher, embedder embedding.Embedder, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{searcher: searcher, embedder: embedder, logger: logger}
}

// RetrieveOption configures a retrieval query.
type RetrieveOption func(*retrieveConfig)

type retrieveConfig struct {
	subject   string
	level     string
	limit     int
	threshold float64
}

// WithSubject biases results toward a curriculum subject. The subject
// is not a hard filter: off-subject chunks stay eligible but are
// down-weighted, which deliberately allows cross-topic discovery.
func WithSubject(subject string) RetrieveOption {
	return func(c *retrieveConfig) { c.subject = subject }
}

// WithLevel biases results toward a curriculum level (e.g. "Form 2").
// Soft, like WithSubject.
func WithLevel(level string) RetrieveOption {
	return func(c *retrieveConfig) { c.level = level }
}

// WithLimit caps the number of results. Default is DefaultLimit.
func WithLimit(limit int) RetrieveOption {
	return func(c *retrieveConfig) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithThreshold overrides the hard similarity floor.
func WithThreshold(threshold float64) RetrieveOption {
	return func(c *retrieveConfig) { c.threshold = threshold }
}

// hybridWeights selects the score weights. With a subject or level
// filter present, metadata alignment dominates: curriculum correctness
// outranks raw semantic proximity. Without filters the metadata term
// is inert and ranking is pure dense similarity.
func hybridWeights(subject, level string) (alpha, gamma float64) {
	if subject != "" || level != "" {
		return filteredAlpha, filteredGamma
	}
	return 1.0, 0.0
}

// Retrieve embeds the query and returns the top chunks ranked by the
// hybrid score, in non-increasing finalScore order. An empty result is
// a valid outcome: it means no chunk cleared the similarity threshold,
// and the caller must say so rather than fabricate an answer.
//
// A failed query embed is a failed query; embedding errors surface
// directly as embedding.ErrProvider.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...RetrieveOption) ([]RetrievalResult, error) {
	cfg := retrieveConfig{limit: DefaultLimit, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}

	queryVec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	alpha, gamma := hybridWeights(cfg.subject, cfg.level)
	results, err := r.searcher.SearchChunks(ctx, SearchQuery{
		Embedding: queryVec,
		Subject:   cfg.subject,
		Level:     cfg.level,
		Alpha:     alpha,
		Gamma:     gamma,
		Threshold: cfg.threshold,
		Limit:     cfg.limit,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("retrieved chunks",
		"results", len(results), "subject", cfg.subject, "level", cfg.level)
	return results, nil
}
