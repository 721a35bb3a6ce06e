package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is the embedding model the system is built around.
// 1536 dimensions, strong multilingual (Swahili/English) support.
const DefaultModel = "text-embedding-3-small"

// Client is an Embedder backed by the OpenAI embeddings API.
//
// Client is safe for concurrent use.
type Client struct {
	api        openai.Client
	model      string
	dimensions int
	logger     *slog.Logger
}

// ClientConfig configures an OpenAI embedding client.
type ClientConfig struct {
	// APIKey authenticates against the embeddings endpoint. Required.
	APIKey string

	// BaseURL overrides the API endpoint. Empty means the OpenAI
	// default; tests point this at a local server.
	BaseURL string

	// Model is the embedding model name. Empty means DefaultModel.
	Model string

	// Dimensions is the expected vector length. Zero means Dimensions.
	Dimensions int
}

// NewClient creates an embedding client for the configured model.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = Dimensions
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		api:        openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		logger:     logger,
	}, nil
}

// Dimensions returns the fixed vector length of the configured model.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// EmbedOne embeds a single normalized text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds all texts in a single batched API call, preserving
// input order. Batching matters: embedding one-at-a-time is
// cost-prohibitive at document scale.
func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	cleaned := make([]string, len(texts))
	for i, t := range texts {
		cleaned[i] = Normalize(t)
	}

	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: cleaned},
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: openai.Int(int64(c.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrProvider, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProvider, d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		if len(vec) != c.dimensions {
			return nil, fmt.Errorf("%w: embedding has %d dimensions, want %d", ErrProvider, len(vec), c.dimensions)
		}
		out[d.Index] = vec
	}

	c.logger.Debug("embedded batch", "texts", len(texts), "model", c.model)
	return out, nil
}
