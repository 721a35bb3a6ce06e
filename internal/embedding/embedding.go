// Package embedding maps text to dense vectors through a single fixed
// embedding model.
//
// All callers of the vector index (ingestion and query time) must use
// the same model and dimensionality: cosine similarity between vectors
// from different models is meaningless. The dimensionality is therefore
// a system-wide constant carried by the Embedder, and the chunks table
// schema pins the same value.
package embedding

import (
	"context"
	"errors"
	"strings"
)

// Dimensions of text-embedding-3-small vectors, and of the pgvector
// column in db/migrations.
const Dimensions = 1536

// ErrProvider indicates the upstream embedding call failed: network
// error, auth failure, rate-limit exhaustion, or a malformed response.
// Callers decide whether to retry or abort.
var ErrProvider = errors.New("embedding provider request failed")

// Embedder converts text into fixed-dimension dense vectors.
//
// Implementations perform no caching; callers that need one add it
// themselves.
type Embedder interface {
	// EmbedOne returns the embedding of a single text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// EmbedMany embeds texts in one batched upstream call.
	// The result preserves ordinal correspondence: out[i] is the
	// embedding of texts[i].
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length this embedder produces.
	Dimensions() int
}

// Normalize prepares text for embedding: embedded newlines become
// spaces and surrounding whitespace is dropped.
func Normalize(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}
