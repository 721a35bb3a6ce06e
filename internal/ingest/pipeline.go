// Package ingest turns uploaded curriculum documents into embedded,
// searchable chunks. The pipeline fetches the document's bytes,
// extracts text, splits it with the chunker, embeds the pieces in
// rate-limited batches and writes them to the index, moving the
// document through pending -> processing -> ready (or error).
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/darasa-ai/darasa/internal/chunker"
	"github.com/darasa-ai/darasa/internal/embedding"
	"github.com/darasa-ai/darasa/internal/index"
)

const (
	// DefaultEmbedBatchSize is how many chunks are sent to the
	// embedding provider per request.
	DefaultEmbedBatchSize = 50

	// DefaultInsertBatchSize is how many chunk rows are written to the
	// index per batch.
	DefaultInsertBatchSize = 100
)

// Store is the slice of the index the pipeline needs. *index.Store
// satisfies it.
type Store interface {
	GetDocument(ctx context.Context, id string) (*index.Document, error)
	BeginProcessing(ctx context.Context, id string) error
	MarkReady(ctx context.Context, id string, chunkCount int) error
	MarkError(ctx context.Context, id string) error
	InsertChunks(ctx context.Context, chunks []index.Chunk) error
	DeleteChunks(ctx context.Context, documentID string) (int64, error)
}

// Options tunes the pipeline. The zero value falls back to the
// defaults above.
type Options struct {
	ChunkSize    int
	ChunkOverlap int

	EmbedBatchSize  int
	InsertBatchSize int

	// Limiter paces embedding batches. Nil means no pacing.
	Limiter *rate.Limiter
}

func (o *Options) normalize() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = chunker.DefaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = chunker.DefaultChunkOverlap
	}
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if o.InsertBatchSize <= 0 {
		o.InsertBatchSize = DefaultInsertBatchSize
	}
}

// Pipeline ingests documents into the index.
type Pipeline struct {
	store    Store
	embedder embedding.Embedder
	fetcher  Fetcher
	opts     Options
	logger   *slog.Logger
}

func NewPipeline(store Store, embedder embedding.Embedder, fetcher Fetcher, opts Options, logger *slog.Logger) *Pipeline {
	opts.normalize()
	return &Pipeline{
		store:    store,
		embedder: embedder,
		fetcher:  fetcher,
		opts:     opts,
		logger:   logger,
	}
}

// Ingest processes a single document end to end and returns the number
// of chunks written. Only documents in the pending or error state are
// accepted; a document already being processed fails fast with
// index.ErrAlreadyProcessing. Any failure after the gate marks the
// document as errored before returning.
func (p *Pipeline) Ingest(ctx context.Context, documentID string) (int, error) {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("loading document %s: %w", documentID, err)
	}

	if err := p.store.BeginProcessing(ctx, documentID); err != nil {
		return 0, fmt.Errorf("claiming document %s: %w", documentID, err)
	}

	p.logger.Info("ingestion started",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"subject", doc.Subject,
		"level", doc.Level)

	count, err := p.run(ctx, doc)
	if err != nil {
		// The run may have failed because ctx was cancelled. The
		// status write must still land, or the document stays stuck
		// in processing.
		if markErr := p.store.MarkError(context.WithoutCancel(ctx), documentID); markErr != nil {
			p.logger.Error("marking document as errored failed",
				"document_id", documentID, "error", markErr)
		}
		return 0, fmt.Errorf("ingesting document %s: %w", documentID, err)
	}

	p.logger.Info("ingestion finished", "document_id", doc.ID, "chunks", count)
	return count, nil
}

func (p *Pipeline) run(ctx context.Context, doc *index.Document) (int, error) {
	data, err := p.fetcher.Fetch(ctx, doc.BlobURL)
	if err != nil {
		return 0, fmt.Errorf("fetching %s: %w", doc.BlobURL, err)
	}

	text, err := ExtractText(data, doc.MimeType, doc.Filename)
	if err != nil {
		return 0, err
	}

	// Retries start from scratch: stale chunks from a previous attempt
	// are removed before anything new is written.
	if deleted, err := p.store.DeleteChunks(ctx, doc.ID); err != nil {
		return 0, fmt.Errorf("clearing previous chunks: %w", err)
	} else if deleted > 0 {
		p.logger.Info("cleared previous chunks", "document_id", doc.ID, "deleted", deleted)
	}

	pieces, err := chunker.Split(text, p.opts.ChunkSize, p.opts.ChunkOverlap)
	if err != nil {
		return 0, fmt.Errorf("chunking: %w", err)
	}
	if len(pieces) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.Filename)
	}

	vectors, err := p.embedAll(ctx, pieces)
	if err != nil {
		return 0, err
	}

	chunks := make([]index.Chunk, len(pieces))
	for i, content := range pieces {
		chunks[i] = index.Chunk{
			ID:            uuid.NewString(),
			DocumentID:    doc.ID,
			ChunkIndex:    i,
			Content:       content,
			ContentLength: utf8.RuneCountInString(content),
			Embedding:     vectors[i],
			Subject:       doc.Subject,
			Level:         doc.Level,
			Language:      doc.Language,
		}
	}

	for start := 0; start < len(chunks); start += p.opts.InsertBatchSize {
		end := min(start+p.opts.InsertBatchSize, len(chunks))
		if err := p.store.InsertChunks(ctx, chunks[start:end]); err != nil {
			return 0, fmt.Errorf("inserting chunks %d..%d: %w", start, end, err)
		}
	}

	if err := p.store.MarkReady(ctx, doc.ID, len(chunks)); err != nil {
		return 0, fmt.Errorf("marking document ready: %w", err)
	}
	return len(chunks), nil
}

// embedAll embeds pieces in sequential batches, waiting on the limiter
// between them so the provider's rate limits are respected.
func (p *Pipeline) embedAll(ctx context.Context, pieces []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(pieces))
	for start := 0; start < len(pieces); start += p.opts.EmbedBatchSize {
		if start > 0 && p.opts.Limiter != nil {
			if err := p.opts.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for embed rate limit: %w", err)
			}
		}
		end := min(start+p.opts.EmbedBatchSize, len(pieces))
		batch, err := p.embedder.EmbedMany(ctx, pieces[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d..%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
