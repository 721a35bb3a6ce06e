package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/darasa-ai/darasa/internal/embedding"
	"github.com/darasa-ai/darasa/internal/index"
)

// SeedChunk is one pre-chunked passage from a prepared seed file.
type SeedChunk struct {
	Content    string `json:"content"`
	Subject    string `json:"subject"`
	Level      string `json:"level,omitempty"`
	Language   string `json:"language,omitempty"`
	SourceFile string `json:"sourceFile"`
	SourcePage string `json:"sourcePage,omitempty"`
}

// SeedReport summarises a seeding run.
type SeedReport struct {
	Documents     int
	Skipped       int
	Chunks        int
	FailedBatches int
}

// SeedStore is the slice of the index the seeder needs. *index.Store
// satisfies it.
type SeedStore interface {
	CreateDocument(ctx context.Context, doc *index.Document) error
	GetDocumentByFilename(ctx context.Context, filename string) (*index.Document, error)
	BeginProcessing(ctx context.Context, id string) error
	MarkReady(ctx context.Context, id string, chunkCount int) error
	MarkError(ctx context.Context, id string) error
	InsertChunks(ctx context.Context, chunks []index.Chunk) error
	HasChunks(ctx context.Context, documentID string) (bool, error)
}

// Seeder bulk-loads pre-chunked curriculum content into the index,
// embedding as it goes. Already-seeded source files are skipped so
// runs are repeatable.
type Seeder struct {
	store    SeedStore
	embedder embedding.Embedder
	opts     Options
	logger   *slog.Logger
}

func NewSeeder(store SeedStore, embedder embedding.Embedder, opts Options, logger *slog.Logger) *Seeder {
	opts.normalize()
	return &Seeder{store: store, embedder: embedder, opts: opts, logger: logger}
}

// LoadSeedFile parses one JSON seed file, an array of SeedChunk.
func LoadSeedFile(path string) ([]SeedChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}
	var chunks []SeedChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return chunks, nil
}

// LoadSeedDir parses every .json file under dir, in name order.
func LoadSeedDir(dir string) ([]SeedChunk, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading seed directory %s: %w", dir, err)
	}
	var all []SeedChunk
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		chunks, err := LoadSeedFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}
	return all, nil
}

// Seed groups chunks by their source file and loads each group as one
// document. A source file whose document already has chunks is
// skipped. Embedding failures are tolerated per batch: the remaining
// batches still run and the document keeps whatever was written.
func (s *Seeder) Seed(ctx context.Context, chunks []SeedChunk) (*SeedReport, error) {
	groups := make(map[string][]SeedChunk)
	for _, c := range chunks {
		if c.SourceFile == "" || strings.TrimSpace(c.Content) == "" {
			continue
		}
		groups[c.SourceFile] = append(groups[c.SourceFile], c)
	}
	files := make([]string, 0, len(groups))
	for f := range groups {
		files = append(files, f)
	}
	sort.Strings(files)

	report := &SeedReport{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.seedFile(ctx, file, groups[file], report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *Seeder) seedFile(ctx context.Context, filename string, group []SeedChunk, report *SeedReport) error {
	doc, err := s.store.GetDocumentByFilename(ctx, filename)
	switch {
	case err == nil:
		seeded, hasErr := s.store.HasChunks(ctx, doc.ID)
		if hasErr != nil {
			return fmt.Errorf("checking chunks for %s: %w", filename, hasErr)
		}
		if seeded {
			s.logger.Info("seed source already loaded, skipping", "filename", filename)
			report.Skipped++
			return nil
		}
	case errors.Is(err, index.ErrNotFound):
		first := group[0]
		doc = &index.Document{
			ID:       uuid.NewString(),
			Title:    titleFromFilename(filename),
			Filename: filename,
			Subject:  first.Subject,
			Level:    seedLevel(first, filename),
			Language: first.Language,
		}
		if err := s.store.CreateDocument(ctx, doc); err != nil {
			return fmt.Errorf("creating document for %s: %w", filename, err)
		}
	default:
		return fmt.Errorf("looking up document for %s: %w", filename, err)
	}

	if err := s.store.BeginProcessing(ctx, doc.ID); err != nil {
		return fmt.Errorf("claiming document for %s: %w", filename, err)
	}

	inserted := 0
	for start := 0; start < len(group); start += s.opts.EmbedBatchSize {
		if start > 0 && s.opts.Limiter != nil {
			if err := s.opts.Limiter.Wait(ctx); err != nil {
				s.markAborted(ctx, doc.ID, filename)
				return fmt.Errorf("waiting for embed rate limit: %w", err)
			}
		}
		end := min(start+s.opts.EmbedBatchSize, len(group))
		n, err := s.seedBatch(ctx, doc, group[start:end], start)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.markAborted(ctx, doc.ID, filename)
				return ctxErr
			}
			s.logger.Error("seed batch failed, continuing",
				"filename", filename, "batch_start", start, "error", err)
			report.FailedBatches++
			continue
		}
		inserted += n
	}

	if inserted == 0 {
		if err := s.store.MarkError(ctx, doc.ID); err != nil {
			return fmt.Errorf("marking %s as errored: %w", filename, err)
		}
		return nil
	}
	if err := s.store.MarkReady(ctx, doc.ID, inserted); err != nil {
		return fmt.Errorf("marking %s as ready: %w", filename, err)
	}

	s.logger.Info("seeded source file", "filename", filename, "chunks", inserted)
	report.Documents++
	report.Chunks += inserted
	return nil
}

// markAborted moves a claimed document to error after a ctx-driven
// abort. The write runs on a detached context: it must land even when
// ctx is already cancelled, or the document stays stuck in processing.
func (s *Seeder) markAborted(ctx context.Context, id, filename string) {
	if err := s.store.MarkError(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Error("marking aborted document as errored failed",
			"filename", filename, "error", err)
	}
}

func (s *Seeder) seedBatch(ctx context.Context, doc *index.Document, batch []SeedChunk, offset int) (int, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding: %w", err)
	}

	rows := make([]index.Chunk, len(batch))
	for i, c := range batch {
		level := c.Level
		if level == "" {
			level = doc.Level
		}
		rows[i] = index.Chunk{
			ID:            uuid.NewString(),
			DocumentID:    doc.ID,
			ChunkIndex:    offset + i,
			Content:       c.Content,
			ContentLength: utf8.RuneCountInString(c.Content),
			Embedding:     vectors[i],
			Subject:       c.Subject,
			Level:         level,
			Language:      c.Language,
			SourcePage:    c.SourcePage,
		}
	}
	if err := s.store.InsertChunks(ctx, rows); err != nil {
		return 0, fmt.Errorf("inserting: %w", err)
	}
	return len(rows), nil
}

// seedLevel picks the chunk's own level if present, otherwise infers
// it from markers like "_f2" or "f2" in the source filename.
func seedLevel(c SeedChunk, filename string) string {
	if c.Level != "" {
		return c.Level
	}
	return InferLevel(filename)
}

// InferLevel maps form markers in a filename to a curriculum level.
// Unrecognised names default to Form 1.
func InferLevel(filename string) string {
	lower := strings.ToLower(filename)
	for i, marker := range []string{"f1", "f2", "f3", "f4"} {
		if strings.Contains(lower, marker) {
			return fmt.Sprintf("Form %d", i+1)
		}
	}
	return "Form 1"
}

func titleFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return strings.ReplaceAll(base, "_", " ")
}
