// Package index stores chunk vectors with curriculum metadata in
// PostgreSQL + pgvector and answers hybrid similarity queries.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrWrite indicates a datastore insert failed.
	ErrWrite = errors.New("index write failed")

	// ErrAlreadyProcessing indicates a concurrent ingestion attempt
	// found the document already in processing. The caller must not
	// race; it fails fast instead.
	ErrAlreadyProcessing = errors.New("document ingestion already in progress")
)

// NewPool opens a pgx connection pool with pgvector types registered
// on every connection.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Store manages documents and their chunk vectors.
//
// Store is safe for concurrent use. Retrieval queries are read-only;
// chunk writes are append-only per document and never conflict with
// reads against other documents.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store over the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

const documentColumns = `id, title, filename, blob_url, file_size, mime_type,
	subject, level, language, status, chunk_count, uploaded_by, created_at, updated_at`

// CreateDocument registers a document in pending status. A missing ID
// is generated; language defaults to "sw" and MIME type to
// application/pdf, matching the upload conventions.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	if doc.Language == "" {
		doc.Language = "sw"
	}
	if doc.MimeType == "" {
		doc.MimeType = "application/pdf"
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, title, filename, blob_url, file_size, mime_type,
			subject, level, language, status, chunk_count, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11)`,
		doc.ID, doc.Title, doc.Filename, textOrNull(doc.BlobURL), doc.FileSize,
		textOrNull(doc.MimeType), textOrNull(doc.Subject), textOrNull(doc.Level),
		textOrNull(doc.Language), doc.Status, textOrNull(doc.UploadedBy))
	if err != nil {
		return fmt.Errorf("%w: creating document %q: %v", ErrWrite, doc.ID, err)
	}

	s.logger.Debug("created document", "id", doc.ID, "filename", doc.Filename)
	return nil
}

// GetDocument fetches a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row, id)
}

// GetDocumentByFilename fetches a document by its source filename.
// Used by the bulk seeder to avoid re-creating documents.
func (s *Store) GetDocumentByFilename(ctx context.Context, filename string) (*Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE filename = $1 LIMIT 1`, filename)
	return scanDocument(row, filename)
}

// ListDocuments returns documents matching the filter, newest first.
func (s *Store) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Subject != "" {
		add("subject = $%d", filter.Subject)
	}
	if filter.Level != "" {
		add("level = $%d", filter.Level)
	}
	if filter.Search != "" {
		add("(title ILIKE $%d OR filename ILIKE $%[1]d)", "%"+filter.Search+"%")
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows, "")
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document; its chunks cascade away with it.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.logger.Debug("deleted document", "id", id)
	return nil
}

// Stats aggregates document and chunk counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'processing'),
			count(*) FILTER (WHERE status = 'ready'),
			count(*) FILTER (WHERE status = 'error'),
			(SELECT count(*) FROM chunks)
		FROM documents`).
		Scan(&st.Total, &st.Pending, &st.Processing, &st.Ready, &st.Errors, &st.TotalChunks)
	if err != nil {
		return nil, fmt.Errorf("aggregating stats: %w", err)
	}
	return &st, nil
}

// BeginProcessing transitions a document out of pending or error into
// processing. The conditional update is the mutual-exclusion gate for
// re-ingestion: a concurrent attempt that loses the race gets
// ErrAlreadyProcessing rather than racing the pipeline.
func (s *Store) BeginProcessing(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)`,
		id, StatusProcessing, StatusPending, StatusError)
	if err != nil {
		return fmt.Errorf("marking document %q processing: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status == StatusProcessing {
		return fmt.Errorf("%w: %q", ErrAlreadyProcessing, id)
	}
	return fmt.Errorf("document %q in status %q cannot be ingested", id, doc.Status)
}

// MarkReady records successful ingestion, setting the chunk count in
// the same statement so the cached count can never drift from the
// write that produced it.
func (s *Store) MarkReady(ctx context.Context, id string, chunkCount int) error {
	return s.setStatus(ctx, id, StatusReady, chunkCount)
}

// MarkError records a failed ingestion. The chunk count resets to
// zero; the retry path clears any partial chunks before redoing the
// pipeline.
func (s *Store) MarkError(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusError, 0)
}

func (s *Store) setStatus(ctx context.Context, id, status string, chunkCount int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = $2, chunk_count = $3, updated_at = now()
		WHERE id = $1`, id, status, chunkCount)
	if err != nil {
		return fmt.Errorf("updating document %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return nil
}

// InsertChunks writes chunk records in one batch, preserving the
// caller's order. Chunks must carry their denormalized document
// metadata; the store does not join back to documents.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (id, document_id, chunk_index, content, content_length,
				embedding, subject, level, language, source_page)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ID, c.DocumentID, c.ChunkIndex, c.Content, c.ContentLength,
			pgvector.NewVector(c.Embedding), textOrNull(c.Subject),
			textOrNull(c.Level), textOrNull(c.Language), textOrNull(c.SourcePage))
	}

	br := s.pool.SendBatch(ctx, batch)
	var execErr error
	for range chunks {
		if _, err := br.Exec(); err != nil && execErr == nil {
			execErr = err
		}
	}
	if err := br.Close(); err != nil && execErr == nil {
		execErr = err
	}
	if execErr != nil {
		return fmt.Errorf("%w: inserting %d chunks: %v", ErrWrite, len(chunks), execErr)
	}

	s.logger.Debug("inserted chunks", "count", len(chunks), "document_id", chunks[0].DocumentID)
	return nil
}

// DeleteChunks removes all chunks of a document and returns how many
// were deleted. The retry path calls this before re-ingesting.
func (s *Store) DeleteChunks(ctx context.Context, documentID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks of document %q: %w", documentID, err)
	}
	return tag.RowsAffected(), nil
}

// CountChunks returns the number of chunks attached to a document.
func (s *Store) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks of document %q: %w", documentID, err)
	}
	return n, nil
}

// HasChunks reports whether any chunk exists for a document.
func (s *Store) HasChunks(ctx context.Context, documentID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chunks WHERE document_id = $1)`, documentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking chunks of document %q: %w", documentID, err)
	}
	return exists, nil
}

// SearchQuery parameterizes a hybrid chunk search. Subject and Level
// are soft filters: they feed the metadata term of the score, they do
// not exclude rows. Threshold is the hard similarity floor.
type SearchQuery struct {
	Embedding []float32
	Subject   string
	Level     string
	Alpha     float64
	Gamma     float64
	Threshold float64
	Limit     int
}

// SearchChunks ranks chunks by the weighted hybrid score
// alpha*similarity + gamma*metadataMatch, keeping only chunks whose
// dense similarity strictly exceeds the threshold. Ties break on chunk
// ID so results are reproducible for a fixed corpus.
func (s *Store) SearchChunks(ctx context.Context, q SearchQuery) ([]RetrievalResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, content, subject, level, language, source_page,
			1 - (embedding <=> $1) AS similarity,
			$4::float8 * (1 - (embedding <=> $1)) +
			$5::float8 * (CASE WHEN ($2::varchar IS NULL OR subject = $2)
				AND ($3::varchar IS NULL OR level = $3)
				THEN 1.0 ELSE 0.0 END) AS final_score
		FROM chunks
		WHERE 1 - (embedding <=> $1) > $6
		ORDER BY final_score DESC, id
		LIMIT $7`,
		pgvector.NewVector(q.Embedding), textOrNull(q.Subject), textOrNull(q.Level),
		q.Alpha, q.Gamma, q.Threshold, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []RetrievalResult
	for rows.Next() {
		var res RetrievalResult
		var subject, level, lang, sourcePage pgtype.Text
		if err := rows.Scan(&res.ChunkID, &res.DocumentID, &res.ChunkIndex, &res.Content,
			&subject, &level, &lang, &sourcePage, &res.Similarity, &res.FinalScore); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		res.Subject = subject.String
		res.Level = level.String
		res.Language = lang.String
		res.SourcePage = sourcePage.String
		results = append(results, res)
	}
	return results, rows.Err()
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// scanDocument reads one document row; key identifies the lookup in
// the ErrNotFound message.
func scanDocument(row pgx.Row, key string) (*Document, error) {
	var doc Document
	var blobURL, mimeType, subject, level, lang, uploader pgtype.Text
	err := row.Scan(&doc.ID, &doc.Title, &doc.Filename, &blobURL, &doc.FileSize,
		&mimeType, &subject, &level, &lang, &doc.Status, &doc.ChunkCount,
		&uploader, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document row: %w", err)
	}

	doc.BlobURL = blobURL.String
	doc.MimeType = mimeType.String
	doc.Subject = subject.String
	doc.Level = level.String
	doc.Language = lang.String
	doc.UploadedBy = uploader.String
	return &doc, nil
}
