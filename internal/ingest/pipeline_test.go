package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"go.uber.org/goleak"

	"github.com/darasa-ai/darasa/internal/embedding"
	"github.com/darasa-ai/darasa/internal/index"
	"github.com/darasa-ai/darasa/internal/log"
	"github.com/darasa-ai/darasa/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStore is an in-memory Store/SeedStore tracking documents and
// chunks, with optional injected failures.
type fakeStore struct {
	mu     sync.Mutex
	docs   map[string]*index.Document
	chunks map[string][]index.Chunk

	insertErr error
	beginErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:   make(map[string]*index.Document),
		chunks: make(map[string][]index.Chunk),
	}
}

func (f *fakeStore) addDocument(doc index.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc.Status == "" {
		doc.Status = index.StatusPending
	}
	if doc.Language == "" {
		doc.Language = "sw"
	}
	f.docs[doc.ID] = &doc
}

func (f *fakeStore) CreateDocument(ctx context.Context, doc *index.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.addDocument(*doc)
	return nil
}

func (f *fakeStore) GetDocument(ctx context.Context, id string) (*index.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, index.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeStore) GetDocumentByFilename(ctx context.Context, filename string) (*index.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs {
		if doc.Filename == filename {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, index.ErrNotFound
}

func (f *fakeStore) BeginProcessing(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beginErr != nil {
		return f.beginErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return index.ErrNotFound
	}
	if doc.Status == index.StatusProcessing {
		return index.ErrAlreadyProcessing
	}
	if doc.Status != index.StatusPending && doc.Status != index.StatusError {
		return fmt.Errorf("document %s is %s", id, doc.Status)
	}
	doc.Status = index.StatusProcessing
	return nil
}

func (f *fakeStore) MarkReady(ctx context.Context, id string, chunkCount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].Status = index.StatusReady
	f.docs[id].ChunkCount = chunkCount
	return nil
}

func (f *fakeStore) MarkError(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].Status = index.StatusError
	f.docs[id].ChunkCount = 0
	return nil
}

func (f *fakeStore) InsertChunks(ctx context.Context, chunks []index.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, c := range chunks {
		f.chunks[c.DocumentID] = append(f.chunks[c.DocumentID], c)
	}
	return nil
}

func (f *fakeStore) DeleteChunks(ctx context.Context, documentID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.chunks[documentID])
	delete(f.chunks, documentID)
	return int64(n), nil
}

func (f *fakeStore) HasChunks(ctx context.Context, documentID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks[documentID]) > 0, nil
}

func (f *fakeStore) documentStatus(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].Status
}

func (f *fakeStore) chunkRows(id string) []index.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]index.Chunk(nil), f.chunks[id]...)
}

// memFetcher serves document bytes from memory, keyed by location.
type memFetcher struct {
	files map[string][]byte
}

func (m *memFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	data, ok := m.files[location]
	if !ok {
		return nil, fmt.Errorf("no blob at %s", location)
	}
	return data, nil
}

func testPipeline(store *fakeStore, embedder embedding.Embedder, fetcher Fetcher, opts Options) *Pipeline {
	return NewPipeline(store, embedder, fetcher, opts, log.NewNop())
}

func textDocument(id, content string) (index.Document, *memFetcher) {
	doc := index.Document{
		ID:       id,
		Title:    "Historia ya Afrika Mashariki",
		Filename: id + ".txt",
		BlobURL:  "blob://" + id,
		MimeType: "text/plain",
		Subject:  "History",
		Level:    "Form 2",
		Language: "sw",
	}
	fetcher := &memFetcher{files: map[string][]byte{doc.BlobURL: []byte(content)}}
	return doc, fetcher
}

func TestIngestWritesContiguousChunks(t *testing.T) {
	store := newFakeStore()
	text := strings.Repeat("Uhuru wa Tanganyika ulipatikana mwaka 1961. ", 40)
	doc, fetcher := textDocument("doc-1", text)
	store.addDocument(doc)

	p := testPipeline(store, &testutil.StubEmbedder{Dim: 8}, fetcher, Options{
		ChunkSize:    200,
		ChunkOverlap: 20,
	})

	count, err := p.Ingest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Ingest(): %v", err)
	}
	if count == 0 {
		t.Fatal("Ingest() wrote no chunks")
	}
	if got := store.documentStatus("doc-1"); got != index.StatusReady {
		t.Errorf("status = %q, want ready", got)
	}

	rows := store.chunkRows("doc-1")
	if len(rows) != count {
		t.Fatalf("stored %d chunks, Ingest reported %d", len(rows), count)
	}
	for i, c := range rows {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d, indexes must be contiguous", i, c.ChunkIndex)
		}
		if c.Subject != "History" || c.Level != "Form 2" || c.Language != "sw" {
			t.Errorf("chunk %d metadata = %s/%s/%s, want document metadata", i, c.Subject, c.Level, c.Language)
		}
		if len(c.Embedding) != 8 {
			t.Errorf("chunk %d embedding length = %d, want 8", i, len(c.Embedding))
		}
		if c.ContentLength != utf8.RuneCountInString(c.Content) {
			t.Errorf("chunk %d contentLength = %d, content is %d chars", i, c.ContentLength, utf8.RuneCountInString(c.Content))
		}
	}
}

func TestIngestMultibyteContent(t *testing.T) {
	store := newFakeStore()
	text := strings.Repeat("Élève àçôdé — résumé für Schüler. ", 60)
	doc, fetcher := textDocument("doc-1", text)
	store.addDocument(doc)

	p := testPipeline(store, &testutil.StubEmbedder{Dim: 8}, fetcher, Options{
		ChunkSize:    120,
		ChunkOverlap: 20,
	})

	if _, err := p.Ingest(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Ingest(): %v", err)
	}
	for i, c := range store.chunkRows("doc-1") {
		if !utf8.ValidString(c.Content) {
			t.Fatalf("chunk %d content is not valid UTF-8", i)
		}
		if c.ContentLength != utf8.RuneCountInString(c.Content) {
			t.Errorf("chunk %d contentLength = %d, want rune count %d",
				i, c.ContentLength, utf8.RuneCountInString(c.Content))
		}
	}
}

func TestIngestIsRepeatable(t *testing.T) {
	store := newFakeStore()
	text := strings.Repeat("A. B. C. ", 100)
	doc, fetcher := textDocument("doc-1", text)
	store.addDocument(doc)

	p := testPipeline(store, &testutil.StubEmbedder{Dim: 8}, fetcher, Options{
		ChunkSize:    120,
		ChunkOverlap: 12,
	})

	first, err := p.Ingest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("first Ingest(): %v", err)
	}

	// A ready document is not re-ingestible through the claim gate.
	if _, err := p.Ingest(context.Background(), "doc-1"); err == nil {
		t.Fatal("second Ingest() on ready document should fail")
	}

	// After an error the document may be retried, and the retry starts
	// from scratch rather than appending.
	store.mu.Lock()
	store.docs["doc-1"].Status = index.StatusError
	store.mu.Unlock()

	second, err := p.Ingest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("retry Ingest(): %v", err)
	}
	if second != first {
		t.Errorf("retry produced %d chunks, first run produced %d", second, first)
	}
	if rows := store.chunkRows("doc-1"); len(rows) != first {
		t.Errorf("stored %d chunks after retry, want %d", len(rows), first)
	}
}

func TestIngestEmptyDocument(t *testing.T) {
	store := newFakeStore()
	doc, fetcher := textDocument("doc-1", "   \n\n\t  ")
	store.addDocument(doc)

	p := testPipeline(store, &testutil.StubEmbedder{Dim: 8}, fetcher, Options{})

	_, err := p.Ingest(context.Background(), "doc-1")
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("Ingest() error = %v, want ErrEmptyDocument", err)
	}
	if got := store.documentStatus("doc-1"); got != index.StatusError {
		t.Errorf("status = %q, want error", got)
	}
}

func TestIngestEmbeddingFailureLeavesNoChunks(t *testing.T) {
	store := newFakeStore()
	text := strings.Repeat("Maji hujaa baharini kila siku. ", 200)
	doc, fetcher := textDocument("doc-1", text)
	store.addDocument(doc)

	embedErr := errors.New("provider unavailable")
	p := testPipeline(store, &testutil.StubEmbedder{Dim: 8, Err: embedErr, FailAfter: 1}, fetcher, Options{
		ChunkSize:      150,
		ChunkOverlap:   0,
		EmbedBatchSize: 3,
	})

	_, err := p.Ingest(context.Background(), "doc-1")
	if !errors.Is(err, embedErr) {
		t.Fatalf("Ingest() error = %v, want wrapped %v", err, embedErr)
	}
	if got := store.documentStatus("doc-1"); got != index.StatusError {
		t.Errorf("status = %q, want error", got)
	}
	if rows := store.chunkRows("doc-1"); len(rows) != 0 {
		t.Errorf("failed ingestion left %d chunks behind, want 0", len(rows))
	}
}

func TestIngestInsertFailure(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("index unavailable")
	doc, fetcher := textDocument("doc-1", strings.Repeat("Somo la kwanza. ", 50))
	store.addDocument(doc)

	p := testPipeline(store, &testutil.StubEmbedder{Dim: 8}, fetcher, Options{})

	_, err := p.Ingest(context.Background(), "doc-1")
	if !errors.Is(err, store.insertErr) {
		t.Fatalf("Ingest() error = %v, want wrapped %v", err, store.insertErr)
	}
	if got := store.documentStatus("doc-1"); got != index.StatusError {
		t.Errorf("status = %q, want error", got)
	}
}

func TestIngestClaimFailsFast(t *testing.T) {
	store := newFakeStore()
	doc, fetcher := textDocument("doc-1", "Habari za asubuhi.")
	doc.Status = index.StatusProcessing
	store.addDocument(doc)

	embedder := &testutil.StubEmbedder{Dim: 8}
	p := testPipeline(store, embedder, fetcher, Options{})

	_, err := p.Ingest(context.Background(), "doc-1")
	if !errors.Is(err, index.ErrAlreadyProcessing) {
		t.Fatalf("Ingest() error = %v, want ErrAlreadyProcessing", err)
	}
	if embedder.Calls() != 0 {
		t.Errorf("pipeline did %d embed calls before the claim, want 0", embedder.Calls())
	}
	// Fail-fast must not clobber the other worker's state.
	if got := store.documentStatus("doc-1"); got != index.StatusProcessing {
		t.Errorf("status = %q, want processing untouched", got)
	}
}

func TestIngestUnknownDocument(t *testing.T) {
	store := newFakeStore()
	p := testPipeline(store, &testutil.StubEmbedder{Dim: 8}, &memFetcher{}, Options{})

	_, err := p.Ingest(context.Background(), "missing")
	if !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("Ingest() error = %v, want ErrNotFound", err)
	}
}

// cancellingEmbedder cancels the context on its first call and fails
// the way a real provider call does when its request is interrupted.
type cancellingEmbedder struct {
	inner  *testutil.StubEmbedder
	cancel context.CancelFunc
}

func (e *cancellingEmbedder) Dimensions() int { return e.inner.Dimensions() }

func (e *cancellingEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *cancellingEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	e.cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.inner.EmbedMany(ctx, texts)
}

func TestIngestHonoursCancellation(t *testing.T) {
	store := newFakeStore()
	text := strings.Repeat("Sentensi ndefu kuhusu historia ya nchi. ", 200)
	doc, fetcher := textDocument("doc-1", text)
	store.addDocument(doc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The fake store fails on a cancelled context like pgxpool does,
	// so the error-status write only lands if the pipeline detaches it
	// from the cancelled request context.
	embedder := &cancellingEmbedder{inner: &testutil.StubEmbedder{Dim: 8}, cancel: cancel}
	p := testPipeline(store, embedder, fetcher, Options{
		ChunkSize:      100,
		ChunkOverlap:   0,
		EmbedBatchSize: 2,
	})

	_, err := p.Ingest(ctx, "doc-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Ingest() error = %v, want context.Canceled", err)
	}
	if got := store.documentStatus("doc-1"); got != index.StatusError {
		t.Errorf("status = %q, want error, not a document stuck in processing", got)
	}
	if rows := store.chunkRows("doc-1"); len(rows) != 0 {
		t.Errorf("cancelled ingestion left %d chunks behind, want 0", len(rows))
	}
}
