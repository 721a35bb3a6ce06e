package index

import "time"

// Document lifecycle statuses. A document starts pending, moves to
// processing the instant ingestion begins, and ends in ready or error.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusError      = "error"
)

// Curriculum vocabulary. Dropdowns and validators across collaborators
// pick these up; extend here when new subjects or levels are added.
var (
	Subjects  = []string{"History", "Civics", "Geography", "Literature", "Biology"}
	Levels    = []string{"Form 1", "Form 2", "Form 3", "Form 4"}
	Languages = []string{"sw", "en", "mixed"}
)

// Document is a curriculum source file registered for ingestion.
type Document struct {
	ID       string
	Title    string
	Filename string

	// BlobURL locates the raw bytes: an http(s) URL or a local path.
	BlobURL  string
	FileSize int64
	MimeType string

	Subject  string
	Level    string
	Language string

	Status string

	// ChunkCount caches the number of chunk rows referencing this
	// document. Set atomically when ingestion completes and reset on
	// deletion; it must never drift from the actual count.
	ChunkCount int

	UploadedBy string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chunk is one retrievable unit of text derived from a document.
// Chunks are immutable once written; re-ingestion deletes and
// recreates them.
type Chunk struct {
	ID            string
	DocumentID    string
	ChunkIndex    int
	Content       string
	ContentLength int
	Embedding     []float32

	// Subject, Level and Language are denormalized copies of the
	// owning document's metadata at ingestion time. Retrieval filters
	// and scores against these columns without a join, and they stay
	// stable even if the document's metadata is later edited.
	Subject  string
	Level    string
	Language string

	SourcePage string
	CreatedAt  time.Time
}

// RetrievalResult is a chunk projected with its scores for one query.
// Ordering in the returned slice is the retriever's primary contract.
type RetrievalResult struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Content    string
	Subject    string
	Level      string
	Language   string
	SourcePage string

	// Similarity is 1 - cosineDistance(chunk, query), roughly [-1, 1].
	Similarity float64

	// FinalScore is the weighted hybrid score used for ranking.
	FinalScore float64
}

// DocumentFilter narrows ListDocuments. Zero values mean "no filter";
// Search matches title or filename case-insensitively.
type DocumentFilter struct {
	Status  string
	Subject string
	Level   string
	Search  string
}

// Stats aggregates corpus counts for dashboards.
type Stats struct {
	Total       int
	Pending     int
	Processing  int
	Ready       int
	Errors      int
	TotalChunks int
}
