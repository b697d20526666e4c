package knowledge

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Document-type categories for knowledge documents. Retrieval presets filter
// on these groups.
const (
	// DocTypeRule holds estimation rules (portion defaults, rounding policy).
	DocTypeRule = "rule"

	// DocTypeFood holds per-food nutrition facts.
	DocTypeFood = "food"

	// DocTypePortion holds portion-size reference material.
	DocTypePortion = "portion"

	// DocTypeConversion holds unit and cooking-state conversions.
	DocTypeConversion = "conversion"

	// DocTypeSupport holds coaching and swap-suggestion guidance.
	DocTypeSupport = "support"
)

var (
	// ErrEmptyDocument indicates ingestion input produced no chunks. A
	// document must never be observably present with a zero chunk set, so
	// the upsert is refused before touching storage.
	ErrEmptyDocument = errors.New("document text produced no chunks")

	// ErrInvalidDocument indicates missing required document fields.
	ErrInvalidDocument = errors.New("invalid document")
)

// Document is an ingested knowledge document. Identity key is Title:
// re-ingesting under the same title fully replaces the chunk set.
type Document struct {
	ID         uuid.UUID
	Title      string
	SourceType string
	DocType    string
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chunk is a bounded, contiguous slice of a document's text; the unit of
// retrieval. ChunkIndex values form the contiguous sequence 0..N-1 within a
// document.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	Metadata   map[string]string
	TokenCount int
}

// RetrievedChunk is a transient retrieval result: a chunk annotated with its
// similarity score and parent document context. It is never persisted.
type RetrievedChunk struct {
	Chunk
	DocTitle   string
	DocType    string
	Similarity float64
}

// UpsertParams are the inputs for one ingestion call.
type UpsertParams struct {
	Title      string
	SourceType string
	DocType    string
	Text       string
	Metadata   map[string]string

	// Chunking overrides; zero values use the store defaults.
	ChunkTargetTokens  int
	ChunkOverlapTokens int
}

// UpsertResult reports a committed ingestion.
type UpsertResult struct {
	DocumentID uuid.UUID
	ChunkCount int
}

// Health reports storage readiness for operational tooling: whether the
// pgvector extension is installed, whether the three backing tables exist,
// and current row counts.
type Health struct {
	VectorExtension bool
	Tables          map[string]bool
	Documents       int64
	Chunks          int64
}

// Ready reports whether every backing table exists.
func (h Health) Ready() bool {
	for _, ok := range h.Tables {
		if !ok {
			return false
		}
	}
	return len(h.Tables) > 0
}
