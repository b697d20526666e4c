// Package knowledge manages the document store for the estimation pipeline:
// transactional ingestion of documents and their chunk sets, vector and text
// search primitives, and the storage health check.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/plateiq/plateiq/internal/chunker"
	"github.com/plateiq/plateiq/internal/log"
)

// Embedder is the slice of the embedding client the store uses. Defined on
// the consumer side; embedding.Client satisfies it, tests inject fakes.
//
// EmbedBatch never errors: entries without a vector representation come back
// empty, and the store persists NULL for them.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) [][]float32
	EmbedQuery(ctx context.Context, query string) []float32
	Available() bool
}

// Store manages knowledge documents and chunks in PostgreSQL.
// Safe for concurrent use by multiple goroutines.
type Store struct {
	db       DB
	embedder Embedder
	defaults chunker.Options
	logger   log.Logger
}

// NewStore creates a Store.
//
// defaults configures chunking for ingestions that carry no overrides.
func NewStore(db DB, embedder Embedder, defaults chunker.Options, logger log.Logger) *Store {
	return &Store{
		db:       db,
		embedder: embedder,
		defaults: defaults,
		logger:   logger,
	}
}

// VectorSearchAvailable reports whether the vector retrieval path can work
// at all: it requires an embedding provider for the query vector.
func (s *Store) VectorSearchAvailable() bool {
	return s.embedder.Available()
}

// Upsert ingests a document as one atomic transaction.
//
// If a document with the title exists, its category fields and metadata are
// updated in place and all of its chunks are deleted before the new set is
// inserted as a full replace.
// Chunks are embedded in batches before the transaction opens; chunks without
// a vector are stored with a NULL embedding and remain reachable through text
// search.
//
// Concurrent upserts of the same title are serialized by a transaction-scoped
// advisory lock on the title hash, so a reader never observes a partially
// replaced chunk set and the last committer wins deterministically.
// Different titles do not block each other.
//
// Any failure rolls back the document and all chunks and is returned to the
// caller.
func (s *Store) Upsert(ctx context.Context, p UpsertParams) (UpsertResult, error) {
	if strings.TrimSpace(p.Title) == "" {
		return UpsertResult{}, fmt.Errorf("%w: title must not be empty", ErrInvalidDocument)
	}
	if strings.TrimSpace(p.DocType) == "" {
		return UpsertResult{}, fmt.Errorf("%w: doc type must not be empty", ErrInvalidDocument)
	}

	opts := s.defaults
	if p.ChunkTargetTokens > 0 {
		opts.TargetTokens = p.ChunkTargetTokens
	}
	if p.ChunkOverlapTokens > 0 {
		opts.OverlapTokens = p.ChunkOverlapTokens
	}

	chunks := chunker.New(opts).Split(p.Text)
	if len(chunks) == 0 {
		return UpsertResult{}, fmt.Errorf("%w: title %q", ErrEmptyDocument, p.Title)
	}

	// Provider round trips stay outside the transaction; a slow or failing
	// embedder must not hold locks. Failed embeddings come back empty and
	// are stored as NULL.
	vectors := s.embedder.EmbedBatch(ctx, chunks)

	docMetadata, err := json.Marshal(orEmpty(p.Metadata))
	if err != nil {
		return UpsertResult{}, fmt.Errorf("marshaling document metadata: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("beginning ingestion transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Serialize same-title ingestion; hashtext keeps distinct titles apart.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.Title); err != nil {
		return UpsertResult{}, fmt.Errorf("acquiring title lock: %w", err)
	}

	var docID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO documents (id, title, source_type, doc_type, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (title) DO UPDATE SET
			source_type = EXCLUDED.source_type,
			doc_type    = EXCLUDED.doc_type,
			metadata    = EXCLUDED.metadata,
			updated_at  = now()
		RETURNING id`,
		uuid.New(), p.Title, p.SourceType, p.DocType, docMetadata,
	).Scan(&docID)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upserting document %q: %w", p.Title, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID); err != nil {
		return UpsertResult{}, fmt.Errorf("deleting previous chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for i, content := range chunks {
		metadata := make(map[string]string, len(p.Metadata)+1)
		for k, v := range p.Metadata {
			metadata[k] = v
		}
		metadata["chunk_index"] = strconv.Itoa(i)

		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("marshaling chunk metadata: %w", err)
		}

		var embedding *pgvector.Vector
		if len(vectors[i]) > 0 {
			v := pgvector.NewVector(vectors[i])
			embedding = &v
		}

		batch.Queue(`
			INSERT INTO chunks (id, document_id, chunk_index, content, metadata, embedding, token_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), docID, i, content, metadataJSON, embedding, chunker.EstimateTokens(content),
		)
	}

	results := tx.SendBatch(ctx, batch)
	written := 0
	for range chunks {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return UpsertResult{}, fmt.Errorf("inserting chunk %d of %q: %w", written, p.Title, err)
		}
		written++
	}
	if err := results.Close(); err != nil {
		return UpsertResult{}, fmt.Errorf("closing chunk insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertResult{}, fmt.Errorf("committing ingestion of %q: %w", p.Title, err)
	}

	s.logger.Debug("document ingested",
		"title", p.Title, "doc_type", p.DocType, "chunks", written)

	return UpsertResult{DocumentID: docID, ChunkCount: written}, nil
}

// GetDocument returns a document by title, or pgx.ErrNoRows.
func (s *Store) GetDocument(ctx context.Context, title string) (Document, error) {
	var (
		doc      Document
		metadata []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, title, source_type, doc_type, metadata, created_at, updated_at
		FROM documents WHERE title = $1`, title,
	).Scan(&doc.ID, &doc.Title, &doc.SourceType, &doc.DocType, &metadata, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("loading document %q: %w", title, err)
	}
	if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
		s.logger.Warn("failed to parse document metadata", "title", title, "error", err)
		doc.Metadata = map[string]string{}
	}
	return doc, nil
}

// GetChunks returns a document's chunks ordered by chunk index.
func (s *Store) GetChunks(ctx context.Context, documentID uuid.UUID) ([]Chunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, chunk_index, content, metadata, token_count
		FROM chunks WHERE document_id = $1
		ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c        Chunk
			metadata []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &metadata, &c.TokenCount); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "chunk_id", c.ID, "error", err)
			c.Metadata = map[string]string{}
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk rows: %w", err)
	}
	return chunks, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
