package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// SearchVector runs cosine-similarity search over chunks that carry vectors,
// optionally restricted to document-type groups. Results are ordered by
// similarity descending. Chunks without an embedding are invisible to this
// path; they remain reachable through SearchText.
func (s *Store) SearchVector(ctx context.Context, queryVector []float32, docTypes []string, limit int) ([]RetrievedChunk, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 8
	}

	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.metadata, c.token_count,
		       d.title, d.doc_type,
		       1 - (c.embedding <=> $1) AS similarity
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL
		  AND ($2::text[] IS NULL OR d.doc_type = ANY($2))
		ORDER BY c.embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(queryVector), nullable(docTypes), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	return s.scanRetrieved(rows)
}

// SearchText recalls candidate chunks by full-text search over the given
// query terms (OR semantics, so partial matches surface). Similarity scores
// are left at zero: the retriever re-scores candidates lexically onto the
// same 0..1 scale the vector path uses.
//
// This path needs no extension and no provider; it is the universal fallback.
func (s *Store) SearchText(ctx context.Context, terms []string, docTypes []string, limit int) ([]RetrievedChunk, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 8
	}

	query := strings.Join(terms, " OR ")
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.metadata, c.token_count,
		       d.title, d.doc_type,
		       0::float8 AS similarity
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE ($2::text[] IS NULL OR d.doc_type = ANY($2))
		  AND to_tsvector('english', c.content) @@ websearch_to_tsquery('english', $1)
		ORDER BY ts_rank(to_tsvector('english', c.content), websearch_to_tsquery('english', $1)) DESC
		LIMIT $3`,
		query, nullable(docTypes), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	return s.scanRetrieved(rows)
}

// scanRetrieved converts result rows into RetrievedChunk values.
func (s *Store) scanRetrieved(rows pgx.Rows) ([]RetrievedChunk, error) {
	var results []RetrievedChunk
	for rows.Next() {
		var (
			rc       RetrievedChunk
			metadata []byte
		)
		if err := rows.Scan(
			&rc.ID, &rc.DocumentID, &rc.ChunkIndex, &rc.Content, &metadata, &rc.TokenCount,
			&rc.DocTitle, &rc.DocType, &rc.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if err := json.Unmarshal(metadata, &rc.Metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "chunk_id", rc.ID, "error", err)
			rc.Metadata = map[string]string{}
		}
		results = append(results, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return results, nil
}

// nullable maps an empty slice to nil so the SQL filter collapses.
func nullable(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	return ss
}
