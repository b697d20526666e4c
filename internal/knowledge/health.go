package knowledge

import (
	"context"
	"fmt"
)

// backingTables are the three tables the pipeline persists into.
var backingTables = []string{"documents", "chunks", "audit_log"}

// Health inspects storage readiness: pgvector extension presence, backing
// table existence, and document/chunk counts. Intended for operational
// tooling before first use; a missing extension or table is reported, not
// treated as an error.
func (s *Store) Health(ctx context.Context) (Health, error) {
	h := Health{Tables: make(map[string]bool, len(backingTables))}

	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`,
	).Scan(&h.VectorExtension); err != nil {
		return Health{}, fmt.Errorf("checking vector extension: %w", err)
	}

	for _, table := range backingTables {
		var regclass *string
		if err := s.db.QueryRow(ctx,
			`SELECT to_regclass('public.' || $1)::text`, table,
		).Scan(&regclass); err != nil {
			return Health{}, fmt.Errorf("checking table %s: %w", table, err)
		}
		h.Tables[table] = regclass != nil
	}

	if h.Tables["documents"] {
		if err := s.db.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&h.Documents); err != nil {
			return Health{}, fmt.Errorf("counting documents: %w", err)
		}
	}
	if h.Tables["chunks"] {
		if err := s.db.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&h.Chunks); err != nil {
			return Health{}, fmt.Errorf("counting chunks: %w", err)
		}
	}

	return h, nil
}
