// Package audit records one row per completed estimation so outputs can be
// traced back to retrieved evidence and raw model responses. Recording is
// best effort: a failed insert is logged and swallowed, never surfaced to
// the user-facing request.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/plateiq/plateiq/internal/log"
)

// recordTimeout bounds each insert independently of the caller's context,
// so audit writes still land when the request deadline is nearly exhausted.
const recordTimeout = 5 * time.Second

// Entry is one audit record. RawResponse holds the model output verbatim,
// including malformed attempts, for offline inspection.
type Entry struct {
	Mode        string
	QueryHash   string
	ChunkIDs    []uuid.UUID
	Provider    string
	Model       string
	RawResponse string
	Outcome     string
	Confidence  int
	LatencyMS   int64
}

// Logger persists audit entries.
type Logger struct {
	db     DB
	logger log.Logger
}

// DB is the subset of *pgxpool.Pool the audit logger uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// New creates an audit Logger.
func New(db DB, logger log.Logger) *Logger {
	return &Logger{db: db, logger: logger}
}

// HashQuery returns a stable fingerprint of the user query. Raw text stays
// out of the audit table.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// Record inserts the entry. Errors are logged and dropped; the estimation
// result has already been decided by the time this runs.
func (l *Logger) Record(ctx context.Context, e Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	ids := make([]string, len(e.ChunkIDs))
	for i, id := range e.ChunkIDs {
		ids[i] = id.String()
	}

	_, err := l.db.Exec(ctx, `
		INSERT INTO audit_log (mode, query_hash, chunk_ids, provider, model, raw_response, outcome, confidence, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.Mode, e.QueryHash, ids, e.Provider, e.Model, e.RawResponse, e.Outcome, e.Confidence, e.LatencyMS,
	)
	if err != nil {
		l.logger.Error("audit record failed",
			"mode", e.Mode,
			"outcome", e.Outcome,
			"error", fmt.Errorf("inserting audit entry: %w", err))
	}
}
