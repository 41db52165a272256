package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/user/vulnvalid/pkg/report"
	"github.com/user/vulnvalid/pkg/triage"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Store persists validation runs in PostgreSQL. Persistence is optional: the
// CLI only constructs a Store when a DSN is configured.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New verifies the connection and returns a store.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS validation_runs (
    run_id       TEXT PRIMARY KEY,
    created_at   TIMESTAMPTZ NOT NULL,
    report_path  TEXT NOT NULL,
    target_url   TEXT,
    mode         TEXT NOT NULL,
    summary      JSONB NOT NULL,
    verdicts     JSONB NOT NULL
);`

// EnsureSchema creates the runs table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveRun persists one completed validation run.
func (s *Store) SaveRun(ctx context.Context, r *report.FinalReport) error {
	summaryJSON, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	verdictsJSON, err := json.Marshal(r.Verdicts)
	if err != nil {
		return fmt.Errorf("failed to encode verdicts: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
        INSERT INTO validation_runs (run_id, created_at, report_path, target_url, mode, summary, verdicts)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.Metadata.RunID,
		r.Metadata.GeneratedAt.UTC(),
		r.Metadata.ReportPath,
		r.Metadata.TargetURL,
		r.Metadata.Mode,
		summaryJSON,
		verdictsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.Metadata.RunID, err)
	}

	s.log.Info("Validation run persisted", zap.String("run_id", r.Metadata.RunID))
	return nil
}

// RunRow is one entry of the run history listing.
type RunRow struct {
	RunID      string
	CreatedAt  time.Time
	ReportPath string
	Mode       string
	Summary    triage.Summary
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
        SELECT run_id, created_at, report_path, mode, summary
        FROM validation_runs
        ORDER BY created_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []RunRow
	for rows.Next() {
		var row RunRow
		var summaryJSON []byte
		if err := rows.Scan(&row.RunID, &row.CreatedAt, &row.ReportPath, &row.Mode, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if err := json.Unmarshal(summaryJSON, &row.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary for run %s: %w", row.RunID, err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}
