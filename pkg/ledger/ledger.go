// Package ledger keeps a SQLite record of every request sent to the catalog
// provider.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mtgmarket/cardgate/pkg/models"
)

// Ledger stores upstream calls in a SQLite database.
type Ledger struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS upstream_calls (
	id TEXT PRIMARY KEY,
	endpoint TEXT NOT NULL,
	path TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upstream_calls_time ON upstream_calls(created_at);
`

// New opens (or creates) the ledger at dbPath and runs auto-migration.
func New(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY
	// when several requests finish at once.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record stores an upstream call.
func (l *Ledger) Record(ctx context.Context, call models.UpstreamCall) error {
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO upstream_calls (id, endpoint, path, status_code, latency_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		call.ID, call.Endpoint, call.Path, call.StatusCode, call.LatencyMs, call.Error, call.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record upstream call: %w", err)
	}
	return nil
}

// Summary aggregates calls per endpoint since the given time. A call counts
// as an error when it failed in transport or got a non-2xx status.
func (l *Ledger) Summary(ctx context.Context, since time.Time) ([]models.EndpointSummary, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT endpoint, COUNT(*),
			SUM(CASE WHEN error != '' OR status_code < 200 OR status_code > 299 THEN 1 ELSE 0 END),
			AVG(latency_ms)
		 FROM upstream_calls WHERE created_at >= ?
		 GROUP BY endpoint ORDER BY endpoint`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.EndpointSummary
	for rows.Next() {
		var s models.EndpointSummary
		if err := rows.Scan(&s.Endpoint, &s.Calls, &s.Errors, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Recent returns the n most recent calls, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]models.UpstreamCall, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, endpoint, path, status_code, latency_ms, error, created_at
		 FROM upstream_calls ORDER BY created_at DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent calls: %w", err)
	}
	defer rows.Close()

	var calls []models.UpstreamCall
	for rows.Next() {
		var c models.UpstreamCall
		if err := rows.Scan(&c.ID, &c.Endpoint, &c.Path, &c.StatusCode, &c.LatencyMs, &c.Error, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// Prune deletes calls recorded before the given time and reports how many
// rows went.
func (l *Ledger) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM upstream_calls WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}
