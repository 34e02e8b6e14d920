package report

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (runs + results)
const currentSchemaVersion = 1

// History persists run summaries and their full result sets to SQLite so
// operators can compare throughput figures across runs without keeping
// the text reports around.
type History struct {
	db *sql.DB
}

// OpenHistory creates or opens the run-history database at path.
// Applies required pragmas and the schema automatically; idempotent.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout
//   - foreign key enforcement
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	// SQLite only supports one writer at a time; keep a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &History{db: db}, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}

// RunRecord is one persisted run summary.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    Summary
}

// SaveRun appends one run and its results inside a single transaction.
// The run ID must be unique (callers use a fresh UUID per run).
func (h *History) SaveRun(ctx context.Context, runID string, started, finished time.Time, results []Result) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var passed, failed int
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, total, passed, failed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, started.UTC().Format(time.RFC3339), finished.UTC().Format(time.RFC3339),
		len(results), passed, failed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, r := range results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO results (run_id, seq, probe, passed, message, recorded_at, transport)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, i, r.Probe, boolToInt(r.Passed), r.Message,
			r.Timestamp.UTC().Format(time.RFC3339), r.Transport,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// LoadRun reads one run summary and its results back in recording order.
func (h *History) LoadRun(ctx context.Context, runID string) (*RunRecord, []Result, error) {
	var rec RunRecord
	var started, finished string
	err := h.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, total, passed, failed FROM runs WHERE id = ?`,
		runID,
	).Scan(&rec.ID, &started, &finished, &rec.Summary.Total, &rec.Summary.Passed, &rec.Summary.Failed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return nil, nil, fmt.Errorf("bad started_at for run %s: %w", runID, err)
	}
	if rec.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
		return nil, nil, fmt.Errorf("bad finished_at for run %s: %w", runID, err)
	}
	if rec.Summary.Total > 0 {
		rec.Summary.Ratio = float64(rec.Summary.Passed) / float64(rec.Summary.Total) * 100
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT probe, passed, message, recorded_at, transport
		 FROM results WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var passedInt int
		var recordedAt string
		if err := rows.Scan(&r.Probe, &passedInt, &r.Message, &recordedAt, &r.Transport); err != nil {
			return nil, nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Passed = passedInt != 0
		if r.Timestamp, err = time.Parse(time.RFC3339, recordedAt); err != nil {
			return nil, nil, fmt.Errorf("bad recorded_at: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed iterating results: %w", err)
	}

	return &rec, results, nil
}

// Runs lists all persisted runs, most recent first.
func (h *History) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, total, passed, failed
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started, finished string
		if err := rows.Scan(&rec.ID, &started, &finished,
			&rec.Summary.Total, &rec.Summary.Passed, &rec.Summary.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("bad started_at: %w", err)
		}
		if rec.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
			return nil, fmt.Errorf("bad finished_at: %w", err)
		}
		if rec.Summary.Total > 0 {
			rec.Summary.Ratio = float64(rec.Summary.Passed) / float64(rec.Summary.Total) * 100
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating runs: %w", err)
	}
	return out, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
