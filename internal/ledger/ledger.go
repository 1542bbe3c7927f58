// Package ledger keeps a SQLite history of benchmark runs. It consumes the
// progress events of a run and records one row per run, one per event and
// one per recorded attempt, so that past runs can be listed and compared
// without re-reading every result file.
//
// The ledger is an observer. The result files stay the source of truth for
// resume decisions.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"

	"github.com/ahrav/strategybench/pkg/events"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// ErrRunNotFound indicates that no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Ledger is a SQLite backed run history. It implements events.EventSink.
type Ledger struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations. Pass MemoryDSN for an in-memory database.
func Open(ctx context.Context, path string) (*Ledger, error) {
	dsn := path
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	// A single connection keeps an in-memory database alive and avoids
	// "database is locked" errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	l := &Ledger{db: db}
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := l.db.GetContext(ctx, &exists, "SELECT COUNT(*) FROM schema_version WHERE version = ?", version); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := l.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (l *Ledger) AppliedMigrations(ctx context.Context) ([]int, error) {
	var versions []int
	err := l.db.SelectContext(ctx, &versions, "SELECT version FROM schema_version ORDER BY version ASC")
	return versions, err
}

// Append implements events.EventSink. The event row and any projection it
// drives are written in one transaction. An event whose idempotency key is
// already stored is ignored.
func (l *Ledger) Append(ctx context.Context, e events.Envelope) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning event transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (id, run_id, type, source, idempotency_key, occurred_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, string(e.Type), e.Source, idempotencyKey(e), e.Timestamp.UnixMilli(), string(e.Payload))
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	if err := project(ctx, tx, e); err != nil {
		return fmt.Errorf("projecting %s: %w", e.Type, err)
	}
	return tx.Commit()
}

func idempotencyKey(e events.Envelope) string {
	if e.IdempotencyKey != "" {
		return e.IdempotencyKey
	}
	return e.ID
}

// project updates the run and attempt tables from e.
func project(ctx context.Context, tx *sqlx.Tx, e events.Envelope) error {
	switch e.Type {
	case events.TypeRunStarted:
		var p events.RunStarted
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO runs (run_id, started_at, provider, model, resume) VALUES (?, ?, ?, ?, ?)`,
			e.RunID, e.Timestamp.UnixMilli(), p.Provider, p.Model, p.Resume)
		return err

	case events.TypeRunCompleted:
		var p events.RunCompleted
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE runs SET finished_at = ?, status = ?, answered = ?, failed = ?, skipped = ?,
			        pairs_skipped = ?, error = ?
			 WHERE run_id = ?`,
			e.Timestamp.UnixMilli(), p.Status, p.Answered, p.Failed, p.Skipped, p.PairsSkipped, p.Error, e.RunID)
		return err

	case events.TypeAttemptRecorded:
		var p events.Attempt
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO attempts (run_id, strategy, category, question, status, latency_ms, error, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.RunID, p.Strategy, p.Category, p.Index, p.Status, p.LatencyMs, p.Error, e.Timestamp.UnixMilli())
		return err
	}
	return nil
}

// Run is one row of the run history.
type Run struct {
	RunID        string `db:"run_id" json:"run_id"`
	StartedAtMs  int64  `db:"started_at" json:"-"`
	FinishedAtMs *int64 `db:"finished_at" json:"-"`
	Provider     string `db:"provider" json:"provider"`
	Model        string `db:"model" json:"model"`
	Resume       string `db:"resume" json:"resume"`
	Status       string `db:"status" json:"status"`
	Answered     int    `db:"answered" json:"answered"`
	Failed       int    `db:"failed" json:"failed"`
	Skipped      int    `db:"skipped" json:"skipped"`
	PairsSkipped int    `db:"pairs_skipped" json:"pairs_skipped"`
	Error        string `db:"error" json:"error,omitempty"`
}

// StartedAt returns the run start time.
func (r Run) StartedAt() time.Time { return time.UnixMilli(r.StartedAtMs) }

// Duration returns the run length, or zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAtMs == nil {
		return 0
	}
	return time.Duration(*r.FinishedAtMs-r.StartedAtMs) * time.Millisecond
}

const runColumns = `run_id, started_at, finished_at, provider, model, resume, status,
	answered, failed, skipped, pairs_skipped, error`

// History returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (l *Ledger) History(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	var runs []Run
	err := l.db.SelectContext(ctx, &runs,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying run history: %w", err)
	}
	return runs, nil
}

// GetRun returns the run with id.
func (l *Ledger) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	err := l.db.GetContext(ctx, &r, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return Run{}, fmt.Errorf("querying run %s: %w", id, err)
	}
	return r, nil
}

// AttemptRow is one attempt recorded during a run.
type AttemptRow struct {
	Strategy  string `db:"strategy" json:"strategy"`
	Category  string `db:"category" json:"category"`
	Question  int    `db:"question" json:"question"`
	Status    string `db:"status" json:"status"`
	LatencyMs int64  `db:"latency_ms" json:"latency_ms"`
	Error     string `db:"error" json:"error,omitempty"`
}

// Attempts returns the attempts a run recorded, ordered as they were made.
func (l *Ledger) Attempts(ctx context.Context, runID string) ([]AttemptRow, error) {
	var rows []AttemptRow
	err := l.db.SelectContext(ctx, &rows,
		`SELECT strategy, category, question, status, latency_ms, error
		 FROM attempts WHERE run_id = ? ORDER BY recorded_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	return rows, nil
}

// EventCount returns the number of stored events of a run.
func (l *Ledger) EventCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := l.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM events WHERE run_id = ?`, runID)
	return n, err
}
