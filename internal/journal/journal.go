// Package journal persists a durable history of fuzzing runs and replay
// attempts in a local SQLite database. It is purely observational: nothing
// in the engine reads its own decisions back from the journal. Its purpose
// is letting an operator later ask "when did this seed last crash a broker,
// and under what target/command?" without grepping log files.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Journal wraps the SQLite connection and schema lifecycle for run history.
type Journal struct {
	db *sql.DB
}

// Open initializes the database connection at path, creating parent
// directories as needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	j := &Journal{db: db}
	return j, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// InitSchema ensures the baseline tables exist.
func (j *Journal) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			target TEXT NOT NULL,
			broker_command TEXT NOT NULL,
			threads INTEGER NOT NULL,
			timeout_ms INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			crashed INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS worker_records (
			run_id TEXT NOT NULL REFERENCES runs(id),
			seed TEXT NOT NULL,
			iterations TEXT NOT NULL,
			recorded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
			PRIMARY KEY (run_id, seed)
		);`,
		`CREATE TABLE IF NOT EXISTS replay_results (
			id TEXT PRIMARY KEY,
			seed TEXT NOT NULL,
			crashed INTEGER NOT NULL,
			recorded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("journal: init schema: %w", err)
		}
	}
	return nil
}

// Run describes one fuzzing invocation for the StartRun record.
type Run struct {
	ID            string
	Target        string
	BrokerCommand string
	Threads       int
	TimeoutMS     int
	StartedAt     time.Time
}

// StartRun inserts a new run row and returns its generated ID.
func (j *Journal) StartRun(ctx context.Context, target, brokerCommand string, threads, timeoutMS int) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, target, broker_command, threads, timeout_ms, started_at) VALUES (?, ?, ?, ?, ?, ?);`,
		id, target, brokerCommand, threads, timeoutMS, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("journal: start run: %w", err)
	}
	return id, nil
}

// EndRun marks a run as finished, recording whether the broker crashed.
func (j *Journal) EndRun(ctx context.Context, runID string, crashed bool) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, crashed = ? WHERE id = ?;`,
		time.Now().UTC().Format(time.RFC3339Nano), boolToInt(crashed), runID)
	if err != nil {
		return fmt.Errorf("journal: end run: %w", err)
	}
	return nil
}

// RecordWorker persists a worker's final (seed, iterations) pair against a
// run, mirroring what is also written to threads/fuzzing_<seed>.txt.
func (j *Journal) RecordWorker(ctx context.Context, runID string, seed uint64, iterations uint64) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO worker_records (run_id, seed, iterations) VALUES (?, ?, ?);`,
		runID, fmt.Sprintf("%d", seed), fmt.Sprintf("%d", iterations))
	if err != nil {
		return fmt.Errorf("journal: record worker: %w", err)
	}
	return nil
}

// RecordReplay persists the outcome of one replayed seed.
func (j *Journal) RecordReplay(ctx context.Context, seed uint64, crashed bool) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO replay_results (id, seed, crashed) VALUES (?, ?, ?);`,
		uuid.NewString(), fmt.Sprintf("%d", seed), boolToInt(crashed))
	if err != nil {
		return fmt.Errorf("journal: record replay: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
