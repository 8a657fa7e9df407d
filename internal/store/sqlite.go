package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yonglehou/DReAM/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    program     TEXT NOT NULL,
    args        TEXT,
    stdin       BLOB,
    stdout      BLOB,
    stderr      BLOB,
    exit_code   INTEGER,
    error       TEXT,
    timeout_ms  INTEGER,
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
)`

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeArgs(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode args: %w", err)
	}
	return string(b), nil
}

func decodeArgs(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var args []string
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	return args, nil
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	args, err := encodeArgs(run.Args)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (
			id, status, program, args, stdin, stdout, stderr, exit_code,
			error, timeout_ms, duration_ms, created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.Program, args, run.Stdin, run.Stdout, run.Stderr,
		run.ExitCode, run.Error, run.TimeoutMS, run.DurationMS,
		run.CreatedAt, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	run := &model.Run{}
	var args string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, program, args, stdin, stdout, stderr, exit_code,
			error, timeout_ms, duration_ms, created_at, started_at, finished_at
		FROM runs WHERE id = ?`, id,
	).Scan(
		&run.ID, &run.Status, &run.Program, &args, &run.Stdin, &run.Stdout,
		&run.Stderr, &run.ExitCode, &run.Error, &run.TimeoutMS, &run.DurationMS,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run.Args, err = decodeArgs(args); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC,
// along with the total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, status, program, args, stdin, stdout, stderr, exit_code,
			error, timeout_ms, duration_ms, created_at, started_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run := &model.Run{}
		var args string
		if err := rows.Scan(
			&run.ID, &run.Status, &run.Program, &args, &run.Stdin, &run.Stdout,
			&run.Stderr, &run.ExitCode, &run.Error, &run.TimeoutMS, &run.DurationMS,
			&run.CreatedAt, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		if run.Args, err = decodeArgs(args); err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// UpdateRunStatus updates the status of a run. For terminal statuses it also
// sets finished_at.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status string) error {
	var result sql.Result
	var err error

	if status == model.StatusKilled || status == model.StatusCompleted || status == model.StatusFailed {
		result, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ? WHERE id = ?",
			status, id,
		)
	}

	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateRun updates the mutable outcome fields of a run.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.Run) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stdout = ?, stderr = ?, exit_code = ?,
			error = ?, duration_ms = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		run.Status, run.Stdout, run.Stderr, run.ExitCode,
		run.Error, run.DurationMS, run.StartedAt, run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetRunStats aggregates counts and average duration across all runs.
func (s *SQLiteStore) GetRunStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{CountByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM runs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM runs WHERE duration_ms IS NOT NULL",
	).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	return stats, nil
}
