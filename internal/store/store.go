package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"umapembed/internal/core"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the catalog database inside the data directory.
const DBFileName = "embedding_runs.db"

// Store represents the SQLite-based run catalog
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new store instance with SQLite database
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:   db,
		path: dbPath,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		tag TEXT NOT NULL,
		dataset TEXT,
		parameters TEXT,
		status TEXT NOT NULL,
		observations INTEGER DEFAULT 0,
		features INTEGER DEFAULT 0,
		clusters INTEGER DEFAULT 0,
		noise INTEGER DEFAULT 0,
		artifacts TEXT,
		error TEXT,
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	);`

	tagIndex := `CREATE INDEX IF NOT EXISTS idx_runs_tag ON runs (tag, started_at);`

	for _, stmt := range []string{runsTable, tagIndex} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts run in the running state, assigning an ID and start
// time when they are unset.
func (s *Store) CreateRun(run *core.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = core.RunRunning

	params, err := json.Marshal(run.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}

	query := `
	INSERT INTO runs (id, tag, dataset, parameters, status, observations, features, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.Exec(query,
		run.ID,
		run.Tag,
		run.Dataset,
		string(params),
		string(run.Status),
		run.Observations,
		run.Features,
		run.StartedAt,
	); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun marks run completed and stores its results.
func (s *Store) CompleteRun(run *core.Run) error {
	run.Status = core.RunCompleted
	run.CompletedAt = time.Now().UTC()

	artifacts, err := json.Marshal(run.Artifacts)
	if err != nil {
		return fmt.Errorf("failed to encode artifacts: %w", err)
	}

	query := `
	UPDATE runs
	SET status = ?, observations = ?, features = ?, clusters = ?, noise = ?, artifacts = ?, completed_at = ?
	WHERE id = ?`

	return s.exec1(query,
		string(run.Status),
		run.Observations,
		run.Features,
		run.Clusters,
		run.Noise,
		string(artifacts),
		run.CompletedAt,
		run.ID,
	)
}

// FailRun marks the run failed with runErr's message.
func (s *Store) FailRun(id string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.exec1(`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(core.RunFailed), msg, time.Now().UTC(), id)
}

// exec1 runs an update that must touch exactly one row.
func (s *Store) exec1(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("failed to update run: %d rows affected", n)
	}
	return nil
}

const runColumns = `id, tag, dataset, parameters, status, observations, features, clusters, noise,
	artifacts, error, started_at, completed_at`

// GetRun retrieves a run by ID; it returns nil, nil when no such run exists.
func (s *Store) GetRun(id string) (*core.Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first, optionally filtered by tag.
// A limit of 0 or less returns every run.
func (s *Store) ListRuns(tag string, limit int) ([]core.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if tag != "" {
		query += ` WHERE tag = ?`
		args = append(args, tag)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*core.Run, error) {
	var (
		run         core.Run
		status      string
		dataset     sql.NullString
		params      sql.NullString
		artifacts   sql.NullString
		runErr      sql.NullString
		completedAt sql.NullTime
	)
	err := sc.Scan(
		&run.ID,
		&run.Tag,
		&dataset,
		&params,
		&status,
		&run.Observations,
		&run.Features,
		&run.Clusters,
		&run.Noise,
		&artifacts,
		&runErr,
		&run.StartedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = core.RunStatus(status)
	run.Dataset = dataset.String
	run.Error = runErr.String
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &run.Parameters); err != nil {
			return nil, fmt.Errorf("failed to decode parameters: %w", err)
		}
	}
	if artifacts.Valid && artifacts.String != "" {
		if err := json.Unmarshal([]byte(artifacts.String), &run.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to decode artifacts: %w", err)
		}
	}
	return &run, nil
}
