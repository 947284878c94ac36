package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

var ErrActionNotFound = errors.New("action not found")

const storeLockWait = 5 * time.Second

var storeSchema = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	`CREATE TABLE IF NOT EXISTS migration_runs (
		run_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		chain_id TEXT NOT NULL DEFAULT '',
		operator TEXT NOT NULL DEFAULT '',
		steps_total INTEGER NOT NULL DEFAULT 0,
		steps_confirmed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		record BLOB NOT NULL
	);`,
	"CREATE INDEX IF NOT EXISTS idx_migration_runs_mode_updated ON migration_runs(mode, updated_at DESC);",
	"CREATE INDEX IF NOT EXISTS idx_migration_runs_status_updated ON migration_runs(status, updated_at DESC);",
}

// Store keeps migration run records in sqlite. Writers from different
// processes serialize on a file lock.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

// RunSummary is the listing view of a run, read from the indexed columns.
type RunSummary struct {
	ActionID       string       `json:"action_id"`
	Kind           string       `json:"kind"`
	Mode           string       `json:"mode"`
	Status         ActionStatus `json:"status"`
	ChainID        string       `json:"chain_id,omitempty"`
	Operator       string       `json:"operator,omitempty"`
	StepsTotal     int          `json:"steps_total"`
	StepsConfirmed int          `json:"steps_confirmed"`
	CreatedAt      string       `json:"created_at"`
	UpdatedAt      string       `json:"updated_at"`
}

// ListFilter narrows Store.List. Empty fields match everything.
type ListFilter struct {
	Status string
	Mode   string
	Kind   string
	Limit  int
}

func OpenStore(path, lockPath string) (*Store, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create action store directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open action sqlite: %w", err)
	}
	for _, q := range storeSchema {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init action schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the run. The step counters are derived from the steps so
// List never decodes a record.
func (s *Store) Save(action Action) error {
	if strings.TrimSpace(action.ActionID) == "" {
		return errors.New("save action: missing action id")
	}
	record, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	confirmed := 0
	for _, step := range action.Steps {
		if step.Status == StepStatusConfirmed {
			confirmed++
		}
	}
	now := time.Now().UTC()

	return s.withLock(func() error {
		_, err := s.db.Exec(`
			INSERT INTO migration_runs (run_id, kind, mode, status, chain_id, operator, steps_total, steps_confirmed, created_at, updated_at, record)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				status=excluded.status,
				chain_id=excluded.chain_id,
				operator=excluded.operator,
				steps_total=excluded.steps_total,
				steps_confirmed=excluded.steps_confirmed,
				updated_at=excluded.updated_at,
				record=excluded.record
		`, action.ActionID, action.Kind, action.Mode, string(action.Status), action.ChainID, action.FromAddress,
			len(action.Steps), confirmed, unixOr(action.CreatedAt, now), unixOr(action.UpdatedAt, now), record)
		if err != nil {
			return fmt.Errorf("save action %s: %w", action.ActionID, err)
		}
		return nil
	})
}

func (s *Store) withLock(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeLockWait)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err == nil && !locked {
		err = fmt.Errorf("timed out after %s", storeLockWait)
	}
	if err != nil {
		return fmt.Errorf("lock action store: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *Store) Get(actionID string) (Action, error) {
	var record []byte
	err := s.db.QueryRow("SELECT record FROM migration_runs WHERE run_id = ?", actionID).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return Action{}, fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
	}
	if err != nil {
		return Action{}, fmt.Errorf("read action %s: %w", actionID, err)
	}
	return decodeAction(record)
}

// List returns summaries of matching runs, most recently updated first.
func (s *Store) List(filter ListFilter) ([]RunSummary, error) {
	var (
		where []string
		args  []any
	)
	for _, col := range []struct{ name, value string }{
		{"status", filter.Status},
		{"mode", filter.Mode},
		{"kind", filter.Kind},
	} {
		if v := strings.TrimSpace(col.value); v != "" {
			where = append(where, col.name+" = ?")
			args = append(args, v)
		}
	}
	query := "SELECT run_id, kind, mode, status, chain_id, operator, steps_total, steps_confirmed, created_at, updated_at FROM migration_runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " ORDER BY updated_at DESC, run_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var (
			run              RunSummary
			status           string
			created, updated int64
		)
		if err := rows.Scan(&run.ActionID, &run.Kind, &run.Mode, &status, &run.ChainID, &run.Operator,
			&run.StepsTotal, &run.StepsConfirmed, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		run.Status = ActionStatus(status)
		run.CreatedAt = time.Unix(created, 0).UTC().Format(time.RFC3339)
		run.UpdatedAt = time.Unix(updated, 0).UTC().Format(time.RFC3339)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return runs, nil
}

func decodeAction(record []byte) (Action, error) {
	var action Action
	if err := json.Unmarshal(record, &action); err != nil {
		return Action{}, fmt.Errorf("decode action record: %w", err)
	}
	return action, nil
}

func unixOr(ts string, fallback time.Time) int64 {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return fallback.Unix()
	}
	return t.UTC().Unix()
}
