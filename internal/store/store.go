// Package store persists analysis runs in SQLite. Chart figures are kept
// apart from the run JSON and encoded with msgpack.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/orchestrator"
	"github.com/KaramelBytes/datalens/internal/visualization"
)

// ErrNotFound is returned when no job matches a run ID.
var ErrNotFound = errors.New("job not found")

const schemaVersion = 1

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	run_id     TEXT PRIMARY KEY,
	dataset    TEXT NOT NULL,
	owner      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	duration   REAL,
	quality    REAL,
	result     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner, created_at DESC);

CREATE TABLE IF NOT EXISTS charts (
	run_id   TEXT NOT NULL,
	chart_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	type     TEXT NOT NULL,
	title    TEXT NOT NULL,
	config   BLOB,
	PRIMARY KEY (run_id, chart_id)
);
`

// Job is a stored run.
type Job struct {
	RunID     string               `json:"run_id"`
	Dataset   string               `json:"dataset"`
	Owner     string               `json:"owner"`
	Status    agent.Status         `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	Duration  float64              `json:"duration"`
	Quality   *float64             `json:"quality_score,omitempty"`
	Result    *orchestrator.Result `json:"result,omitempty"`
}

// Store is the SQLite-backed job store. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *zap.Logger
	mu  sync.RWMutex
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps in-memory databases coherent and serializes writers
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	s := &Store{db: db, log: log.Named("store")}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case v != schemaVersion:
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Save stores a run under runID for owner, replacing any earlier copy.
func (s *Store) Save(ctx context.Context, runID, owner string, res *orchestrator.Result) error {
	if res == nil {
		return errors.New("save: nil result")
	}
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	var quality *float64
	if p := res.Profile(); p != nil {
		quality = &p.QualityScore
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs(run_id, dataset, owner, status, created_at, duration, quality, result)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			dataset=excluded.dataset, owner=excluded.owner, status=excluded.status,
			duration=excluded.duration, quality=excluded.quality, result=excluded.result`,
		runID, res.Dataset, owner, string(res.Status),
		res.StartedAt.UTC().Format(timeLayout), res.DurationSeconds, quality, string(body))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM charts WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("clear charts: %w", err)
	}
	if v := res.Visualization(); v != nil {
		for i, c := range v.Charts {
			blob, err := msgpack.Marshal(c.Config)
			if err != nil {
				return fmt.Errorf("encode chart %s: %w", c.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO charts(run_id, chart_id, position, type, title, config) VALUES(?, ?, ?, ?, ?, ?)",
				runID, c.ID, i, c.Type, c.Title, blob); err != nil {
				return fmt.Errorf("insert chart %s: %w", c.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug("job saved", zap.String("run_id", runID), zap.String("owner", owner))
	return nil
}

// Get loads a run with its chart figures reattached.
func (s *Store) Get(ctx context.Context, runID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, dataset, owner, status, created_at, duration, quality, result
		FROM jobs WHERE run_id = ?`, runID)
	var body string
	job, err := scanJob(row, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	var res orchestrator.Result
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", runID, err)
	}
	configs, err := s.chartConfigs(ctx, runID)
	if err != nil {
		return nil, err
	}
	if v := res.Visualization(); v != nil {
		for i := range v.Charts {
			v.Charts[i].Config = configs[v.Charts[i].ID]
		}
	}
	job.Result = &res
	return job, nil
}

// List returns jobs newest first without their results. An empty owner
// lists every job; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, owner string, limit int) ([]Job, error) {
	q := "SELECT run_id, dataset, owner, status, created_at, duration, quality, NULL FROM jobs"
	var args []any
	if owner != "" {
		q += " WHERE owner = ?"
		args = append(args, owner)
	}
	q += " ORDER BY created_at DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		job, err := scanJob(rows, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// Charts returns the chart descriptors of a run in their original order,
// figures included.
func (s *Store) Charts(ctx context.Context, runID string) ([]visualization.Chart, error) {
	job, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	v := job.Result.Visualization()
	if v == nil {
		return []visualization.Chart{}, nil
	}
	return v.Charts, nil
}

// Delete removes a run and its charts.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, "DELETE FROM jobs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM charts WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("delete charts: %w", err)
	}
	return tx.Commit()
}

func (s *Store) chartConfigs(ctx context.Context, runID string) (map[string]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chart_id, config FROM charts WHERE run_id = ? ORDER BY position", runID)
	if err != nil {
		return nil, fmt.Errorf("load charts: %w", err)
	}
	defer rows.Close()
	out := map[string]map[string]any{}
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan chart: %w", err)
		}
		var cfg map[string]any
		if len(blob) > 0 {
			if err := msgpack.Unmarshal(blob, &cfg); err != nil {
				return nil, fmt.Errorf("decode chart %s: %w", id, err)
			}
		}
		out[id] = cfg
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner, body *string) (*Job, error) {
	var (
		job      Job
		status   string
		created  string
		duration sql.NullFloat64
		quality  sql.NullFloat64
		result   sql.NullString
	)
	if err := sc.Scan(&job.RunID, &job.Dataset, &job.Owner, &status, &created, &duration, &quality, &result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Status = agent.Status(status)
	if t, err := time.Parse(timeLayout, created); err == nil {
		job.CreatedAt = t
	}
	if duration.Valid {
		job.Duration = duration.Float64
	}
	if quality.Valid {
		q := quality.Float64
		job.Quality = &q
	}
	if body != nil {
		*body = result.String
	}
	return &job, nil
}
