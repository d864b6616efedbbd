// Package store handles SQLite persistence of recorded fits.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/massfit/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for fit history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			model_path TEXT NOT NULL,
			events INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			status TEXT NOT NULL,
			min_nll REAL NOT NULL,
			chi2_ndof REAL NOT NULL,
			nfloat INTEGER NOT NULL,
			output TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_params (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			initial REAL NOT NULL,
			value REAL NOT NULL,
			error REAL NOT NULL,
			min REAL NOT NULL,
			max REAL NOT NULL,
			at_limit INTEGER NOT NULL,
			PRIMARY KEY (run_id, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_run_params_name ON run_params(name);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a finished fit and its parameters, returning the run ID.
func (s *Store) InsertRun(ctx context.Context, run model.RunRecord, params []model.ParamRecord) (id string, err error) {
	id = run.ID
	if id == "" {
		id = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, ended_at, model_path, events, seed, status, min_nll, chi2_ndof, nfloat, output)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		run.StartedAt.Format(time.RFC3339Nano),
		run.EndedAt.Format(time.RFC3339Nano),
		run.ModelPath,
		run.Events,
		int64(run.Seed),
		run.Status,
		run.MinNLL,
		run.Chi2NDOF,
		run.NFloat,
		run.Output,
	)
	if err != nil {
		return "", err
	}

	if len(params) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO run_params (run_id, name, initial, value, error, min, max, at_limit)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if perr != nil {
			err = perr
			return "", err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, p := range params {
			if _, err = stmt.ExecContext(ctx, id, p.Name, p.Initial, p.Value, p.Error, p.Min, p.Max, p.AtLimit); err != nil {
				return "", err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListRuns returns recorded fits oldest first. A positive last keeps only the
// most recent ones.
func (s *Store) ListRuns(ctx context.Context, cfg model.HistoryConfig) ([]model.RunRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Param != "" {
		clauses = append(clauses, "id IN (SELECT run_id FROM run_params WHERE name = ?)")
		args = append(args, cfg.Param)
	}
	query := fmt.Sprintf(`SELECT id, started_at, ended_at, model_path, events, seed, status, min_nll, chi2_ndof, nfloat, output
		FROM runs
		WHERE %s
		ORDER BY ended_at DESC`, strings.Join(clauses, " AND "))
	if cfg.Last > 0 {
		query += " LIMIT ?"
		args = append(args, cfg.Last)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		var startedAt, endedAt string
		var seed int64
		if err := rows.Scan(&r.ID, &startedAt, &endedAt, &r.ModelPath, &r.Events, &seed, &r.Status, &r.MinNLL, &r.Chi2NDOF, &r.NFloat, &r.Output); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if r.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, err
		}
		r.Seed = uint64(seed)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}

// ListParams returns the recorded parameters of one run in name order.
func (s *Store) ListParams(ctx context.Context, runID string) ([]model.ParamRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, initial, value, error, min, max, at_limit
		FROM run_params
		WHERE run_id = ?
		ORDER BY name`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var params []model.ParamRecord
	for rows.Next() {
		var p model.ParamRecord
		if err := rows.Scan(&p.Name, &p.Initial, &p.Value, &p.Error, &p.Min, &p.Max, &p.AtLimit); err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return params, nil
}

// ParamHistory returns the fitted value of one parameter across runs, oldest
// first, limited to runs selected by the given IDs when any are passed.
func (s *Store) ParamHistory(ctx context.Context, name string, runIDs ...string) ([]model.ParamPoint, error) {
	clauses := []string{"p.name = ?"}
	args := []any{name}
	if len(runIDs) > 0 {
		placeholders := make([]string, len(runIDs))
		for i, id := range runIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, fmt.Sprintf("p.run_id IN (%s)", strings.Join(placeholders, ",")))
	}
	query := fmt.Sprintf(`SELECT p.run_id, r.ended_at, p.value, p.error
		FROM run_params p
		JOIN runs r ON r.id = p.run_id
		WHERE %s
		ORDER BY r.ended_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var points []model.ParamPoint
	for rows.Next() {
		var pt model.ParamPoint
		var endedAt string
		if err := rows.Scan(&pt.RunID, &endedAt, &pt.Value, &pt.Error); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		pt.EndedAt = parsed
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}
