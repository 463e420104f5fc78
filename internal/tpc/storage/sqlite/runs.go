package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Run is one batch execution.
type Run struct {
	RunID      string          `json:"run_id"`
	CreatedAt  int64           `json:"created_at"`
	FinishedAt int64           `json:"finished_at,omitempty"`
	Input      string          `json:"input"`
	ConfigJSON json.RawMessage `json:"config_json,omitempty"`
	Events     int             `json:"events"`
	Skipped    int             `json:"skipped"`
	Records    int             `json:"records"`
}

// CreateRun inserts a new run. cfg, when non-nil, is stored as JSON.
func (s *Store) CreateRun(ctx context.Context, input string, cfg any) (*Run, error) {
	run := &Run{
		RunID:     uuid.New().String(),
		CreatedAt: time.Now().UnixNano(),
		Input:     input,
	}
	var cfgStr interface{}
	if cfg != nil {
		b, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshal run config: %w", err)
		}
		run.ConfigJSON = b
		cfgStr = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, created_at, input, config_json) VALUES (?, ?, ?, ?)`,
		run.RunID, run.CreatedAt, run.Input, cfgStr)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the run with its final counters.
func (s *Store) FinishRun(ctx context.Context, runID string, events, skipped, records int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, events = ?, skipped = ?, records = ? WHERE run_id = ?`,
		time.Now().UnixNano(), events, skipped, records, runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, finished_at, input, config_json, events, skipped, records
		FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return r, err
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, created_at, finished_at, input, config_json, events, skipped, records
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r        Run
		finished sql.NullInt64
		cfg      sql.NullString
	)
	if err := row.Scan(&r.RunID, &r.CreatedAt, &finished, &r.Input, &cfg, &r.Events, &r.Skipped, &r.Records); err != nil {
		return nil, err
	}
	r.FinishedAt = finished.Int64
	if cfg.Valid {
		r.ConfigJSON = json.RawMessage(cfg.String)
	}
	return &r, nil
}
