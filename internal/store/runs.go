package store

import (
	"context"
	"fmt"
)

// ListRuns returns every run ordered by id. UUIDv7 ids sort by creation
// time.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, source, labels FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LastCycle returns the highest cycle recorded for a run, 0 if none.
// Used to resume the engine clock for an existing run id.
func (s *Store) LastCycle(ctx context.Context, runID string) (int64, error) {
	var cycle int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(cycle), 0) FROM (
			SELECT cycle FROM writes WHERE run_id = ?
			UNION ALL
			SELECT cycle FROM fires WHERE run_id = ?
		)
	`, runID, runID).Scan(&cycle)
	if err != nil {
		return 0, fmt.Errorf("get last cycle for run %s: %w", runID, err)
	}
	return cycle, nil
}

// CountFires returns how many times handlers on an expression fired in a
// run.
func (s *Store) CountFires(ctx context.Context, runID, expression string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fires WHERE run_id = ? AND expression = ?
	`, runID, expression).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count fires for %s: %w", expression, err)
	}
	return n, nil
}
