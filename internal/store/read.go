package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// ReadRun returns a run and its trace as one stream ordered by
// (cycle, seq). Writes sort before fires on equal positions.
//
// Returns an empty slice (not nil) if the run has no records.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, []Record, error) {
	run, err := s.ReadRunInfo(ctx, runID)
	if err != nil {
		return Run{}, nil, err
	}

	writes, err := s.ReadWrites(ctx, runID)
	if err != nil {
		return Run{}, nil, err
	}
	fires, err := s.ReadFires(ctx, runID)
	if err != nil {
		return Run{}, nil, err
	}

	records := make([]Record, 0, len(writes)+len(fires))
	for i := range writes {
		w := &writes[i]
		records = append(records, Record{Kind: RecordWrite, Cycle: w.Cycle, Seq: w.Seq, Write: w})
	}
	for i := range fires {
		f := &fires[i]
		records = append(records, Record{Kind: RecordFire, Cycle: f.Cycle, Seq: f.Seq, Fire: f})
	}
	slices.SortStableFunc(records, compareRecords)

	return run, records, nil
}

func compareRecords(a, b Record) int {
	if c := cmp.Compare(a.Cycle, b.Cycle); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
		return c
	}
	return cmp.Compare(a.Kind, b.Kind)
}

// ReadRunInfo returns the run record for runID.
// Returns an error wrapping ErrRunNotFound if it does not exist.
func (s *Store) ReadRunInfo(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source, labels FROM runs WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", runID, err)
	}
	return run, nil
}

// ReadWrites returns the writes of a run ordered by (cycle, seq).
func (s *Store) ReadWrites(ctx context.Context, runID string) ([]Write, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, cycle, seq, status, operator, value, applied
		FROM writes
		WHERE run_id = ?
		ORDER BY cycle ASC, seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query writes: %w", err)
	}
	defer rows.Close()

	writes := []Write{}
	for rows.Next() {
		var w Write
		var applied int
		if err := rows.Scan(&w.RunID, &w.Cycle, &w.Seq, &w.Status, &w.Operator, &w.Value, &applied); err != nil {
			return nil, fmt.Errorf("scan write: %w", err)
		}
		w.Applied = applied != 0
		writes = append(writes, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate writes: %w", err)
	}
	return writes, nil
}

// ReadFires returns the handler calls of a run ordered by (cycle, seq).
func (s *Store) ReadFires(ctx context.Context, runID string) ([]Fire, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, cycle, seq, expression, handler, priority, now, last
		FROM fires
		WHERE run_id = ?
		ORDER BY cycle ASC, seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query fires: %w", err)
	}
	defer rows.Close()

	fires := []Fire{}
	for rows.Next() {
		var f Fire
		if err := rows.Scan(&f.RunID, &f.Cycle, &f.Seq, &f.Expression, &f.Handler, &f.Priority, &f.Now, &f.Last); err != nil {
			return nil, fmt.Errorf("scan fire: %w", err)
		}
		fires = append(fires, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fires: %w", err)
	}
	return fires, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var labels string
	if err := row.Scan(&run.ID, &run.Name, &run.Source, &labels); err != nil {
		return Run{}, err
	}
	parsed, err := unmarshalLabels(labels)
	if err != nil {
		return Run{}, err
	}
	run.Labels = parsed
	return run, nil
}
