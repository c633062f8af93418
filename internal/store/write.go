package store

import (
	"context"
	"fmt"
)

// BeginRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING so a resumed run keeps its first record.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("begin run: id is required")
	}
	labels, err := marshalLabels(run.Labels)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, source, labels)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Name, run.Source, labels)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordWrite inserts a status write.
// Duplicate (run_id, cycle, seq) triples are silently ignored.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) RecordWrite(ctx context.Context, w Write) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO writes (run_id, cycle, seq, status, operator, value, applied)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, cycle, seq) DO NOTHING
	`,
		w.RunID,
		w.Cycle,
		w.Seq,
		w.Status,
		w.Operator,
		w.Value,
		boolToInt(w.Applied),
	)
	if err != nil {
		return fmt.Errorf("record write: %w", err)
	}
	return nil
}

// RecordFire inserts a handler call.
// Duplicate (run_id, cycle, seq) triples are silently ignored.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) RecordFire(ctx context.Context, f Fire) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fires (run_id, cycle, seq, expression, handler, priority, now, last)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, cycle, seq) DO NOTHING
	`,
		f.RunID,
		f.Cycle,
		f.Seq,
		f.Expression,
		f.Handler,
		f.Priority,
		f.Now,
		f.Last,
	)
	if err != nil {
		return fmt.Errorf("record fire: %w", err)
	}
	return nil
}
