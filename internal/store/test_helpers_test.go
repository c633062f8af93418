package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun inserts a run with minimal required fields.
func createTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run := Run{ID: id, Name: "scenario-" + id}
	if err := s.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("BeginRun(%s) failed: %v", id, err)
	}
	return run
}

func createTestWrite(runID string, cycle, seq int64, status, value string) Write {
	return Write{
		RunID:    runID,
		Cycle:    cycle,
		Seq:      seq,
		Status:   status,
		Operator: "=",
		Value:    value,
		Applied:  true,
	}
}

func createTestFire(runID string, cycle, seq int64, expression string) Fire {
	return Fire{
		RunID:      runID,
		Cycle:      cycle,
		Seq:        seq,
		Expression: expression,
		Handler:    expression + "-handler",
		Now:        "true",
		Last:       "false",
	}
}
