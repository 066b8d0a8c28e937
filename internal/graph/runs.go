package graph

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/agentic-research/mastercopy/api"
	"github.com/google/uuid"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run records one materialization against a project file.
type Run struct {
	ID           string
	Software     api.Kind
	Tree         string
	Library      string
	Started      time.Time
	Finished     time.Time
	Status       string
	Folders      int
	Instantiated int
	Missing      int
	Error        string
}

// NewRun returns a running Run with a fresh ID.
func NewRun(software api.Kind, tree, library string) *Run {
	return &Run{
		ID:       uuid.NewString(),
		Software: software,
		Tree:     tree,
		Library:  library,
		Started:  time.Now(),
		Status:   RunRunning,
	}
}

// BeginRun stores a new run.
func (s *SQLiteStore) BeginRun(r *Run) error {
	_, err := s.db.Exec(
		"INSERT INTO runs (id, software, tree, library, started, status) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, int(r.Software), r.Tree, r.Library, r.Started.UnixNano(), r.Status,
	)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun stores the outcome of a run.
func (s *SQLiteStore) FinishRun(r *Run) error {
	if r.Finished.IsZero() {
		r.Finished = time.Now()
	}
	res, err := s.db.Exec(
		`UPDATE runs SET finished = ?, status = ?, folders = ?, instantiated = ?, missing = ?, error = ?
		 WHERE id = ?`,
		r.Finished.UnixNano(), r.Status, r.Folders, r.Instantiated, r.Missing, r.Error, r.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

// Runs lists recorded runs, oldest first.
func (s *SQLiteStore) Runs() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT id, software, tree, library, started, finished, status, folders, instantiated, missing, error
		FROM runs ORDER BY started`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		var (
			r                 Run
			software          int
			started           int64
			finished          sql.NullInt64
			tree, lib, errMsg sql.NullString
		)
		if err := rows.Scan(&r.ID, &software, &tree, &lib, &started, &finished, &r.Status,
			&r.Folders, &r.Instantiated, &r.Missing, &errMsg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Software = api.Kind(software)
		r.Tree = tree.String
		r.Library = lib.String
		r.Error = errMsg.String
		r.Started = time.Unix(0, started)
		if finished.Valid {
			r.Finished = time.Unix(0, finished.Int64)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
