// To handle all database interactions. This is our data access layer,
// keeping SQL queries separate from the conversion pipeline.

package store

import (
	"database/sql"
	"time"

	"github.com/heiftools/heifconv/internal/codec"
)

// Store provides all functions to interact with the database.
type Store struct {
	db *sql.DB
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Run is one recorded conversion run.
type Run struct {
	ID         int64      `json:"id"`
	SourceDir  string     `json:"source_dir"`
	DestDir    string     `json:"dest_dir"`
	Format     string     `json:"format"`
	Quality    int        `json:"quality"`
	Workers    int        `json:"workers"`
	BatchSize  int        `json:"batch_size"`
	TotalFiles int        `json:"total_files"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Status     string     `json:"status"` // "running", "completed", "cancelled", "failed"
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// FileResult is one recorded per-file outcome.
type FileResult struct {
	ID         int64  `json:"id"`
	RunID      int64  `json:"run_id"`
	SourcePath string `json:"source_path"`
	DestPath   string `json:"dest_path"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// CreateRun inserts a new run in "running" state and returns its ID.
func (s *Store) CreateRun(sourceDir, destDir, format string, quality, workers, batchSize, totalFiles int) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO runs (source_dir, dest_dir, format, quality, workers, batch_size, total_files, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'running', ?)`,
		sourceDir, destDir, format, quality, workers, batchSize, totalFiles, time.Now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishRun records the terminal status and final counts of a run.
func (s *Store) FinishRun(runID int64, status string, succeeded, failed int) error {
	_, err := s.db.Exec(`
		UPDATE runs SET status = ?, succeeded = ?, failed = ?, finished_at = ?
		WHERE id = ?`,
		status, succeeded, failed, time.Now(), runID)
	return err
}

// AddFileResults records every per-file outcome of a run in one
// transaction. Called once at run termination so worker goroutines
// never contend on the database.
func (s *Store) AddFileResults(runID int64, results []codec.Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO file_results (run_id, source_path, dest_path, success, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.Exec(runID, r.SourcePath, r.DestPath, r.Success, r.Duration.Milliseconds(), r.Error); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, source_dir, dest_dir, format, quality, workers, batch_size,
		       total_files, succeeded, failed, status, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.SourceDir, &r.DestDir, &r.Format, &r.Quality, &r.Workers,
			&r.BatchSize, &r.TotalFiles, &r.Succeeded, &r.Failed, &r.Status, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by ID, or sql.ErrNoRows.
func (s *Store) GetRun(runID int64) (*Run, error) {
	var r Run
	var finished sql.NullTime
	err := s.db.QueryRow(`
		SELECT id, source_dir, dest_dir, format, quality, workers, batch_size,
		       total_files, succeeded, failed, status, started_at, finished_at
		FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.SourceDir, &r.DestDir, &r.Format, &r.Quality, &r.Workers,
			&r.BatchSize, &r.TotalFiles, &r.Succeeded, &r.Failed, &r.Status, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// GetRunResults returns every per-file outcome of a run.
func (s *Store) GetRunResults(runID int64) ([]*FileResult, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, source_path, dest_path, success, duration_ms, error
		FROM file_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*FileResult
	for rows.Next() {
		var fr FileResult
		if err := rows.Scan(&fr.ID, &fr.RunID, &fr.SourcePath, &fr.DestPath, &fr.Success, &fr.DurationMs, &fr.Error); err != nil {
			return nil, err
		}
		results = append(results, &fr)
	}
	return results, rows.Err()
}
