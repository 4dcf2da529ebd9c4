package state

import (
	"database/sql"
	"fmt"
	"time"
)

// Run status values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPartial = "partial"
)

// RunRecord represents a single hash, compare or clean run
type RunRecord struct {
	ID           int64
	RunID        string
	Command      string
	StartTime    time.Time
	EndTime      time.Time
	Status       string // "success", "failed", "partial"
	FilesHashed  int
	FilesDeleted int
	Errors       int
	Error        string
}

// SaveRun records a run
func (s *SQLiteStore) SaveRun(record RunRecord) error {
	if record.Status != StatusSuccess && record.Status != StatusFailed && record.Status != StatusPartial {
		return fmt.Errorf("invalid status: %s (must be 'success', 'failed', or 'partial')", record.Status)
	}

	query := `
		INSERT INTO runs (run_id, command, start_time, end_time, status, files_hashed, files_deleted, errors, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		record.RunID,
		record.Command,
		record.StartTime,
		record.EndTime,
		record.Status,
		record.FilesHashed,
		record.FilesDeleted,
		record.Errors,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}

	return nil
}

// GetHistory retrieves the most recent runs, newest first
func (s *SQLiteStore) GetHistory(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `
		SELECT id, run_id, command, start_time, end_time, status, files_hashed, files_deleted, errors, error
		FROM runs
		ORDER BY start_time DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// GetLastSuccess retrieves the last successful run of command
func (s *SQLiteStore) GetLastSuccess(command string) (*RunRecord, error) {
	query := `
		SELECT id, run_id, command, start_time, end_time, status, files_hashed, files_deleted, errors, error
		FROM runs
		WHERE command = ? AND status = 'success'
		ORDER BY start_time DESC, id DESC
		LIMIT 1
	`

	record, err := scanRun(s.db.QueryRow(query, command))
	if err == sql.ErrNoRows {
		return nil, nil // No successful run found
	}
	if err != nil {
		return nil, err
	}

	return &record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var record RunRecord
	var errText sql.NullString
	err := row.Scan(
		&record.ID,
		&record.RunID,
		&record.Command,
		&record.StartTime,
		&record.EndTime,
		&record.Status,
		&record.FilesHashed,
		&record.FilesDeleted,
		&record.Errors,
		&errText,
	)
	if err == sql.ErrNoRows {
		return record, err
	}
	if err != nil {
		return record, fmt.Errorf("failed to scan record: %w", err)
	}
	record.Error = errText.String
	return record, nil
}
