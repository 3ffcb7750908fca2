package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"worktrack/internal/store"
)

func (s *Store) GetActiveSession(ctx context.Context) (*store.ActiveSession, error) {
	query := "SELECT job_id, start_time, is_paused, notes FROM active_session WHERE slot = 1"

	var session store.ActiveSession
	err := s.db.QueryRowContext(ctx, query).Scan(
		&session.JobID,
		&session.StartTime,
		&session.IsPaused,
		&session.Notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active session: %w", err)
	}
	return &session, nil
}

// SaveActiveSession upserts the single session slot.
func (s *Store) SaveActiveSession(ctx context.Context, session store.ActiveSession) error {
	query := `
		INSERT INTO active_session (slot, job_id, start_time, is_paused, notes)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (slot) DO UPDATE
		SET job_id = EXCLUDED.job_id,
		    start_time = EXCLUDED.start_time,
		    is_paused = EXCLUDED.is_paused,
		    notes = EXCLUDED.notes
	`

	_, err := s.db.ExecContext(ctx, query,
		session.JobID,
		session.StartTime,
		session.IsPaused,
		session.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to save active session for job %s: %w", session.JobID, err)
	}
	return nil
}

func (s *Store) ClearActiveSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM active_session WHERE slot = 1"); err != nil {
		return fmt.Errorf("failed to clear active session: %w", err)
	}
	return nil
}

// AddWorkRecord inserts a completed work record. A record whose ID already
// exists is ignored.
func (s *Store) AddWorkRecord(ctx context.Context, record store.WorkRecord) error {
	query := `
		INSERT INTO work_records (id, work_date, job_id, hours, overtime, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Date,
		record.JobID,
		record.Hours,
		record.Overtime,
		record.Notes,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add work record for job %s: %w", record.JobID, err)
	}
	return nil
}

// ListWorkRecords returns the records of a job, newest first.
func (s *Store) ListWorkRecords(ctx context.Context, jobID string, limit int) ([]store.WorkRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, to_char(work_date, 'YYYY-MM-DD'), job_id, hours, overtime, notes, created_at
		FROM work_records
		WHERE job_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []store.WorkRecord
	for rows.Next() {
		var r store.WorkRecord
		if err := rows.Scan(&r.ID, &r.Date, &r.JobID, &r.Hours, &r.Overtime, &r.Notes, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
