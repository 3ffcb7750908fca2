package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"worktrack/internal/store"
)

func (s *Store) GetJobs(ctx context.Context) ([]store.Job, error) {
	query := `
		SELECT id, name, latitude, longitude, radius_meters,
		       auto_enabled, delay_start_seconds, delay_stop_seconds, notifications
		FROM jobs
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []store.Job
	for rows.Next() {
		var (
			job           store.Job
			lat, lon, rad sql.NullFloat64
		)
		if err := rows.Scan(
			&job.ID,
			&job.Name,
			&lat,
			&lon,
			&rad,
			&job.AutoTimer.Enabled,
			&job.AutoTimer.DelayStartSeconds,
			&job.AutoTimer.DelayStopSeconds,
			&job.AutoTimer.NotificationsEnabled,
		); err != nil {
			return nil, err
		}
		if lat.Valid && lon.Valid && rad.Valid {
			job.Geofence = &store.Geofence{
				Latitude:     lat.Float64,
				Longitude:    lon.Float64,
				RadiusMeters: rad.Float64,
			}
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// ReplaceJobs swaps the whole job set inside one transaction.
func (s *Store) ReplaceJobs(ctx context.Context, jobs []store.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM jobs"); err != nil {
		return fmt.Errorf("failed to clear jobs: %w", err)
	}
	for _, job := range jobs {
		if err := s.insertJob(ctx, tx, job); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) insertJob(ctx context.Context, tx store.DBTransaction, job store.Job) error {
	query := `
		INSERT INTO jobs (id, name, latitude, longitude, radius_meters,
		                  auto_enabled, delay_start_seconds, delay_stop_seconds, notifications)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var lat, lon, rad sql.NullFloat64
	if job.Geofence != nil {
		lat = sql.NullFloat64{Float64: job.Geofence.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: job.Geofence.Longitude, Valid: true}
		rad = sql.NullFloat64{Float64: job.Geofence.RadiusMeters, Valid: true}
	}

	_, err := s.executor(tx).ExecContext(ctx, query,
		job.ID,
		job.Name,
		lat,
		lon,
		rad,
		job.AutoTimer.Enabled,
		job.AutoTimer.DelayStartSeconds,
		job.AutoTimer.DelayStopSeconds,
		job.AutoTimer.NotificationsEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}
