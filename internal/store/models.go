// Package store contains the persistence contracts and models for worktrack.
package store

import (
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Geofence is the circular area around a job site.
type Geofence struct {
	Latitude     float64 `json:"latitude" yaml:"latitude"`
	Longitude    float64 `json:"longitude" yaml:"longitude"`
	RadiusMeters float64 `json:"radius_meters" yaml:"radius_meters"`
}

// AutoTimerConfig controls automatic start/stop for a job.
type AutoTimerConfig struct {
	Enabled              bool    `json:"enabled" yaml:"enabled"`
	DelayStartSeconds    float64 `json:"delay_start_seconds" yaml:"delay_start_seconds"`
	DelayStopSeconds     float64 `json:"delay_stop_seconds" yaml:"delay_stop_seconds"`
	NotificationsEnabled bool    `json:"notifications_enabled" yaml:"notifications_enabled"`
}

// Job is a work site known to the job registry. The auto-timer treats it as read-only.
type Job struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Geofence  *Geofence       `json:"geofence,omitempty" yaml:"geofence,omitempty"`
	AutoTimer AutoTimerConfig `json:"auto_timer" yaml:"auto_timer"`
}

// Monitorable reports whether the job qualifies for geofence monitoring.
func (j Job) Monitorable() bool {
	return j.AutoTimer.Enabled && j.Geofence != nil
}

// ActiveSession is the single in-progress work timer.
// It can be written by the auto-timer and by manual control.
type ActiveSession struct {
	JobID     string    `json:"job_id"`
	StartTime time.Time `json:"start_time"`
	IsPaused  bool      `json:"is_paused"`
	Notes     string    `json:"notes"`
}

// AutoSessionNotes marks sessions started by the auto-timer.
const AutoSessionNotes = "auto"

// IsAuto reports whether the session was started automatically.
func (s ActiveSession) IsAuto() bool {
	return s.Notes == AutoSessionNotes
}

// WorkRecord is a completed stretch of work appended when a session stops.
type WorkRecord struct {
	ID        uuid.UUID `json:"id"`
	Date      string    `json:"date"` // YYYY-MM-DD
	JobID     string    `json:"job_id"`
	Hours     float64   `json:"hours"`
	Overtime  bool      `json:"overtime"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// OvertimeThresholdHours is the session length above which a record is overtime.
const OvertimeThresholdHours = 8

// workRecordNamespace seeds record IDs derived from a session.
var workRecordNamespace = uuid.MustParse("5b0c1e0a-3f7d-4d8e-9a61-2c4f7e9b8d13")

// WorkRecordID is the record ID of a session. Saving the same session twice
// yields the same ID, so stores can drop the duplicate.
func WorkRecordID(session ActiveSession) uuid.UUID {
	key := session.JobID + "|" + strconv.FormatInt(session.StartTime.UnixNano(), 10)
	return uuid.NewSHA1(workRecordNamespace, []byte(key))
}

// NewWorkRecord builds the record for a session that ran from start to end.
// Hours are rounded to two decimals with a floor of 0.01.
func NewWorkRecord(session ActiveSession, end time.Time, fallbackNotes string) WorkRecord {
	hours := ElapsedHours(session.StartTime, end)
	notes := session.Notes
	if notes == "" {
		notes = fallbackNotes
	}
	return WorkRecord{
		ID:        WorkRecordID(session),
		Date:      end.Format("2006-01-02"),
		JobID:     session.JobID,
		Hours:     hours,
		Overtime:  hours > OvertimeThresholdHours,
		Notes:     notes,
		CreatedAt: end,
	}
}

// ElapsedHours returns max(0.01, round(end-start in hours, 2)).
func ElapsedHours(start, end time.Time) float64 {
	h := end.Sub(start).Hours()
	h = math.Round(h*100) / 100
	return math.Max(0.01, h)
}
