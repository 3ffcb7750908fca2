package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned by KV.Get when the key does not exist.
var ErrNotFound = errors.New("not found")

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SessionStore owns the active session, the work history and the job registry.
type SessionStore interface {
	// GetActiveSession returns the running session, or nil when none exists.
	GetActiveSession(ctx context.Context) (*ActiveSession, error)

	// SaveActiveSession replaces the running session.
	SaveActiveSession(ctx context.Context, session ActiveSession) error

	// ClearActiveSession removes the running session. Clearing an empty slot is not an error.
	ClearActiveSession(ctx context.Context) error

	// AddWorkRecord appends a completed work record.
	AddWorkRecord(ctx context.Context, record WorkRecord) error

	// GetJobs returns every registered job.
	GetJobs(ctx context.Context) ([]Job, error)
}

// WorkHistory lists completed work records.
type WorkHistory interface {
	// ListWorkRecords returns up to limit records of a job, newest first.
	ListWorkRecords(ctx context.Context, jobID string, limit int) ([]WorkRecord, error)
}

// JobRegistry replaces the stored job set, used when the jobs file changes.
type JobRegistry interface {
	ReplaceJobs(ctx context.Context, jobs []Job) error
}

// KV is a flat byte-oriented key-value store.
type KV interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes a key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// ListKeys returns all keys starting with prefix, in no particular order.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
