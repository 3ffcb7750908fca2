// Package memory implements the store interfaces in process memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"worktrack/internal/store"

	"github.com/google/uuid"
)

// Store is an in-memory SessionStore, JobRegistry and KV.
type Store struct {
	mu      sync.RWMutex
	session *store.ActiveSession
	records []store.WorkRecord
	jobs    []store.Job
	kv      map[string][]byte
}

// New creates an empty store.
func New() *Store {
	return &Store{kv: make(map[string][]byte)}
}

func (s *Store) GetActiveSession(ctx context.Context) (*store.ActiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil, nil
	}
	cp := *s.session
	return &cp, nil
}

func (s *Store) SaveActiveSession(ctx context.Context, session store.ActiveSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = &session
	return nil
}

func (s *Store) ClearActiveSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	return nil
}

// AddWorkRecord appends a record. A record whose ID was already added is ignored.
func (s *Store) AddWorkRecord(ctx context.Context, record store.WorkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID != uuid.Nil {
		for _, r := range s.records {
			if r.ID == record.ID {
				return nil
			}
		}
	}
	s.records = append(s.records, record)
	return nil
}

// WorkRecords returns a copy of the appended work records.
func (s *Store) WorkRecords() []store.WorkRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.WorkRecord, len(s.records))
	copy(out, s.records)
	return out
}

// ListWorkRecords returns up to limit records of a job, newest first.
func (s *Store) ListWorkRecords(ctx context.Context, jobID string, limit int) ([]store.WorkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.WorkRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if s.records[i].JobID == jobID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

func (s *Store) GetJobs(ctx context.Context) ([]store.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Job, len(s.jobs))
	copy(out, s.jobs)
	return out, nil
}

func (s *Store) ReplaceJobs(ctx context.Context, jobs []store.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = make([]store.Job, len(jobs))
	copy(s.jobs, jobs)
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.kv[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.kv, key)
	return nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.kv {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}
