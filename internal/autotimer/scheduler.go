package autotimer

import (
	"sync"
	"time"

	"worktrack/internal/clock"
)

// Handle identifies one scheduling of the slot. The zero Handle is never issued.
type Handle uint64

// Scheduler is a single-slot cancellable timer.
// Scheduling always cancels the previous handle, and an expiry callback must
// Claim its handle before acting so a cancel that already returned always wins.
type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	gen     uint64
	current Handle
	timer   clock.Timer
}

// NewScheduler creates an empty slot.
func NewScheduler(c clock.Clock) *Scheduler {
	return &Scheduler{clock: c}
}

// Schedule arms the slot. onExpire receives the handle it was scheduled with.
func (s *Scheduler) Schedule(delay time.Duration, onExpire func(Handle)) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	h := Handle(s.gen)
	s.current = h
	s.timer = s.clock.AfterFunc(delay, func() { onExpire(h) })
	return h
}

// Cancel disarms h if it is still the current handle.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h == 0 || s.current != h {
		return false
	}
	s.stopLocked()
	return true
}

// Claim consumes h. It returns true at most once per handle and never after Cancel(h).
func (s *Scheduler) Claim(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h == 0 || s.current != h {
		return false
	}
	s.current = 0
	s.timer = nil
	return true
}

// Pending reports whether a handle is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != 0
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.current = 0
}
