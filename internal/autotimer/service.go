package autotimer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"worktrack/internal/clock"
	"worktrack/internal/geofence"
	"worktrack/internal/notify"
	"worktrack/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// GeofenceMonitor is the part of geofence.Monitor the service drives.
type GeofenceMonitor interface {
	StartMonitoring(ctx context.Context, jobs []store.Job) (bool, error)
	StopMonitoring()
	AddEventListener(l geofence.Listener)
}

// Config tunes timing that is not part of a job's own settings.
type Config struct {
	// TickInterval is the countdown broadcast cadence while an action is pending.
	TickInterval time.Duration
	// ReminderLead schedules a reminder this long before a pending action is due.
	// Countdowns not longer than the lead get no reminder.
	ReminderLead time.Duration
}

// DefaultConfig ticks every second and reminds 30 seconds ahead.
var DefaultConfig = Config{
	TickInterval: time.Second,
	ReminderLead: 30 * time.Second,
}

// Service is the auto-timer state machine. All transitions run under one mutex,
// so geofence events, timer expiries and manual commands never interleave.
type Service struct {
	sessions store.SessionStore
	kv       store.KV
	monitor  GeofenceMonitor
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config
	sched    *Scheduler

	mu      sync.Mutex
	enabled bool
	state   State
	jobID   string
	jobs    []store.Job
	delayed *DelayedAction
	paused  *PausedDelayedAction
	dirty   bool
	tick    clock.Timer
	tickGen uint64

	listenerMu sync.Mutex
	listeners  []listenerEntry

	tracer       trace.Tracer
	transitions  metric.Int64Counter
	effects      metric.Int64Counter
	sessionHours metric.Float64Histogram
}

type listenerEntry struct {
	id string
	fn StatusListener
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithNotifier sets the notification backend.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// New builds a service and subscribes it to the monitor's events.
func New(sessions store.SessionStore, kv store.KV, monitor GeofenceMonitor, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		kv:       kv,
		monitor:  monitor,
		notifier: notify.Nop{},
		clock:    clock.Real{},
		logger:   slog.Default(),
		cfg:      DefaultConfig,
		state:    StateInactive,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.TickInterval <= 0 {
		s.cfg.TickInterval = DefaultConfig.TickInterval
	}
	s.logger = s.logger.With("component", "autotimer")
	s.sched = NewScheduler(s.clock)

	s.tracer = otel.Tracer("worktrack/autotimer")
	meter := otel.Meter("worktrack/autotimer")
	s.transitions, _ = meter.Int64Counter("worktrack.autotimer.transitions",
		metric.WithDescription("State machine transitions"))
	s.effects, _ = meter.Int64Counter("worktrack.autotimer.side_effects",
		metric.WithDescription("Session start/stop side effects by result"))
	s.sessionHours, _ = meter.Float64Histogram("worktrack.autotimer.session_hours",
		metric.WithDescription("Hours of saved work records"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 4, 6, 8, 10, 12))

	monitor.AddEventListener(func(ev geofence.Event) {
		s.HandleGeofenceEvent(context.Background(), ev)
	})
	return s
}

// Start enables automatic control for jobs. It restores the persisted state,
// reconciles it with the active session and then starts geofence monitoring.
// It returns false when no job has auto-timer enabled or monitoring cannot start.
//
// A countdown that was already overdue at restore runs before monitoring is
// requested, so its session change stands even when Start then returns false.
// On that path the service is left Inactive and the stored snapshot is kept for
// the next attempt.
func (s *Service) Start(ctx context.Context, jobs []store.Job) bool {
	s.mu.Lock()
	defer s.unlock()

	s.jobs = copyJobs(jobs)

	enabledJobs := 0
	for _, job := range jobs {
		if job.AutoTimer.Enabled {
			enabledJobs++
		}
	}
	if enabledJobs == 0 {
		s.logger.Info("no jobs with auto-timer enabled")
		if s.enabled {
			s.stopLocked(ctx)
		}
		return false
	}

	if s.enabled {
		s.checkPendingLocked(ctx)
		return true
	}

	s.restoreLocked(ctx)
	s.reconcileOnStartLocked(ctx)

	ok, err := s.monitor.StartMonitoring(ctx, jobs)
	if err != nil {
		s.logger.Error("failed to start geofence monitoring", "error", err)
	}
	if !ok {
		s.logger.Warn("auto-timer not started: monitoring unavailable")
		s.resetUnstartedLocked()
		return false
	}

	s.enabled = true
	s.dirty = true
	s.logger.Info("auto-timer started", "state", s.state, "job_id", s.jobID, "jobs", enabledJobs)
	return true
}

// resetUnstartedLocked drops what restore armed without touching the store.
func (s *Service) resetUnstartedLocked() {
	if d := s.delayed; d != nil {
		s.sched.Cancel(d.handle)
		s.delayed = nil
	}
	s.stopTickerLocked()
	s.paused = nil
	s.state = StateInactive
	s.jobID = ""
	s.dirty = false
}

// Stop disables automatic control and drops any pending or paused action.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	s.monitor.StopMonitoring()
	s.cancelDelayedLocked(ctx)
	s.paused = nil
	s.enabled = false
	s.setStateLocked(StateInactive, "")
	s.logger.Info("auto-timer stopped")
}

// ForceRestart stops the service, clears the active session and starts again.
func (s *Service) ForceRestart(ctx context.Context, jobs []store.Job) bool {
	s.Stop(ctx)
	if err := s.sessions.ClearActiveSession(ctx); err != nil {
		s.logger.Error("failed to clear active session on restart", "error", err)
	}
	return s.Start(ctx, jobs)
}

// UpdateJobs swaps the job set. A pending countdown whose delay setting changed
// continues with min(new delay, old remaining).
func (s *Service) UpdateJobs(ctx context.Context, jobs []store.Job) {
	s.mu.Lock()
	defer s.unlock()

	var oldJob store.Job
	if d := s.delayed; d != nil {
		oldJob, _ = s.jobLocked(d.JobID)
	}
	s.jobs = copyJobs(jobs)

	if d := s.delayed; d != nil {
		s.reconcileDelayLocked(ctx, *d, oldJob)
	}

	if s.enabled {
		if ok, err := s.monitor.StartMonitoring(ctx, jobs); !ok {
			s.logger.Warn("geofence monitoring not restarted after job update", "error", err)
		}
	}
	s.dirty = true
}

func (s *Service) reconcileDelayLocked(ctx context.Context, d DelayedAction, oldJob store.Job) {
	job, ok := s.jobLocked(d.JobID)
	if !ok || !job.AutoTimer.Enabled {
		s.logger.Info("pending action dropped: job removed or auto-timer disabled", "job_id", d.JobID)
		s.cancelDelayedLocked(ctx)
		s.setStateLocked(StateInactive, "")
		return
	}

	newDelay := delayFor(job, d.Action)
	if newDelay == delayFor(oldJob, d.Action) {
		return
	}

	now := s.clock.Now()
	oldRemaining := d.Remaining(now)
	newRemaining := newDelay
	if oldRemaining < newRemaining {
		newRemaining = oldRemaining
	}

	s.logger.Info("delay changed during countdown",
		"job_id", job.ID,
		"action", d.Action,
		"old_remaining_s", oldRemaining,
		"new_remaining_s", newRemaining)

	s.cancelDelayedLocked(ctx)
	s.scheduleLocked(ctx, job, d.Action, newRemaining, false)
}

// GetStatus computes the current status.
func (s *Service) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Service) statusLocked() Status {
	st := Status{
		State:   s.state,
		JobID:   s.jobID,
		Enabled: s.enabled,
		Paused:  s.paused != nil,
	}
	if job, ok := s.jobLocked(s.jobID); ok {
		st.JobName = job.Name
	}
	if d := s.delayed; d != nil {
		st.RemainingSeconds = d.Remaining(s.clock.Now())
		st.TotalDelaySeconds = d.DelaySeconds
	} else if p := s.paused; p != nil {
		st.RemainingSeconds = p.RemainingSeconds
	}
	st.Message = statusMessage(s.state, st.RemainingSeconds)
	return st
}

// AddStatusListener registers fn and returns an id for RemoveStatusListener.
func (s *Service) AddStatusListener(fn StatusListener) string {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	id := uuid.NewString()
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	return id
}

// RemoveStatusListener unregisters a listener. It reports whether id was known.
func (s *Service) RemoveStatusListener(id string) bool {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Service) broadcast(st Status) {
	s.listenerMu.Lock()
	listeners := make([]listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.Unlock()

	for _, l := range listeners {
		s.callListener(l, st)
	}
}

func (s *Service) callListener(l listenerEntry, st Status) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("status listener panicked", "listener", l.id, "panic", r)
		}
	}()
	l.fn(st)
}

// unlock persists and broadcasts if the locked section changed anything.
// Listeners run after the mutex is released so they may call back into the service.
func (s *Service) unlock() {
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	s.dirty = false
	s.persistLocked()
	st := s.statusLocked()
	s.mu.Unlock()

	s.broadcast(st)
}

func (s *Service) setStateLocked(state State, jobID string) {
	if s.state != state {
		s.transitions.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("from", string(s.state)),
			attribute.String("to", string(state)),
		))
		s.logger.Info("state change", "from", s.state, "to", state, "job_id", jobID)
	}
	s.state = state
	s.jobID = jobID
	s.dirty = true
}

func (s *Service) jobLocked(id string) (store.Job, bool) {
	if id == "" {
		return store.Job{}, false
	}
	for _, job := range s.jobs {
		if job.ID == id {
			return job, true
		}
	}
	return store.Job{}, false
}

func delayFor(job store.Job, action Action) float64 {
	if action == ActionStart {
		return job.AutoTimer.DelayStartSeconds
	}
	return job.AutoTimer.DelayStopSeconds
}

func copyJobs(jobs []store.Job) []store.Job {
	out := make([]store.Job, len(jobs))
	copy(out, jobs)
	return out
}
