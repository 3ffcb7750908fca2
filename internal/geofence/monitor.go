package geofence

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"worktrack/internal/clock"
	"worktrack/internal/geo"
	"worktrack/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EventType is the direction of a geofence crossing.
type EventType string

const (
	EventEnter EventType = "enter"
	EventExit  EventType = "exit"
)

// Event is emitted once per inside/outside change of a job.
type Event struct {
	JobID     string    `json:"job_id"`
	JobName   string    `json:"job_name"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Location  Sample    `json:"location"`
}

// Status is the last evaluated position of the device relative to one job.
type Status struct {
	JobID          string    `json:"job_id"`
	IsInside       bool      `json:"is_inside"`
	DistanceMeters float64   `json:"distance_meters"`
	LastUpdate     time.Time `json:"last_update"`
}

// Listener receives geofence events in arrival order.
type Listener func(Event)

// Monitor owns the location subscription and the per-job statuses.
type Monitor struct {
	source     Source
	clock      clock.Clock
	logger     *slog.Logger
	opts       WatchOptions
	exitFactor float64

	// processMu serializes sample evaluation and event delivery.
	processMu sync.Mutex

	mu        sync.RWMutex
	jobs      []store.Job
	statuses  map[string]*Status
	sub       Subscription
	listeners []Listener

	events  metric.Int64Counter
	samples metric.Int64Counter
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithWatchOptions overrides the sampling cadence.
func WithWatchOptions(opts WatchOptions) Option {
	return func(m *Monitor) { m.opts = opts }
}

// WithExitHysteresis widens the radius used to decide that a job was left.
// A factor of 1 disables hysteresis.
func WithExitHysteresis(factor float64) Option {
	return func(m *Monitor) {
		if factor >= 1 {
			m.exitFactor = factor
		}
	}
}

// WithClock sets the time source used for status timestamps.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a stopped monitor.
func NewMonitor(source Source, opts ...Option) *Monitor {
	m := &Monitor{
		source:     source,
		clock:      clock.Real{},
		logger:     slog.Default(),
		opts:       DefaultWatchOptions,
		exitFactor: 1,
		statuses:   make(map[string]*Status),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "geofence")

	meter := otel.Meter("worktrack/geofence")
	m.events, _ = meter.Int64Counter("worktrack.geofence.events",
		metric.WithDescription("Geofence enter/exit events emitted"))
	m.samples, _ = meter.Int64Counter("worktrack.location.samples",
		metric.WithDescription("Location samples evaluated"))

	return m
}

// AddEventListener registers l for all future events.
func (m *Monitor) AddEventListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// StartMonitoring begins watching the jobs that have auto-timer enabled and a geofence.
// It returns false without error when permission is missing or no job qualifies.
// Calling it while already monitoring replaces the tracked job set.
func (m *Monitor) StartMonitoring(ctx context.Context, jobs []store.Job) (bool, error) {
	granted, err := m.source.RequestPermission(ctx)
	if err != nil {
		m.logger.Warn("location permission request failed", "error", err)
		return false, nil
	}
	if !granted {
		m.logger.Info("location permission not granted")
		return false, nil
	}

	tracked := make([]store.Job, 0, len(jobs))
	for _, job := range jobs {
		if job.Monitorable() {
			tracked = append(tracked, job)
		}
	}
	if len(tracked) == 0 {
		m.logger.Info("no jobs with auto-timer and geofence to monitor")
		return false, nil
	}

	m.StopMonitoring()

	m.mu.Lock()
	m.jobs = tracked
	for _, job := range tracked {
		m.statuses[job.ID] = &Status{
			JobID:          job.ID,
			IsInside:       false,
			DistanceMeters: math.MaxFloat64,
			LastUpdate:     m.clock.Now(),
		}
	}
	opts := m.watchOptionsLocked()
	m.mu.Unlock()

	sub, err := m.source.Watch(ctx, opts, m.handleSample)
	if err != nil {
		m.mu.Lock()
		m.jobs = nil
		m.statuses = make(map[string]*Status)
		m.mu.Unlock()
		return false, fmt.Errorf("failed to watch location: %w", err)
	}

	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()

	m.logger.Info("geofence monitoring started",
		"jobs", len(tracked),
		"interval", opts.Interval,
		"min_distance_m", opts.MinDistanceMeters)
	return true, nil
}

// watchOptionsLocked narrows the movement threshold so small geofences are not stepped over.
func (m *Monitor) watchOptionsLocked() WatchOptions {
	opts := m.opts
	smallest := math.MaxFloat64
	for _, job := range m.jobs {
		smallest = math.Min(smallest, job.Geofence.RadiusMeters)
	}

	var adaptive float64
	switch {
	case smallest <= 30:
		adaptive = 5
	case smallest <= 50:
		adaptive = 10
	default:
		adaptive = 15
	}
	if opts.MinDistanceMeters <= 0 || opts.MinDistanceMeters > adaptive {
		opts.MinDistanceMeters = adaptive
	}
	return opts
}

// StopMonitoring unsubscribes and drops all statuses. It is safe to call repeatedly.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.jobs = nil
	m.statuses = make(map[string]*Status)
	m.mu.Unlock()

	if sub != nil {
		sub.Stop()
		m.logger.Info("geofence monitoring stopped")
	}
}

// IsMonitoring reports whether a location subscription is active.
func (m *Monitor) IsMonitoring() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sub != nil
}

// Status returns the status of a tracked job.
func (m *Monitor) Status(jobID string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.statuses[jobID]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// Statuses returns the status of every tracked job, in job order.
func (m *Monitor) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.jobs))
	for _, job := range m.jobs {
		if s, ok := m.statuses[job.ID]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// JobsInside returns the ids of tracked jobs the device is currently inside.
func (m *Monitor) JobsInside() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, job := range m.jobs {
		if s, ok := m.statuses[job.ID]; ok && s.IsInside {
			ids = append(ids, job.ID)
		}
	}
	return ids
}

// CheckCurrentLocation fetches a one-shot sample and evaluates it against jobs.
// It works without an active subscription and emits events like a watched sample would.
func (m *Monitor) CheckCurrentLocation(ctx context.Context, jobs []store.Job) ([]Status, error) {
	sample, err := m.source.CurrentSample(ctx)
	if err != nil {
		m.logger.Warn("failed to get current location", "error", err)
		return nil, fmt.Errorf("failed to get current location: %w", err)
	}

	m.mu.Lock()
	if m.sub == nil {
		m.jobs = m.jobs[:0]
		for _, job := range jobs {
			if !job.Monitorable() {
				continue
			}
			m.jobs = append(m.jobs, job)
			if _, ok := m.statuses[job.ID]; !ok {
				m.statuses[job.ID] = &Status{JobID: job.ID, DistanceMeters: math.MaxFloat64}
			}
		}
	}
	m.mu.Unlock()

	m.handleSample(sample)
	return m.Statuses(), nil
}

func (m *Monitor) handleSample(sample Sample) {
	m.processMu.Lock()
	defer m.processMu.Unlock()

	if sample.Timestamp.IsZero() {
		sample.Timestamp = m.clock.Now()
	}
	m.samples.Add(context.Background(), 1)

	events, listeners := m.evaluate(sample)
	for _, ev := range events {
		m.events.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", string(ev.Type))))
		m.logger.Info("geofence event", "job_id", ev.JobID, "type", ev.Type)
		for _, l := range listeners {
			l(ev)
		}
	}
}

// evaluate updates statuses and returns the events produced by sample.
func (m *Monitor) evaluate(sample Sample) ([]Event, []Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var events []Event
	for _, job := range m.jobs {
		status, ok := m.statuses[job.ID]
		if !ok {
			continue
		}

		distance := geo.Distance(sample.Latitude, sample.Longitude, job.Geofence.Latitude, job.Geofence.Longitude)
		radius := job.Geofence.RadiusMeters
		if status.IsInside {
			radius *= m.exitFactor
		}
		inside := geo.IsInside(distance, radius)

		status.DistanceMeters = distance
		status.LastUpdate = now
		if inside == status.IsInside {
			continue
		}
		status.IsInside = inside

		typ := EventExit
		if inside {
			typ = EventEnter
		}
		events = append(events, Event{
			JobID:     job.ID,
			JobName:   job.Name,
			Type:      typ,
			Timestamp: sample.Timestamp,
			Location:  sample,
		})
	}

	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	return events, listeners
}
