// Package location provides a geofence.Source fed by samples pushed from the device.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"worktrack/internal/clock"
	"worktrack/internal/geo"
	"worktrack/internal/geofence"
)

// ErrNoSample is returned by CurrentSample before any sample was pushed.
var ErrNoSample = errors.New("no location sample received yet")

// ErrStaleSample is returned by CurrentSample when the last sample is older than MaxAge.
var ErrStaleSample = errors.New("last location sample is stale")

// PushSource receives samples over the API and forwards them to watchers
// according to each watcher's cadence.
type PushSource struct {
	clock  clock.Clock
	maxAge time.Duration

	mu       sync.Mutex
	granted  bool
	last     *geofence.Sample
	watchers map[int]*watcher
	nextID   int
}

type watcher struct {
	opts      geofence.WatchOptions
	fn        func(geofence.Sample)
	delivered *geofence.Sample
	deliverAt time.Time
}

// NewPushSource creates a source. Permission starts as granted.
func NewPushSource(c clock.Clock, maxAge time.Duration) *PushSource {
	return &PushSource{
		clock:    c,
		maxAge:   maxAge,
		granted:  true,
		watchers: make(map[int]*watcher),
	}
}

// SetPermission records whether the device grants location access.
func (p *PushSource) SetPermission(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted = granted
}

func (p *PushSource) RequestPermission(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted, nil
}

func (p *PushSource) Watch(ctx context.Context, opts geofence.WatchOptions, fn func(geofence.Sample)) (geofence.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.watchers[id] = &watcher{opts: opts, fn: fn}
	return &subscription{source: p, id: id}, nil
}

func (p *PushSource) CurrentSample(ctx context.Context) (geofence.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last == nil {
		return geofence.Sample{}, ErrNoSample
	}
	if p.maxAge > 0 && p.clock.Now().Sub(p.last.Timestamp) > p.maxAge {
		return geofence.Sample{}, ErrStaleSample
	}
	return *p.last, nil
}

// Push records a sample and delivers it to every watcher whose interval elapsed
// or who moved at least its minimum distance since the last delivery.
// It returns the number of watchers that received the sample.
func (p *PushSource) Push(sample geofence.Sample) int {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = p.clock.Now()
	}

	p.mu.Lock()
	if !p.granted {
		p.mu.Unlock()
		return 0
	}
	p.last = &sample

	var due []func(geofence.Sample)
	for _, w := range p.watchers {
		if !w.wants(sample) {
			continue
		}
		s := sample
		w.delivered = &s
		w.deliverAt = sample.Timestamp
		due = append(due, w.fn)
	}
	p.mu.Unlock()

	for _, fn := range due {
		fn(sample)
	}
	return len(due)
}

func (w *watcher) wants(s geofence.Sample) bool {
	if w.delivered == nil {
		return true
	}
	if w.opts.Interval > 0 && s.Timestamp.Sub(w.deliverAt) >= w.opts.Interval {
		return true
	}
	moved := geo.Distance(w.delivered.Latitude, w.delivered.Longitude, s.Latitude, s.Longitude)
	return moved >= w.opts.MinDistanceMeters
}

type subscription struct {
	source *PushSource
	id     int
	once   sync.Once
}

func (s *subscription) Stop() {
	s.once.Do(func() {
		s.source.mu.Lock()
		defer s.source.mu.Unlock()
		delete(s.source.watchers, s.id)
	})
}
