// Package geofence turns a stream of location samples into per-job enter/exit events.
package geofence

import (
	"context"
	"time"
)

// Sample is a single device position fix.
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WatchOptions is the sampling cadence: a sample is wanted every Interval or
// every MinDistanceMeters of movement, whichever comes first.
type WatchOptions struct {
	Interval          time.Duration
	MinDistanceMeters float64
}

// DefaultWatchOptions samples every 30s or every 20m.
var DefaultWatchOptions = WatchOptions{
	Interval:          30 * time.Second,
	MinDistanceMeters: 20,
}

// Subscription is an active Watch.
type Subscription interface {
	Stop()
}

// Source provides location samples.
// Implementations must not hold internal locks while invoking the Watch callback.
type Source interface {
	// RequestPermission reports whether location access is granted.
	RequestPermission(ctx context.Context) (bool, error)

	// Watch delivers samples to fn until the subscription is stopped.
	Watch(ctx context.Context, opts WatchOptions, fn func(Sample)) (Subscription, error)

	// CurrentSample returns a fresh one-shot fix.
	CurrentSample(ctx context.Context) (Sample, error)
}
