// Package notify delivers user-facing timer notifications.
package notify

import (
	"context"
	"time"
)

// Kind identifies a notification template.
type Kind string

const (
	KindTimerStarted   Kind = "timer_started"
	KindTimerStopped   Kind = "timer_stopped"
	KindTimerWillStart Kind = "timer_will_start"
	KindTimerWillStop  Kind = "timer_will_stop"
)

// Notifier schedules notifications. Failures are reported but never fatal to callers.
type Notifier interface {
	SendNow(ctx context.Context, kind Kind, jobName string, metadata map[string]string) error
	ScheduleAt(ctx context.Context, kind Kind, jobName string, at time.Time) error
	CancelScheduled(ctx context.Context, jobName string) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) SendNow(context.Context, Kind, string, map[string]string) error { return nil }
func (Nop) ScheduleAt(context.Context, Kind, string, time.Time) error     { return nil }
func (Nop) CancelScheduled(context.Context, string) error                 { return nil }
