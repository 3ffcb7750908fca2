// Package autotimer implements the geofence-driven start/stop state machine for work sessions.
package autotimer

import (
	"fmt"
	"math"
	"time"
)

// State is the auto-timer's position in its lifecycle.
type State string

const (
	StateInactive  State = "inactive"
	StateEntering  State = "entering"
	StateActive    State = "active"
	StateLeaving   State = "leaving"
	StateManual    State = "manual"
	StateCancelled State = "cancelled"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateInactive, StateEntering, StateActive, StateLeaving, StateManual, StateCancelled:
		return true
	}
	return false
}

// Action is what a delayed action does when it expires.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// countdownState is the state shown while an action of this kind is pending.
func (a Action) countdownState() State {
	if a == ActionStart {
		return StateEntering
	}
	return StateLeaving
}

// DelayedAction is the single pending start or stop intent.
type DelayedAction struct {
	JobID        string
	Action       Action
	ScheduledAt  time.Time
	DelaySeconds float64

	handle Handle
}

// Target is when the action is due.
func (d DelayedAction) Target() time.Time {
	return d.ScheduledAt.Add(seconds(d.DelaySeconds))
}

// Remaining returns the seconds left at now, never negative.
func (d DelayedAction) Remaining(now time.Time) float64 {
	elapsed := now.Sub(d.ScheduledAt).Seconds()
	return math.Max(0, d.DelaySeconds-elapsed)
}

// PausedDelayedAction holds what was left of a countdown the user cancelled.
type PausedDelayedAction struct {
	JobID            string  `json:"jobId"`
	Action           Action  `json:"action"`
	RemainingSeconds float64 `json:"remainingSeconds"`
}

// Status is the observer-facing view of the service.
type Status struct {
	State             State   `json:"state"`
	JobID             string  `json:"job_id,omitempty"`
	JobName           string  `json:"job_name,omitempty"`
	RemainingSeconds  float64 `json:"remaining_seconds"`
	TotalDelaySeconds float64 `json:"total_delay_seconds"`
	Message           string  `json:"message"`
	Enabled           bool    `json:"enabled"`
	Paused            bool    `json:"paused"`
}

// StatusListener observes status changes.
type StatusListener func(Status)

// StopResult reports what ForceStopAndSave recorded.
type StopResult struct {
	Saved bool    `json:"saved"`
	Hours float64 `json:"hours"`
}

func statusMessage(state State, remaining float64) string {
	switch state {
	case StateEntering, StateLeaving:
		return fmt.Sprintf("%s:%d", state, int(math.Ceil(remaining/60)))
	default:
		return string(state)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
