package autotimer

import (
	"context"
	"errors"
	"strconv"

	"worktrack/internal/geofence"
	"worktrack/internal/notify"
	"worktrack/internal/store"
)

// ErrNoJob is returned when a command needs a job but none is current or running.
var ErrNoJob = errors.New("no current job")

// HandleGeofenceEvent applies an enter or exit event.
// Events are dropped while the service is disabled or cancelled, and while a
// session for a different job is running. In manual mode events for the
// session's own job still apply, so leaving the site stops a manual timer.
func (s *Service) HandleGeofenceEvent(ctx context.Context, ev geofence.Event) {
	s.mu.Lock()
	defer s.unlock()

	logger := s.logger.With("job_id", ev.JobID, "event", ev.Type, "state", s.state)

	if !s.enabled {
		logger.Debug("auto-timer disabled, ignoring geofence event")
		return
	}
	if s.state == StateCancelled {
		logger.Info("auto-timer cancelled, ignoring geofence event")
		return
	}

	session, err := s.sessions.GetActiveSession(ctx)
	if err != nil {
		logger.Error("failed to read active session", "error", err)
		return
	}
	if session != nil && session.JobID != ev.JobID {
		logger.Info("session running for another job, ignoring geofence event", "session_job_id", session.JobID)
		return
	}

	job, ok := s.jobLocked(ev.JobID)
	if !ok || !job.AutoTimer.Enabled {
		logger.Info("job unknown or auto-timer disabled, ignoring geofence event")
		return
	}

	switch ev.Type {
	case geofence.EventEnter:
		s.handleEnterLocked(ctx, job, session)
	case geofence.EventExit:
		s.handleExitLocked(ctx, job, session)
	}
}

func (s *Service) handleEnterLocked(ctx context.Context, job store.Job, session *store.ActiveSession) {
	if d := s.delayed; d != nil && d.JobID == job.ID {
		switch d.Action {
		case ActionStop:
			s.cancelDelayedLocked(ctx)
			s.setStateLocked(StateActive, job.ID)
		case ActionStart:
			// Countdown already running for this job.
		}
		return
	}

	if session != nil {
		// Guarded by the caller: session.JobID == job.ID.
		s.cancelDelayedLocked(ctx)
		s.setStateLocked(StateActive, job.ID)
		return
	}

	s.cancelDelayedLocked(ctx)
	s.scheduleLocked(ctx, job, ActionStart, job.AutoTimer.DelayStartSeconds, true)
}

func (s *Service) handleExitLocked(ctx context.Context, job store.Job, session *store.ActiveSession) {
	if d := s.delayed; d != nil && d.JobID == job.ID {
		switch d.Action {
		case ActionStart:
			s.cancelDelayedLocked(ctx)
			s.setStateLocked(StateInactive, "")
		case ActionStop:
			// Countdown already running for this job.
		}
		return
	}

	if session == nil {
		if s.jobID == job.ID && (s.state == StateActive || s.state == StateLeaving) {
			s.logger.Info("session already gone on exit", "job_id", job.ID)
			s.setStateLocked(StateInactive, "")
		}
		return
	}

	s.cancelDelayedLocked(ctx)
	s.scheduleLocked(ctx, job, ActionStop, job.AutoTimer.DelayStopSeconds, true)
}

// scheduleLocked fills the single slot. The slot must already be empty.
// A non-positive delay runs the side effect immediately.
func (s *Service) scheduleLocked(ctx context.Context, job store.Job, action Action, delaySeconds float64, announce bool) {
	now := s.clock.Now()
	if delaySeconds <= 0 {
		s.executeLocked(ctx, DelayedAction{JobID: job.ID, Action: action, ScheduledAt: now})
		return
	}

	h := s.sched.Schedule(seconds(delaySeconds), s.onExpire)
	d := &DelayedAction{
		JobID:        job.ID,
		Action:       action,
		ScheduledAt:  now,
		DelaySeconds: delaySeconds,
		handle:       h,
	}
	s.delayed = d
	s.setStateLocked(action.countdownState(), job.ID)
	s.writeMarkerLocked(ctx, *d)
	s.startTickerLocked()

	s.logger.Info("action scheduled", "job_id", job.ID, "action", action, "delay_s", delaySeconds)

	if !job.AutoTimer.NotificationsEnabled {
		return
	}
	kind := notify.KindTimerWillStart
	if action == ActionStop {
		kind = notify.KindTimerWillStop
	}
	if announce {
		meta := map[string]string{"delay_seconds": strconv.FormatFloat(delaySeconds, 'f', 0, 64)}
		if err := s.notifier.SendNow(ctx, kind, job.Name, meta); err != nil {
			s.logger.Warn("failed to send countdown notification", "job_id", job.ID, "error", err)
		}
	}
	if lead := s.cfg.ReminderLead; lead > 0 && seconds(delaySeconds) > lead {
		if err := s.notifier.ScheduleAt(ctx, kind, job.Name, d.Target().Add(-lead)); err != nil {
			s.logger.Warn("failed to schedule reminder", "job_id", job.ID, "error", err)
		}
	}
}

// cancelDelayedLocked empties the slot. State is left to the caller.
func (s *Service) cancelDelayedLocked(ctx context.Context) {
	d := s.delayed
	if d == nil {
		return
	}
	s.sched.Cancel(d.handle)
	s.delayed = nil
	s.stopTickerLocked()
	s.removeMarkerLocked(ctx, d.JobID)
	if job, ok := s.jobLocked(d.JobID); ok {
		if err := s.notifier.CancelScheduled(ctx, job.Name); err != nil {
			s.logger.Warn("failed to cancel scheduled notifications", "job_id", d.JobID, "error", err)
		}
	}
	s.dirty = true
	s.logger.Info("pending action cancelled", "job_id", d.JobID, "action", d.Action)
}

func (s *Service) onExpire(h Handle) {
	s.mu.Lock()
	defer s.unlock()

	if !s.sched.Claim(h) {
		return
	}
	d := s.delayed
	if d == nil || d.handle != h {
		return
	}
	s.logger.Info("countdown finished", "job_id", d.JobID, "action", d.Action)
	s.executeLocked(context.Background(), *d)
}

// executeLocked turns an action into its side effect. The caller has already
// claimed or cancelled the timer behind d.
func (s *Service) executeLocked(ctx context.Context, d DelayedAction) {
	if s.delayed != nil {
		s.delayed = nil
		s.stopTickerLocked()
	}
	s.removeMarkerLocked(ctx, d.JobID)
	s.dirty = true

	job, ok := s.jobLocked(d.JobID)
	if !ok {
		s.logger.Warn("job for pending action no longer exists", "job_id", d.JobID)
		s.setStateLocked(StateInactive, "")
		return
	}

	epoch := d.ScheduledAt.UnixNano()
	switch d.Action {
	case ActionStart:
		s.startSessionLocked(ctx, job, epoch)
	case ActionStop:
		s.stopSessionLocked(ctx, job, epoch)
	}
}

// CancelPendingAction pauses the in-flight countdown, keeping its remaining time
// for ManualRestart. It reports false when nothing was pending.
func (s *Service) CancelPendingAction(ctx context.Context) bool {
	s.mu.Lock()
	defer s.unlock()

	d := s.delayed
	if d == nil {
		s.logger.Info("no pending action to cancel")
		return false
	}

	s.paused = &PausedDelayedAction{
		JobID:            d.JobID,
		Action:           d.Action,
		RemainingSeconds: d.Remaining(s.clock.Now()),
	}
	s.cancelDelayedLocked(ctx)
	s.setStateLocked(StateCancelled, d.JobID)
	s.logger.Info("countdown paused", "job_id", d.JobID, "remaining_s", s.paused.RemainingSeconds)
	return true
}

// ManualRestart resumes a paused countdown with its remaining time. Without a
// paused countdown it leaves the cancelled state so geofence events apply again.
func (s *Service) ManualRestart(ctx context.Context) bool {
	s.mu.Lock()
	defer s.unlock()

	if s.state != StateCancelled {
		return false
	}

	p := s.paused
	s.paused = nil
	if p == nil {
		s.setStateLocked(StateInactive, "")
		return true
	}

	job, ok := s.jobLocked(p.JobID)
	if !ok {
		s.logger.Warn("paused job no longer exists", "job_id", p.JobID)
		s.setStateLocked(StateInactive, "")
		return false
	}

	s.logger.Info("resuming countdown", "job_id", job.ID, "action", p.Action, "remaining_s", p.RemainingSeconds)
	s.scheduleLocked(ctx, job, p.Action, p.RemainingSeconds, false)
	return true
}

// SetManualMode hands control to the user for the current job, or for the job
// of the running session when there is no current job.
func (s *Service) SetManualMode(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlock()

	jobID := s.jobID
	if jobID == "" {
		session, err := s.sessions.GetActiveSession(ctx)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrNoJob
		}
		jobID = session.JobID
	}

	s.cancelDelayedLocked(ctx)
	s.paused = nil
	s.setStateLocked(StateManual, jobID)
	return nil
}

// HandleManualTimerStart records that the user started a timer for jobID.
func (s *Service) HandleManualTimerStart(ctx context.Context, jobID string) {
	s.mu.Lock()
	defer s.unlock()

	if d := s.delayed; d != nil && d.JobID == jobID {
		s.cancelDelayedLocked(ctx)
	}
	s.paused = nil
	s.setStateLocked(StateManual, jobID)
}

// HandleManualTimerStop records that the user stopped the timer. The service
// stays cancelled, keeping the job id, until restarted.
func (s *Service) HandleManualTimerStop(ctx context.Context) {
	s.mu.Lock()
	defer s.unlock()

	s.cancelDelayedLocked(ctx)
	s.paused = nil
	if s.jobID == "" {
		s.setStateLocked(StateInactive, "")
		return
	}
	s.setStateLocked(StateCancelled, s.jobID)
}
