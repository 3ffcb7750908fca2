package autotimer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"worktrack/internal/store"
)

const (
	// StateKey holds the persisted snapshot.
	StateKey = "@auto_timer_state"
	// PendingKeyPrefix prefixes every pending-action marker.
	PendingKeyPrefix = "@auto_timer_pending_"

	pendingStartPrefix = PendingKeyPrefix + "start_"
	pendingStopPrefix  = PendingKeyPrefix + "stop_"
	notifiedKeyPrefix  = "@auto_timer_notified_"
)

type snapshot struct {
	IsEnabled     bool                 `json:"isEnabled"`
	CurrentState  State                `json:"currentState"`
	CurrentJobID  *string              `json:"currentJobId"`
	DelayedAction *snapshotAction      `json:"delayedAction"`
	PausedAction  *PausedDelayedAction `json:"pausedAction,omitempty"`
}

type snapshotAction struct {
	JobID        string    `json:"jobId"`
	Action       Action    `json:"action"`
	ScheduledAt  time.Time `json:"scheduledAt"`
	DelaySeconds float64   `json:"delaySeconds"`
}

// pendingMarker is the per-job record of a countdown, readable by other producers.
type pendingMarker struct {
	JobID      string    `json:"jobId"`
	Action     Action    `json:"action,omitempty"`
	TargetTime time.Time `json:"targetTime"`
}

func pendingKey(jobID string) string {
	return PendingKeyPrefix + jobID
}

func notifiedKey(jobID string, action Action) string {
	return notifiedKeyPrefix + jobID + "_" + string(action)
}

func (s *Service) persistLocked() {
	snap := snapshot{
		IsEnabled:    s.enabled,
		CurrentState: s.state,
		PausedAction: s.paused,
	}
	if s.jobID != "" {
		id := s.jobID
		snap.CurrentJobID = &id
	}
	if d := s.delayed; d != nil {
		snap.DelayedAction = &snapshotAction{
			JobID:        d.JobID,
			Action:       d.Action,
			ScheduledAt:  d.ScheduledAt,
			DelaySeconds: d.DelaySeconds,
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("failed to encode state", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), kvTimeout)
	defer cancel()
	if err := s.kv.Set(ctx, StateKey, data); err != nil {
		s.logger.Error("failed to persist state", "error", err)
	}
}

// restoreLocked loads the last snapshot. A countdown that came due while the
// process was down runs immediately.
func (s *Service) restoreLocked(ctx context.Context) {
	data, err := s.kv.Get(ctx, StateKey)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Error("failed to load persisted state", "error", err)
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Error("discarding unreadable persisted state", "error", err)
		return
	}
	if !snap.CurrentState.Valid() {
		s.logger.Warn("discarding persisted state with unknown state", "state", snap.CurrentState)
		return
	}

	jobID := ""
	if snap.CurrentJobID != nil {
		jobID = *snap.CurrentJobID
	}
	s.state = snap.CurrentState
	s.jobID = jobID
	s.dirty = true

	if snap.CurrentState == StateCancelled && snap.PausedAction != nil {
		p := *snap.PausedAction
		s.paused = &p
	}

	switch snap.CurrentState {
	case StateEntering, StateLeaving:
		a := snap.DelayedAction
		if a == nil {
			s.logger.Warn("countdown state restored without an action")
			s.setStateLocked(StateInactive, "")
			return
		}
		s.resumeActionLocked(ctx, DelayedAction{
			JobID:        a.JobID,
			Action:       a.Action,
			ScheduledAt:  a.ScheduledAt,
			DelaySeconds: a.DelaySeconds,
		})
	case StateInactive:
		s.jobID = ""
	}

	s.logger.Info("state restored", "state", s.state, "job_id", s.jobID)
}

// resumeActionLocked re-arms a persisted countdown, keeping its original schedule.
func (s *Service) resumeActionLocked(ctx context.Context, d DelayedAction) {
	job, ok := s.jobLocked(d.JobID)
	if !ok || !job.AutoTimer.Enabled {
		s.logger.Warn("restored action for unknown job dropped", "job_id", d.JobID)
		s.removeMarkerLocked(ctx, d.JobID)
		s.setStateLocked(StateInactive, "")
		return
	}

	remaining := d.Remaining(s.clock.Now())
	if remaining <= 0 {
		s.logger.Info("restored action overdue, running now", "job_id", d.JobID, "action", d.Action)
		s.executeLocked(ctx, d)
		return
	}

	d.handle = s.sched.Schedule(seconds(remaining), s.onExpire)
	s.delayed = &d
	s.setStateLocked(d.Action.countdownState(), d.JobID)
	s.writeMarkerLocked(ctx, d)
	s.startTickerLocked()
	s.logger.Info("restored countdown", "job_id", d.JobID, "action", d.Action, "remaining_s", remaining)
}

// reconcileOnStartLocked aligns the restored state with the session store,
// which may have been changed by manual control while the service was down.
func (s *Service) reconcileOnStartLocked(ctx context.Context) {
	session, err := s.sessions.GetActiveSession(ctx)
	if err != nil {
		s.logger.Error("failed to read active session on start", "error", err)
		return
	}

	if session == nil {
		if s.state == StateActive || s.state == StateLeaving || s.state == StateManual {
			s.logger.Info("no active session, resetting", "state", s.state)
			s.cancelDelayedLocked(ctx)
			s.setStateLocked(StateInactive, "")
		}
		return
	}

	if !session.IsAuto() {
		if d := s.delayed; d != nil {
			s.cancelDelayedLocked(ctx)
		}
		s.paused = nil
		s.setStateLocked(StateManual, session.JobID)
		return
	}

	if s.jobID == session.JobID {
		switch s.state {
		case StateActive, StateLeaving, StateCancelled:
			return
		}
	}

	// Auto session the snapshot does not account for: adopt it.
	s.cancelDelayedLocked(ctx)
	s.paused = nil
	s.setStateLocked(StateActive, session.JobID)
	s.logger.Info("adopted running auto session", "job_id", session.JobID, "state", s.state)
}

// CheckPendingActions reconciles after the process was suspended: an overdue
// countdown runs now, and pending markers left by this or other producers are
// executed or re-armed.
func (s *Service) CheckPendingActions(ctx context.Context) {
	s.mu.Lock()
	defer s.unlock()
	s.checkPendingLocked(ctx)
}

func (s *Service) checkPendingLocked(ctx context.Context) {
	if d := s.delayed; d != nil {
		if d.Remaining(s.clock.Now()) <= 0 {
			s.sched.Cancel(d.handle)
			s.logger.Info("countdown overdue after resume", "job_id", d.JobID, "action", d.Action)
			s.executeLocked(ctx, *d)
		} else {
			s.startTickerLocked()
		}
	}

	s.reconcileActiveLocked(ctx)
	s.scanMarkersLocked(ctx)
}

func (s *Service) reconcileActiveLocked(ctx context.Context) {
	if s.state != StateActive && s.state != StateLeaving {
		return
	}
	session, err := s.sessions.GetActiveSession(ctx)
	if err != nil {
		s.logger.Error("failed to read active session", "error", err)
		return
	}
	if session == nil || session.JobID != s.jobID {
		s.logger.Info("active session gone, resetting", "job_id", s.jobID)
		s.cancelDelayedLocked(ctx)
		s.setStateLocked(StateInactive, "")
	}
}

func (s *Service) scanMarkersLocked(ctx context.Context) {
	keys, err := s.kv.ListKeys(ctx, PendingKeyPrefix)
	if err != nil {
		s.logger.Error("failed to list pending markers", "error", err)
		return
	}

	now := s.clock.Now()
	for _, key := range keys {
		m, err := s.readMarker(ctx, key)
		if err != nil {
			s.logger.Warn("removing unreadable pending marker", "key", key, "error", err)
			s.removeKey(ctx, key)
			continue
		}

		if d := s.delayed; d != nil && d.JobID == m.JobID && d.Action == m.Action {
			continue
		}

		job, ok := s.jobLocked(m.JobID)
		if !ok || !job.AutoTimer.Enabled || !s.markerApplies(m) {
			s.logger.Info("discarding pending marker", "key", key, "state", s.state)
			s.removeKey(ctx, key)
			continue
		}

		if m.TargetTime.After(now) {
			if s.delayed != nil {
				continue
			}
			if key != pendingKey(m.JobID) {
				s.removeKey(ctx, key)
			}
			remaining := m.TargetTime.Sub(now).Seconds()
			s.logger.Info("re-arming pending marker", "job_id", m.JobID, "action", m.Action, "remaining_s", remaining)
			s.scheduleLocked(ctx, job, m.Action, remaining, false)
			continue
		}

		s.logger.Info("executing overdue pending marker", "job_id", m.JobID, "action", m.Action)
		if d := s.delayed; d != nil && d.JobID == m.JobID {
			s.sched.Cancel(d.handle)
			s.delayed = nil
			s.stopTickerLocked()
		}
		s.removeKey(ctx, key)
		s.executeLocked(ctx, DelayedAction{
			JobID:       m.JobID,
			Action:      m.Action,
			ScheduledAt: m.TargetTime,
		})
	}
}

func (s *Service) markerApplies(m pendingMarker) bool {
	switch m.Action {
	case ActionStart:
		return s.state == StateInactive || (s.state == StateEntering && s.jobID == m.JobID)
	case ActionStop:
		return (s.state == StateActive || s.state == StateLeaving) && s.jobID == m.JobID
	}
	return false
}

func (s *Service) readMarker(ctx context.Context, key string) (pendingMarker, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		return pendingMarker{}, err
	}
	var m pendingMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return pendingMarker{}, err
	}

	// The key only names the action for markers that do not carry one, so a
	// job id starting with "start_" or "stop_" keeps its own marker.
	if m.Action == "" {
		switch {
		case strings.HasPrefix(key, pendingStartPrefix):
			m.Action = ActionStart
			if m.JobID == "" {
				m.JobID = strings.TrimPrefix(key, pendingStartPrefix)
			}
		case strings.HasPrefix(key, pendingStopPrefix):
			m.Action = ActionStop
			if m.JobID == "" {
				m.JobID = strings.TrimPrefix(key, pendingStopPrefix)
			}
		}
	}
	if m.JobID == "" {
		m.JobID = strings.TrimPrefix(key, PendingKeyPrefix)
	}
	if m.Action != ActionStart && m.Action != ActionStop {
		return pendingMarker{}, errors.New("unknown action " + string(m.Action))
	}
	return m, nil
}

func (s *Service) writeMarkerLocked(ctx context.Context, d DelayedAction) {
	data, err := json.Marshal(pendingMarker{JobID: d.JobID, Action: d.Action, TargetTime: d.Target()})
	if err != nil {
		s.logger.Error("failed to encode pending marker", "error", err)
		return
	}
	kvCtx, cancel := context.WithTimeout(ctx, kvTimeout)
	defer cancel()
	if err := s.kv.Set(kvCtx, pendingKey(d.JobID), data); err != nil {
		s.logger.Warn("failed to write pending marker", "job_id", d.JobID, "error", err)
	}
}

func (s *Service) removeMarkerLocked(ctx context.Context, jobID string) {
	s.removeKey(ctx, pendingKey(jobID))
}

func (s *Service) removeKey(ctx context.Context, key string) {
	kvCtx, cancel := context.WithTimeout(ctx, kvTimeout)
	defer cancel()
	if err := s.kv.Remove(kvCtx, key); err != nil {
		s.logger.Warn("failed to remove key", "key", key, "error", err)
	}
}
