package autotimer

import (
	"context"
	"errors"
	"strconv"
	"time"

	"worktrack/internal/notify"
	"worktrack/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	stopNotesAuto   = "auto-stopped"
	stopNotesManual = "stopped manually"
)

var errSessionConflict = errors.New("active session belongs to another job")

func (s *Service) startSessionLocked(ctx context.Context, job store.Job, epoch int64) {
	ctx, span := s.tracer.Start(ctx, "autotimer.start_session",
		trace.WithAttributes(attribute.String("job.id", job.ID)))
	defer span.End()

	err := s.ensureSessionLocked(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.recordEffect(ctx, ActionStart, "error")
		s.logger.Error("failed to start session", "job_id", job.ID, "error", err)
		s.setStateLocked(StateInactive, "")
		return
	}

	s.recordEffect(ctx, ActionStart, "ok")
	s.setStateLocked(StateActive, job.ID)
	s.notifyOnceLocked(ctx, job, ActionStart, notify.KindTimerStarted, epoch, nil)
}

func (s *Service) ensureSessionLocked(ctx context.Context, job store.Job) error {
	session, err := s.sessions.GetActiveSession(ctx)
	if err != nil {
		return err
	}
	if session != nil {
		if session.JobID == job.ID {
			return nil
		}
		return errSessionConflict
	}
	return s.sessions.SaveActiveSession(ctx, store.ActiveSession{
		JobID:     job.ID,
		StartTime: s.clock.Now(),
		Notes:     store.AutoSessionNotes,
	})
}

// stopSessionLocked saves and clears the session if it belongs to job.
// A missing session is treated as already stopped.
func (s *Service) stopSessionLocked(ctx context.Context, job store.Job, epoch int64) {
	ctx, span := s.tracer.Start(ctx, "autotimer.stop_session",
		trace.WithAttributes(attribute.String("job.id", job.ID)))
	defer span.End()

	s.paused = nil
	record, saved, err := s.saveSessionLocked(ctx, job.ID, stopNotesAuto)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.recordEffect(ctx, ActionStop, "error")
		s.logger.Error("failed to stop session", "job_id", job.ID, "error", err)
		s.setStateLocked(StateInactive, "")
		return
	}

	s.recordEffect(ctx, ActionStop, "ok")
	s.setStateLocked(StateInactive, "")
	if !saved {
		s.logger.Info("no session to stop", "job_id", job.ID)
		return
	}
	span.SetAttributes(attribute.Float64("record.hours", record.Hours))
	s.notifyOnceLocked(ctx, job, ActionStop, notify.KindTimerStopped, epoch, map[string]string{
		"hours": strconv.FormatFloat(record.Hours, 'f', 2, 64),
	})
}

// saveSessionLocked converts the running session into a work record. When
// jobID is set, sessions for other jobs are left alone.
func (s *Service) saveSessionLocked(ctx context.Context, jobID, fallbackNotes string) (store.WorkRecord, bool, error) {
	session, err := s.sessions.GetActiveSession(ctx)
	if err != nil {
		return store.WorkRecord{}, false, err
	}
	if session == nil || (jobID != "" && session.JobID != jobID) {
		return store.WorkRecord{}, false, nil
	}

	record := store.NewWorkRecord(*session, s.clock.Now(), fallbackNotes)
	if err := s.sessions.AddWorkRecord(ctx, record); err != nil {
		return store.WorkRecord{}, false, err
	}
	if err := s.sessions.ClearActiveSession(ctx); err != nil {
		return record, false, err
	}
	s.sessionHours.Record(ctx, record.Hours, metric.WithAttributes(
		attribute.Bool("overtime", record.Overtime)))
	s.logger.Info("work record saved",
		"job_id", record.JobID,
		"hours", record.Hours,
		"overtime", record.Overtime)
	return record, true, nil
}

// ForceStopAndSave stops whatever session is running, saves it and leaves the
// auto-timer cancelled until restarted.
func (s *Service) ForceStopAndSave(ctx context.Context) (StopResult, error) {
	s.mu.Lock()
	defer s.unlock()

	jobID := s.jobID
	if jobID == "" {
		if session, err := s.sessions.GetActiveSession(ctx); err == nil && session != nil {
			jobID = session.JobID
		}
	}

	record, saved, err := s.saveSessionLocked(ctx, "", stopNotesManual)
	if err != nil {
		return StopResult{}, err
	}

	s.cancelDelayedLocked(ctx)
	s.paused = nil
	if jobID == "" {
		s.setStateLocked(StateInactive, "")
	} else {
		s.setStateLocked(StateCancelled, jobID)
	}
	return StopResult{Saved: saved, Hours: record.Hours}, nil
}

// notifyOnceLocked sends kind unless it was already sent for the same
// countdown, identified by epoch. The marker survives restarts.
func (s *Service) notifyOnceLocked(ctx context.Context, job store.Job, action Action, kind notify.Kind, epoch int64, meta map[string]string) {
	if !job.AutoTimer.NotificationsEnabled {
		return
	}

	key := notifiedKey(job.ID, action)
	value := strconv.FormatInt(epoch, 10)
	kvCtx, cancel := context.WithTimeout(ctx, kvTimeout)
	defer cancel()

	prev, err := s.kv.Get(kvCtx, key)
	if err == nil && string(prev) == value {
		s.logger.Debug("notification already sent", "job_id", job.ID, "kind", kind)
		return
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("failed to read notification marker", "key", key, "error", err)
	}

	if err := s.notifier.SendNow(ctx, kind, job.Name, meta); err != nil {
		s.logger.Warn("failed to send notification", "job_id", job.ID, "kind", kind, "error", err)
		return
	}
	if err := s.kv.Set(kvCtx, key, []byte(value)); err != nil {
		s.logger.Warn("failed to write notification marker", "key", key, "error", err)
	}
}

func (s *Service) recordEffect(ctx context.Context, action Action, result string) {
	s.effects.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(action)),
		attribute.String("result", result),
	))
}

const kvTimeout = 5 * time.Second
