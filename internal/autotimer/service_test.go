package autotimer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"worktrack/internal/clock"
	"worktrack/internal/geofence"
	"worktrack/internal/notify"
	"worktrack/internal/store"
	"worktrack/internal/store/memory"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testStart = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type fakeMonitor struct {
	mu        sync.Mutex
	listeners []geofence.Listener
	running   bool
	starts    int
	refuse    bool
}

func (m *fakeMonitor) StartMonitoring(ctx context.Context, jobs []store.Job) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse {
		return false, nil
	}
	m.running = true
	m.starts++
	return true, nil
}

func (m *fakeMonitor) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

func (m *fakeMonitor) AddEventListener(l geofence.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *fakeMonitor) emit(jobID string, typ geofence.EventType) {
	m.mu.Lock()
	listeners := append([]geofence.Listener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		l(geofence.Event{JobID: jobID, Type: typ})
	}
}

type sentNotification struct {
	kind    notify.Kind
	jobName string
	at      time.Time
}

type recordingNotifier struct {
	mu        sync.Mutex
	sent      []sentNotification
	scheduled []sentNotification
	cancelled []string
}

func (n *recordingNotifier) SendNow(ctx context.Context, kind notify.Kind, jobName string, meta map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: kind, jobName: jobName})
	return nil
}

func (n *recordingNotifier) ScheduleAt(ctx context.Context, kind notify.Kind, jobName string, at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scheduled = append(n.scheduled, sentNotification{kind: kind, jobName: jobName, at: at})
	return nil
}

func (n *recordingNotifier) CancelScheduled(ctx context.Context, jobName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, jobName)
	return nil
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Kind
	for _, s := range n.sent {
		out = append(out, s.kind)
	}
	return out
}

// countingKV counts snapshot writes.
type countingKV struct {
	store.KV
	mu     sync.Mutex
	writes int
}

func (c *countingKV) Set(ctx context.Context, key string, value []byte) error {
	if key == StateKey {
		c.mu.Lock()
		c.writes++
		c.mu.Unlock()
	}
	return c.KV.Set(ctx, key, value)
}

func (c *countingKV) stateWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func testJob(id string, delayStart, delayStop float64) store.Job {
	return store.Job{
		ID:       id,
		Name:     "Site " + id,
		Geofence: &store.Geofence{Latitude: 47.3769, Longitude: 8.5417, RadiusMeters: 100},
		AutoTimer: store.AutoTimerConfig{
			Enabled:              true,
			DelayStartSeconds:    delayStart,
			DelayStopSeconds:     delayStop,
			NotificationsEnabled: true,
		},
	}
}

type harness struct {
	svc      *Service
	clk      *clock.Fake
	mem      *memory.Store
	monitor  *fakeMonitor
	notifier *recordingNotifier
}

func newHarness(t *testing.T, mem *memory.Store, start time.Time) *harness {
	t.Helper()
	h := &harness{
		clk:      clock.NewFake(start),
		mem:      mem,
		monitor:  &fakeMonitor{},
		notifier: &recordingNotifier{},
	}
	h.svc = New(mem, mem, h.monitor,
		WithClock(h.clk),
		WithNotifier(h.notifier),
	)
	return h
}

func startHarness(t *testing.T, jobs ...store.Job) *harness {
	t.Helper()
	h := newHarness(t, memory.New(), testStart)
	if !h.svc.Start(context.Background(), jobs) {
		t.Fatal("expected service to start")
	}
	return h
}

func (h *harness) session(t *testing.T) *store.ActiveSession {
	t.Helper()
	s, err := h.mem.GetActiveSession(context.Background())
	if err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	return s
}

func assertState(t *testing.T, svc *Service, want State, wantJob string) {
	t.Helper()
	st := svc.GetStatus()
	if st.State != want || st.JobID != wantJob {
		t.Fatalf("expected %s/%q, got %s/%q", want, wantJob, st.State, st.JobID)
	}
}

func TestService_StartWithoutEnabledJobs(t *testing.T) {
	h := newHarness(t, memory.New(), testStart)
	job := testJob("j1", 300, 60)
	job.AutoTimer.Enabled = false

	if h.svc.Start(context.Background(), []store.Job{job}) {
		t.Error("expected start to fail without enabled jobs")
	}
	if h.monitor.starts != 0 {
		t.Error("monitoring must not start")
	}
}

func TestService_StartRefusedByMonitor(t *testing.T) {
	h := newHarness(t, memory.New(), testStart)
	h.monitor.refuse = true

	if h.svc.Start(context.Background(), []store.Job{testJob("j1", 300, 60)}) {
		t.Error("expected start to fail when monitoring is unavailable")
	}
	if h.svc.GetStatus().Enabled {
		t.Error("service must stay disabled")
	}
}

func TestService_StartRefusedAfterRestoreLeavesInactive(t *testing.T) {
	mem := memory.New()
	jobs := []store.Job{testJob("j1", 300, 60)}

	first := newHarness(t, mem, testStart)
	first.svc.Start(context.Background(), jobs)
	first.monitor.emit("j1", geofence.EventEnter)

	second := newHarness(t, mem, testStart.Add(2*time.Minute))
	second.monitor.refuse = true
	if second.svc.Start(context.Background(), jobs) {
		t.Fatal("expected start to fail when monitoring is unavailable")
	}
	assertState(t, second.svc, StateInactive, "")
	if second.svc.sched.Pending() {
		t.Fatal("restored countdown must not stay armed")
	}

	second.clk.Advance(10 * time.Minute)
	if second.session(t) != nil {
		t.Fatal("countdown ran while the service was not started")
	}

	// The stored snapshot survives for the next attempt, where the countdown is overdue.
	second.monitor.mu.Lock()
	second.monitor.refuse = false
	second.monitor.mu.Unlock()
	if !second.svc.Start(context.Background(), jobs) {
		t.Fatal("expected start")
	}
	assertState(t, second.svc, StateActive, "j1")
}

func TestService_StartRefusedKeepsOverdueSideEffect(t *testing.T) {
	mem := memory.New()
	jobs := []store.Job{testJob("j1", 300, 60)}

	first := newHarness(t, mem, testStart)
	first.svc.Start(context.Background(), jobs)
	first.monitor.emit("j1", geofence.EventEnter)

	second := newHarness(t, mem, testStart.Add(10*time.Minute))
	second.monitor.refuse = true
	if second.svc.Start(context.Background(), jobs) {
		t.Fatal("expected start to fail when monitoring is unavailable")
	}
	assertState(t, second.svc, StateInactive, "")
	if s := second.session(t); s == nil || s.JobID != "j1" {
		t.Fatalf("overdue start must still create the session, got %+v", s)
	}
}

func TestService_EnterStartsSessionAfterDelay(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60))

	h.monitor.emit("j1", geofence.EventEnter)
	assertState(t, h.svc, StateEntering, "j1")

	st := h.svc.GetStatus()
	if st.RemainingSeconds != 300 || st.TotalDelaySeconds != 300 {
		t.Errorf("unexpected countdown: %+v", st)
	}
	if st.Message != "entering:5" {
		t.Errorf("unexpected message %q", st.Message)
	}

	h.clk.Advance(299 * time.Second)
	if h.session(t) != nil {
		t.Fatal("session started early")
	}

	h.clk.Advance(time.Second)
	assertState(t, h.svc, StateActive, "j1")

	s := h.session(t)
	if s == nil || s.JobID != "j1" || !s.IsAuto() {
		t.Fatalf("expected auto session for j1, got %+v", s)
	}
	if !s.StartTime.Equal(testStart.Add(300 * time.Second)) {
		t.Errorf("unexpected start time %v", s.StartTime)
	}

	kinds := h.notifier.kinds()
	if len(kinds) != 2 || kinds[0] != notify.KindTimerWillStart || kinds[1] != notify.KindTimerStarted {
		t.Errorf("unexpected notifications %v", kinds)
	}
	if len(h.notifier.scheduled) != 1 {
		t.Fatalf("expected one reminder, got %d", len(h.notifier.scheduled))
	}
	if want := testStart.Add(270 * time.Second); !h.notifier.scheduled[0].at.Equal(want) {
		t.Errorf("reminder at %v, want %v", h.notifier.scheduled[0].at, want)
	}
}

func TestService_ExitDuringEnteringCancels(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60))

	h.monitor.emit("j1", geofence.EventEnter)
	h.clk.Advance(60 * time.Second)
	h.monitor.emit("j1", geofence.EventExit)

	assertState(t, h.svc, StateInactive, "")
	h.clk.Advance(time.Hour)
	if h.session(t) != nil {
		t.Error("cancelled start must never run")
	}
	if len(h.notifier.cancelled) != 1 || h.notifier.cancelled[0] != "Site j1" {
		t.Errorf("expected scheduled notifications cancelled, got %v", h.notifier.cancelled)
	}
	if keys, _ := h.mem.ListKeys(context.Background(), PendingKeyPrefix); len(keys) != 0 {
		t.Errorf("expected pending marker removed, got %v", keys)
	}
}

func TestService_DuplicateEnterKeepsCountdown(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60))

	h.monitor.emit("j1", geofence.EventEnter)
	h.clk.Advance(100 * time.Second)
	h.monitor.emit("j1", geofence.EventEnter)

	if got := h.svc.GetStatus().RemainingSeconds; got != 200 {
		t.Errorf("duplicate enter restarted countdown: remaining %v", got)
	}
}

func TestService_ExitSavesWorkRecord(t *testing.T) {
	mem := memory.New()
	if err := mem.SaveActiveSession(context.Background(), store.ActiveSession{
		JobID: "j1", StartTime: testStart, Notes: store.AutoSessionNotes,
	}); err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, mem, testStart)
	if !h.svc.Start(context.Background(), []store.Job{testJob("j1", 300, 60)}) {
		t.Fatal("expected start")
	}
	assertState(t, h.svc, StateActive, "j1")

	h.clk.Advance(59 * time.Minute)
	h.monitor.emit("j1", geofence.EventExit)
	assertState(t, h.svc, StateLeaving, "j1")

	h.clk.Advance(60 * time.Second)
	assertState(t, h.svc, StateInactive, "")

	if h.session(t) != nil {
		t.Error("session must be cleared")
	}
	records := mem.WorkRecords()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	r := records[0]
	if r.JobID != "j1" || r.Hours != 1.00 || r.Overtime || r.Date != "2025-03-10" {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestService_EnterWhileLeavingResumesActive(t *testing.T) {
	h := startHarness(t, testJob("j1", 0, 120))
	h.monitor.emit("j1", geofence.EventEnter)
	assertState(t, h.svc, StateActive, "j1")

	h.monitor.emit("j1", geofence.EventExit)
	assertState(t, h.svc, StateLeaving, "j1")
	h.clk.Advance(30 * time.Second)
	h.monitor.emit("j1", geofence.EventEnter)
	assertState(t, h.svc, StateActive, "j1")

	h.clk.Advance(time.Hour)
	if h.session(t) == nil {
		t.Error("cancelled stop must never run")
	}
}

func TestService_ZeroDelayRunsImmediately(t *testing.T) {
	h := startHarness(t, testJob("j1", 0, 0))

	h.monitor.emit("j1", geofence.EventEnter)
	assertState(t, h.svc, StateActive, "j1")
	if h.session(t) == nil {
		t.Fatal("expected session")
	}

	h.monitor.emit("j1", geofence.EventExit)
	assertState(t, h.svc, StateInactive, "")
	if len(h.mem.WorkRecords()) != 1 {
		t.Error("expected record")
	}
}

func TestService_StopIsIdempotent(t *testing.T) {
	h := startHarness(t, testJob("j1", 0, 60))
	h.monitor.emit("j1", geofence.EventEnter)
	h.monitor.emit("j1", geofence.EventExit)

	// Session cleared by another path during the countdown.
	if err := h.mem.ClearActiveSession(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.clk.Advance(60 * time.Second)

	assertState(t, h.svc, StateInactive, "")
	if len(h.mem.WorkRecords()) != 0 {
		t.Error("no record expected when the session is already gone")
	}
}

func TestService_IgnoresOtherJobsSession(t *testing.T) {
	h := startHarness(t, testJob("j1", 60, 60), testJob("j2", 60, 60))
	h.svc.HandleManualTimerStart(context.Background(), "j2")
	if err := h.mem.SaveActiveSession(context.Background(), store.ActiveSession{
		JobID: "j2", StartTime: testStart,
	}); err != nil {
		t.Fatal(err)
	}

	h.monitor.emit("j1", geofence.EventEnter)
	assertState(t, h.svc, StateManual, "j2")
	if h.svc.sched.Pending() {
		t.Error("no countdown expected")
	}
}

func TestService_ManualSessionStopsOnExit(t *testing.T) {
	h := startHarness(t, testJob("j1", 60, 120))
	ctx := context.Background()

	if err := h.mem.SaveActiveSession(ctx, store.ActiveSession{JobID: "j1", StartTime: testStart}); err != nil {
		t.Fatal(err)
	}
	h.svc.HandleManualTimerStart(ctx, "j1")
	assertState(t, h.svc, StateManual, "j1")

	h.clk.Advance(time.Hour)
	h.monitor.emit("j1", geofence.EventExit)
	assertState(t, h.svc, StateLeaving, "j1")

	h.clk.Advance(120 * time.Second)
	assertState(t, h.svc, StateInactive, "")
	if h.session(t) != nil {
		t.Error("manual session must be stopped after the exit delay")
	}
	if n := len(h.mem.WorkRecords()); n != 1 {
		t.Errorf("expected one record, got %d", n)
	}
}

func TestService_ManualSessionEnterResumesActive(t *testing.T) {
	h := startHarness(t, testJob("j1", 60, 120))
	ctx := context.Background()

	if err := h.mem.SaveActiveSession(ctx, store.ActiveSession{JobID: "j1", StartTime: testStart}); err != nil {
		t.Fatal(err)
	}
	h.svc.HandleManualTimerStart(ctx, "j1")

	h.monitor.emit("j1", geofence.EventEnter)
	assertState(t, h.svc, StateActive, "j1")
	if h.svc.sched.Pending() {
		t.Error("no countdown expected while the session runs")
	}
}

// flakyClearStore fails ClearActiveSession a fixed number of times.
type flakyClearStore struct {
	*memory.Store
	failures int
}

func (f *flakyClearStore) ClearActiveSession(ctx context.Context) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("clear failed")
	}
	return f.Store.ClearActiveSession(ctx)
}

func TestService_StopAfterFailedClearKeepsOneRecord(t *testing.T) {
	mem := memory.New()
	sessions := &flakyClearStore{Store: mem, failures: 1}
	clk := clock.NewFake(testStart)
	monitor := &fakeMonitor{}
	svc := New(sessions, mem, monitor, WithClock(clk), WithNotifier(&recordingNotifier{}))
	ctx := context.Background()

	if !svc.Start(ctx, []store.Job{testJob("j1", 0, 0)}) {
		t.Fatal("expected start")
	}
	defer svc.Stop(ctx)

	monitor.emit("j1", geofence.EventEnter)
	assertState(t, svc, StateActive, "j1")
	clk.Advance(time.Hour)

	monitor.emit("j1", geofence.EventExit)
	assertState(t, svc, StateInactive, "")
	if s, _ := mem.GetActiveSession(ctx); s == nil {
		t.Fatal("session must survive the failed clear")
	}

	monitor.emit("j1", geofence.EventEnter)
	assertState(t, svc, StateActive, "j1")
	clk.Advance(time.Minute)
	monitor.emit("j1", geofence.EventExit)

	assertState(t, svc, StateInactive, "")
	if s, _ := mem.GetActiveSession(ctx); s != nil {
		t.Error("session must be cleared by the second stop")
	}
	records := mem.WorkRecords()
	if len(records) != 1 {
		t.Fatalf("expected one record for the session, got %d", len(records))
	}
	if records[0].Hours != 1 {
		t.Errorf("expected the first saved record, got %v hours", records[0].Hours)
	}
}

func TestService_StartAbortsOnConflictingSession(t *testing.T) {
	h := startHarness(t, testJob("j1", 60, 60))
	h.monitor.emit("j1", geofence.EventEnter)

	if err := h.mem.SaveActiveSession(context.Background(), store.ActiveSession{
		JobID: "other", StartTime: testStart,
	}); err != nil {
		t.Fatal(err)
	}
	h.clk.Advance(time.Minute)

	assertState(t, h.svc, StateInactive, "")
	if s := h.session(t); s == nil || s.JobID != "other" {
		t.Errorf("conflicting session must be left alone, got %+v", s)
	}
}

func TestService_CancelAndResume(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60))
	ctx := context.Background()

	if h.svc.CancelPendingAction(ctx) {
		t.Error("nothing pending yet")
	}

	h.monitor.emit("j1", geofence.EventEnter)
	h.clk.Advance(100 * time.Second)

	if !h.svc.CancelPendingAction(ctx) {
		t.Fatal("expected cancel")
	}
	assertState(t, h.svc, StateCancelled, "j1")
	st := h.svc.GetStatus()
	if !st.Paused || st.RemainingSeconds != 200 {
		t.Errorf("unexpected paused status %+v", st)
	}

	// Geofence events are ignored while cancelled.
	h.monitor.emit("j1", geofence.EventExit)
	h.monitor.emit("j1", geofence.EventEnter)
	assertState(t, h.svc, StateCancelled, "j1")

	h.clk.Advance(time.Hour)
	if h.session(t) != nil {
		t.Fatal("cancelled action ran")
	}

	if !h.svc.ManualRestart(ctx) {
		t.Fatal("expected restart")
	}
	assertState(t, h.svc, StateEntering, "j1")
	if got := h.svc.GetStatus().RemainingSeconds; got != 200 {
		t.Errorf("expected resume with 200s, got %v", got)
	}

	h.clk.Advance(200 * time.Second)
	assertState(t, h.svc, StateActive, "j1")
}

func TestService_ManualRestartWithoutPausedAction(t *testing.T) {
	h := startHarness(t, testJob("j1", 0, 60))
	ctx := context.Background()

	if h.svc.ManualRestart(ctx) {
		t.Error("restart only applies while cancelled")
	}

	h.monitor.emit("j1", geofence.EventEnter)
	h.svc.HandleManualTimerStop(ctx)
	assertState(t, h.svc, StateCancelled, "j1")

	if !h.svc.ManualRestart(ctx) {
		t.Fatal("expected restart")
	}
	assertState(t, h.svc, StateInactive, "")
}

func TestService_SetManualMode(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60))
	ctx := context.Background()

	if err := h.svc.SetManualMode(ctx); !errors.Is(err, ErrNoJob) {
		t.Fatalf("expected ErrNoJob, got %v", err)
	}
	assertState(t, h.svc, StateInactive, "")

	h.monitor.emit("j1", geofence.EventEnter)
	if err := h.svc.SetManualMode(ctx); err != nil {
		t.Fatal(err)
	}
	assertState(t, h.svc, StateManual, "j1")

	h.clk.Advance(time.Hour)
	if h.session(t) != nil {
		t.Error("countdown must be cancelled by manual mode")
	}

	h.monitor.emit("j1", geofence.EventExit)
	assertState(t, h.svc, StateManual, "j1")
}

func TestService_ForceStopAndSave(t *testing.T) {
	h := startHarness(t, testJob("j1", 0, 60))
	ctx := context.Background()

	res, err := h.svc.ForceStopAndSave(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Saved {
		t.Error("nothing to save without a session")
	}

	h.monitor.emit("j1", geofence.EventEnter)
	h.clk.Advance(90 * time.Minute)

	res, err = h.svc.ForceStopAndSave(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Saved || res.Hours != 1.5 {
		t.Errorf("unexpected result %+v", res)
	}
	assertState(t, h.svc, StateCancelled, "j1")
	if h.session(t) != nil {
		t.Error("session must be cleared")
	}
}

func TestService_UpdateJobsClampsRemaining(t *testing.T) {
	job := testJob("j1", 300, 60)
	h := startHarness(t, job)
	ctx := context.Background()

	h.monitor.emit("j1", geofence.EventEnter)
	h.clk.Advance(100 * time.Second)

	job.AutoTimer.DelayStartSeconds = 60
	h.svc.UpdateJobs(ctx, []store.Job{job})
	if got := h.svc.GetStatus().RemainingSeconds; got != 60 {
		t.Fatalf("expected min(new delay, remaining)=60, got %v", got)
	}

	job.AutoTimer.DelayStartSeconds = 600
	h.svc.UpdateJobs(ctx, []store.Job{job})
	if got := h.svc.GetStatus().RemainingSeconds; got != 60 {
		t.Fatalf("longer delay must not extend the countdown, got %v", got)
	}

	// Unrelated edits leave the countdown alone.
	job.Name = "Renamed"
	h.svc.UpdateJobs(ctx, []store.Job{job})
	if got := h.svc.GetStatus().RemainingSeconds; got != 60 {
		t.Fatalf("expected countdown untouched, got %v", got)
	}

	h.clk.Advance(60 * time.Second)
	assertState(t, h.svc, StateActive, "j1")
}

func TestService_UpdateJobsDropsRemovedJob(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60), testJob("j2", 300, 60))

	h.monitor.emit("j1", geofence.EventEnter)
	h.svc.UpdateJobs(context.Background(), []store.Job{testJob("j2", 300, 60)})

	assertState(t, h.svc, StateInactive, "")
	if h.svc.sched.Pending() {
		t.Error("expected slot emptied")
	}
}

func TestService_RestoreRunsOverdueAction(t *testing.T) {
	mem := memory.New()
	jobs := []store.Job{testJob("j1", 300, 60)}

	first := newHarness(t, mem, testStart)
	first.svc.Start(context.Background(), jobs)
	first.monitor.emit("j1", geofence.EventEnter)

	// The process dies here and comes back ten minutes later.
	second := newHarness(t, mem, testStart.Add(10*time.Minute))
	if !second.svc.Start(context.Background(), jobs) {
		t.Fatal("expected start")
	}

	assertState(t, second.svc, StateActive, "j1")
	s := second.session(t)
	if s == nil || s.JobID != "j1" {
		t.Fatalf("expected overdue start to run on restore, got %+v", s)
	}
}

func TestService_RestoreReschedulesRemaining(t *testing.T) {
	mem := memory.New()
	jobs := []store.Job{testJob("j1", 300, 60)}

	first := newHarness(t, mem, testStart)
	first.svc.Start(context.Background(), jobs)
	first.monitor.emit("j1", geofence.EventEnter)

	second := newHarness(t, mem, testStart.Add(2*time.Minute))
	second.svc.Start(context.Background(), jobs)

	assertState(t, second.svc, StateEntering, "j1")
	st := second.svc.GetStatus()
	if st.RemainingSeconds != 180 || st.TotalDelaySeconds != 300 {
		t.Errorf("expected original schedule kept, got %+v", st)
	}

	second.clk.Advance(180 * time.Second)
	assertState(t, second.svc, StateActive, "j1")
}

func TestService_RestoreAdoptsManualSession(t *testing.T) {
	mem := memory.New()
	if err := mem.SaveActiveSession(context.Background(), store.ActiveSession{
		JobID: "j1", StartTime: testStart, Notes: "client visit",
	}); err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, mem, testStart)
	h.svc.Start(context.Background(), []store.Job{testJob("j1", 60, 60)})
	assertState(t, h.svc, StateManual, "j1")
}

func TestService_CheckPendingActionsRunsForeignMarker(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60))
	ctx := context.Background()

	marker, _ := json.Marshal(map[string]any{
		"jobId":      "j1",
		"targetTime": testStart.Add(-time.Minute),
	})
	if err := h.mem.Set(ctx, PendingKeyPrefix+"start_j1", marker); err != nil {
		t.Fatal(err)
	}

	h.svc.CheckPendingActions(ctx)

	assertState(t, h.svc, StateActive, "j1")
	if keys, _ := h.mem.ListKeys(ctx, PendingKeyPrefix); len(keys) != 0 {
		t.Errorf("expected marker deleted, got %v", keys)
	}
}

func TestService_CheckPendingActionsReArmsFutureMarker(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60))
	ctx := context.Background()

	marker, _ := json.Marshal(pendingMarker{JobID: "j1", TargetTime: testStart.Add(90 * time.Second)})
	if err := h.mem.Set(ctx, PendingKeyPrefix+"start_j1", marker); err != nil {
		t.Fatal(err)
	}
	if err := h.mem.Set(ctx, PendingKeyPrefix+"broken", []byte("{")); err != nil {
		t.Fatal(err)
	}

	h.svc.CheckPendingActions(ctx)
	assertState(t, h.svc, StateEntering, "j1")
	if got := h.svc.GetStatus().RemainingSeconds; got != 90 {
		t.Errorf("expected 90s remaining, got %v", got)
	}
	keys, _ := h.mem.ListKeys(ctx, PendingKeyPrefix)
	if len(keys) != 1 || keys[0] != pendingKey("j1") {
		t.Errorf("expected only own marker left, got %v", keys)
	}

	h.clk.Advance(90 * time.Second)
	assertState(t, h.svc, StateActive, "j1")
}

func TestService_CheckPendingActionsKeepsMarkerOfPrefixedJobID(t *testing.T) {
	h := startHarness(t, testJob("stop_site", 300, 60))
	ctx := context.Background()

	h.monitor.emit("stop_site", geofence.EventEnter)
	assertState(t, h.svc, StateEntering, "stop_site")

	h.svc.CheckPendingActions(ctx)

	assertState(t, h.svc, StateEntering, "stop_site")
	keys, _ := h.mem.ListKeys(ctx, PendingKeyPrefix)
	if len(keys) != 1 || keys[0] != pendingKey("stop_site") {
		t.Fatalf("expected the live marker kept, got %v", keys)
	}

	h.clk.Advance(300 * time.Second)
	assertState(t, h.svc, StateActive, "stop_site")
}

func TestService_CheckPendingActionsResetsLostSession(t *testing.T) {
	h := startHarness(t, testJob("j1", 0, 60))
	h.monitor.emit("j1", geofence.EventEnter)

	if err := h.mem.ClearActiveSession(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.svc.CheckPendingActions(context.Background())
	assertState(t, h.svc, StateInactive, "")
}

func TestService_NotificationSentOncePerCountdown(t *testing.T) {
	h := startHarness(t, testJob("j1", 60, 60))
	job, _ := h.svc.jobLocked("j1")

	h.svc.mu.Lock()
	h.svc.notifyOnceLocked(context.Background(), job, ActionStart, notify.KindTimerStarted, 42, nil)
	h.svc.notifyOnceLocked(context.Background(), job, ActionStart, notify.KindTimerStarted, 42, nil)
	h.svc.notifyOnceLocked(context.Background(), job, ActionStart, notify.KindTimerStarted, 43, nil)
	h.svc.mu.Unlock()

	if got := len(h.notifier.kinds()); got != 2 {
		t.Errorf("expected 2 notifications, got %d", got)
	}
}

func TestService_TicksDoNotPersist(t *testing.T) {
	mem := memory.New()
	kv := &countingKV{KV: mem}
	clk := clock.NewFake(testStart)
	mon := &fakeMonitor{}
	svc := New(mem, kv, mon, WithClock(clk))
	svc.Start(context.Background(), []store.Job{testJob("j1", 300, 60)})

	var mu sync.Mutex
	var updates []Status
	svc.AddStatusListener(func(st Status) {
		mu.Lock()
		updates = append(updates, st)
		mu.Unlock()
	})

	mon.emit("j1", geofence.EventEnter)
	writes := kv.stateWrites()

	clk.Advance(5 * time.Second)

	if kv.stateWrites() != writes {
		t.Errorf("ticks persisted state: %d -> %d", writes, kv.stateWrites())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 6 {
		t.Fatalf("expected 1 transition + 5 ticks, got %d", len(updates))
	}
	if last := updates[len(updates)-1]; last.RemainingSeconds != 295 {
		t.Errorf("expected 295s remaining on last tick, got %v", last.RemainingSeconds)
	}
}

func TestService_TickerStopsWithCountdown(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60))
	h.monitor.emit("j1", geofence.EventEnter)
	h.monitor.emit("j1", geofence.EventExit)

	if n := h.clk.Pending(); n != 0 {
		t.Errorf("expected no timers left, got %d", n)
	}
}

func TestService_StatusListeners(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60))

	calls := 0
	h.svc.AddStatusListener(func(Status) { panic("boom") })
	id := h.svc.AddStatusListener(func(Status) { calls++ })

	h.monitor.emit("j1", geofence.EventEnter)
	if calls != 1 {
		t.Fatalf("expected listener called after a panicking one, got %d", calls)
	}

	if !h.svc.RemoveStatusListener(id) {
		t.Fatal("expected listener removed")
	}
	if h.svc.RemoveStatusListener(id) {
		t.Error("second removal must report false")
	}

	h.monitor.emit("j1", geofence.EventExit)
	if calls != 1 {
		t.Errorf("removed listener still called")
	}
}

func TestService_StopDropsPendingAction(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60))
	h.monitor.emit("j1", geofence.EventEnter)

	h.svc.Stop(context.Background())
	assertState(t, h.svc, StateInactive, "")
	if h.monitor.running {
		t.Error("monitoring must stop")
	}

	h.monitor.emit("j1", geofence.EventEnter)
	assertState(t, h.svc, StateInactive, "")
}

func TestService_SnapshotShape(t *testing.T) {
	h := startHarness(t, testJob("j1", 300, 60))
	h.monitor.emit("j1", geofence.EventEnter)

	data, err := h.mem.Get(context.Background(), StateKey)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["isEnabled"] != true || got["currentState"] != "entering" || got["currentJobId"] != "j1" {
		t.Errorf("unexpected snapshot %s", data)
	}
	action, ok := got["delayedAction"].(map[string]any)
	if !ok || action["action"] != "start" || action["delaySeconds"] != float64(300) {
		t.Errorf("unexpected delayed action %s", data)
	}
}
