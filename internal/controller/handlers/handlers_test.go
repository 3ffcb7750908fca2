package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"worktrack/internal/autotimer"
	"worktrack/internal/geofence"
	"worktrack/internal/store"
)

// Mock auto-timer service
type mockService struct {
	status      autotimer.Status
	startResult bool
	cancelOK    bool
	resumeOK    bool
	manualErr   error
	stopResult  autotimer.StopResult
	stopErr     error

	calls       []string
	startedJobs []store.Job
	updatedJobs []store.Job
	manualJobID string
}

func (m *mockService) Start(ctx context.Context, jobs []store.Job) bool {
	m.calls = append(m.calls, "start")
	m.startedJobs = jobs
	return m.startResult
}

func (m *mockService) Stop(ctx context.Context) { m.calls = append(m.calls, "stop") }

func (m *mockService) ForceRestart(ctx context.Context, jobs []store.Job) bool {
	m.calls = append(m.calls, "restart")
	m.startedJobs = jobs
	return m.startResult
}

func (m *mockService) UpdateJobs(ctx context.Context, jobs []store.Job) {
	m.calls = append(m.calls, "update")
	m.updatedJobs = jobs
}

func (m *mockService) GetStatus() autotimer.Status { return m.status }

func (m *mockService) CancelPendingAction(ctx context.Context) bool {
	m.calls = append(m.calls, "cancel")
	return m.cancelOK
}

func (m *mockService) ManualRestart(ctx context.Context) bool {
	m.calls = append(m.calls, "resume")
	return m.resumeOK
}

func (m *mockService) SetManualMode(ctx context.Context) error {
	m.calls = append(m.calls, "manual-mode")
	return m.manualErr
}

func (m *mockService) HandleManualTimerStart(ctx context.Context, jobID string) {
	m.calls = append(m.calls, "manual-start")
	m.manualJobID = jobID
}

func (m *mockService) HandleManualTimerStop(ctx context.Context) {
	m.calls = append(m.calls, "manual-stop")
}

func (m *mockService) ForceStopAndSave(ctx context.Context) (autotimer.StopResult, error) {
	m.calls = append(m.calls, "force-stop")
	return m.stopResult, m.stopErr
}

func (m *mockService) CheckPendingActions(ctx context.Context) {
	m.calls = append(m.calls, "check-pending")
}

// Mock geofence monitor
type mockGeofence struct {
	monitoring bool
	statuses   []geofence.Status
	inside     []string
	checkErr   error
	checked    []store.Job
}

func (m *mockGeofence) IsMonitoring() bool          { return m.monitoring }
func (m *mockGeofence) Statuses() []geofence.Status { return m.statuses }
func (m *mockGeofence) JobsInside() []string        { return m.inside }

func (m *mockGeofence) CheckCurrentLocation(ctx context.Context, jobs []store.Job) ([]geofence.Status, error) {
	m.checked = jobs
	return m.statuses, m.checkErr
}

// Mock location source
type mockLocation struct {
	pushed     []geofence.Sample
	permission *bool
	delivered  int
}

func (m *mockLocation) Push(sample geofence.Sample) int {
	m.pushed = append(m.pushed, sample)
	return m.delivered
}

func (m *mockLocation) SetPermission(granted bool) { m.permission = &granted }

// Mock Store
type mockStore struct {
	jobs       []store.Job
	jobsErr    error
	pingErr    error
	records    []store.WorkRecord
	recordsErr error

	recordsJobID string
	recordsLimit int
}

func (m *mockStore) GetJobs(ctx context.Context) ([]store.Job, error) { return m.jobs, m.jobsErr }
func (m *mockStore) Ping(ctx context.Context) error                   { return m.pingErr }

func (m *mockStore) ListWorkRecords(ctx context.Context, jobID string, limit int) ([]store.WorkRecord, error) {
	m.recordsJobID = jobID
	m.recordsLimit = limit
	return m.records, m.recordsErr
}

// Mock jobs file reloader
type mockReloader struct {
	jobs []store.Job
	err  error
}

func (m *mockReloader) Reload(ctx context.Context) ([]store.Job, error) { return m.jobs, m.err }

var errBoom = errors.New("boom")

type fixture struct {
	svc      *mockService
	geofence *mockGeofence
	location *mockLocation
	store    *mockStore
	h        *Handlers
}

func newFixture() *fixture {
	f := &fixture{
		svc:      &mockService{},
		geofence: &mockGeofence{},
		location: &mockLocation{},
		store:    &mockStore{},
	}
	f.h = New(Deps{
		Service:  f.svc,
		Geofence: f.geofence,
		Location: f.location,
		Store:    f.store,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}
