package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/procuredesk/internal/jobs"
)

type fakeDesk struct {
	asOf     time.Time
	marked   int
	markErr  error
	flushed  int
	flushErr error
}

func (f *fakeDesk) MarkOverdue(_ context.Context, asOf time.Time) (int, error) {
	f.asOf = asOf
	return f.marked, f.markErr
}

func (f *fakeDesk) Flush(context.Context) error {
	f.flushed++
	return f.flushErr
}

type fakeSnapshotter struct {
	labels []string
	err    error
}

func (f *fakeSnapshotter) Snapshot(_ context.Context, label string) (int, error) {
	f.labels = append(f.labels, label)
	return 5, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOverdueSweepUsesPayloadTime(t *testing.T) {
	desk := &fakeDesk{marked: 2}
	job := NewOverdueSweepJob(desk, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	asOf := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	task, err := NewOverdueSweepTask(asOf)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.True(t, desk.asOf.Equal(asOf))
}

func TestOverdueSweepDefaultsToClock(t *testing.T) {
	desk := &fakeDesk{}
	now := time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
	job := NewOverdueSweepJob(desk, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return now }

	task, err := DefaultTask(TaskOverdueSweep)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.True(t, desk.asOf.Equal(now))
}

func TestOverdueSweepPropagatesDeskError(t *testing.T) {
	boom := errors.New("slot unavailable")
	job := NewOverdueSweepJob(&fakeDesk{markErr: boom}, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewOverdueSweepTask(time.Time{})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestOverdueSweepSkipsRetryOnBadPayload(t *testing.T) {
	job := NewOverdueSweepJob(&fakeDesk{}, quietLogger(), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskOverdueSweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSlotSnapshotFlushesThenCopies(t *testing.T) {
	desk := &fakeDesk{}
	snap := &fakeSnapshotter{}
	job := NewSlotSnapshotJob(desk, snap, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) }

	task, err := NewSlotSnapshotTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, desk.flushed)
	require.Equal(t, []string{"20260302T093000Z"}, snap.labels)

	task, err = NewSlotSnapshotTask("before-migration")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, "before-migration", snap.labels[1])
}

func TestSlotSnapshotStopsWhenFlushFails(t *testing.T) {
	boom := errors.New("write failed")
	snap := &fakeSnapshotter{}
	job := NewSlotSnapshotJob(&fakeDesk{flushErr: boom}, snap, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewSlotSnapshotTask("x")
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
	require.Empty(t, snap.labels)
}

func TestDefaultTaskRejectsUnknownName(t *testing.T) {
	_, err := DefaultTask("mail:send")
	require.Error(t, err)

	task, err := DefaultTask(TaskSlotSnapshot)
	require.NoError(t, err)
	var payload SlotSnapshotPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Empty(t, payload.Label)
}

func TestNewWorkerRequiresWork(t *testing.T) {
	_, err := NewWorker(WorkerConfig{Logger: quietLogger()})
	require.Error(t, err)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthReportsPendingTasks(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, quietLogger()).MountRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":3}`, rr.Body.String())
}

func TestHealthUnavailableWhenInspectorFails(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("redis down")}, quietLogger()).MountRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
