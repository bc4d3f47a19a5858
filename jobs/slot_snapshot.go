package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/procuredesk/internal/jobs"
)

// Flusher writes in-memory collections to their slot.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Snapshotter copies every slot key under a label.
type Snapshotter interface {
	Snapshot(ctx context.Context, label string) (int, error)
}

// SlotSnapshotJob flushes the desk and snapshots the slot it persists to.
type SlotSnapshotJob struct {
	Desk    Flusher
	Slot    Snapshotter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSlotSnapshotJob wires dependencies for the snapshot handler.
func NewSlotSnapshotJob(desk Flusher, slot Snapshotter, logger *slog.Logger, metrics *jobmetrics.Metrics) *SlotSnapshotJob {
	return &SlotSnapshotJob{
		Desk:    desk,
		Slot:    slot,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes slot snapshot tasks.
func (j *SlotSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Desk == nil || j.Slot == nil {
		return errors.New("slot snapshot: handler not configured")
	}
	var payload SlotSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	label := payload.Label
	if label == "" {
		label = j.now().Format("20060102T150405Z")
	}

	tracker := j.metrics().Track(TaskSlotSnapshot)
	logger := j.logger().With(slog.String("label", label))

	if err := j.Desk.Flush(ctx); err != nil {
		logger.Error("flush before snapshot", slog.Any("error", err))
		return tracker.End(fmt.Errorf("slot snapshot: flush: %w", err))
	}
	copied, err := j.Slot.Snapshot(ctx, label)
	if err != nil {
		logger.Error("snapshot slot", slog.Any("error", err))
		return tracker.End(fmt.Errorf("slot snapshot: %w", err))
	}
	logger.Info("completed slot snapshot", slog.Int("keys", copied))
	return tracker.End(nil)
}

func (j *SlotSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSlotSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskSlotSnapshot))
}

func (j *SlotSnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SlotSnapshotJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
