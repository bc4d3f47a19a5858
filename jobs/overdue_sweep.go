package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/procuredesk/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// OverdueMarker flags overdue invoices.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// OverdueSweepJob moves unpaid invoices past their due date to overdue.
type OverdueSweepJob struct {
	Desk    OverdueMarker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueSweepJob wires dependencies for the sweep handler.
func NewOverdueSweepJob(desk OverdueMarker, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{
		Desk:    desk,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes overdue sweep tasks.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Desk == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	var payload OverdueSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	tracker := j.metrics().Track(TaskOverdueSweep)
	logger := j.logger().With(slog.Time("as_of", asOf))

	marked, err := j.Desk.MarkOverdue(ctx, asOf)
	j.metrics().AddOverdue(marked)
	if err != nil {
		logger.Error("overdue sweep", slog.Int("marked", marked), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("completed overdue sweep", slog.Int("marked", marked))
	return tracker.End(nil)
}

func (j *OverdueSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOverdueSweep))
	}
	return slog.Default().With(slog.String("job", TaskOverdueSweep))
}

func (j *OverdueSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OverdueSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
