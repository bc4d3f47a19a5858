package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueSweep flags unpaid invoices past their due date.
	TaskOverdueSweep = "invoices:overdue_sweep"
	// TaskSlotSnapshot flushes every collection and copies the slot under a label.
	TaskSlotSnapshot = "slots:snapshot"
)

// OverdueSweepPayload pins the sweep to a reference time. A zero AsOf means
// the time the task runs.
type OverdueSweepPayload struct {
	AsOf time.Time `json:"as_of"`
}

// NewOverdueSweepTask constructs an overdue sweep task.
func NewOverdueSweepTask(asOf time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OverdueSweepPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueSweep, body, asynq.Queue(QueueDefault)), nil
}

// SlotSnapshotPayload names the snapshot. An empty label is derived from the
// run time.
type SlotSnapshotPayload struct {
	Label string `json:"label"`
}

// NewSlotSnapshotTask constructs a slot snapshot task.
func NewSlotSnapshotTask(label string) (*asynq.Task, error) {
	body, err := json.Marshal(SlotSnapshotPayload{Label: label})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSlotSnapshot, body, asynq.Queue(QueueDefault)), nil
}

// DefaultTask builds a task with its default payload, for schedulers and
// manual triggers.
func DefaultTask(name string) (*asynq.Task, error) {
	switch name {
	case TaskOverdueSweep:
		return NewOverdueSweepTask(time.Time{})
	case TaskSlotSnapshot:
		return NewSlotSnapshotTask("")
	default:
		return nil, fmt.Errorf("jobs: unsupported task %s", name)
	}
}
