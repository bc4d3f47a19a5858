// Package workflow walks a record's approval path one step at a time and keeps
// the record status consistent with the step outcomes.
package workflow

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/odyssey-erp/procuredesk/internal/records"
)

// Statuses maps walker outcomes onto a record kind's status values.
type Statuses struct {
	Pending  string
	Approved string
	Rejected string
	// Submittable lists the statuses Submit accepts; empty accepts any.
	Submittable []string
}

// Options tunes walker policy.
type Options struct {
	// EnforceAssignee rejects decisions on user steps by anyone but the named approver.
	EnforceAssignee bool
	Clock           func() time.Time
}

// Walker advances approval paths of records held in a store.
type Walker[T Approvable] struct {
	store    *records.Store[T]
	statuses Statuses
	opts     Options
}

// NewWalker constructs a Walker over store.
func NewWalker[T Approvable](store *records.Store[T], statuses Statuses, opts Options) *Walker[T] {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Walker[T]{store: store, statuses: statuses, opts: opts}
}

// Submit starts the approval path. Steps whose required amount exceeds the
// record amount are skipped; a path with no actionable step approves at once.
// A nil path restarts the record's existing path.
func (w *Walker[T]) Submit(ctx context.Context, id string, path []Step) (T, error) {
	return w.store.Modify(ctx, id, func(current T) (records.Change, error) {
		status := current.StatusValue()
		if len(w.statuses.Submittable) > 0 && !slices.Contains(w.statuses.Submittable, status) {
			return records.Change{}, fmt.Errorf("%w: status %s", ErrNotSubmittable, status)
		}
		if path == nil {
			path = current.ApprovalPath()
		}
		amount := current.AmountValue()
		steps := copyPath(path)
		for i := range steps {
			steps[i].Step = i + 1
			steps[i].Status = StepPending
			steps[i].ApprovedAt = nil
			steps[i].RejectedAt = nil
			steps[i].DelegatedAt = nil
			steps[i].DelegatedFrom = ""
			steps[i].ActedBy = ""
			steps[i].Comments = ""
			if steps[i].RequiredAmount != nil && amount.LessThan(*steps[i].RequiredAmount) {
				steps[i].Status = StepSkipped
			}
		}
		patch := records.Patch{"approvalPath": steps}
		first := nextActionable(steps, 0)
		if first < 0 {
			patch["status"] = w.statuses.Approved
			patch["currentApprovalStep"] = nil
		} else {
			patch["status"] = w.statuses.Pending
			patch["currentApprovalStep"] = first
		}
		return records.Change{
			Patch:       patch,
			Action:      ActionSubmitted,
			Description: fmt.Sprintf("submitted for approval with %d step(s)", len(steps)),
		}, nil
	})
}

// Approve decides the current step. The last actionable step approves the
// record and clears the index; otherwise the index moves to the next
// actionable step and the record stays pending.
func (w *Walker[T]) Approve(ctx context.Context, id, approverID, comments string) (T, error) {
	return w.store.Modify(ctx, id, func(current T) (records.Change, error) {
		path, idx, err := w.currentStep(current, approverID)
		if err != nil {
			return records.Change{}, err
		}
		now := w.opts.Clock()
		path[idx].Status = StepApproved
		path[idx].ApprovedAt = &now
		path[idx].ActedBy = approverID
		path[idx].Comments = comments

		patch := records.Patch{"approvalPath": path}
		next := nextActionable(path, idx+1)
		if next < 0 {
			patch["status"] = w.statuses.Approved
			patch["currentApprovalStep"] = nil
		} else {
			patch["currentApprovalStep"] = next
			if current.StatusValue() != w.statuses.Pending {
				patch["status"] = w.statuses.Pending
			}
		}
		return records.Change{
			Patch:       patch,
			Action:      ActionApproved,
			Description: fmt.Sprintf("step %d approved by %s", path[idx].Step, approverID),
		}, nil
	})
}

// Reject decides the current step negatively. The index is left as is and
// earlier steps keep their outcome.
func (w *Walker[T]) Reject(ctx context.Context, id, approverID, reason string) (T, error) {
	return w.store.Modify(ctx, id, func(current T) (records.Change, error) {
		path, idx, err := w.currentStep(current, approverID)
		if err != nil {
			return records.Change{}, err
		}
		now := w.opts.Clock()
		path[idx].Status = StepRejected
		path[idx].RejectedAt = &now
		path[idx].ActedBy = approverID
		path[idx].Comments = reason
		return records.Change{
			Patch: records.Patch{
				"approvalPath": path,
				"status":       w.statuses.Rejected,
			},
			Action:      ActionRejected,
			Description: fmt.Sprintf("step %d rejected by %s: %s", path[idx].Step, approverID, reason),
		}, nil
	})
}

// Delegate hands the current step to another approver. The step stays
// actionable.
func (w *Walker[T]) Delegate(ctx context.Context, id, fromID, toID, reason string) (T, error) {
	return w.store.Modify(ctx, id, func(current T) (records.Change, error) {
		path, idx, err := w.currentStep(current, fromID)
		if err != nil {
			return records.Change{}, err
		}
		now := w.opts.Clock()
		path[idx].DelegatedFrom = path[idx].ApproverID
		path[idx].ApproverID = toID
		path[idx].ApproverName = ""
		path[idx].Type = ApproverUser
		path[idx].Status = StepDelegated
		path[idx].DelegatedAt = &now
		path[idx].Comments = reason
		return records.Change{
			Patch:       records.Patch{"approvalPath": path},
			Action:      ActionDelegated,
			Description: fmt.Sprintf("step %d delegated from %s to %s", path[idx].Step, fromID, toID),
		}, nil
	})
}

// currentStep resolves the step at currentApprovalStep, defaulting to the
// first step when the index is absent.
func (w *Walker[T]) currentStep(rec T, actorID string) ([]Step, int, error) {
	path := copyPath(rec.ApprovalPath())
	idx := 0
	if cur := rec.CurrentApprovalStep(); cur != nil {
		idx = *cur
	}
	if idx < 0 || idx >= len(path) {
		return nil, 0, ErrNoCurrentStep
	}
	step := path[idx]
	if !step.Actionable() {
		return nil, 0, fmt.Errorf("%w: step %d is %s", ErrStepClosed, step.Step, step.Status)
	}
	if w.opts.EnforceAssignee && step.Type == ApproverUser && step.ApproverID != "" && step.ApproverID != actorID {
		return nil, 0, fmt.Errorf("%w: step %d belongs to %s", ErrNotAssigned, step.Step, step.ApproverID)
	}
	return path, idx, nil
}
