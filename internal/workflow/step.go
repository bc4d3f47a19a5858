package workflow

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procuredesk/internal/records"
)

// ApproverType tags how a step's approver is resolved.
type ApproverType string

const (
	ApproverUser    ApproverType = "user"
	ApproverRole    ApproverType = "role"
	ApproverDynamic ApproverType = "dynamic"
)

// StepStatus is the outcome of a single approval step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepApproved  StepStatus = "approved"
	StepRejected  StepStatus = "rejected"
	StepSkipped   StepStatus = "skipped"
	StepDelegated StepStatus = "delegated"
)

// Audit actions written by the walker.
const (
	ActionSubmitted = "submitted"
	ActionApproved  = "approved"
	ActionRejected  = "rejected"
	ActionDelegated = "delegated"
)

var (
	// ErrNoCurrentStep indicates the approval path has no step at the current index.
	ErrNoCurrentStep = errors.New("workflow: no current approval step")
	// ErrStepClosed indicates the current step was already decided.
	ErrStepClosed = errors.New("workflow: approval step already decided")
	// ErrNotAssigned indicates the actor is not the step's approver.
	ErrNotAssigned = errors.New("workflow: approver not assigned to step")
	// ErrNotSubmittable indicates the record status does not allow submission.
	ErrNotSubmittable = errors.New("workflow: record cannot be submitted")
)

// Step is one entry of an approval path. Step numbers are 1-based.
type Step struct {
	Step           int              `json:"step"`
	ApproverID     string           `json:"approverId"`
	ApproverName   string           `json:"approverName"`
	Type           ApproverType     `json:"type"`
	Status         StepStatus       `json:"status"`
	RequiredAmount *decimal.Decimal `json:"requiredAmount"`
	ApprovedAt     *time.Time       `json:"approvedAt"`
	RejectedAt     *time.Time       `json:"rejectedAt"`
	DelegatedAt    *time.Time       `json:"delegatedAt"`
	DelegatedFrom  string           `json:"delegatedFrom"`
	ActedBy        string           `json:"actedBy"`
	Comments       string           `json:"comments"`
}

// Actionable reports whether the step still awaits a decision.
func (s Step) Actionable() bool {
	return s.Status == StepPending || s.Status == StepDelegated || s.Status == ""
}

// Approvable records carry an approval path under the JSON fields
// "approvalPath" and "currentApprovalStep" and a "status" field.
type Approvable interface {
	records.Record
	ApprovalPath() []Step
	CurrentApprovalStep() *int
}

// nextActionable returns the first actionable index at or after from, or -1.
func nextActionable(path []Step, from int) int {
	for i := from; i < len(path); i++ {
		if path[i].Actionable() {
			return i
		}
	}
	return -1
}

func copyPath(path []Step) []Step {
	out := make([]Step, len(path))
	copy(out, path)
	return out
}
