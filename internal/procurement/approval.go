package procurement

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procuredesk/internal/workflow"
)

// Approval thresholds. Steps carrying a threshold above the record amount are
// skipped at submission.
var (
	FinanceThreshold   = decimal.NewFromInt(10_000)
	ExecutiveThreshold = decimal.NewFromInt(50_000)
	InvoiceThreshold   = decimal.NewFromInt(25_000)
)

var (
	requisitionStatuses = workflow.Statuses{
		Pending:  string(RequisitionPendingApproval),
		Approved: string(RequisitionApproved),
		Rejected: string(RequisitionRejected),
		Submittable: []string{
			string(RequisitionDraft),
			string(RequisitionSubmitted),
			string(RequisitionRejected),
			string(RequisitionSourcingRequired),
			string(RequisitionBudgetCheckRequired),
		},
	}
	purchaseOrderStatuses = workflow.Statuses{
		Pending:     string(POPendingApproval),
		Approved:    string(POApproved),
		Rejected:    string(PORejected),
		Submittable: []string{string(PODraft), string(PORejected), string(POOnHold)},
	}
	invoiceStatuses = workflow.Statuses{
		Pending:     string(InvoicePendingApproval),
		Approved:    string(InvoiceApproved),
		Rejected:    string(InvoiceRejected),
		Submittable: []string{string(InvoiceReceived), string(InvoiceRejected), string(InvoiceOnHold), string(InvoiceDisputed)},
	}
)

// DefaultApprovalPath returns the role-based path for kind. Thresholded steps
// stay in the path and are skipped by the walker when the amount is lower.
func DefaultApprovalPath(kind string) []workflow.Step {
	switch kind {
	case KindRequisition:
		return []workflow.Step{
			roleStep("department_manager", "Department Manager", nil),
			roleStep("finance_controller", "Finance Controller", &FinanceThreshold),
			roleStep("cfo", "Chief Financial Officer", &ExecutiveThreshold),
		}
	case KindPurchaseOrder:
		return []workflow.Step{
			roleStep("procurement_manager", "Procurement Manager", nil),
			roleStep("finance_controller", "Finance Controller", &FinanceThreshold),
			roleStep("cfo", "Chief Financial Officer", &ExecutiveThreshold),
		}
	case KindInvoice:
		return []workflow.Step{
			roleStep("ap_clerk", "Accounts Payable", nil),
			roleStep("finance_manager", "Finance Manager", &InvoiceThreshold),
		}
	default:
		return nil
	}
}

func roleStep(role, name string, threshold *decimal.Decimal) workflow.Step {
	step := workflow.Step{ApproverID: role, ApproverName: name, Type: workflow.ApproverRole, Status: workflow.StepPending}
	if threshold != nil {
		limit := *threshold
		step.RequiredAmount = &limit
	}
	return step
}
