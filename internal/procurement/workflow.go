package procurement

import (
	"context"

	"github.com/odyssey-erp/procuredesk/internal/records"
	"github.com/odyssey-erp/procuredesk/internal/workflow"
)

// SubmitRequisition starts approval. A nil path reuses the requisition's own
// path, or the default path when it has none.
func (d *Desk) SubmitRequisition(ctx context.Context, id string, path []workflow.Step) (*Requisition, error) {
	return submit(ctx, d.requisitions, d.requisitionFlow, KindRequisition, id, path)
}

// ApproveRequisition approves the current step.
func (d *Desk) ApproveRequisition(ctx context.Context, id, approverID, comments string) (*Requisition, error) {
	return d.requisitionFlow.Approve(ctx, id, approverID, comments)
}

// RejectRequisition rejects the current step.
func (d *Desk) RejectRequisition(ctx context.Context, id, approverID, reason string) (*Requisition, error) {
	return d.requisitionFlow.Reject(ctx, id, approverID, reason)
}

// DelegateRequisition hands the current step to another approver.
func (d *Desk) DelegateRequisition(ctx context.Context, id, fromID, toID, reason string) (*Requisition, error) {
	return d.requisitionFlow.Delegate(ctx, id, fromID, toID, reason)
}

// SubmitPurchaseOrder starts approval of a purchase order.
func (d *Desk) SubmitPurchaseOrder(ctx context.Context, id string, path []workflow.Step) (*PurchaseOrder, error) {
	return submit(ctx, d.purchaseOrders, d.purchaseOrderFlow, KindPurchaseOrder, id, path)
}

// ApprovePurchaseOrder approves the current step.
func (d *Desk) ApprovePurchaseOrder(ctx context.Context, id, approverID, comments string) (*PurchaseOrder, error) {
	return d.purchaseOrderFlow.Approve(ctx, id, approverID, comments)
}

// RejectPurchaseOrder rejects the current step.
func (d *Desk) RejectPurchaseOrder(ctx context.Context, id, approverID, reason string) (*PurchaseOrder, error) {
	return d.purchaseOrderFlow.Reject(ctx, id, approverID, reason)
}

// DelegatePurchaseOrder hands the current step to another approver.
func (d *Desk) DelegatePurchaseOrder(ctx context.Context, id, fromID, toID, reason string) (*PurchaseOrder, error) {
	return d.purchaseOrderFlow.Delegate(ctx, id, fromID, toID, reason)
}

// SubmitInvoice starts approval of an invoice.
func (d *Desk) SubmitInvoice(ctx context.Context, id string, path []workflow.Step) (*Invoice, error) {
	return submit(ctx, d.invoices, d.invoiceFlow, KindInvoice, id, path)
}

// ApproveInvoice approves the current step.
func (d *Desk) ApproveInvoice(ctx context.Context, id, approverID, comments string) (*Invoice, error) {
	return d.invoiceFlow.Approve(ctx, id, approverID, comments)
}

// RejectInvoice rejects the current step.
func (d *Desk) RejectInvoice(ctx context.Context, id, approverID, reason string) (*Invoice, error) {
	return d.invoiceFlow.Reject(ctx, id, approverID, reason)
}

// DelegateInvoice hands the current step to another approver.
func (d *Desk) DelegateInvoice(ctx context.Context, id, fromID, toID, reason string) (*Invoice, error) {
	return d.invoiceFlow.Delegate(ctx, id, fromID, toID, reason)
}

func submit[T workflow.Approvable](ctx context.Context, store *records.Store[T], walker *workflow.Walker[T], kind, id string, path []workflow.Step) (T, error) {
	if path == nil {
		current, ok := store.Get(id)
		if !ok {
			var zero T
			return zero, records.ErrNotFound
		}
		if len(current.ApprovalPath()) == 0 {
			path = DefaultApprovalPath(kind)
		}
	}
	return walker.Submit(ctx, id, path)
}
