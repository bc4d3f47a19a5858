package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procuredesk/internal/records"
	"github.com/odyssey-erp/procuredesk/internal/workflow"
)

var payableStatuses = []InvoiceStatus{InvoiceApproved, InvoicePendingPayment, InvoicePartiallyPaid, InvoiceOverdue}

// ConvertRequisition turns an approved requisition into a draft purchase
// order carrying its items.
func (d *Desk) ConvertRequisition(ctx context.Context, id string, in ConvertInput) (*Requisition, *PurchaseOrder, error) {
	var po *PurchaseOrder
	req, err := d.requisitions.Modify(ctx, id, func(current *Requisition) (records.Change, error) {
		if current.Status != RequisitionApproved {
			return records.Change{}, fmt.Errorf("%w: requisition %s is %s", ErrInvalidState, current.Number, current.Status)
		}
		supplierID := in.SupplierID
		if supplierID == "" {
			supplierID = current.SupplierID
		}
		if supplierID == "" {
			return records.Change{}, fieldError("supplierId", "is required")
		}
		name, err := d.supplierName(supplierID, "")
		if err != nil {
			return records.Change{}, err
		}
		created, err := d.purchaseOrders.Add(ctx, &PurchaseOrder{
			Title:            current.Title,
			SupplierID:       supplierID,
			SupplierName:     name,
			RequisitionIDs:   []string{current.ID},
			Currency:         current.Currency,
			Items:            slices.Clone(current.Items),
			TotalAmount:      current.TotalAmount,
			ExpectedDelivery: in.ExpectedDelivery,
			Steps:            []workflow.Step{},
			Status:           PODraft,
		})
		if err != nil {
			return records.Change{}, err
		}
		po = created
		return records.Change{
			Patch: records.Patch{
				"status":          RequisitionConvertedToPO,
				"purchaseOrderId": created.ID,
				"supplierId":      supplierID,
			},
			Action:      ActionConverted,
			Description: fmt.Sprintf("converted to purchase order %s", created.Number),
		}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return req, po, nil
}

// IssuePurchaseOrder sends an approved purchase order to the supplier.
func (d *Desk) IssuePurchaseOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	return d.purchaseOrders.Modify(ctx, id, func(current *PurchaseOrder) (records.Change, error) {
		if current.Status != POApproved {
			return records.Change{}, fmt.Errorf("%w: purchase order %s is %s", ErrInvalidState, current.Number, current.Status)
		}
		now := d.clock()
		return records.Change{
			Patch:       records.Patch{"status": POIssued, "issuedAt": now},
			Action:      ActionIssued,
			Description: fmt.Sprintf("issued to %s", current.SupplierName),
		}, nil
	})
}

// RecordPayment applies a payment to an approved invoice. Overpayment is
// rejected.
func (d *Desk) RecordPayment(ctx context.Context, id string, in PaymentInput) (*Invoice, error) {
	if err := check(d.validate, in); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, fieldError("amount", "must be positive")
	}
	paidAt := d.clock()
	if in.PaidAt != nil {
		paidAt = *in.PaidAt
	}
	actor := records.ActorFromContext(ctx)
	inv, err := d.invoices.Modify(ctx, id, func(current *Invoice) (records.Change, error) {
		if !slices.Contains(payableStatuses, current.Status) {
			return records.Change{}, fmt.Errorf("%w: invoice %s is %s", ErrInvalidState, current.Number, current.Status)
		}
		outstanding := current.Outstanding()
		if in.Amount.GreaterThan(outstanding) {
			return records.Change{}, fieldError("amount", "exceeds outstanding "+outstanding.StringFixed(2))
		}
		paid := current.PaidAmount.Add(in.Amount)
		status := InvoicePartiallyPaid
		if paid.Equal(current.TotalAmount) {
			status = InvoicePaid
		}
		payments := append(slices.Clone(current.Payments), Payment{
			ID:         uuid.NewString(),
			Amount:     in.Amount,
			PaidAt:     paidAt,
			Reference:  strings.TrimSpace(in.Reference),
			RecordedBy: actor,
		})
		return records.Change{
			Patch:       records.Patch{"paidAmount": paid, "payments": payments, "status": status},
			Action:      ActionPaymentRecorded,
			Description: fmt.Sprintf("payment of %s %s recorded", in.Amount.StringFixed(2), current.Currency),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	d.addSupplierSpend(ctx, inv.SupplierID, in.Amount)
	return inv, nil
}

func (d *Desk) addSupplierSpend(ctx context.Context, supplierID string, amount decimal.Decimal) {
	if supplierID == "" {
		return
	}
	_, err := d.suppliers.Modify(ctx, supplierID, func(current *Supplier) (records.Change, error) {
		return records.Change{
			Patch:       records.Patch{"spendYtd": current.SpendYTD.Add(amount)},
			Action:      ActionPaymentRecorded,
			Description: "year to date spend updated",
		}, nil
	})
	if err != nil && !errors.Is(err, records.ErrNotFound) {
		d.logger.Warn("update supplier spend", slog.String("supplier_id", supplierID), slog.Any("error", err))
	}
}

// MarkOverdue flags unpaid invoices due before asOf and reports how many changed.
func (d *Desk) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	marked := 0
	for _, inv := range d.invoices.List() {
		if !overdueCandidate(inv, asOf) {
			continue
		}
		_, err := d.invoices.Modify(ctx, inv.ID, func(current *Invoice) (records.Change, error) {
			if !overdueCandidate(current, asOf) {
				return records.Change{}, ErrInvalidState
			}
			return records.Change{
				Patch:       records.Patch{"status": InvoiceOverdue},
				Action:      ActionMarkedOverdue,
				Description: fmt.Sprintf("due %s, outstanding %s", current.DueDate.Format(time.DateOnly), current.Outstanding().StringFixed(2)),
			}, nil
		})
		switch {
		case err == nil:
			marked++
		case errors.Is(err, ErrInvalidState), errors.Is(err, records.ErrNotFound):
		default:
			return marked, err
		}
	}
	return marked, nil
}

func overdueCandidate(inv *Invoice, asOf time.Time) bool {
	if inv.Status == InvoiceOverdue || !slices.Contains(payableStatuses, inv.Status) {
		return false
	}
	return !inv.DueDate.IsZero() && inv.DueDate.Before(asOf) && inv.Outstanding().IsPositive()
}

// RequisitionFromTemplate drafts a requisition from an active template and
// counts the use.
func (d *Desk) RequisitionFromTemplate(ctx context.Context, templateID string, in TemplateRequisitionInput) (*Requisition, error) {
	if err := check(d.validate, in); err != nil {
		return nil, err
	}
	var req *Requisition
	_, err := d.templates.Modify(ctx, templateID, func(current *Template) (records.Change, error) {
		if current.Status != TemplateActive {
			return records.Change{}, fmt.Errorf("%w: template %s is %s", ErrInvalidState, current.Number, current.Status)
		}
		if current.TargetKind != "" && current.TargetKind != KindRequisition {
			return records.Change{}, fmt.Errorf("%w: template %s targets %s", ErrInvalidState, current.Number, current.TargetKind)
		}
		title := strings.TrimSpace(in.Title)
		if title == "" {
			title = current.Name
		}
		priority := in.Priority
		if priority == "" {
			priority = PriorityMedium
		}
		items := priceItems(current.Items)
		created, err := d.requisitions.Add(ctx, &Requisition{
			Title:       title,
			Description: current.Description,
			Department:  strings.TrimSpace(in.Department),
			Requester:   strings.TrimSpace(in.Requester),
			Priority:    priority,
			NeededBy:    in.NeededBy,
			Currency:    DefaultCurrency,
			Items:       items,
			TotalAmount: sumItems(items),
			TemplateID:  current.ID,
			Steps:       []workflow.Step{},
			Status:      RequisitionDraft,
		})
		if err != nil {
			return records.Change{}, err
		}
		req = created
		return records.Change{
			Patch:       records.Patch{"usageCount": current.UsageCount + 1},
			Action:      ActionTemplateUsed,
			Description: fmt.Sprintf("requisition %s drafted", created.Number),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// matchInvoice compares an invoice with the purchase orders it references.
func (d *Desk) matchInvoice(inv *Invoice) []MatchException {
	exceptions := []MatchException{}
	if len(inv.PurchaseOrderIDs) == 0 {
		return exceptions
	}
	ordered := decimal.Zero
	matched := 0
	for _, poID := range inv.PurchaseOrderIDs {
		po, ok := d.purchaseOrders.Get(poID)
		if !ok {
			exceptions = append(exceptions, MatchException{
				Type:        "missing_purchase_order",
				Description: "referenced purchase order does not exist",
				Expected:    poID,
			})
			continue
		}
		matched++
		ordered = ordered.Add(po.TotalAmount)
		if po.SupplierID != inv.SupplierID {
			exceptions = append(exceptions, MatchException{
				Type:        "supplier_mismatch",
				Description: fmt.Sprintf("purchase order %s belongs to another supplier", po.Number),
				Expected:    po.SupplierID,
				Actual:      inv.SupplierID,
			})
		}
		if po.Currency != inv.Currency {
			exceptions = append(exceptions, MatchException{
				Type:        "currency_mismatch",
				Description: fmt.Sprintf("purchase order %s is in %s", po.Number, po.Currency),
				Expected:    po.Currency,
				Actual:      inv.Currency,
			})
		}
	}
	if matched > 0 && !ordered.Equal(inv.TotalAmount) {
		exceptions = append(exceptions, MatchException{
			Type:        "amount_mismatch",
			Description: "invoice total differs from ordered total",
			Expected:    ordered.StringFixed(2),
			Actual:      inv.TotalAmount.StringFixed(2),
		})
	}
	return exceptions
}
