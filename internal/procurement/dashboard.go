package procurement

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procuredesk/internal/records"
)

// Dashboard summarises the desk.
type Dashboard struct {
	Metrics             map[string]records.Metrics `json:"metrics"`
	PendingApprovals    map[string]int             `json:"pendingApprovals"`
	OutstandingPayables decimal.Decimal            `json:"outstandingPayables"`
	OverdueInvoices     int                        `json:"overdueInvoices"`
	OverdueAmount       decimal.Decimal            `json:"overdueAmount"`
}

// Dashboard recomputes the summary from the current collections.
func (d *Desk) Dashboard() Dashboard {
	out := Dashboard{
		Metrics: map[string]records.Metrics{
			KindRequisition:   d.requisitions.Metrics(),
			KindPurchaseOrder: d.purchaseOrders.Metrics(),
			KindInvoice:       d.invoices.Metrics(),
			KindSupplier:      d.suppliers.Metrics(),
			KindTemplate:      d.templates.Metrics(),
		},
		PendingApprovals: map[string]int{
			KindRequisition:   0,
			KindPurchaseOrder: 0,
			KindInvoice:       0,
		},
		OutstandingPayables: decimal.Zero,
		OverdueAmount:       decimal.Zero,
	}
	for kind, status := range map[string]string{
		KindRequisition:   requisitionStatuses.Pending,
		KindPurchaseOrder: purchaseOrderStatuses.Pending,
		KindInvoice:       invoiceStatuses.Pending,
	} {
		out.PendingApprovals[kind] = out.Metrics[kind].ByStatus[status]
	}
	for _, inv := range d.invoices.List() {
		if !slices.Contains(payableStatuses, inv.Status) {
			continue
		}
		outstanding := inv.Outstanding()
		out.OutstandingPayables = out.OutstandingPayables.Add(outstanding)
		if inv.Status == InvoiceOverdue {
			out.OverdueInvoices++
			out.OverdueAmount = out.OverdueAmount.Add(outstanding)
		}
	}
	return out
}

