package procurement

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procuredesk/internal/records"
	"github.com/odyssey-erp/procuredesk/internal/workflow"
)

// Record kinds served by the desk.
const (
	KindRequisition   = "requisition"
	KindPurchaseOrder = "purchase_order"
	KindInvoice       = "invoice"
	KindSupplier      = "supplier"
	KindTemplate      = "template"
)

// Kinds lists every record kind in a stable order.
var Kinds = []string{KindRequisition, KindPurchaseOrder, KindInvoice, KindSupplier, KindTemplate}

// Audit actions written by desk operations.
const (
	ActionConverted       = "converted"
	ActionIssued          = "issued"
	ActionPaymentRecorded = "payment_recorded"
	ActionMarkedOverdue   = "marked_overdue"
	ActionTemplateUsed    = "template_used"
)

// Requisition lifecycle statuses.
type RequisitionStatus string

const (
	RequisitionDraft               RequisitionStatus = "draft"
	RequisitionSubmitted           RequisitionStatus = "submitted"
	RequisitionPendingApproval     RequisitionStatus = "pending_approval"
	RequisitionApproved            RequisitionStatus = "approved"
	RequisitionPartiallyApproved   RequisitionStatus = "partially_approved"
	RequisitionRejected            RequisitionStatus = "rejected"
	RequisitionCancelled           RequisitionStatus = "cancelled"
	RequisitionConvertedToPO       RequisitionStatus = "converted_to_po"
	RequisitionSourcingRequired    RequisitionStatus = "sourcing_required"
	RequisitionBudgetCheckRequired RequisitionStatus = "budget_check_required"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	PODraft             POStatus = "draft"
	POPendingApproval   POStatus = "pending_approval"
	POApproved          POStatus = "approved"
	PORejected          POStatus = "rejected"
	POIssued            POStatus = "issued"
	POAcknowledged      POStatus = "acknowledged"
	POInProgress        POStatus = "in_progress"
	POPartiallyReceived POStatus = "partially_received"
	POReceived          POStatus = "received"
	POPartiallyInvoiced POStatus = "partially_invoiced"
	POInvoiced          POStatus = "invoiced"
	POClosed            POStatus = "closed"
	POCancelled         POStatus = "cancelled"
	PODisputed          POStatus = "disputed"
	POOnHold            POStatus = "on_hold"
)

// Invoice statuses.
type InvoiceStatus string

const (
	InvoiceReceived        InvoiceStatus = "received"
	InvoicePendingApproval InvoiceStatus = "pending_approval"
	InvoiceApproved        InvoiceStatus = "approved"
	InvoiceRejected        InvoiceStatus = "rejected"
	InvoiceDisputed        InvoiceStatus = "disputed"
	InvoicePaid            InvoiceStatus = "paid"
	InvoicePartiallyPaid   InvoiceStatus = "partially_paid"
	InvoiceVoided          InvoiceStatus = "voided"
	InvoiceCancelled       InvoiceStatus = "cancelled"
	InvoiceOnHold          InvoiceStatus = "on_hold"
	InvoicePendingPayment  InvoiceStatus = "pending_payment"
	InvoiceOverdue         InvoiceStatus = "overdue"
)

// Supplier statuses.
type SupplierStatus string

const (
	SupplierActive   SupplierStatus = "active"
	SupplierInactive SupplierStatus = "inactive"
	SupplierPending  SupplierStatus = "pending"
	SupplierBlocked  SupplierStatus = "blocked"
)

// Template statuses.
type TemplateStatus string

const (
	TemplateActive   TemplateStatus = "active"
	TemplateDraft    TemplateStatus = "draft"
	TemplateArchived TemplateStatus = "archived"
)

// Priority of a requisition.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
)

// LineItem is one priced line of a requisition, order, invoice or template.
type LineItem struct {
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
}

// Requisition is an internal request to buy.
type Requisition struct {
	records.Meta
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Department       string            `json:"department"`
	Requester        string            `json:"requester"`
	Priority         Priority          `json:"priority"`
	NeededBy         *time.Time        `json:"neededBy"`
	Currency         string            `json:"currency"`
	Items            []LineItem        `json:"items"`
	TotalAmount      decimal.Decimal   `json:"totalAmount"`
	SupplierID       string            `json:"supplierId"`
	TemplateID       string            `json:"templateId"`
	PurchaseOrderID  string            `json:"purchaseOrderId"`
	Steps            []workflow.Step   `json:"approvalPath"`
	CurrentStepIndex *int              `json:"currentApprovalStep"`
	Status           RequisitionStatus `json:"status"`
}

func (r *Requisition) StatusValue() string           { return string(r.Status) }
func (r *Requisition) AmountValue() decimal.Decimal  { return r.TotalAmount }
func (r *Requisition) ApprovalPath() []workflow.Step { return r.Steps }
func (r *Requisition) CurrentApprovalStep() *int     { return r.CurrentStepIndex }

// PurchaseOrder is a commitment to a supplier.
type PurchaseOrder struct {
	records.Meta
	Title            string          `json:"title"`
	SupplierID       string          `json:"supplierId"`
	SupplierName     string          `json:"supplierName"`
	RequisitionIDs   []string        `json:"requisitionIds"`
	Currency         string          `json:"currency"`
	Items            []LineItem      `json:"items"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	ExpectedDelivery *time.Time      `json:"expectedDelivery"`
	IssuedAt         *time.Time      `json:"issuedAt"`
	Steps            []workflow.Step `json:"approvalPath"`
	CurrentStepIndex *int            `json:"currentApprovalStep"`
	Status           POStatus        `json:"status"`
}

func (p *PurchaseOrder) StatusValue() string           { return string(p.Status) }
func (p *PurchaseOrder) AmountValue() decimal.Decimal  { return p.TotalAmount }
func (p *PurchaseOrder) ApprovalPath() []workflow.Step { return p.Steps }
func (p *PurchaseOrder) CurrentApprovalStep() *int     { return p.CurrentStepIndex }

// MatchException flags a difference between an invoice and its orders.
type MatchException struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Expected    string `json:"expected"`
	Actual      string `json:"actual"`
}

// Payment settles part or all of an invoice.
type Payment struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAt     time.Time       `json:"paidAt"`
	Reference  string          `json:"reference"`
	RecordedBy string          `json:"recordedBy"`
}

// Invoice is a supplier bill awaiting approval and payment.
type Invoice struct {
	records.Meta
	SupplierID        string           `json:"supplierId"`
	SupplierName      string           `json:"supplierName"`
	SupplierInvoiceNo string           `json:"supplierInvoiceNo"`
	PurchaseOrderIDs  []string         `json:"purchaseOrderIds"`
	Currency          string           `json:"currency"`
	Lines             []LineItem       `json:"lines"`
	TotalAmount       decimal.Decimal  `json:"totalAmount"`
	PaidAmount        decimal.Decimal  `json:"paidAmount"`
	InvoiceDate       time.Time        `json:"invoiceDate"`
	DueDate           time.Time        `json:"dueDate"`
	MatchExceptions   []MatchException `json:"matchExceptions"`
	Steps             []workflow.Step  `json:"approvalPath"`
	CurrentStepIndex  *int             `json:"currentApprovalStep"`
	Payments          []Payment        `json:"payments"`
	Status            InvoiceStatus    `json:"status"`
}

func (i *Invoice) StatusValue() string           { return string(i.Status) }
func (i *Invoice) AmountValue() decimal.Decimal  { return i.TotalAmount }
func (i *Invoice) ApprovalPath() []workflow.Step { return i.Steps }
func (i *Invoice) CurrentApprovalStep() *int     { return i.CurrentStepIndex }

// Outstanding is the unpaid remainder.
func (i *Invoice) Outstanding() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

// Supplier is a vendor master record.
type Supplier struct {
	records.Meta
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	ContactName  string          `json:"contactName"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	PaymentTerms string          `json:"paymentTerms"`
	Rating       int             `json:"rating"`
	SpendYTD     decimal.Decimal `json:"spendYtd"`
	Status       SupplierStatus  `json:"status"`
}

func (s *Supplier) StatusValue() string          { return string(s.Status) }
func (s *Supplier) AmountValue() decimal.Decimal { return s.SpendYTD }

// Template is a reusable set of line items.
type Template struct {
	records.Meta
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	TargetKind  string         `json:"targetKind"`
	Items       []LineItem     `json:"items"`
	UsageCount  int            `json:"usageCount"`
	Status      TemplateStatus `json:"status"`
}

func (t *Template) StatusValue() string          { return string(t.Status) }
func (t *Template) AmountValue() decimal.Decimal { return sumItems(t.Items) }

// statusValues lists the accepted status values per kind.
var statusValues = map[string][]string{
	KindRequisition: {
		string(RequisitionDraft), string(RequisitionSubmitted), string(RequisitionPendingApproval),
		string(RequisitionApproved), string(RequisitionPartiallyApproved), string(RequisitionRejected),
		string(RequisitionCancelled), string(RequisitionConvertedToPO), string(RequisitionSourcingRequired),
		string(RequisitionBudgetCheckRequired),
	},
	KindPurchaseOrder: {
		string(PODraft), string(POPendingApproval), string(POApproved), string(PORejected), string(POIssued),
		string(POAcknowledged), string(POInProgress), string(POPartiallyReceived), string(POReceived),
		string(POPartiallyInvoiced), string(POInvoiced), string(POClosed), string(POCancelled),
		string(PODisputed), string(POOnHold),
	},
	KindInvoice: {
		string(InvoiceReceived), string(InvoicePendingApproval), string(InvoiceApproved), string(InvoiceRejected),
		string(InvoiceDisputed), string(InvoicePaid), string(InvoicePartiallyPaid), string(InvoiceVoided),
		string(InvoiceCancelled), string(InvoiceOnHold), string(InvoicePendingPayment), string(InvoiceOverdue),
	},
	KindSupplier: {
		string(SupplierActive), string(SupplierInactive), string(SupplierPending), string(SupplierBlocked),
	},
	KindTemplate: {
		string(TemplateActive), string(TemplateDraft), string(TemplateArchived),
	},
}

// Statuses returns the status values accepted for kind.
func Statuses(kind string) []string {
	return append([]string(nil), statusValues[kind]...)
}

// yearlyNumber formats PREFIX-yyyy-###### style numbers.
func yearlyNumber(prefix string, width int) records.Numberer {
	return func(seq int, at time.Time) string {
		return fmt.Sprintf("%s-%d-%0*d", prefix, at.Year(), width, seq)
	}
}

// flatNumber formats PREFIX-#### style numbers.
func flatNumber(prefix string, width int) records.Numberer {
	return func(seq int, _ time.Time) string {
		return fmt.Sprintf("%s-%0*d", prefix, width, seq)
	}
}

func priceItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		item.Total = item.Quantity.Mul(item.UnitPrice)
		out[i] = item
	}
	return out
}

func sumItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}
	return total
}
