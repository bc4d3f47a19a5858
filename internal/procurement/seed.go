package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procuredesk/internal/records"
	"github.com/odyssey-erp/procuredesk/internal/workflow"
)

// Seed holds the collections a desk starts from when its slot is empty.
type Seed struct {
	Requisitions   []*Requisition
	PurchaseOrders []*PurchaseOrder
	Invoices       []*Invoice
	Suppliers      []*Supplier
	Templates      []*Template
}

// DemoSeed returns a small, internally consistent demo data set dated
// relative to now.
func DemoSeed(now time.Time) *Seed {
	now = now.UTC().Truncate(time.Second)
	year := now.Year()
	day := func(offset int) time.Time { return now.AddDate(0, 0, offset) }
	zero := 0

	laptops := priceItems([]LineItem{
		{Description: "Dell XPS 15 laptop", Category: "IT hardware", Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(1350)},
	})
	chairs := priceItems([]LineItem{
		{Description: "Ergonomic office chair", Category: "Furniture", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(450)},
	})
	supplies := priceItems([]LineItem{
		{Description: "Printer paper, A4 box", Category: "Office supplies", Quantity: decimal.NewFromInt(50), UnitPrice: decimal.NewFromInt(25)},
	})
	kit := priceItems([]LineItem{
		{Description: "Laptop", Category: "IT hardware", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1350)},
		{Description: "27 inch monitor", Category: "IT hardware", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(320)},
		{Description: "USB-C dock", Category: "IT hardware", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("189.99")},
	})

	return &Seed{
		Suppliers: []*Supplier{
			{
				Meta: seedMeta("sup-dell", "SUP-0001", day(-120)), Name: "Dell Technologies", Category: "IT hardware",
				ContactName: "Dana Whitfield", Email: "orders@dell.example", Phone: "+1 512 555 0100",
				PaymentTerms: "Net 30", Rating: 4, SpendYTD: decimal.NewFromInt(48200), Status: SupplierActive,
			},
			{
				Meta: seedMeta("sup-staples", "SUP-0002", day(-90)), Name: "Staples Business Advantage", Category: "Office supplies",
				ContactName: "Luis Ortega", Email: "accounts@staples.example", Phone: "+1 508 555 0142",
				PaymentTerms: "Net 45", Rating: 5, SpendYTD: decimal.NewFromInt(6300), Status: SupplierActive,
			},
			{
				Meta: seedMeta("sup-acme", "SUP-0003", day(-10)), Name: "Acme Facilities Services", Category: "Facilities",
				ContactName: "Priya Raman", Email: "hello@acme.example", PaymentTerms: "Net 30",
				SpendYTD: decimal.Zero, Status: SupplierPending,
			},
		},
		Templates: []*Template{
			{
				Meta: seedMeta("tpl-onboarding", "TPL-001", day(-60)), Name: "New hire IT kit",
				Description: "Standard equipment for a new engineer", Category: "IT hardware",
				TargetKind: KindRequisition, Items: kit, UsageCount: 7, Status: TemplateActive,
			},
		},
		Requisitions: []*Requisition{
			{
				Meta: seedMeta("req-laptops", seedNumber("REQ", year, 1), day(-3)), Title: "Dell XPS laptops for engineering",
				Description: "Replacement cycle for the platform team", Department: "Engineering", Requester: "U7",
				Priority: PriorityHigh, Currency: DefaultCurrency, Items: laptops, TotalAmount: sumItems(laptops),
				SupplierID: "sup-dell",
				Steps: []workflow.Step{
					{Step: 1, ApproverID: "U1", ApproverName: "Engineering Manager", Type: workflow.ApproverUser, Status: workflow.StepPending},
					{Step: 2, ApproverID: "U2", ApproverName: "Procurement Lead", Type: workflow.ApproverUser, Status: workflow.StepPending},
				},
				CurrentStepIndex: &zero,
				Status:           RequisitionPendingApproval,
			},
			{
				Meta: seedMeta("req-chairs", seedNumber("REQ", year, 2), day(-1)), Title: "Ergonomic office chairs",
				Department: "Facilities", Requester: "U8", Priority: PriorityMedium, Currency: DefaultCurrency,
				Items: chairs, TotalAmount: sumItems(chairs), Steps: []workflow.Step{}, Status: RequisitionDraft,
			},
		},
		PurchaseOrders: []*PurchaseOrder{
			{
				Meta: seedMeta("po-supplies", seedNumber("PO", year, 1), day(-40)), Title: "Quarterly office supplies",
				SupplierID: "sup-staples", SupplierName: "Staples Business Advantage", RequisitionIDs: []string{},
				Currency: DefaultCurrency, Items: supplies, TotalAmount: sumItems(supplies),
				Steps: []workflow.Step{}, Status: POApproved,
			},
		},
		Invoices: []*Invoice{
			{
				Meta: seedMeta("inv-supplies", seedNumber("INV", year, 1), day(-35)), SupplierID: "sup-staples",
				SupplierName: "Staples Business Advantage", SupplierInvoiceNo: "SBA-88412",
				PurchaseOrderIDs: []string{"po-supplies"}, Currency: DefaultCurrency, Lines: supplies,
				TotalAmount: sumItems(supplies), PaidAmount: decimal.Zero, InvoiceDate: day(-35), DueDate: day(-5),
				MatchExceptions: []MatchException{}, Steps: []workflow.Step{}, Payments: []Payment{},
				Status: InvoiceApproved,
			},
		},
	}
}

func seedMeta(id, number string, at time.Time) records.Meta {
	return records.Meta{
		ID:        id,
		Number:    number,
		Version:   1,
		CreatedAt: at,
		UpdatedAt: at,
		CreatedBy: records.SystemActor,
		AuditTrail: []records.AuditEntry{{
			ID:          id + "-created",
			Action:      records.ActionCreated,
			Actor:       records.SystemActor,
			At:          at,
			Description: "seeded",
			Changes:     []records.FieldChange{},
		}},
	}
}

func seedNumber(prefix string, year, seq int) string {
	return yearlyNumber(prefix, 6)(seq, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
}
