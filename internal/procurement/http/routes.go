package procurementhttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/procuredesk/internal/export"
	"github.com/odyssey-erp/procuredesk/internal/procurement"
)

const transferLimit = 30
const transferWindow = time.Minute

var (
	requisitionColumns = []export.Column{
		{Key: "number", Label: "Number"},
		{Key: "title", Label: "Title"},
		{Key: "department", Label: "Department"},
		{Key: "requester", Label: "Requester"},
		{Key: "priority", Label: "Priority"},
		{Key: "status", Label: "Status"},
		{Key: "currency", Label: "Currency"},
		{Key: "totalAmount", Label: "Total", Numeric: true},
		{Key: "supplierId", Label: "Supplier ID"},
		{Key: "neededBy", Label: "Needed By"},
		{Key: "createdAt", Label: "Created"},
		{Key: "items", Label: "Items"},
	}
	purchaseOrderColumns = []export.Column{
		{Key: "number", Label: "Number"},
		{Key: "title", Label: "Title"},
		{Key: "supplierId", Label: "Supplier ID"},
		{Key: "supplierName", Label: "Supplier"},
		{Key: "status", Label: "Status"},
		{Key: "currency", Label: "Currency"},
		{Key: "totalAmount", Label: "Total", Numeric: true},
		{Key: "expectedDelivery", Label: "Expected Delivery"},
		{Key: "issuedAt", Label: "Issued"},
		{Key: "createdAt", Label: "Created"},
		{Key: "items", Label: "Items"},
	}
	invoiceColumns = []export.Column{
		{Key: "number", Label: "Number"},
		{Key: "supplierInvoiceNo", Label: "Supplier Invoice"},
		{Key: "supplierId", Label: "Supplier ID"},
		{Key: "supplierName", Label: "Supplier"},
		{Key: "status", Label: "Status"},
		{Key: "currency", Label: "Currency"},
		{Key: "totalAmount", Label: "Total", Numeric: true},
		{Key: "paidAmount", Label: "Paid", Numeric: true},
		{Key: "invoiceDate", Label: "Invoice Date"},
		{Key: "dueDate", Label: "Due Date"},
		{Key: "lines", Label: "Lines"},
	}
	supplierColumns = []export.Column{
		{Key: "number", Label: "Number"},
		{Key: "name", Label: "Name"},
		{Key: "category", Label: "Category"},
		{Key: "contactName", Label: "Contact"},
		{Key: "email", Label: "Email"},
		{Key: "phone", Label: "Phone"},
		{Key: "paymentTerms", Label: "Payment Terms"},
		{Key: "rating", Label: "Rating", Numeric: true},
		{Key: "spendYtd", Label: "Spend YTD", Numeric: true},
		{Key: "status", Label: "Status"},
	}
	templateColumns = []export.Column{
		{Key: "number", Label: "Number"},
		{Key: "name", Label: "Name"},
		{Key: "description", Label: "Description"},
		{Key: "category", Label: "Category"},
		{Key: "targetKind", Label: "Target"},
		{Key: "usageCount", Label: "Uses", Numeric: true},
		{Key: "status", Label: "Status"},
		{Key: "items", Label: "Items"},
	}
)

// MountRoutes registers the desk API. Export and import share a per-actor
// rate limit.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil || h.desk == nil {
		return
	}
	limiter := httprate.Limit(transferLimit, transferWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	d := h.desk

	r.Group(func(api chi.Router) {
		api.Use(actorMiddleware)
		api.Get("/dashboard", h.handleDashboard)

		api.Route("/requisitions", func(rr chi.Router) {
			rr.Post("/", create(h, d.CreateRequisition))
			rr.Post("/{id}/convert", h.handleConvert)
			mountFlow(rr, h, flow[*procurement.Requisition]{
				submit: d.SubmitRequisition, approve: d.ApproveRequisition,
				reject: d.RejectRequisition, delegate: d.DelegateRequisition,
			})
			resource[*procurement.Requisition]{
				h: h, kind: procurement.KindRequisition, file: "requisitions", store: d.Requisitions(),
				columns: requisitionColumns, newFn: func() *procurement.Requisition { return &procurement.Requisition{} },
				update: d.UpdateRequisition, remove: d.DeleteRequisition,
			}.mount(rr, limiter)
		})

		api.Route("/purchase-orders", func(rr chi.Router) {
			rr.Post("/", create(h, d.CreatePurchaseOrder))
			rr.Post("/{id}/issue", h.handleIssue)
			mountFlow(rr, h, flow[*procurement.PurchaseOrder]{
				submit: d.SubmitPurchaseOrder, approve: d.ApprovePurchaseOrder,
				reject: d.RejectPurchaseOrder, delegate: d.DelegatePurchaseOrder,
			})
			resource[*procurement.PurchaseOrder]{
				h: h, kind: procurement.KindPurchaseOrder, file: "purchase-orders", store: d.PurchaseOrders(),
				columns: purchaseOrderColumns, newFn: func() *procurement.PurchaseOrder { return &procurement.PurchaseOrder{} },
				update: d.UpdatePurchaseOrder, remove: d.DeletePurchaseOrder,
			}.mount(rr, limiter)
		})

		api.Route("/invoices", func(rr chi.Router) {
			rr.Post("/", create(h, d.CreateInvoice))
			rr.Post("/overdue-sweep", h.handleOverdueSweep)
			rr.Post("/{id}/payments", h.handlePayment)
			mountFlow(rr, h, flow[*procurement.Invoice]{
				submit: d.SubmitInvoice, approve: d.ApproveInvoice,
				reject: d.RejectInvoice, delegate: d.DelegateInvoice,
			})
			resource[*procurement.Invoice]{
				h: h, kind: procurement.KindInvoice, file: "invoices", store: d.Invoices(),
				columns: invoiceColumns, newFn: func() *procurement.Invoice { return &procurement.Invoice{} },
				update: d.UpdateInvoice, remove: d.DeleteInvoice,
			}.mount(rr, limiter)
		})

		api.Route("/suppliers", func(rr chi.Router) {
			rr.Post("/", create(h, d.CreateSupplier))
			resource[*procurement.Supplier]{
				h: h, kind: procurement.KindSupplier, file: "suppliers", store: d.Suppliers(),
				columns: supplierColumns, newFn: func() *procurement.Supplier { return &procurement.Supplier{} },
				update: d.UpdateSupplier, remove: d.DeleteSupplier,
			}.mount(rr, limiter)
		})

		api.Route("/templates", func(rr chi.Router) {
			rr.Post("/", create(h, d.CreateTemplate))
			rr.Post("/{id}/requisitions", h.handleTemplateRequisition)
			resource[*procurement.Template]{
				h: h, kind: procurement.KindTemplate, file: "templates", store: d.Templates(),
				columns: templateColumns, newFn: func() *procurement.Template { return &procurement.Template{} },
				update: d.UpdateTemplate, remove: d.DeleteTemplate,
			}.mount(rr, limiter)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
		return "actor:" + actor, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
