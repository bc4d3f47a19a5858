package procurementhttp

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/procuredesk/internal/export"
	"github.com/odyssey-erp/procuredesk/internal/platform/httpx"
	"github.com/odyssey-erp/procuredesk/internal/platform/slot"
	"github.com/odyssey-erp/procuredesk/internal/procurement"
	"github.com/odyssey-erp/procuredesk/internal/workflow"
)

var testNow = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (http.Handler, *procurement.Desk) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	desk, err := procurement.OpenDesk(context.Background(), procurement.DeskConfig{
		Slot:   slot.NewMemory(),
		Seed:   procurement.DemoSeed(testNow),
		Logger: logger,
		Clock:  func() time.Time { return testNow },
	})
	require.NoError(t, err)
	h := NewHandler(logger, desk)
	h.now = func() time.Time { return testNow }
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, desk
}

func do(t *testing.T, router http.Handler, method, target, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestListAppliesSearchFilterAndSort(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/requisitions?q=dell", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[listResponse[procurement.Requisition]](t, rr)
	require.Equal(t, 1, list.Count)
	require.Equal(t, "req-laptops", list.Items[0].ID)

	rr = do(t, router, http.MethodGet, "/requisitions?status=draft", "", nil)
	list = decodeBody[listResponse[procurement.Requisition]](t, rr)
	require.Equal(t, 1, list.Count)
	require.Equal(t, "req-chairs", list.Items[0].ID)

	rr = do(t, router, http.MethodGet, "/requisitions?sort=totalAmount&dir=desc", "", nil)
	list = decodeBody[listResponse[procurement.Requisition]](t, rr)
	require.Equal(t, []string{"req-laptops", "req-chairs"}, []string{list.Items[0].ID, list.Items[1].ID})

	rr = do(t, router, http.MethodGet, "/suppliers?filter[paymentTerms]=Net%2045", "", nil)
	suppliers := decodeBody[listResponse[procurement.Supplier]](t, rr)
	require.Equal(t, 1, suppliers.Count)
	require.Equal(t, "sup-staples", suppliers.Items[0].ID)
}

func TestListDateRange(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/requisitions?from=2026-03-01", "", nil)
	list := decodeBody[listResponse[procurement.Requisition]](t, rr)
	require.Equal(t, 1, list.Count)
	require.Equal(t, "req-chairs", list.Items[0].ID)

	rr = do(t, router, http.MethodGet, "/requisitions?to=2026-02-27", "", nil)
	list = decodeBody[listResponse[procurement.Requisition]](t, rr)
	require.Equal(t, 1, list.Count)
	require.Equal(t, "req-laptops", list.Items[0].ID)
}

func TestListRejectsBadQuery(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, target := range []string{
		"/requisitions?sort=title&dir=sideways",
		"/requisitions?from=yesterday",
		"/requisitions?from=2026-03-02&to=2026-03-01",
	} {
		rr := do(t, router, http.MethodGet, target, "", nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, target)
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestCreateRequisitionAndValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/requisitions", "U8", map[string]any{
		"title":      "Standing desks",
		"department": "Facilities",
		"requester":  "U8",
		"items": []map[string]any{
			{"description": "Standing desk", "quantity": "2", "unitPrice": "640.50"},
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeBody[procurement.Requisition](t, rr)
	require.Equal(t, "1281", created.TotalAmount.String())
	require.Equal(t, procurement.RequisitionDraft, created.Status)
	require.Equal(t, "U8", created.CreatedBy)

	rr = do(t, router, http.MethodPost, "/requisitions", "U8", map[string]any{"title": "No items"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	problem := decodeBody[httpx.ProblemDetail](t, rr)
	require.Contains(t, problem.Errors, "department")
	require.Contains(t, problem.Errors, "items")

	rr = do(t, router, http.MethodPost, "/requisitions", "U8", `{"title":"x","bogus":true}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestApprovalWalkOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/requisitions/req-laptops/approve", "U1", map[string]any{"comments": "ok"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	req := decodeBody[procurement.Requisition](t, rr)
	require.Equal(t, workflow.StepApproved, req.Steps[0].Status)
	require.Equal(t, "U1", req.Steps[0].ActedBy)
	require.Equal(t, 1, *req.CurrentStepIndex)

	rr = do(t, router, http.MethodPost, "/requisitions/req-laptops/approve", "U2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	req = decodeBody[procurement.Requisition](t, rr)
	require.Equal(t, procurement.RequisitionApproved, req.Status)
	require.Nil(t, req.CurrentStepIndex)

	rr = do(t, router, http.MethodPost, "/requisitions/req-laptops/approve", "U2", nil)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodPost, "/requisitions/req-laptops/convert", "U9", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	converted := decodeBody[struct {
		Requisition   procurement.Requisition   `json:"requisition"`
		PurchaseOrder procurement.PurchaseOrder `json:"purchaseOrder"`
	}](t, rr)
	require.Equal(t, procurement.RequisitionConvertedToPO, converted.Requisition.Status)
	require.Equal(t, converted.PurchaseOrder.ID, converted.Requisition.PurchaseOrderID)
	require.Equal(t, "Dell Technologies", converted.PurchaseOrder.SupplierName)
}

func TestRejectAndSubmitDraft(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/requisitions/req-laptops/reject", "U1", map[string]any{"reason": "over budget"})
	require.Equal(t, http.StatusOK, rr.Code)
	req := decodeBody[procurement.Requisition](t, rr)
	require.Equal(t, procurement.RequisitionRejected, req.Status)
	require.Equal(t, "over budget", req.Steps[0].Comments)

	rr = do(t, router, http.MethodPost, "/requisitions/req-chairs/submit", "U8", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	req = decodeBody[procurement.Requisition](t, rr)
	require.Equal(t, procurement.RequisitionPendingApproval, req.Status)
	require.NotEmpty(t, req.Steps)

	rr = do(t, router, http.MethodPost, "/requisitions/req-chairs/delegate", "U8", map[string]any{"reason": "leave"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotFoundIsProblem(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/invoices/missing", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = do(t, router, http.MethodDelete, "/invoices/missing", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPatchAndDelete(t *testing.T) {
	router, desk := newTestRouter(t)

	rr := do(t, router, http.MethodPatch, "/suppliers/sup-acme", "U3", map[string]any{"status": "active", "rating": 3})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	supplier := decodeBody[procurement.Supplier](t, rr)
	require.Equal(t, procurement.SupplierActive, supplier.Status)
	require.Equal(t, 2, supplier.Version)

	rr = do(t, router, http.MethodPatch, "/suppliers/sup-acme", "U3", map[string]any{"status": "dormant"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPatch, "/suppliers/sup-acme", "U3", map[string]any{"id": "other"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodDelete, "/suppliers/sup-acme", "U3", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	_, ok := desk.Suppliers().Get("sup-acme")
	require.False(t, ok)
}

func TestPaymentsAndOverdueSweep(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/invoices/inv-supplies/payments", "U5", map[string]any{"amount": "250", "reference": "WIRE-1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	inv := decodeBody[procurement.Invoice](t, rr)
	require.Equal(t, procurement.InvoicePartiallyPaid, inv.Status)
	require.Equal(t, "U5", inv.Payments[0].RecordedBy)

	rr = do(t, router, http.MethodPost, "/invoices/inv-supplies/payments", "U5", map[string]any{"amount": "5000"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, "/invoices/overdue-sweep", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sweep := decodeBody[struct {
		Marked int `json:"marked"`
	}](t, rr)
	require.Equal(t, 1, sweep.Marked)

	rr = do(t, router, http.MethodGet, "/dashboard", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	dashboard := decodeBody[procurement.Dashboard](t, rr)
	require.Equal(t, 1, dashboard.OverdueInvoices)
	require.Equal(t, "1000", dashboard.OverdueAmount.String())
}

func TestIssueRequiresApproval(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/purchase-orders/po-supplies/issue", "U4", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, router, http.MethodPost, "/purchase-orders/po-supplies/issue", "U4", nil)
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestTemplateRequisition(t *testing.T) {
	router, desk := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/templates/tpl-onboarding/requisitions", "U7", map[string]any{
		"department": "Engineering",
		"requester":  "U7",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	req := decodeBody[procurement.Requisition](t, rr)
	require.Equal(t, "tpl-onboarding", req.TemplateID)
	tpl, ok := desk.Templates().Get("tpl-onboarding")
	require.True(t, ok)
	require.Equal(t, 8, tpl.UsageCount)
}

func TestMetricsAndStatuses(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/suppliers/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var metrics struct {
		Total    int            `json:"total"`
		ByStatus map[string]int `json:"byStatus"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &metrics))
	require.Equal(t, 3, metrics.Total)
	require.Equal(t, 2, metrics.ByStatus["active"])

	rr = do(t, router, http.MethodGet, "/purchase-orders/statuses", "", nil)
	statuses := decodeBody[[]string](t, rr)
	require.Contains(t, statuses, "rejected")
}

func TestExportCSVAndImport(t *testing.T) {
	router, desk := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/suppliers/export.csv?sort=number", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Disposition"), "suppliers-20260302.csv")
	lines, err := csv.NewReader(bytes.NewReader(rr.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 4)
	require.Equal(t, export.Labels(supplierColumns), lines[0])
	require.Equal(t, "SUP-0001", lines[1][0])

	body := "Number,Name,Category,Contact,Email,Phone,Payment Terms,Rating,Spend YTD,Status\n" +
		",Globex Supplies,Office supplies,Hank Scorpio,hank@globex.example,,Net 15,3,0,active\n"
	rr = do(t, router, http.MethodPost, "/suppliers/import", "U3", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	imported := decodeBody[listResponse[procurement.Supplier]](t, rr)
	require.Equal(t, 1, imported.Count)
	require.Equal(t, "Globex Supplies", imported.Items[0].Name)
	require.Equal(t, 3, imported.Items[0].Rating)
	require.Equal(t, 4, desk.Suppliers().Len())

	bad := "Number,Name,Category,Contact,Email,Phone,Payment Terms,Rating,Spend YTD,Status\n" +
		",Initech,,,,,,1,0,dormant\n"
	rr = do(t, router, http.MethodPost, "/suppliers/import", "U3", bad)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, 4, desk.Suppliers().Len())
}

func TestExportXLSX(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/invoices/export.xlsx", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, export.ContentTypeXLSX, rr.Header().Get("Content-Type"))

	book, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = book.Close() }()
	rows, err := book.GetRows("invoices")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Supplier Invoice", rows[0][1])
	require.Equal(t, "SBA-88412", rows[1][1])
}
