// Package procurement implements the procurement desk: requisitions, purchase
// orders, invoices, suppliers and templates held in record stores, with
// approval paths walked by the workflow package.
package procurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/procuredesk/internal/records"
	"github.com/odyssey-erp/procuredesk/internal/workflow"
)

// DeskConfig wires the desk's stores.
type DeskConfig struct {
	Slot            records.Slot
	Seed            *Seed
	Logger          *slog.Logger
	Observer        records.Observer
	Clock           func() time.Time
	EnforceAssignee bool
}

// Desk orchestrates procurement flows across record kinds.
type Desk struct {
	requisitions   *records.Store[*Requisition]
	purchaseOrders *records.Store[*PurchaseOrder]
	invoices       *records.Store[*Invoice]
	suppliers      *records.Store[*Supplier]
	templates      *records.Store[*Template]

	requisitionFlow   *workflow.Walker[*Requisition]
	purchaseOrderFlow *workflow.Walker[*PurchaseOrder]
	invoiceFlow       *workflow.Walker[*Invoice]

	validate *validator.Validate
	clock    func() time.Time
	logger   *slog.Logger
}

// OpenDesk opens every store, reading persisted collections from the slot.
func OpenDesk(ctx context.Context, cfg DeskConfig) (*Desk, error) {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	seed := cfg.Seed
	if seed == nil {
		seed = &Seed{}
	}
	d := &Desk{validate: newValidator(), clock: cfg.Clock, logger: cfg.Logger}

	var err error
	if d.suppliers, err = records.Open(ctx, storeConfig(cfg, records.Config[*Supplier]{
		Kind:          KindSupplier,
		New:           func() *Supplier { return &Supplier{} },
		Numberer:      flatNumber("SUP", 4),
		InitialStatus: string(SupplierActive),
		Seed:          seed.Suppliers,
		SearchFields:  []string{"number", "name", "category", "contactName", "email"},
	})); err != nil {
		return nil, err
	}
	if d.templates, err = records.Open(ctx, storeConfig(cfg, records.Config[*Template]{
		Kind:          KindTemplate,
		New:           func() *Template { return &Template{} },
		Numberer:      flatNumber("TPL", 3),
		InitialStatus: string(TemplateDraft),
		Seed:          seed.Templates,
		SearchFields:  []string{"number", "name", "description", "category"},
	})); err != nil {
		return nil, err
	}
	if d.requisitions, err = records.Open(ctx, storeConfig(cfg, records.Config[*Requisition]{
		Kind:          KindRequisition,
		New:           func() *Requisition { return &Requisition{} },
		Numberer:      yearlyNumber("REQ", 6),
		InitialStatus: string(RequisitionDraft),
		Seed:          seed.Requisitions,
		SearchFields:  []string{"number", "title", "description", "department", "requester"},
	})); err != nil {
		return nil, err
	}
	if d.purchaseOrders, err = records.Open(ctx, storeConfig(cfg, records.Config[*PurchaseOrder]{
		Kind:          KindPurchaseOrder,
		New:           func() *PurchaseOrder { return &PurchaseOrder{} },
		Numberer:      yearlyNumber("PO", 6),
		InitialStatus: string(PODraft),
		Seed:          seed.PurchaseOrders,
		SearchFields:  []string{"number", "title", "supplierName"},
	})); err != nil {
		return nil, err
	}
	if d.invoices, err = records.Open(ctx, storeConfig(cfg, records.Config[*Invoice]{
		Kind:          KindInvoice,
		New:           func() *Invoice { return &Invoice{} },
		Numberer:      yearlyNumber("INV", 6),
		InitialStatus: string(InvoiceReceived),
		Seed:          seed.Invoices,
		SearchFields:  []string{"number", "supplierName", "supplierInvoiceNo"},
		DateField:     "invoiceDate",
	})); err != nil {
		return nil, err
	}

	opts := workflow.Options{EnforceAssignee: cfg.EnforceAssignee, Clock: cfg.Clock}
	d.requisitionFlow = workflow.NewWalker(d.requisitions, requisitionStatuses, opts)
	d.purchaseOrderFlow = workflow.NewWalker(d.purchaseOrders, purchaseOrderStatuses, opts)
	d.invoiceFlow = workflow.NewWalker(d.invoices, invoiceStatuses, opts)
	return d, nil
}

func storeConfig[T records.Record](cfg DeskConfig, c records.Config[T]) records.Config[T] {
	c.Slot = cfg.Slot
	c.Clock = cfg.Clock
	c.Logger = cfg.Logger.With(slog.String("kind", c.Kind))
	c.Observer = cfg.Observer
	return c
}

// Requisitions exposes the requisition store for reads and queries.
func (d *Desk) Requisitions() *records.Store[*Requisition] { return d.requisitions }

// PurchaseOrders exposes the purchase order store.
func (d *Desk) PurchaseOrders() *records.Store[*PurchaseOrder] { return d.purchaseOrders }

// Invoices exposes the invoice store.
func (d *Desk) Invoices() *records.Store[*Invoice] { return d.invoices }

// Suppliers exposes the supplier store.
func (d *Desk) Suppliers() *records.Store[*Supplier] { return d.suppliers }

// Templates exposes the template store.
func (d *Desk) Templates() *records.Store[*Template] { return d.templates }

// Flush writes every collection to the slot.
func (d *Desk) Flush(ctx context.Context) error {
	return errors.Join(
		d.requisitions.Flush(ctx),
		d.purchaseOrders.Flush(ctx),
		d.invoices.Flush(ctx),
		d.suppliers.Flush(ctx),
		d.templates.Flush(ctx),
	)
}

// CreateRequisition validates and stores a draft requisition.
func (d *Desk) CreateRequisition(ctx context.Context, in RequisitionInput) (*Requisition, error) {
	if err := check(d.validate, in); err != nil {
		return nil, err
	}
	items, err := buildItems("items", in.Items)
	if err != nil {
		return nil, err
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	return d.requisitions.Add(ctx, &Requisition{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Department:  strings.TrimSpace(in.Department),
		Requester:   strings.TrimSpace(in.Requester),
		Priority:    priority,
		NeededBy:    in.NeededBy,
		Currency:    currencyOrDefault(in.Currency),
		Items:       items,
		TotalAmount: sumItems(items),
		SupplierID:  in.SupplierID,
		Steps:       []workflow.Step{},
		Status:      RequisitionDraft,
	})
}

// CreatePurchaseOrder validates and stores a draft purchase order.
func (d *Desk) CreatePurchaseOrder(ctx context.Context, in PurchaseOrderInput) (*PurchaseOrder, error) {
	if err := check(d.validate, in); err != nil {
		return nil, err
	}
	items, err := buildItems("items", in.Items)
	if err != nil {
		return nil, err
	}
	name, err := d.supplierName(in.SupplierID, in.SupplierName)
	if err != nil {
		return nil, err
	}
	return d.purchaseOrders.Add(ctx, &PurchaseOrder{
		Title:            strings.TrimSpace(in.Title),
		SupplierID:       in.SupplierID,
		SupplierName:     name,
		RequisitionIDs:   nonNil(in.RequisitionIDs),
		Currency:         currencyOrDefault(in.Currency),
		Items:            items,
		TotalAmount:      sumItems(items),
		ExpectedDelivery: in.ExpectedDelivery,
		Steps:            []workflow.Step{},
		Status:           PODraft,
	})
}

// CreateInvoice registers a received invoice and matches it against the
// referenced purchase orders.
func (d *Desk) CreateInvoice(ctx context.Context, in InvoiceInput) (*Invoice, error) {
	if err := check(d.validate, in); err != nil {
		return nil, err
	}
	lines, err := buildItems("lines", in.Lines)
	if err != nil {
		return nil, err
	}
	name, err := d.supplierName(in.SupplierID, in.SupplierName)
	if err != nil {
		return nil, err
	}
	invoiceDate := in.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = d.clock()
	}
	dueDate := in.DueDate
	if dueDate.IsZero() {
		dueDate = invoiceDate.AddDate(0, 0, d.termsDays(in.SupplierID))
	}
	if dueDate.Before(invoiceDate) {
		return nil, fieldError("dueDate", "must not precede invoiceDate")
	}
	inv := &Invoice{
		SupplierID:        in.SupplierID,
		SupplierName:      name,
		SupplierInvoiceNo: strings.TrimSpace(in.SupplierInvoiceNo),
		PurchaseOrderIDs:  nonNil(in.PurchaseOrderIDs),
		Currency:          currencyOrDefault(in.Currency),
		Lines:             lines,
		TotalAmount:       sumItems(lines),
		InvoiceDate:       invoiceDate,
		DueDate:           dueDate,
		Steps:             []workflow.Step{},
		Payments:          []Payment{},
		Status:            InvoiceReceived,
	}
	inv.MatchExceptions = d.matchInvoice(inv)
	return d.invoices.Add(ctx, inv)
}

// CreateSupplier stores a supplier master record.
func (d *Desk) CreateSupplier(ctx context.Context, in SupplierInput) (*Supplier, error) {
	if err := check(d.validate, in); err != nil {
		return nil, err
	}
	return d.suppliers.Add(ctx, &Supplier{
		Name:         strings.TrimSpace(in.Name),
		Category:     strings.TrimSpace(in.Category),
		ContactName:  strings.TrimSpace(in.ContactName),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        strings.TrimSpace(in.Phone),
		PaymentTerms: strings.TrimSpace(in.PaymentTerms),
		Rating:       in.Rating,
		Status:       SupplierActive,
	})
}

// CreateTemplate stores a draft template.
func (d *Desk) CreateTemplate(ctx context.Context, in TemplateInput) (*Template, error) {
	if err := check(d.validate, in); err != nil {
		return nil, err
	}
	items, err := buildItems("items", in.Items)
	if err != nil {
		return nil, err
	}
	target := in.TargetKind
	if target == "" {
		target = KindRequisition
	}
	return d.templates.Add(ctx, &Template{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		TargetKind:  target,
		Items:       items,
		Status:      TemplateDraft,
	})
}

// UpdateRequisition patches a requisition.
func (d *Desk) UpdateRequisition(ctx context.Context, id string, patch records.Patch) (*Requisition, error) {
	return update(ctx, d.requisitions, id, patch, "items", true)
}

// UpdatePurchaseOrder patches a purchase order.
func (d *Desk) UpdatePurchaseOrder(ctx context.Context, id string, patch records.Patch) (*PurchaseOrder, error) {
	return update(ctx, d.purchaseOrders, id, patch, "items", true)
}

// UpdateInvoice patches an invoice.
func (d *Desk) UpdateInvoice(ctx context.Context, id string, patch records.Patch) (*Invoice, error) {
	return update(ctx, d.invoices, id, patch, "lines", true)
}

// UpdateSupplier patches a supplier.
func (d *Desk) UpdateSupplier(ctx context.Context, id string, patch records.Patch) (*Supplier, error) {
	return update(ctx, d.suppliers, id, patch, "", false)
}

// UpdateTemplate patches a template.
func (d *Desk) UpdateTemplate(ctx context.Context, id string, patch records.Patch) (*Template, error) {
	return update(ctx, d.templates, id, patch, "items", false)
}

// DeleteRequisition removes a requisition.
func (d *Desk) DeleteRequisition(ctx context.Context, id string) error {
	return d.requisitions.Remove(ctx, id)
}

// DeletePurchaseOrder removes a purchase order.
func (d *Desk) DeletePurchaseOrder(ctx context.Context, id string) error {
	return d.purchaseOrders.Remove(ctx, id)
}

// DeleteInvoice removes an invoice.
func (d *Desk) DeleteInvoice(ctx context.Context, id string) error {
	return d.invoices.Remove(ctx, id)
}

// DeleteSupplier removes a supplier.
func (d *Desk) DeleteSupplier(ctx context.Context, id string) error {
	return d.suppliers.Remove(ctx, id)
}

// DeleteTemplate removes a template.
func (d *Desk) DeleteTemplate(ctx context.Context, id string) error {
	return d.templates.Remove(ctx, id)
}

// update validates status values and reprices item patches before handing
// the patch to the store.
func update[T records.Record](ctx context.Context, store *records.Store[T], id string, patch records.Patch, itemsKey string, hasTotal bool) (T, error) {
	var zero T
	if len(patch) == 0 {
		return zero, fieldError("patch", "must not be empty")
	}
	if raw, ok := patch["status"]; ok {
		status, isString := raw.(string)
		if !isString || !slices.Contains(statusValues[store.Kind()], status) {
			return zero, fieldError("status", "must be one of "+strings.Join(statusValues[store.Kind()], " "))
		}
	}
	if itemsKey != "" {
		if raw, ok := patch[itemsKey]; ok {
			items, err := decodeItems(itemsKey, raw)
			if err != nil {
				return zero, err
			}
			patch[itemsKey] = items
			if hasTotal {
				patch["totalAmount"] = sumItems(items)
			}
		}
	}
	return store.Update(ctx, id, patch)
}

func decodeItems(field string, raw any) ([]LineItem, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fieldError(field, "is invalid")
	}
	var inputs []LineItemInput
	if err := json.Unmarshal(encoded, &inputs); err != nil {
		return nil, fieldError(field, "is invalid")
	}
	if len(inputs) == 0 {
		return nil, fieldError(field, "must have at least 1 entry")
	}
	for i, in := range inputs {
		if strings.TrimSpace(in.Description) == "" {
			return nil, fieldError(fmt.Sprintf("%s[%d].description", field, i), "is required")
		}
	}
	return buildItems(field, inputs)
}

func (d *Desk) supplierName(id, fallback string) (string, error) {
	if id == "" {
		return strings.TrimSpace(fallback), nil
	}
	supplier, ok := d.suppliers.Get(id)
	if !ok {
		if name := strings.TrimSpace(fallback); name != "" {
			return name, nil
		}
		return "", fieldError("supplierId", "references an unknown supplier")
	}
	if supplier.Status == SupplierBlocked {
		return "", fmt.Errorf("%w: supplier %s is blocked", ErrInvalidState, supplier.Number)
	}
	return supplier.Name, nil
}

// termsDays reads the day count from payment terms such as "Net 45".
func (d *Desk) termsDays(supplierID string) int {
	const fallback = 30
	supplier, ok := d.suppliers.Get(supplierID)
	if !ok {
		return fallback
	}
	fields := strings.Fields(supplier.PaymentTerms)
	if len(fields) == 0 {
		return fallback
	}
	var days int
	if _, err := fmt.Sscanf(fields[len(fields)-1], "%d", &days); err != nil || days <= 0 {
		return fallback
	}
	return days
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
