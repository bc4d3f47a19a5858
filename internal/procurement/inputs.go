package procurement

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ValidationError carries per-field messages and matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+" "+e.Fields[key])
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FieldErrors exposes the per-field messages.
func (e *ValidationError) FieldErrors() map[string]string {
	return e.Fields
}

func fieldError(field, message string) error {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// LineItemInput describes one requested line.
type LineItemInput struct {
	Description string          `json:"description" validate:"required,max=200"`
	Category    string          `json:"category" validate:"max=80"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// RequisitionInput describes requisition creation.
type RequisitionInput struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Department  string          `json:"department" validate:"required,max=120"`
	Requester   string          `json:"requester" validate:"required,max=120"`
	Priority    Priority        `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	NeededBy    *time.Time      `json:"neededBy"`
	Currency    string          `json:"currency" validate:"omitempty,len=3"`
	SupplierID  string          `json:"supplierId"`
	Items       []LineItemInput `json:"items" validate:"required,min=1,dive"`
}

// PurchaseOrderInput describes purchase order creation.
type PurchaseOrderInput struct {
	Title            string          `json:"title" validate:"required,max=200"`
	SupplierID       string          `json:"supplierId" validate:"required"`
	SupplierName     string          `json:"supplierName" validate:"max=200"`
	RequisitionIDs   []string        `json:"requisitionIds"`
	Currency         string          `json:"currency" validate:"omitempty,len=3"`
	ExpectedDelivery *time.Time      `json:"expectedDelivery"`
	Items            []LineItemInput `json:"items" validate:"required,min=1,dive"`
}

// InvoiceInput describes a received supplier invoice.
type InvoiceInput struct {
	SupplierID        string          `json:"supplierId" validate:"required"`
	SupplierName      string          `json:"supplierName" validate:"max=200"`
	SupplierInvoiceNo string          `json:"supplierInvoiceNo" validate:"required,max=80"`
	PurchaseOrderIDs  []string        `json:"purchaseOrderIds"`
	Currency          string          `json:"currency" validate:"omitempty,len=3"`
	InvoiceDate       time.Time       `json:"invoiceDate"`
	DueDate           time.Time       `json:"dueDate"`
	Lines             []LineItemInput `json:"lines" validate:"required,min=1,dive"`
}

// SupplierInput describes a supplier master record.
type SupplierInput struct {
	Name         string `json:"name" validate:"required,max=200"`
	Category     string `json:"category" validate:"max=80"`
	ContactName  string `json:"contactName" validate:"max=120"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone" validate:"max=40"`
	PaymentTerms string `json:"paymentTerms" validate:"max=40"`
	Rating       int    `json:"rating" validate:"min=0,max=5"`
}

// TemplateInput describes a reusable line set.
type TemplateInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Category    string          `json:"category" validate:"max=80"`
	TargetKind  string          `json:"targetKind" validate:"omitempty,oneof=requisition purchase_order"`
	Items       []LineItemInput `json:"items" validate:"required,min=1,dive"`
}

// TemplateRequisitionInput fills the fields a template cannot carry.
type TemplateRequisitionInput struct {
	Title      string     `json:"title" validate:"max=200"`
	Department string     `json:"department" validate:"required,max=120"`
	Requester  string     `json:"requester" validate:"required,max=120"`
	Priority   Priority   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	NeededBy   *time.Time `json:"neededBy"`
}

// ConvertInput overrides purchase order fields when converting a requisition.
type ConvertInput struct {
	SupplierID       string     `json:"supplierId"`
	ExpectedDelivery *time.Time `json:"expectedDelivery"`
}

// PaymentInput records money paid against an invoice.
type PaymentInput struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"max=120"`
	PaidAt    *time.Time      `json:"paidAt"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check runs struct validation and folds failures into a ValidationError.
func check(v *validator.Validate, input any) error {
	err := v.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fieldErr := range fieldErrs {
		out.Fields[trimNamespace(fieldErr.Namespace())] = describeTag(fieldErr)
	}
	return out
}

func trimNamespace(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "email":
		return "must be a valid email"
	case "len":
		return "must have length " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}

// buildItems prices input lines; quantities must be positive and prices non-negative.
func buildItems(field string, inputs []LineItemInput) ([]LineItem, error) {
	items := make([]LineItem, 0, len(inputs))
	for i, in := range inputs {
		if !in.Quantity.IsPositive() {
			return nil, fieldError(fmt.Sprintf("%s[%d].quantity", field, i), "must be positive")
		}
		if in.UnitPrice.IsNegative() {
			return nil, fieldError(fmt.Sprintf("%s[%d].unitPrice", field, i), "must not be negative")
		}
		items = append(items, LineItem{
			Description: strings.TrimSpace(in.Description),
			Category:    strings.TrimSpace(in.Category),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
		})
	}
	return priceItems(items), nil
}

func currencyOrDefault(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

// DefaultCurrency applies when an input omits the currency.
const DefaultCurrency = "USD"
