package procurementhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/procuredesk/internal/platform/httpx"
	"github.com/odyssey-erp/procuredesk/internal/procurement"
	"github.com/odyssey-erp/procuredesk/internal/records"
	"github.com/odyssey-erp/procuredesk/internal/workflow"
)

// ActorHeader carries the acting user recorded in audit entries.
const ActorHeader = "X-Actor-ID"

var problemRules = []httpx.Rule{
	{Err: records.ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: records.ErrInvalidPatch, Status: http.StatusBadRequest, Title: "Invalid Patch"},
	{Err: procurement.ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Err: workflow.ErrNotAssigned, Status: http.StatusForbidden, Title: "Not Assigned"},
	{Err: procurement.ErrInvalidState, Status: http.StatusConflict, Title: "Invalid State"},
	{Err: workflow.ErrNotSubmittable, Status: http.StatusConflict, Title: "Not Submittable"},
	{Err: workflow.ErrNoCurrentStep, Status: http.StatusConflict, Title: "No Current Step"},
	{Err: workflow.ErrStepClosed, Status: http.StatusConflict, Title: "Step Closed"},
}

// Handler serves the procurement desk as a JSON API.
type Handler struct {
	logger    *slog.Logger
	desk      *procurement.Desk
	responder *httpx.Responder
	now       func() time.Time
}

// NewHandler builds a handler over desk.
func NewHandler(logger *slog.Logger, desk *procurement.Desk) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		desk:      desk,
		responder: httpx.NewResponder(logger, problemRules...),
		now:       time.Now,
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.responder.Error(w, r, err)
}

// actorMiddleware moves the actor header into the request context.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			r = r.WithContext(records.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

type submitRequest struct {
	ApprovalPath []workflow.Step `json:"approvalPath"`
}

type approveRequest struct {
	ApproverID string `json:"approverId"`
	Comments   string `json:"comments"`
}

type rejectRequest struct {
	ApproverID string `json:"approverId"`
	Reason     string `json:"reason"`
}

type delegateRequest struct {
	FromID string `json:"fromId"`
	ToID   string `json:"toId"`
	Reason string `json:"reason"`
}

type overdueRequest struct {
	AsOf *time.Time `json:"asOf"`
}

// decodeOptional decodes a body when one was sent.
func decodeOptional(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return httpx.DecodeJSON(r, target)
}

// approverOr falls back to the request actor.
func approverOr(ctx context.Context, id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return records.ActorFromContext(ctx)
}

// flow binds the approval operations of one record kind.
type flow[T records.Record] struct {
	submit   func(ctx context.Context, id string, path []workflow.Step) (T, error)
	approve  func(ctx context.Context, id, approverID, comments string) (T, error)
	reject   func(ctx context.Context, id, approverID, reason string) (T, error)
	delegate func(ctx context.Context, id, fromID, toID, reason string) (T, error)
}

func mountFlow[T records.Record](r chi.Router, h *Handler, f flow[T]) {
	r.Post("/{id}/submit", func(w http.ResponseWriter, req *http.Request) {
		var body submitRequest
		if err := decodeOptional(req, &body); err != nil {
			h.fail(w, req, err)
			return
		}
		rec, err := f.submit(req.Context(), chi.URLParam(req, "id"), body.ApprovalPath)
		if err != nil {
			h.fail(w, req, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rec)
	})
	r.Post("/{id}/approve", func(w http.ResponseWriter, req *http.Request) {
		var body approveRequest
		if err := decodeOptional(req, &body); err != nil {
			h.fail(w, req, err)
			return
		}
		rec, err := f.approve(req.Context(), chi.URLParam(req, "id"), approverOr(req.Context(), body.ApproverID), body.Comments)
		if err != nil {
			h.fail(w, req, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rec)
	})
	r.Post("/{id}/reject", func(w http.ResponseWriter, req *http.Request) {
		var body rejectRequest
		if err := decodeOptional(req, &body); err != nil {
			h.fail(w, req, err)
			return
		}
		rec, err := f.reject(req.Context(), chi.URLParam(req, "id"), approverOr(req.Context(), body.ApproverID), body.Reason)
		if err != nil {
			h.fail(w, req, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rec)
	})
	r.Post("/{id}/delegate", func(w http.ResponseWriter, req *http.Request) {
		var body delegateRequest
		if err := httpx.DecodeJSON(req, &body); err != nil {
			h.fail(w, req, err)
			return
		}
		if strings.TrimSpace(body.ToID) == "" {
			h.fail(w, req, fmt.Errorf("%w: toId is required", httpx.ErrBadRequest))
			return
		}
		rec, err := f.delegate(req.Context(), chi.URLParam(req, "id"), approverOr(req.Context(), body.FromID), body.ToID, body.Reason)
		if err != nil {
			h.fail(w, req, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rec)
	})
}

// create decodes an input and hands it to a desk constructor.
func create[I any, T records.Record](h *Handler, fn func(ctx context.Context, in I) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in I
		if err := httpx.DecodeJSON(r, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		rec, err := fn(r.Context(), in)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, rec)
	}
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	var in procurement.ConvertInput
	if err := decodeOptional(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	req, po, err := h.desk.ConvertRequisition(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"requisition":   req,
		"purchaseOrder": po,
	})
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	po, err := h.desk.IssuePurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	var in procurement.PaymentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.desk.RecordPayment(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleOverdueSweep(w http.ResponseWriter, r *http.Request) {
	var body overdueRequest
	if err := decodeOptional(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	asOf := h.now()
	if body.AsOf != nil {
		asOf = *body.AsOf
	}
	marked, err := h.desk.MarkOverdue(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"marked": marked, "asOf": asOf})
}

func (h *Handler) handleTemplateRequisition(w http.ResponseWriter, r *http.Request) {
	var in procurement.TemplateRequisitionInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.desk.RequisitionFromTemplate(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	key := fmt.Sprintf("dashboard:%p", h.desk)
	summary, err := singleflightBuild(r.Context(), key, func() (any, error) {
		return h.desk.Dashboard(), nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
