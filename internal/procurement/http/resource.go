package procurementhttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/procuredesk/internal/export"
	"github.com/odyssey-erp/procuredesk/internal/platform/httpx"
	"github.com/odyssey-erp/procuredesk/internal/procurement"
	"github.com/odyssey-erp/procuredesk/internal/records"
)

const maxImportBytes = 8 << 20

// resource serves the collection endpoints shared by every record kind.
type resource[T records.Record] struct {
	h       *Handler
	kind    string
	file    string
	store   *records.Store[T]
	columns []export.Column
	newFn   func() T
	update  func(ctx context.Context, id string, patch records.Patch) (T, error)
	remove  func(ctx context.Context, id string) error
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func (res resource[T]) mount(r chi.Router, limiter func(http.Handler) http.Handler) {
	r.Get("/", res.list)
	r.Get("/metrics", res.metrics)
	r.Get("/statuses", res.statuses)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/export.csv", res.exportCSV)
		gr.Get("/export.xlsx", res.exportXLSX)
		gr.Post("/import", res.importCSV)
	})
	r.Get("/{id}", res.get)
	r.Patch("/{id}", res.patch)
	r.Delete("/{id}", res.delete)
}

func (res resource[T]) list(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		res.h.fail(w, r, err)
		return
	}
	items := res.store.Query(q)
	httpx.JSON(w, http.StatusOK, listResponse[T]{Items: items, Count: len(items)})
}

func (res resource[T]) metrics(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, res.store.Metrics())
}

func (res resource[T]) statuses(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, procurement.Statuses(res.kind))
}

func (res resource[T]) get(w http.ResponseWriter, r *http.Request) {
	rec, ok := res.store.Get(chi.URLParam(r, "id"))
	if !ok {
		res.h.fail(w, r, records.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (res resource[T]) patch(w http.ResponseWriter, r *http.Request) {
	var patch records.Patch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		res.h.fail(w, r, err)
		return
	}
	rec, err := res.update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		res.h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (res resource[T]) delete(w http.ResponseWriter, r *http.Request) {
	if err := res.remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		res.h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rows renders the filtered view for export.
func (res resource[T]) rows(r *http.Request) ([]export.Row, error) {
	q, err := parseQuery(r)
	if err != nil {
		return nil, err
	}
	return export.Rows(res.store.Query(q))
}

func (res resource[T]) exportCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := res.rows(r)
	if err != nil {
		res.h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, res.columns, rows); err != nil {
		res.h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.filename("csv")))
	_, _ = w.Write(buf.Bytes())
}

func (res resource[T]) exportXLSX(w http.ResponseWriter, r *http.Request) {
	rows, err := res.rows(r)
	if err != nil {
		res.h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, res.file, res.columns, rows); err != nil {
		res.h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.filename("xlsx")))
	_, _ = w.Write(buf.Bytes())
}

func (res resource[T]) filename(ext string) string {
	return fmt.Sprintf("%s-%s.%s", res.file, res.h.now().UTC().Format("20060102"), ext)
}

// importCSV adds one record per line of a CSV laid out like the export.
func (res resource[T]) importCSV(w http.ResponseWriter, r *http.Request) {
	cells, err := export.ReadCSV(io.LimitReader(r.Body, maxImportBytes), res.columns)
	if err != nil {
		res.h.fail(w, r, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	items, err := export.DecodeRows(cells, res.newFn)
	if err != nil {
		res.h.fail(w, r, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	allowed := procurement.Statuses(res.kind)
	for i, item := range items {
		if status := item.StatusValue(); status != "" && !slices.Contains(allowed, status) {
			res.h.fail(w, r, fmt.Errorf("%w: row %d: unknown status %q", httpx.ErrValidation, i+1, status))
			return
		}
	}
	created, err := res.store.Import(r.Context(), items)
	if err != nil {
		res.h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, listResponse[T]{Items: created, Count: len(created)})
}

// parseQuery reads q, status, filter[field], sort, dir, from, to and
// dateField from the query string.
func parseQuery(r *http.Request) (records.Query, error) {
	values := r.URL.Query()
	q := records.Query{
		Search:  values.Get("q"),
		Filters: map[string]string{},
	}
	if status := values.Get("status"); status != "" {
		q.Filters["status"] = status
	}
	for key, vals := range values {
		if len(vals) == 0 || !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		field := strings.TrimSuffix(strings.TrimPrefix(key, "filter["), "]")
		if field == "" {
			return records.Query{}, fmt.Errorf("%w: empty filter field", httpx.ErrBadRequest)
		}
		q.Filters[field] = vals[0]
	}
	if field := values.Get("sort"); field != "" {
		dir := records.Direction(strings.ToLower(values.Get("dir")))
		switch dir {
		case "":
			dir = records.Asc
		case records.Asc, records.Desc:
		default:
			return records.Query{}, fmt.Errorf("%w: dir must be asc or desc", httpx.ErrBadRequest)
		}
		q.Sort = &records.Sort{Field: field, Direction: dir}
	}
	from, err := parseBound(values.Get("from"), false)
	if err != nil {
		return records.Query{}, err
	}
	to, err := parseBound(values.Get("to"), true)
	if err != nil {
		return records.Query{}, err
	}
	if !from.IsZero() || !to.IsZero() {
		if !from.IsZero() && !to.IsZero() && to.Before(from) {
			return records.Query{}, fmt.Errorf("%w: to precedes from", httpx.ErrBadRequest)
		}
		q.DateRange = &records.DateRange{Field: values.Get("dateField"), From: from, To: to}
	}
	return q, nil
}

// parseBound accepts RFC3339 or a plain date. A plain upper bound covers the
// whole day.
func parseBound(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return at, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", httpx.ErrBadRequest, raw)
	}
	if upper {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}
