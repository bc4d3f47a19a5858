// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
)

// Sentinel errors for request handling.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("malformed request")
)

// Rule maps an error matched with errors.Is to a problem status.
type Rule struct {
	Err    error
	Status int
	Title  string
}

var defaultRules = []Rule{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrDuplicate, Status: http.StatusConflict, Title: "Duplicate"},
	{Err: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Err: ErrBadRequest, Status: http.StatusBadRequest, Title: "Bad Request"},
	{Err: ErrForbidden, Status: http.StatusForbidden, Title: "Forbidden"},
	{Err: ErrUnauthorized, Status: http.StatusUnauthorized, Title: "Unauthorized"},
}

// fieldErrors is implemented by validation errors that carry per-field messages.
type fieldErrors interface {
	FieldErrors() map[string]string
}

// Responder maps errors to RFC7807 responses, consulting its own rules
// before the package defaults.
type Responder struct {
	logger *slog.Logger
	rules  []Rule
}

// NewResponder builds a Responder. Internal errors are logged with logger.
func NewResponder(logger *slog.Logger, rules ...Rule) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{logger: logger, rules: append(append([]Rule(nil), rules...), defaultRules...)}
}

// Error writes the problem for err.
func (r *Responder) Error(w http.ResponseWriter, req *http.Request, err error) {
	for _, rule := range r.rules {
		if errors.Is(err, rule.Err) {
			detail := ProblemDetail{Title: rule.Title, Status: rule.Status, Detail: err.Error()}
			var fe fieldErrors
			if errors.As(err, &fe) {
				detail.Errors = fe.FieldErrors()
			}
			writeProblem(w, detail)
			return
		}
	}
	r.logger.Error("request failed",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Any("error", err),
	)
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

// RespondError maps the package sentinel errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	for _, rule := range defaultRules {
		if errors.Is(err, rule.Err) {
			Problem(w, rule.Status, rule.Title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
