package records

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Audit actions written by the store itself.
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionImported = "imported"
)

// SystemActor is used when the context carries no acting user.
const SystemActor = "system"

// Meta is the header shared by every record kind. Kinds embed it so its fields
// are inlined in the JSON representation.
type Meta struct {
	ID         string       `json:"id"`
	Number     string       `json:"number"`
	Version    int          `json:"version"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
	CreatedBy  string       `json:"createdBy"`
	AuditTrail []AuditEntry `json:"auditTrail"`
}

// Header exposes the embedded header.
func (m *Meta) Header() *Meta {
	return m
}

// AuditEntry is one immutable state change on a record.
type AuditEntry struct {
	ID          string        `json:"id"`
	Action      string        `json:"action"`
	Actor       string        `json:"actor"`
	At          time.Time     `json:"at"`
	Description string        `json:"description"`
	Changes     []FieldChange `json:"changes"`
}

// FieldChange captures the before/after JSON of one top-level field.
type FieldChange struct {
	Field string          `json:"field"`
	Old   json.RawMessage `json:"old"`
	New   json.RawMessage `json:"new"`
}

// Record is implemented by pointer types embedding Meta.
//
// Record fields are addressed by their JSON names and must not be tagged
// omitempty: a patch may only name fields present in the encoded record.
type Record interface {
	Header() *Meta
	StatusValue() string
	AmountValue() decimal.Decimal
}

type actorContextKey struct{}

// ContextWithActor stores the acting user in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the acting user, or SystemActor when absent.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return SystemActor
	}
	actor, _ := ctx.Value(actorContextKey{}).(string)
	if actor == "" {
		return SystemActor
	}
	return actor
}
