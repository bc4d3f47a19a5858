package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testOrder struct {
	Meta
	Title      string          `json:"title"`
	Department string          `json:"department"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Tags       []string        `json:"tags"`
}

func (o *testOrder) StatusValue() string          { return o.Status }
func (o *testOrder) AmountValue() decimal.Decimal { return o.Amount }

type memorySlot struct {
	mu     sync.Mutex
	data   map[string][]byte
	saves  int
	failOn error
}

func newMemorySlot() *memorySlot {
	return &memorySlot{data: make(map[string][]byte)}
}

func (m *memorySlot) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memorySlot) Save(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return m.failOn
	}
	m.saves++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

type recordingObserver struct {
	actions  []string
	failures int
}

func (o *recordingObserver) Mutated(kind, action string) { o.actions = append(o.actions, action) }

func (o *recordingObserver) PersistFailed(kind string, err error) { o.failures++ }

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.now = c.now.Add(time.Minute)
	return c.now
}

func newTestStore(t *testing.T, mutate ...func(*Config[*testOrder])) *Store[*testOrder] {
	t.Helper()
	clock := &fixedClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	cfg := Config[*testOrder]{
		Kind:          "order",
		New:           func() *testOrder { return &testOrder{} },
		InitialStatus: "draft",
		SearchFields:  []string{"title", "department"},
		Clock:         clock.Now,
		Numberer: func(seq int, at time.Time) string {
			return fmt.Sprintf("ORD-%d-%06d", at.Year(), seq)
		},
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	return store
}

func TestAddGeneratesHeader(t *testing.T) {
	store := newTestStore(t)
	ctx := ContextWithActor(context.Background(), "U1")

	created, err := store.Add(ctx, &testOrder{
		Meta:   Meta{ID: "client-supplied", Version: 42},
		Title:  "Dell laptops",
		Amount: decimal.NewFromInt(1200),
	})
	require.NoError(t, err)
	require.NotEqual(t, "client-supplied", created.ID)
	require.Equal(t, "ORD-2024-000001", created.Number)
	require.Equal(t, 1, created.Version)
	require.Equal(t, "draft", created.Status)
	require.Equal(t, "U1", created.CreatedBy)
	require.Len(t, created.AuditTrail, 1)
	require.Equal(t, ActionCreated, created.AuditTrail[0].Action)
	require.Equal(t, "U1", created.AuditTrail[0].Actor)

	second, err := store.Add(ctx, &testOrder{Title: "Monitors"})
	require.NoError(t, err)
	require.NotEqual(t, created.ID, second.ID)
	require.NotEqual(t, created.Number, second.Number)
	require.Equal(t, 2, store.Len())
}

func TestUpdateBumpsVersionAndAppendsAudit(t *testing.T) {
	store := newTestStore(t)
	ctx := ContextWithActor(context.Background(), "U1")
	rec, err := store.Add(ctx, &testOrder{Title: "Chairs", Department: "Ops"})
	require.NoError(t, err)

	const n = 5
	for i := 0; i < n; i++ {
		_, err := store.Update(ctx, rec.ID, Patch{"title": fmt.Sprintf("Chairs v%d", i)})
		require.NoError(t, err)
	}

	got, ok := store.Get(rec.ID)
	require.True(t, ok)
	require.Equal(t, 1+n, got.Version)
	require.Len(t, got.AuditTrail, 1+n)
	require.Equal(t, "Chairs v4", got.Title)
	require.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestUpdateRecordsExactlyPatchedFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec, err := store.Add(ctx, &testOrder{Title: "Desks", Department: "HR"})
	require.NoError(t, err)

	updated, err := store.Update(ctx, rec.ID, Patch{"status": "submitted", "department": "Finance"})
	require.NoError(t, err)

	entry := updated.AuditTrail[len(updated.AuditTrail)-1]
	require.Equal(t, ActionUpdated, entry.Action)
	require.Equal(t, SystemActor, entry.Actor)
	require.Len(t, entry.Changes, 2)
	require.Equal(t, "department", entry.Changes[0].Field)
	require.JSONEq(t, `"HR"`, string(entry.Changes[0].Old))
	require.JSONEq(t, `"Finance"`, string(entry.Changes[0].New))
	require.Equal(t, "status", entry.Changes[1].Field)
	require.JSONEq(t, `"draft"`, string(entry.Changes[1].Old))
	require.JSONEq(t, `"submitted"`, string(entry.Changes[1].New))
}

func TestAuditTrailIsAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec, err := store.Add(ctx, &testOrder{Title: "Paper"})
	require.NoError(t, err)

	first, err := store.Update(ctx, rec.ID, Patch{"title": "Paper A4"})
	require.NoError(t, err)
	snapshot, err := json.Marshal(first.AuditTrail)
	require.NoError(t, err)

	// Mutating a returned copy must not leak into the store.
	first.AuditTrail[0].Description = "tampered"
	first.AuditTrail[1].Changes[0].New = json.RawMessage(`"tampered"`)

	second, err := store.Update(ctx, rec.ID, Patch{"title": "Paper A3"})
	require.NoError(t, err)
	prefix, err := json.Marshal(second.AuditTrail[:len(second.AuditTrail)-1])
	require.NoError(t, err)
	require.JSONEq(t, string(snapshot), string(prefix))
}

func TestUpdateMissingIDLeavesCollectionUntouched(t *testing.T) {
	slot := newMemorySlot()
	store := newTestStore(t, func(cfg *Config[*testOrder]) { cfg.Slot = slot })
	ctx := context.Background()
	rec, err := store.Add(ctx, &testOrder{Title: "Toner"})
	require.NoError(t, err)
	savesBefore := slot.saves

	_, err = store.Update(ctx, "nonexistent-id", Patch{"status": "approved"})
	require.ErrorIs(t, err, ErrNotFound)

	got, ok := store.Get(rec.ID)
	require.True(t, ok)
	require.Equal(t, 1, got.Version)
	require.Len(t, got.AuditTrail, 1)
	require.Equal(t, "draft", got.Status)
	require.Equal(t, savesBefore, slot.saves)
}

func TestUpdateRejectsHeaderAndUnknownFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec, err := store.Add(ctx, &testOrder{Title: "Pens"})
	require.NoError(t, err)

	for _, patch := range []Patch{
		{"version": 9},
		{"auditTrail": []any{}},
		{"id": "other"},
		{"colour": "blue"},
		{"amount": map[string]any{"nested": true}},
	} {
		_, err := store.Update(ctx, rec.ID, patch)
		require.ErrorIs(t, err, ErrInvalidPatch, "patch %v", patch)
	}

	got, _ := store.Get(rec.ID)
	require.Equal(t, 1, got.Version)
}

func TestRemoveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, err := store.Add(ctx, &testOrder{Title: "A"})
	require.NoError(t, err)
	b, err := store.Add(ctx, &testOrder{Title: "B"})
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, a.ID))
	require.ErrorIs(t, store.Remove(ctx, a.ID), ErrNotFound)

	_, ok := store.Get(a.ID)
	require.False(t, ok)
	got, ok := store.Get(b.ID)
	require.True(t, ok)
	require.Equal(t, "B", got.Title)

	c, err := store.Add(ctx, &testOrder{Title: "C"})
	require.NoError(t, err)
	require.NotEqual(t, b.Number, c.Number)
}

func TestSlotRoundTrip(t *testing.T) {
	slot := newMemorySlot()
	withSlot := func(cfg *Config[*testOrder]) { cfg.Slot = slot }
	store := newTestStore(t, withSlot)
	ctx := context.Background()
	rec, err := store.Add(ctx, &testOrder{Title: "Cables", Amount: decimal.RequireFromString("19.90")})
	require.NoError(t, err)
	_, err = store.Update(ctx, rec.ID, Patch{"status": "submitted"})
	require.NoError(t, err)
	require.Equal(t, 2, slot.saves)

	reopened := newTestStore(t, withSlot, func(cfg *Config[*testOrder]) {
		cfg.Seed = []*testOrder{{Title: "seed only"}}
	})
	require.Equal(t, 1, reopened.Len())
	got, ok := reopened.Get(rec.ID)
	require.True(t, ok)
	require.Equal(t, 2, got.Version)
	require.Equal(t, "submitted", got.Status)
	require.True(t, decimal.RequireFromString("19.9").Equal(got.Amount))

	next, err := reopened.Add(ctx, &testOrder{Title: "More"})
	require.NoError(t, err)
	require.NotEqual(t, rec.Number, next.Number)
}

func TestMalformedSlotFallsBackToSeed(t *testing.T) {
	slot := newMemorySlot()
	slot.data["order"] = []byte(`{not json`)
	store := newTestStore(t, func(cfg *Config[*testOrder]) {
		cfg.Slot = slot
		cfg.Seed = []*testOrder{{Title: "Seeded"}, nil}
	})
	items := store.List()
	require.Len(t, items, 1)
	require.Equal(t, "Seeded", items[0].Title)
	require.Equal(t, 1, items[0].Version)
	require.NotEmpty(t, items[0].ID)
	require.Zero(t, slot.saves)
}

func TestPersistFailureIsSwallowed(t *testing.T) {
	slot := newMemorySlot()
	slot.failOn = errors.New("quota exceeded")
	observer := &recordingObserver{}
	store := newTestStore(t, func(cfg *Config[*testOrder]) {
		cfg.Slot = slot
		cfg.Observer = observer
	})
	ctx := context.Background()

	rec, err := store.Add(ctx, &testOrder{Title: "Stapler"})
	require.NoError(t, err)
	_, err = store.Update(ctx, rec.ID, Patch{"title": "Stapler XL"})
	require.NoError(t, err)

	got, ok := store.Get(rec.ID)
	require.True(t, ok)
	require.Equal(t, "Stapler XL", got.Title)
	require.Equal(t, 2, observer.failures)
	require.Equal(t, []string{ActionCreated, ActionUpdated}, observer.actions)
	require.Error(t, store.Flush(ctx))
}

func TestImportAssignsFreshIdentity(t *testing.T) {
	slot := newMemorySlot()
	store := newTestStore(t, func(cfg *Config[*testOrder]) { cfg.Slot = slot })
	ctx := ContextWithActor(context.Background(), "importer")

	imported, err := store.Import(ctx, []*testOrder{
		{Meta: Meta{ID: "dup"}, Title: "Row 1"},
		{Meta: Meta{ID: "dup"}, Title: "Row 2", Status: "approved"},
	})
	require.NoError(t, err)
	require.Len(t, imported, 2)
	require.NotEqual(t, imported[0].ID, imported[1].ID)
	require.Equal(t, "draft", imported[0].Status)
	require.Equal(t, "approved", imported[1].Status)
	require.Equal(t, ActionImported, imported[1].AuditTrail[0].Action)
	require.Equal(t, 1, slot.saves)
}

func TestOpenValidatesConfig(t *testing.T) {
	_, err := Open(context.Background(), Config[*testOrder]{Kind: "order"})
	require.Error(t, err)
	_, err = Open(context.Background(), Config[*testOrder]{New: func() *testOrder { return &testOrder{} }})
	require.Error(t, err)
}

func TestMetricsAggregatesFullCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.Add(ctx, &testOrder{Title: "A", Amount: decimal.RequireFromString("100.50")})
	require.NoError(t, err)
	_, err = store.Add(ctx, &testOrder{Title: "B", Status: "approved", Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)
	_, err = store.Add(ctx, &testOrder{Title: "C", Status: "approved", Amount: decimal.RequireFromString("0.25")})
	require.NoError(t, err)

	m := store.Metrics()
	require.Equal(t, 3, m.Total)
	require.Equal(t, 1, m.ByStatus["draft"])
	require.Equal(t, 2, m.ByStatus["approved"])
	require.True(t, decimal.RequireFromString("300.75").Equal(m.TotalAmount))
	require.True(t, decimal.RequireFromString("200.25").Equal(m.AmountByStatus["approved"]))
}
