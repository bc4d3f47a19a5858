// Package records holds the generic in-memory record store shared by every
// procurement record kind.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates no record carries the identifier.
	ErrNotFound = errors.New("records: not found")
	// ErrInvalidPatch indicates a patch names a header or unknown field, or a value of the wrong shape.
	ErrInvalidPatch = errors.New("records: invalid patch")
)

// Slot is the durable key/value slot mirroring a collection. Load returns a
// nil slice without error when the key holds nothing.
type Slot interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

// Observer receives store activity, typically for metrics.
type Observer interface {
	Mutated(kind, action string)
	PersistFailed(kind string, err error)
}

// Numberer formats the human readable sequence number of a record.
type Numberer func(seq int, at time.Time) string

// Patch maps JSON field names to their new values.
type Patch map[string]any

// Change is a patch plus the audit attribution it is recorded under.
type Change struct {
	Patch       Patch
	Action      string
	Description string
}

// Config describes one record kind.
type Config[T Record] struct {
	Kind          string
	New           func() T
	Numberer      Numberer
	InitialStatus string
	Seed          []T
	Slot          Slot
	SlotKey       string
	SearchFields  []string
	DateField     string
	Clock         func() time.Time
	IDs           func() string
	Logger        *slog.Logger
	Observer      Observer
}

// Store owns the canonical collection of one record kind.
type Store[T Record] struct {
	cfg     Config[T]
	mu      sync.RWMutex
	items   []T
	index   map[string]int
	numbers map[string]struct{}
	seq     int
}

// Open builds a store, reading the slot once and falling back to the seed
// when the slot is empty, unreadable or malformed.
func Open[T Record](ctx context.Context, cfg Config[T]) (*Store[T], error) {
	if cfg.Kind == "" {
		return nil, errors.New("records: kind required")
	}
	if cfg.New == nil {
		return nil, fmt.Errorf("records: %s: constructor required", cfg.Kind)
	}
	if cfg.Numberer == nil {
		kind := cfg.Kind
		cfg.Numberer = func(seq int, _ time.Time) string { return fmt.Sprintf("%s-%d", kind, seq) }
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.IDs == nil {
		cfg.IDs = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SlotKey == "" {
		cfg.SlotKey = cfg.Kind
	}
	if cfg.DateField == "" {
		cfg.DateField = "createdAt"
	}

	s := &Store[T]{cfg: cfg}
	loaded, ok := s.load(ctx)
	if ok {
		s.reset(loaded)
		return s, nil
	}
	s.reset(nil)
	for _, seed := range cfg.Seed {
		if isNil(seed) {
			continue
		}
		rec, err := clone(seed, cfg.New)
		if err != nil {
			return nil, err
		}
		if rec.Header().ID == "" {
			s.stamp(rec, SystemActor, ActionCreated, fmt.Sprintf("%s created", cfg.Kind))
		}
		s.insert(rec)
	}
	return s, nil
}

func (s *Store[T]) load(ctx context.Context) ([]T, bool) {
	if s.cfg.Slot == nil {
		return nil, false
	}
	raw, err := s.cfg.Slot.Load(ctx, s.cfg.SlotKey)
	if err != nil {
		s.cfg.Logger.Warn("load slot", slog.String("kind", s.cfg.Kind), slog.Any("error", err))
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		s.cfg.Logger.Warn("malformed slot, using seed", slog.String("kind", s.cfg.Kind), slog.Any("error", err))
		return nil, false
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if isNil(item) {
			continue
		}
		out = append(out, item)
	}
	return out, true
}

func (s *Store[T]) reset(items []T) {
	s.items = make([]T, 0, len(items))
	s.index = make(map[string]int, len(items))
	s.numbers = make(map[string]struct{}, len(items))
	s.seq = 0
	for _, item := range items {
		s.insert(item)
	}
}

func (s *Store[T]) insert(rec T) {
	h := rec.Header()
	s.index[h.ID] = len(s.items)
	s.numbers[h.Number] = struct{}{}
	s.items = append(s.items, rec)
	s.seq++
}

func (s *Store[T]) reindex() {
	s.index = make(map[string]int, len(s.items))
	for i, item := range s.items {
		s.index[item.Header().ID] = i
	}
}

// nextNumber leaves seq one short of the returned number; insert catches up.
func (s *Store[T]) nextNumber(at time.Time) string {
	candidate := s.seq + 1
	for {
		number := s.cfg.Numberer(candidate, at)
		if _, taken := s.numbers[number]; !taken {
			s.seq = candidate - 1
			return number
		}
		candidate++
	}
}

// stamp replaces the generated header fields with a fresh identity.
func (s *Store[T]) stamp(rec T, actor, action, description string) {
	now := s.cfg.Clock()
	h := rec.Header()
	h.ID = s.cfg.IDs()
	h.Number = s.nextNumber(now)
	h.Version = 1
	h.CreatedAt = now
	h.UpdatedAt = now
	h.CreatedBy = actor
	h.AuditTrail = []AuditEntry{{
		ID:          uuid.NewString(),
		Action:      action,
		Actor:       actor,
		At:          now,
		Description: description,
		Changes:     []FieldChange{},
	}}
}

// Kind returns the record kind served by the store.
func (s *Store[T]) Kind() string {
	return s.cfg.Kind
}

// Add stores a new record built from payload. Generated header fields in the
// payload are ignored.
func (s *Store[T]) Add(ctx context.Context, payload T) (T, error) {
	rec, err := s.prepare(payload)
	if err != nil {
		var zero T
		return zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	actor := ActorFromContext(ctx)
	s.stamp(rec, actor, ActionCreated, fmt.Sprintf("%s created", s.cfg.Kind))
	s.insert(rec)
	s.observe(ActionCreated)
	s.persist(ctx)
	return clone(rec, s.cfg.New)
}

// Import stores each payload under a fresh identity and persists once.
func (s *Store[T]) Import(ctx context.Context, payloads []T) ([]T, error) {
	prepared := make([]T, 0, len(payloads))
	for _, payload := range payloads {
		rec, err := s.prepare(payload)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, rec)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	actor := ActorFromContext(ctx)
	out := make([]T, 0, len(prepared))
	for _, rec := range prepared {
		s.stamp(rec, actor, ActionImported, fmt.Sprintf("%s imported", s.cfg.Kind))
		s.insert(rec)
		s.observe(ActionImported)
		copied, err := clone(rec, s.cfg.New)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	if len(prepared) > 0 {
		s.persist(ctx)
	}
	return out, nil
}

func (s *Store[T]) prepare(payload T) (T, error) {
	var zero T
	if isNil(payload) {
		return zero, fmt.Errorf("%w: nil payload", ErrInvalidPatch)
	}
	f, err := encodeFields(payload)
	if err != nil {
		return zero, err
	}
	if s.cfg.InitialStatus != "" {
		if raw, ok := f["status"]; !ok || isEmptyString(raw) {
			status, _ := json.Marshal(s.cfg.InitialStatus)
			f["status"] = status
		}
	}
	rec, err := decodeFields(f, s.cfg.New)
	if err != nil {
		return zero, fmt.Errorf("records: %s: %w", s.cfg.Kind, err)
	}
	return rec, nil
}

// Update merges patch into the record, bumps its version and appends one
// audit entry listing every patched field.
func (s *Store[T]) Update(ctx context.Context, id string, patch Patch) (T, error) {
	return s.Apply(ctx, id, Change{Patch: patch})
}

// Apply is Update with an explicit audit action and description.
func (s *Store[T]) Apply(ctx context.Context, id string, change Change) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return zero, ErrNotFound
	}
	return s.applyLocked(ctx, pos, change)
}

// Modify derives a change from a copy of the current record and applies it
// atomically. An error from fn aborts without touching the record.
func (s *Store[T]) Modify(ctx context.Context, id string, fn func(current T) (Change, error)) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return zero, ErrNotFound
	}
	current, err := clone(s.items[pos], s.cfg.New)
	if err != nil {
		return zero, err
	}
	change, err := fn(current)
	if err != nil {
		return zero, err
	}
	return s.applyLocked(ctx, pos, change)
}

func (s *Store[T]) applyLocked(ctx context.Context, pos int, change Change) (T, error) {
	var zero T
	current := s.items[pos]
	f, err := encodeFields(current)
	if err != nil {
		return zero, err
	}

	keys := make([]string, 0, len(change.Patch))
	for key := range change.Patch {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	changes := make([]FieldChange, 0, len(keys))
	for _, key := range keys {
		if _, reserved := headerFields[key]; reserved {
			return zero, fmt.Errorf("%w: %s is managed by the store", ErrInvalidPatch, key)
		}
		old, known := f[key]
		if !known {
			return zero, fmt.Errorf("%w: unknown field %s", ErrInvalidPatch, key)
		}
		next, err := json.Marshal(change.Patch[key])
		if err != nil {
			return zero, fmt.Errorf("%w: %s: %v", ErrInvalidPatch, key, err)
		}
		changes = append(changes, FieldChange{Field: key, Old: append(json.RawMessage(nil), old...), New: next})
		f[key] = next
	}

	updated, err := decodeFields(f, s.cfg.New)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	action := change.Action
	if action == "" {
		action = ActionUpdated
	}
	description := change.Description
	if description == "" {
		description = fmt.Sprintf("%s %s", s.cfg.Kind, action)
	}
	now := s.cfg.Clock()
	h := updated.Header()
	h.Version = current.Header().Version + 1
	h.UpdatedAt = now
	h.AuditTrail = append(h.AuditTrail, AuditEntry{
		ID:          uuid.NewString(),
		Action:      action,
		Actor:       ActorFromContext(ctx),
		At:          now,
		Description: description,
		Changes:     changes,
	})
	s.items[pos] = updated
	s.observe(action)
	s.persist(ctx)
	return clone(updated, s.cfg.New)
}

// Remove deletes the record. There is no tombstone.
func (s *Store[T]) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.numbers, s.items[pos].Header().Number)
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	s.reindex()
	s.observe("deleted")
	s.persist(ctx)
	return nil
}

// Get returns a copy of the record.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zero T
	pos, ok := s.index[id]
	if !ok {
		return zero, false
	}
	rec, err := clone(s.items[pos], s.cfg.New)
	if err != nil {
		s.cfg.Logger.Error("clone record", slog.String("kind", s.cfg.Kind), slog.Any("error", err))
		return zero, false
	}
	return rec, true
}

// List returns copies of every record in collection order.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyAll(s.items)
}

// Len reports the collection size.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Flush writes the full collection to the slot and reports the outcome.
func (s *Store[T]) Flush(ctx context.Context) error {
	if s.cfg.Slot == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.save(ctx)
}

func (s *Store[T]) copyAll(items []T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		rec, err := clone(item, s.cfg.New)
		if err != nil {
			s.cfg.Logger.Error("clone record", slog.String("kind", s.cfg.Kind), slog.Any("error", err))
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *Store[T]) observe(action string) {
	if s.cfg.Observer != nil {
		s.cfg.Observer.Mutated(s.cfg.Kind, action)
	}
}

// persist is best effort: the in-memory collection stays authoritative.
func (s *Store[T]) persist(ctx context.Context) {
	if s.cfg.Slot == nil {
		return
	}
	if err := s.save(ctx); err != nil {
		s.cfg.Logger.Warn("persist slot", slog.String("kind", s.cfg.Kind), slog.Any("error", err))
		if s.cfg.Observer != nil {
			s.cfg.Observer.PersistFailed(s.cfg.Kind, err)
		}
	}
}

func (s *Store[T]) save(ctx context.Context) error {
	raw, err := json.Marshal(s.items)
	if err != nil {
		return fmt.Errorf("records: %s: encode collection: %w", s.cfg.Kind, err)
	}
	return s.cfg.Slot.Save(ctx, s.cfg.SlotKey, raw)
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
