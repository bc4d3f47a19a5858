package records

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// FilterAll disables an equality filter.
const FilterAll = "all"

// Direction orders a sort.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is an optional single-key ordering.
type Sort struct {
	Field     string
	Direction Direction
}

// DateRange bounds a timestamp field, inclusive. Zero bounds are open.
type DateRange struct {
	Field string
	From  time.Time
	To    time.Time
}

// Query describes a derived view over the collection.
type Query struct {
	Search    string
	Filters   map[string]string
	Sort      *Sort
	DateRange *DateRange
}

type viewRow[T Record] struct {
	rec    T
	values map[string]any
}

// Query recomputes the derived view from the full collection. For a fixed
// collection and query the result order is always the same.
func (s *Store[T]) Query(q Query) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(q.Search))

	rows := make([]viewRow[T], 0, len(s.items))
	for _, item := range s.items {
		values, err := viewMap(item)
		if err != nil {
			s.cfg.Logger.Error("query view", slog.String("kind", s.cfg.Kind), slog.Any("error", err))
			continue
		}
		if needle != "" && !s.matchesSearch(values, needle, fold) {
			continue
		}
		if !matchesFilters(values, q.Filters) {
			continue
		}
		if q.DateRange != nil && !s.inRange(values, *q.DateRange) {
			continue
		}
		rows = append(rows, viewRow[T]{rec: item, values: values})
	}

	if q.Sort != nil && q.Sort.Field != "" {
		collator := collate.New(language.Und, collate.IgnoreCase)
		field := q.Sort.Field
		desc := q.Sort.Direction == Desc
		sort.SliceStable(rows, func(i, j int) bool {
			a, aok := present(rows[i].values[field])
			b, bok := present(rows[j].values[field])
			switch {
			case !aok && !bok:
				return false
			case !aok:
				return false
			case !bok:
				return true
			}
			cmp := compareValues(a, b, collator)
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		rec, err := clone(row.rec, s.cfg.New)
		if err != nil {
			s.cfg.Logger.Error("clone record", slog.String("kind", s.cfg.Kind), slog.Any("error", err))
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *Store[T]) matchesSearch(values map[string]any, needle string, fold cases.Caser) bool {
	for _, field := range s.cfg.SearchFields {
		value, ok := present(values[field])
		if !ok {
			continue
		}
		if strings.Contains(fold.String(stringify(value)), needle) {
			return true
		}
	}
	return false
}

func matchesFilters(values map[string]any, filters map[string]string) bool {
	for field, want := range filters {
		if want == "" || want == FilterAll {
			continue
		}
		value, ok := present(values[field])
		if !ok || stringify(value) != want {
			return false
		}
	}
	return true
}

func (s *Store[T]) inRange(values map[string]any, r DateRange) bool {
	field := r.Field
	if field == "" {
		field = s.cfg.DateField
	}
	raw, ok := values[field].(string)
	if !ok {
		return false
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return false
	}
	if !r.From.IsZero() && at.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && at.After(r.To) {
		return false
	}
	return true
}

func present(value any) (any, bool) {
	if value == nil {
		return nil, false
	}
	return value, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}

// compareValues orders numbers numerically, timestamps chronologically and
// everything else by collated text.
func compareValues(a, b any, collator *collate.Collator) int {
	as, bs := stringify(a), stringify(b)
	if af, err := strconv.ParseFloat(as, 64); err == nil {
		if bf, err := strconv.ParseFloat(bs, 64); err == nil {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if at, err := time.Parse(time.RFC3339Nano, as); err == nil {
		if bt, err := time.Parse(time.RFC3339Nano, bs); err == nil {
			return at.Compare(bt)
		}
	}
	return collator.CompareString(as, bs)
}
