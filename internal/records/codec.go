package records

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// fields is the top-level JSON object of a record keyed by field name.
type fields map[string]json.RawMessage

// headerFields are owned by the store and cannot be patched.
var headerFields = map[string]struct{}{
	"id":         {},
	"number":     {},
	"version":    {},
	"createdAt":  {},
	"updatedAt":  {},
	"createdBy":  {},
	"auditTrail": {},
}

func encodeFields(rec any) (fields, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("records: encode: %w", err)
	}
	var out fields
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("records: encode: %w", err)
	}
	return out, nil
}

func decodeFields[T Record](f fields, newFn func() T) (T, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("records: decode: %w", err)
	}
	out := newFn()
	if err := json.Unmarshal(raw, out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// clone deep copies a record through its JSON form so callers never share
// audit entries or nested slices with the store.
func clone[T Record](rec T, newFn func() T) (T, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("records: clone: %w", err)
	}
	out := newFn()
	if err := json.Unmarshal(raw, out); err != nil {
		var zero T
		return zero, fmt.Errorf("records: clone: %w", err)
	}
	return out, nil
}

// viewMap decodes a record into plain values for querying. Numbers stay
// json.Number so large amounts keep their precision.
func viewMap(rec any) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func isEmptyString(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte(`""`)) || bytes.Equal(trimmed, []byte("null"))
}
