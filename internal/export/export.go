// Package export moves record collections in and out of CSV and XLSX files.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Column maps a record field, addressed by its JSON name, to a file column.
type Column struct {
	Key     string
	Label   string
	Numeric bool
}

// Row is one record flattened to its top-level JSON values.
type Row map[string]any

// Rows flattens items through their JSON form. Numbers keep full precision.
func Rows[T any](items []T) ([]Row, error) {
	out := make([]Row, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("export: encode row: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var row Row
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("export: decode row: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

// Labels returns the header row.
func Labels(columns []Column) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = col.Label
	}
	return out
}

// formatValue renders a flattened value as cell text. Nested values are
// written as compact JSON.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}

// DecodeRows builds records from imported cell text. Each value is encoded
// according to the JSON shape of the field in a fresh record, so numeric
// looking text stays a string where the record expects one. Empty cells are
// left at the record's zero value.
func DecodeRows[T any](rows []map[string]string, newFn func() T) ([]T, error) {
	shape, err := fieldShapes(newFn())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		obj := make(map[string]json.RawMessage, len(row))
		for key, text := range row {
			if strings.TrimSpace(text) == "" {
				continue
			}
			kind, known := shape[key]
			if !known {
				continue
			}
			obj[key] = encodeCell(kind, text)
		}
		raw, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("export: row %d: %w", i+1, err)
		}
		item := newFn()
		if err := json.Unmarshal(raw, item); err != nil {
			return nil, fmt.Errorf("export: row %d: %w", i+1, err)
		}
		out = append(out, item)
	}
	return out, nil
}

type shapeKind int

const (
	shapeString shapeKind = iota
	shapeRaw
	shapeAny
)

func fieldShapes(zero any) (map[string]shapeKind, error) {
	raw, err := json.Marshal(zero)
	if err != nil {
		return nil, fmt.Errorf("export: encode shape: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("export: record is not an object: %w", err)
	}
	out := make(map[string]shapeKind, len(fields))
	for key, value := range fields {
		trimmed := bytes.TrimSpace(value)
		switch {
		case len(trimmed) > 0 && trimmed[0] == '"':
			out[key] = shapeString
		case bytes.Equal(trimmed, []byte("null")):
			out[key] = shapeAny
		default:
			out[key] = shapeRaw
		}
	}
	return out, nil
}

func encodeCell(kind shapeKind, text string) json.RawMessage {
	quoted, _ := json.Marshal(text)
	switch kind {
	case shapeRaw:
		return json.RawMessage(text)
	case shapeAny:
		if json.Valid([]byte(text)) {
			return json.RawMessage(text)
		}
		return quoted
	default:
		return quoted
	}
}
