package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// WriteCSV writes a header row of labels followed by one line per row.
// Values containing separators or quotes are quoted by encoding/csv.
func WriteCSV(w io.Writer, columns []Column, rows []Row) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(Labels(columns)); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = formatValue(row[col.Key])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV reads a file written by WriteCSV. The first line is a header and
// is skipped; columns are mapped by position.
func ReadCSV(r io.Reader, columns []Column) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("export: read header: %w", err)
	}
	var out []map[string]string
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("export: line %d: %w", line, err)
		}
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col.Key] = record[i]
			}
		}
		out = append(out, row)
	}
}
