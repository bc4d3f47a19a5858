package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ContentTypeXLSX is the media type of WriteXLSX output.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteXLSX writes a single-sheet workbook with a bold header row. Numeric
// columns are written as numbers when the value parses.
func WriteXLSX(w io.Writer, sheet string, columns []Column, rows []Row) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("export: sheet name: %w", err)
	}
	header := make([]any, len(columns))
	for i, label := range Labels(columns) {
		header[i] = label
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("export: header: %w", err)
	}
	if len(columns) > 0 {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("export: header style: %w", err)
		}
		last, err := excelize.CoordinatesToCellName(len(columns), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
			return fmt.Errorf("export: header style: %w", err)
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(columns))
		for j, col := range columns {
			values[j] = cellValue(col, row[col.Key])
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("export: row %d: %w", i+1, err)
		}
	}
	return f.Write(w)
}

func cellValue(col Column, v any) any {
	if col.Numeric {
		var number json.Number
		switch val := v.(type) {
		case json.Number:
			number = val
		case string:
			number = json.Number(val)
		}
		if f, err := number.Float64(); err == nil && number != "" {
			return f
		}
	}
	return formatValue(v)
}
