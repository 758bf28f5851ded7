package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Results"

func XLSX(doc Document) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	header := make([]any, len(doc.Columns))
	for i, column := range doc.Columns {
		header[i] = column
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	if len(doc.Columns) > 0 {
		last, err := excelize.CoordinatesToCellName(len(doc.Columns), 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(xlsxSheet, "A1", last, bold); err != nil {
			return nil, fmt.Errorf("style header: %w", err)
		}
	}

	for r, row := range doc.Rows {
		values := make([]any, len(doc.Columns))
		for i := range doc.Columns {
			values[i] = xlsxValue(cell(row, i))
		}
		start, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(xlsxSheet, start, &values); err != nil {
			return nil, fmt.Errorf("write xlsx row %d: %w", r+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// Numbers and booleans keep their type so spreadsheets can aggregate them.
func xlsxValue(v any) any {
	switch v.(type) {
	case nil:
		return nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return v
	default:
		return cellString(v)
	}
}
