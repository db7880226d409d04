package tabular

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/noesis-labs/noesis/pkg/schema"
)

// ExtractExcel parses workbook bytes into one sheet per workbook sheet.
// Sheets without a header row are skipped; a workbook where every sheet is
// empty yields an EMPTY_DATASET error rather than zero sheets.
func ExtractExcel(data []byte) ([]Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		if len(rows) == 0 {
			continue
		}
		header := rows[0]
		body := make([][]string, 0, len(rows)-1)
		for _, row := range rows[1:] {
			body = append(body, padRow(row, len(header)))
		}
		sheets = append(sheets, Sheet{Name: name, Header: header, Rows: body})
	}
	if len(sheets) == 0 {
		return nil, schema.NewError(schema.ErrCodeEmptyDataset, "workbook contains no sheets with data")
	}
	return sheets, nil
}
