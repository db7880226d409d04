// Package tabular turns raw spreadsheet bytes into column-typed datasets.
// Parsing is deliberately thin: CSV via encoding/csv, Excel via excelize;
// the interesting part is type inference and per-column statistics.
package tabular

import (
	"strings"

	"github.com/noesis-labs/noesis/pkg/schema"
)

// ColumnType is the semantic type inferred for a column.
type ColumnType string

const (
	TypeNumber  ColumnType = "number"
	TypeString  ColumnType = "string"
	TypeDate    ColumnType = "date"
	TypeBoolean ColumnType = "boolean"
)

// maxSampleValues caps the per-column sample list.
const maxSampleValues = 3

// Column holds the inferred schema and statistics for one column.
type Column struct {
	Name          string
	Type          ColumnType
	NullCount     int
	DistinctCount int
	Samples       []string
}

// Sheet is one raw table as parsed from the file: a header row plus data
// rows, all cells as strings.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Dataset is an immutable column-typed view of one sheet. It is owned by
// the request that created it and discarded at end of request.
type Dataset struct {
	Name     string
	Columns  []Column
	Rows     [][]string
	RowCount int
}

// ExtractSheets dispatches on the declared file type. CSV-like types yield
// a single sheet; Excel-like types yield one sheet per workbook sheet.
func ExtractSheets(fileType string, data []byte) ([]Sheet, error) {
	switch {
	case IsCSVType(fileType):
		sheet, err := ExtractCSV(data)
		if err != nil {
			return nil, err
		}
		return []Sheet{*sheet}, nil
	case IsExcelType(fileType):
		return ExtractExcel(data)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeUnsupportedFile, "unsupported file type: %s", fileType)
	}
}

// IsCSVType reports whether the declared type looks like CSV.
func IsCSVType(fileType string) bool {
	t := strings.ToLower(fileType)
	return strings.HasSuffix(t, ".csv") || strings.Contains(t, "csv")
}

// IsExcelType reports whether the declared type looks like a spreadsheet.
func IsExcelType(fileType string) bool {
	t := strings.ToLower(fileType)
	return strings.HasSuffix(t, ".xlsx") || strings.HasSuffix(t, ".xls") ||
		strings.Contains(t, "spreadsheet") || strings.Contains(t, "excel")
}
