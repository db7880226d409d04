package tabular

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noesis-labs/noesis/pkg/schema"
)

const sampleCSV = `date,amount,category,active
2024-01-02,45000,Electronics,true
2024-01-03,52000,Groceries,false
2024-01-04,,Groceries,true
2024-01-05,48000,Clothing,true
`

func TestExtractCSV(t *testing.T) {
	sheet, err := ExtractCSV([]byte(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"date", "amount", "category", "active"}, sheet.Header)
	require.Len(t, sheet.Rows, 4)
	assert.Equal(t, "Electronics", sheet.Rows[0][2])
}

func TestExtractCSVRaggedRows(t *testing.T) {
	sheet, err := ExtractCSV([]byte("a,b,c\n1,2\n1,2,3,4\n"))
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, []string{"1", "2", ""}, sheet.Rows[0])
	assert.Equal(t, []string{"1", "2", "3"}, sheet.Rows[1])
}

func TestExtractCSVEmpty(t *testing.T) {
	sheet, err := ExtractCSV(nil)
	require.NoError(t, err)
	assert.Empty(t, sheet.Header)
	assert.Empty(t, sheet.Rows)
}

func TestFromSheetInference(t *testing.T) {
	sheet, err := ExtractCSV([]byte(sampleCSV))
	require.NoError(t, err)

	ds := FromSheet(*sheet)
	assert.Equal(t, 4, ds.RowCount)
	require.Len(t, ds.Columns, 4)

	date := ds.Columns[0]
	assert.Equal(t, TypeDate, date.Type)
	assert.Equal(t, 0, date.NullCount)
	assert.Equal(t, 4, date.DistinctCount)

	amount := ds.Columns[1]
	assert.Equal(t, TypeNumber, amount.Type)
	assert.Equal(t, 1, amount.NullCount)
	assert.Equal(t, 3, amount.DistinctCount)

	category := ds.Columns[2]
	assert.Equal(t, TypeString, category.Type)
	assert.Equal(t, 3, category.DistinctCount)
	assert.Len(t, category.Samples, 3)

	active := ds.Columns[3]
	assert.Equal(t, TypeBoolean, active.Type)
}

func TestFromSheetMixedColumnIsString(t *testing.T) {
	ds := FromSheet(Sheet{
		Header: []string{"mixed"},
		Rows:   [][]string{{"12"}, {"hello"}, {"true"}},
	})
	assert.Equal(t, TypeString, ds.Columns[0].Type)
}

func TestExtractExcelRoundTrip(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"name", "price"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"widget", 9.5}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"gadget", 12}))
	_, err := f.NewSheet("Inventory")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Inventory", "A1", &[]any{"sku", "count"}))
	require.NoError(t, f.SetSheetRow("Inventory", "A2", &[]any{"W-1", 4}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	sheets, err := ExtractExcel(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, sheets, 2)

	assert.Equal(t, "Sheet1", sheets[0].Name)
	assert.Equal(t, []string{"name", "price"}, sheets[0].Header)
	require.Len(t, sheets[0].Rows, 2)

	ds := FromSheet(sheets[0])
	assert.Equal(t, TypeNumber, ds.Columns[1].Type)

	assert.Equal(t, "Inventory", sheets[1].Name)
	require.Len(t, sheets[1].Rows, 1)
}

func TestExtractExcelEmptyWorkbook(t *testing.T) {
	f := excelize.NewFile()

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err := ExtractExcel(buf.Bytes())
	require.Error(t, err)
	var nerr *schema.NoesisError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, schema.ErrCodeEmptyDataset, nerr.Code)
}

func TestExtractSheetsDispatch(t *testing.T) {
	sheets, err := ExtractSheets("text/csv", []byte(sampleCSV))
	require.NoError(t, err)
	assert.Len(t, sheets, 1)

	_, err = ExtractSheets("application/pdf", []byte("%PDF"))
	require.Error(t, err)
	var nerr *schema.NoesisError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, schema.ErrCodeUnsupportedFile, nerr.Code)
}

func TestFileTypeDetection(t *testing.T) {
	assert.True(t, IsCSVType("data.csv"))
	assert.True(t, IsCSVType("text/csv"))
	assert.True(t, IsExcelType("report.xlsx"))
	assert.True(t, IsExcelType("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	assert.True(t, IsExcelType("application/vnd.ms-excel"))
	assert.False(t, IsCSVType("application/pdf"))
	assert.False(t, IsExcelType("application/pdf"))
}
