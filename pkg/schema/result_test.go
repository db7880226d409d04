package schema

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  FileSchema
		wantErr string
	}{
		{
			name: "valid",
			schema: FileSchema{
				Columns:  []ColumnSchema{{Name: "date", Type: "date"}, {Name: "amount", Type: "number"}},
				RowCount: 10,
			},
		},
		{
			name:    "no columns",
			schema:  FileSchema{RowCount: 10},
			wantErr: "no columns",
		},
		{
			name: "empty column name",
			schema: FileSchema{
				Columns:  []ColumnSchema{{Name: "  ", Type: "string"}},
				RowCount: 1,
			},
			wantErr: "empty name",
		},
		{
			name: "duplicate column name",
			schema: FileSchema{
				Columns:  []ColumnSchema{{Name: "a", Type: "string"}, {Name: "a", Type: "number"}},
				RowCount: 1,
			},
			wantErr: "duplicate column name",
		},
		{
			name: "negative row count",
			schema: FileSchema{
				Columns:  []ColumnSchema{{Name: "a", Type: "string"}},
				RowCount: -1,
			},
			wantErr: "negative row count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDataSubsetValidate(t *testing.T) {
	valid := DataSubset{
		Description: "totals by month",
		XAxisName:   "Month",
		YAxisName:   "Total",
		DataPoints: []DataPoint{
			{X: "2024-01", Y: float64(45000)},
			{X: "2024-02", Y: 52},
			{X: "2024-03", Y: json.Number("48.5")},
		},
	}
	assert.NoError(t, valid.Validate())

	empty := DataSubset{Description: "empty"}
	require.Error(t, empty.Validate())

	nan := DataSubset{Description: "nan", DataPoints: []DataPoint{{X: "a", Y: math.NaN()}}}
	err := nan.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not finite")

	inf := DataSubset{Description: "inf", DataPoints: []DataPoint{{X: "a", Y: math.Inf(1)}}}
	require.Error(t, inf.Validate())

	str := DataSubset{Description: "string y", DataPoints: []DataPoint{{X: "a", Y: "NaN"}}}
	err = str.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not numeric")
}

func TestDoneAlwaysCarriesUsage(t *testing.T) {
	data, err := json.Marshal(Done(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done","usage":{}}`, string(data))

	data, err = json.Marshal(Done(&Usage{InputTokens: 12, OutputTokens: 34}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done","usage":{"input_tokens":12,"output_tokens":34}}`, string(data))
}

func TestNoesisErrorShape(t *testing.T) {
	err := NewErrorf(ErrCodeUnsupportedFile, "unsupported file type: %s", "application/pdf").
		WithDetails(map[string]any{"file_type": "application/pdf"})
	assert.Equal(t, `[UNSUPPORTED_FILE] unsupported file type: application/pdf`, err.Error())
	assert.Equal(t, "application/pdf", err.Details["file_type"])
}
