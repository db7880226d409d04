package schema

import (
	"encoding/json"
	"math"
	"strings"
)

// ColumnSchema describes one column of an analyzed file.
type ColumnSchema struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// FileSchema is the model-produced description of an uploaded file.
type FileSchema struct {
	Columns  []ColumnSchema `json:"columns"`
	RowCount int            `json:"rowCount"`
	Summary  string         `json:"summary"`
}

// Validate checks the structural invariants of a FileSchema: at least one
// column, every column name unique and non-empty, non-negative row count.
func (s *FileSchema) Validate() error {
	if len(s.Columns) == 0 {
		return NewError(ErrCodeValidation, "file schema has no columns")
	}
	if s.RowCount < 0 {
		return NewError(ErrCodeValidation, "file schema has negative row count")
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, col := range s.Columns {
		name := strings.TrimSpace(col.Name)
		if name == "" {
			return NewError(ErrCodeValidation, "file schema has a column with an empty name")
		}
		if _, dup := seen[name]; dup {
			return NewErrorf(ErrCodeValidation, "duplicate column name %q in file schema", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// DataPoint is one point of a chart-ready subset. X may be a category label
// or a number; Y must be a finite number.
type DataPoint struct {
	X any `json:"x"`
	Y any `json:"y"`
}

// DataSubset is one precomputed, chart-ready aggregation of a dataset.
type DataSubset struct {
	Description      string      `json:"description"`
	XAxisName        string      `json:"xAxisName"`
	XAxisDescription string      `json:"xAxisDescription"`
	YAxisName        string      `json:"yAxisName"`
	YAxisDescription string      `json:"yAxisDescription"`
	DataPoints       []DataPoint `json:"dataPoints"`
}

// Validate rejects subsets that downstream chart renderers cannot draw:
// empty dataPoints, non-numeric y values, and NaN/Inf.
func (s *DataSubset) Validate() error {
	if len(s.DataPoints) == 0 {
		return NewErrorf(ErrCodeValidation, "subset %q has no data points", s.Description)
	}
	for i, p := range s.DataPoints {
		y, ok := numericValue(p.Y)
		if !ok {
			return NewErrorf(ErrCodeValidation, "subset %q point %d: y is not numeric", s.Description, i)
		}
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return NewErrorf(ErrCodeValidation, "subset %q point %d: y is not finite", s.Description, i)
		}
	}
	return nil
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// FileProcessingResult is the tagged union returned by file analysis:
// either Success with a schema and a non-empty subset list, or a failure
// with an error message. Never both.
type FileProcessingResult struct {
	Success bool         `json:"success"`
	Schema  *FileSchema  `json:"file_schema,omitempty"`
	Subsets []DataSubset `json:"subsets,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ProcessingFailure builds the failure arm of the result union.
func ProcessingFailure(msg string) FileProcessingResult {
	return FileProcessingResult{Success: false, Error: msg}
}

// ProcessingSuccess builds the success arm of the result union.
func ProcessingSuccess(fs *FileSchema, subsets []DataSubset) FileProcessingResult {
	return FileProcessingResult{Success: true, Schema: fs, Subsets: subsets}
}

// ChatMessage is one turn of the conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DatasetContext describes one uploaded data source as the client sends it
// with a chat request. FileBuffer is the base64-encoded original file,
// present only when the client retains raw data.
type DatasetContext struct {
	OriginalFileName string       `json:"originalFileName"`
	FileType         string       `json:"fileType,omitempty"`
	FileBuffer       string       `json:"fileBuffer,omitempty"`
	FileSchema       *FileSchema  `json:"fileSchema,omitempty"`
	Subsets          []DataSubset `json:"subsets,omitempty"`
}
