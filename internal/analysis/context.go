package analysis

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/noesis-labs/noesis/internal/tabular"
)

const analysisSystemPrompt = `You are a data analyst. You receive a description of one tabular dataset and must produce a machine-readable analysis of it.

Respond with a single JSON object and nothing else. No prose, no markdown fences. The object must have exactly this shape:

{
  "file_schema": {
    "columns": [{"name": "...", "type": "number|string|date|boolean", "description": "..."}],
    "rowCount": <integer>,
    "summary": "<one or two sentences describing the dataset>"
  },
  "subsets": [
    {
      "description": "<what this subset shows>",
      "xAxisName": "<column or derived label>",
      "xAxisDescription": "<optional>",
      "yAxisName": "<column or derived label>",
      "yAxisDescription": "<optional>",
      "dataPoints": [{"x": <value>, "y": <number>}]
    }
  ]
}

Rules:
- Produce between 5 and 15 subsets, each a view of the data worth charting.
- Every y value must be a finite number. Never emit NaN or Infinity.
- Aggregate when a subset would otherwise exceed roughly 50 points.
- Column types must be one of: number, string, date, boolean.`

// bounded is the capped view of a dataset that goes into the prompt.
type bounded struct {
	columns []tabular.Column
	preview [][]string
	sampled bool
	rows    int
}

// boundDataset caps what the model sees. Large datasets are reduced to a
// deterministic sample; column statistics are recomputed over that sample
// so they describe the rows the model can actually reason about.
func boundDataset(ds *tabular.Dataset) bounded {
	rows := ds.Rows
	sampled := false
	if ds.RowCount > sampleThreshold {
		rows = sampleRows(ds.Rows, sampleSize, sampleSeed)
		sampled = true
	}

	cols := ds.Columns
	if sampled {
		header := make([]string, len(ds.Columns))
		for i, c := range ds.Columns {
			header[i] = c.Name
		}
		cols = tabular.FromSheet(tabular.Sheet{Name: ds.Name, Header: header, Rows: rows}).Columns
	}

	preview := rows
	if len(preview) > previewRows {
		preview = preview[:previewRows]
	}
	return bounded{columns: cols, preview: preview, sampled: sampled, rows: len(rows)}
}

// sampleRows draws n distinct rows with a fixed seed, preserving the
// original row order.
func sampleRows(rows [][]string, n int, seed int64) [][]string {
	if len(rows) <= n {
		return rows
	}
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(len(rows))[:n]
	sort.Ints(idx)
	out := make([][]string, n)
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

// renderAnalysisContext serializes the bounded dataset for the user turn.
func renderAnalysisContext(fileName string, ds *tabular.Dataset, b bounded) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dataset: %s (sheet %q)\n", fileName, ds.Name)
	fmt.Fprintf(&sb, "Total rows: %d\n", ds.RowCount)
	if b.sampled {
		fmt.Fprintf(&sb, "Statistics and preview below are computed over a %d-row sample.\n", b.rows)
	}

	sb.WriteString("\nColumns:\n")
	for _, c := range b.columns {
		fmt.Fprintf(&sb, "- %s (%s): %d nulls, %d distinct values", c.Name, c.Type, c.NullCount, c.DistinctCount)
		if len(c.Samples) > 0 {
			fmt.Fprintf(&sb, ", samples: %s", strings.Join(c.Samples, ", "))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nPreview rows:\n")
	header := make([]string, len(b.columns))
	for i, c := range b.columns {
		header[i] = c.Name
	}
	sb.WriteString(strings.Join(header, " | "))
	sb.WriteString("\n")
	for _, row := range b.preview {
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString("\n")
	}
	return sb.String()
}
