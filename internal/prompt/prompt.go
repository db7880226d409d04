// Package prompt renders the system prompt for chat turns. Rendering is a
// pure function of the current canvas text and the dataset catalogue; it
// never fails, falling back to zero counts when the canvas is malformed.
package prompt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/noesis-labs/noesis/internal/tabular"
	"github.com/noesis-labs/noesis/pkg/schema"
)

// canvasCountsQuery extracts node/edge counts from the otherwise opaque
// canvas document without committing to its node/edge structure.
const canvasCountsQuery = `{nodes: ((.nodes // []) | length), edges: ((.edges // []) | length)}`

// Builder renders system prompts. The raw-data toggle is fixed at
// construction; it is process configuration, not a per-request choice.
type Builder struct {
	includeRawData bool
	counts         *gojq.Code
}

// NewBuilder compiles the canvas-count query and returns a Builder.
func NewBuilder(includeRawData bool) (*Builder, error) {
	query, err := gojq.Parse(canvasCountsQuery)
	if err != nil {
		return nil, fmt.Errorf("parse canvas count query: %w", err)
	}
	code, err := gojq.Compile(query,
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, fmt.Errorf("compile canvas count query: %w", err)
	}
	return &Builder{includeRawData: includeRawData, counts: code}, nil
}

// SystemPrompt renders the chat system prompt from the current canvas text
// and the dataset catalogue. It never returns an error: a malformed canvas
// yields 0/0 counts, and a dataset whose raw buffer cannot be re-parsed is
// described without its rows.
func (b *Builder) SystemPrompt(canvasJSON string, sources []schema.DatasetContext) string {
	nodes, edges := b.canvasCounts(canvasJSON)

	var summary strings.Builder
	if len(sources) == 0 {
		summary.WriteString("No data sources uploaded yet")
	}
	for _, ds := range sources {
		name := ds.OriginalFileName
		if name == "" {
			name = "Unknown"
		}
		columns, rowCount := 0, 0
		if ds.FileSchema != nil {
			columns = len(ds.FileSchema.Columns)
			rowCount = ds.FileSchema.RowCount
		}
		fmt.Fprintf(&summary, "- %s: %d columns, %d rows, %d pre-generated visualizations\n",
			name, columns, rowCount, len(ds.Subsets))
		if b.includeRawData {
			summary.WriteString(b.rawDataSection(ds))
		}
	}

	return fmt.Sprintf(`You are an AI assistant helping users build data visualizations on a canvas.

**Current Canvas State:**
- Nodes: %d
- Edges: %d
- Full JSON: %s

**Available Data Sources:**
%s

**Your Capabilities:**
1. Have conversations about data analysis and visualization
2. Use the `+"`edit_canvas`"+` tool to modify the canvas by providing new JSON
3. Add nodes (charts, text, shapes) and connections (edges)
4. Reference data sources in visualizations

**Canvas JSON Format:**
{
  "nodes": [
    {
      "id": "unique-id",
      "type": "text|shape|chart|table",
      "position": {"x": 100, "y": 100},
      "data": {
        "label": "Node content",
        "dataSource": "file-id",
        "subset": "subset-description"
      }
    }
  ],
  "edges": [
    {"id": "edge-id", "source": "node-id-1", "target": "node-id-2"}
  ]
}

**Guidelines:**
- When editing canvas, provide the COMPLETE new JSON structure
- Position nodes logically (spread them out, don't overlap)
- Use clear, descriptive labels
- Explain what you're doing before using the tool
- If user asks to add a chart, use node type "chart" and reference available data
- Keep the conversation natural and helpful

Be creative, helpful, and make beautiful visualizations!`,
		nodes, edges, canvasJSON, strings.TrimRight(summary.String(), "\n"))
}

// canvasCounts returns the node and edge counts of the canvas document, or
// 0/0 when it does not parse as a JSON object.
func (b *Builder) canvasCounts(canvasJSON string) (int, int) {
	var doc any
	if err := json.Unmarshal([]byte(canvasJSON), &doc); err != nil {
		return 0, 0
	}
	iter := b.counts.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return 0, 0
	}
	result, ok := v.(map[string]any)
	if !ok {
		return 0, 0
	}
	return intFrom(result["nodes"]), intFrom(result["edges"])
}

func intFrom(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// rawDataSection re-parses the dataset's stored base64 buffer and
// serializes every sheet's rows. Any failure yields an empty section; the
// prompt must never fail because a stored buffer went stale.
func (b *Builder) rawDataSection(ds schema.DatasetContext) string {
	if ds.FileBuffer == "" {
		return ""
	}
	data, err := base64.StdEncoding.DecodeString(ds.FileBuffer)
	if err != nil {
		return ""
	}
	sheets, err := tabular.ExtractSheets(ds.FileType, data)
	if err != nil {
		return ""
	}

	var section strings.Builder
	for _, sheet := range sheets {
		fmt.Fprintf(&section, "  Raw data (%s):\n", sheet.Name)
		fmt.Fprintf(&section, "  %s\n", strings.Join(sheet.Header, ","))
		for _, row := range sheet.Rows {
			fmt.Fprintf(&section, "  %s\n", strings.Join(row, ","))
		}
	}
	return section.String()
}
