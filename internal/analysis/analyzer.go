// Package analysis drives the one-shot model call that turns a tabular
// dataset into a validated file schema plus chart-ready data subsets.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/noesis-labs/noesis/internal/anthropic"
	"github.com/noesis-labs/noesis/internal/tabular"
	"github.com/noesis-labs/noesis/pkg/schema"
)

const (
	// Datasets above sampleThreshold rows are sampled down before the
	// model sees them; the seed is fixed so retries observe the same rows.
	sampleThreshold = 5000
	sampleSize      = 1000
	sampleSeed      = 42

	// previewRows caps how many rows of the sampled-or-original set are
	// embedded in the analysis prompt.
	previewRows = 50
)

// analysisSchemaJSON validates the model's analysis output shape.
// Embedded as a constant to avoid filesystem dependencies.
const analysisSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://noesis.dev/schemas/analysis.json",
  "type": "object",
  "required": ["file_schema", "subsets"],
  "properties": {
    "file_schema": {
      "type": "object",
      "required": ["columns", "rowCount", "summary"],
      "properties": {
        "columns": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["name", "type"],
            "properties": {
              "name": { "type": "string", "minLength": 1 },
              "type": { "type": "string", "enum": ["number", "string", "date", "boolean"] },
              "description": { "type": "string" }
            }
          }
        },
        "rowCount": { "type": "integer", "minimum": 0 },
        "summary": { "type": "string" }
      }
    },
    "subsets": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["description", "xAxisName", "yAxisName", "dataPoints"],
        "properties": {
          "description": { "type": "string" },
          "xAxisName": { "type": "string" },
          "xAxisDescription": { "type": "string" },
          "yAxisName": { "type": "string" },
          "yAxisDescription": { "type": "string" },
          "dataPoints": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["x", "y"]
            }
          }
        }
      }
    }
  }
}`

// Completer is the one-shot model call the analyzer depends on.
type Completer interface {
	Complete(ctx context.Context, req anthropic.MessageRequest) (string, schema.Usage, error)
}

// Analyzer turns a dataset into a FileProcessingResult via one model call.
type Analyzer struct {
	model    Completer
	compiled *jsonschema.Schema
	logger   *slog.Logger
}

// NewAnalyzer compiles the output schema and returns an Analyzer.
func NewAnalyzer(model Completer, logger *slog.Logger) (*Analyzer, error) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(analysisSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal analysis schema: %w", err)
	}
	if err := c.AddResource("https://noesis.dev/schemas/analysis.json", doc); err != nil {
		return nil, fmt.Errorf("add analysis schema resource: %w", err)
	}
	compiled, err := c.Compile("https://noesis.dev/schemas/analysis.json")
	if err != nil {
		return nil, fmt.Errorf("compile analysis schema: %w", err)
	}
	return &Analyzer{model: model, compiled: compiled, logger: logger}, nil
}

// AnalyzeDataset runs the full pipeline: bounded context construction, one
// model call, strict shape validation, semantic validation. Every failure
// becomes the failure arm of the result union; the returned usage is
// whatever the model call consumed, zero when no call was made.
func (a *Analyzer) AnalyzeDataset(ctx context.Context, fileName string, ds *tabular.Dataset) (schema.FileProcessingResult, schema.Usage) {
	if ds.RowCount == 0 {
		return schema.ProcessingFailure(fmt.Sprintf("file %s contains no data rows", fileName)), schema.Usage{}
	}

	bounded := boundDataset(ds)
	req := anthropic.MessageRequest{
		System: analysisSystemPrompt,
		Messages: []schema.ChatMessage{
			{Role: "user", Content: renderAnalysisContext(fileName, ds, bounded)},
		},
	}

	text, usage, err := a.model.Complete(ctx, req)
	if err != nil {
		upstream := schema.NewErrorf(schema.ErrCodeUpstream, "model call failed: %v", err).WithCause(err)
		a.logger.ErrorContext(ctx, "analysis model call failed", slog.String("error", upstream.Error()))
		return schema.ProcessingFailure(upstream.Message), usage
	}

	result, err := a.parseResponse(text, ds.RowCount)
	if err != nil {
		a.logger.WarnContext(ctx, "analysis response rejected", slog.String("error", err.Error()))
		return schema.ProcessingFailure(err.Error()), usage
	}
	return result, usage
}

// parseResponse strips code fences, validates the JSON shape against the
// embedded schema, then applies the semantic checks JSON Schema cannot
// express. rowCount in the returned schema is forced to the extractor's
// count regardless of what the model reported.
func (a *Analyzer) parseResponse(text string, rowCount int) (schema.FileProcessingResult, error) {
	cleaned := stripCodeFences(text)

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(cleaned))
	if err != nil {
		return schema.FileProcessingResult{}, schema.NewErrorf(schema.ErrCodeProtocol,
			"model response is not valid JSON: %v", err).WithCause(err)
	}
	if err := a.compiled.Validate(doc); err != nil {
		return schema.FileProcessingResult{}, schema.NewErrorf(schema.ErrCodeValidation,
			"model response has invalid shape: %v", err).WithCause(err)
	}

	var parsed struct {
		FileSchema schema.FileSchema   `json:"file_schema"`
		Subsets    []schema.DataSubset `json:"subsets"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return schema.FileProcessingResult{}, schema.NewErrorf(schema.ErrCodeProtocol,
			"decode model response: %v", err).WithCause(err)
	}

	parsed.FileSchema.RowCount = rowCount
	if err := parsed.FileSchema.Validate(); err != nil {
		return schema.FileProcessingResult{}, err
	}
	for i := range parsed.Subsets {
		if err := parsed.Subsets[i].Validate(); err != nil {
			return schema.FileProcessingResult{}, err
		}
	}

	return schema.ProcessingSuccess(&parsed.FileSchema, parsed.Subsets), nil
}

// stripCodeFences removes an optional surrounding markdown fence.
func stripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
