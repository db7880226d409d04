package anthropic

import (
	"encoding/json"

	"github.com/noesis-labs/noesis/pkg/schema"
)

// EventKind is the closed set of upstream stream event tags the relay
// switches on. Wire events outside this set never surface: the adapter
// drops them before they reach a consumer.
type EventKind string

const (
	KindBlockStart  EventKind = "content_block_start"
	KindBlockDelta  EventKind = "content_block_delta"
	KindBlockStop   EventKind = "content_block_stop"
	KindMessageStop EventKind = "message_stop"
	KindStreamError EventKind = "stream_error"
)

// BlockType classifies a content block.
type BlockType string

const (
	BlockText    BlockType = "text"
	BlockToolUse BlockType = "tool_use"
	BlockOther   BlockType = "other"
)

// Event is one upstream streaming event, decoded into an explicit tagged
// union so consumers never probe wire structures for optional fields.
type Event struct {
	Kind        EventKind
	Block       BlockType     // block_start only
	ToolName    string        // block_start of a tool_use block only
	Text        string        // block_delta text fragment
	PartialJSON string        // block_delta tool-argument fragment
	Usage       *schema.Usage // message_stop, when final usage is known
	Err         error         // stream_error only
}

// Tool is a tool definition offered to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// MessageRequest describes one model turn.
type MessageRequest struct {
	System   string
	Messages []schema.ChatMessage
	Tools    []Tool
}

// EditCanvasToolName is the single tool the chat stream recognizes.
const EditCanvasToolName = "edit_canvas"

const editCanvasInputSchema = `{
  "type": "object",
  "properties": {
    "canvas_json": {
      "type": "string",
      "description": "The complete new canvas JSON structure with nodes and edges"
    },
    "explanation": {
      "type": "string",
      "description": "Brief explanation of what was changed"
    }
  },
  "required": ["canvas_json", "explanation"]
}`

// EditCanvasTool returns the canvas-editing tool definition.
func EditCanvasTool() Tool {
	return Tool{
		Name:        EditCanvasToolName,
		Description: "Edit the canvas by modifying its JSON structure. Use this to add, remove, or modify nodes and edges on the canvas.",
		InputSchema: json.RawMessage(editCanvasInputSchema),
	}
}
