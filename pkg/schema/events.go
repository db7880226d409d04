package schema

// Outbound event type constants for the chat stream protocol.
// One JSON object per line, discriminated by "type".
const (
	EventTextDelta    = "text_delta"
	EventToolStart    = "tool_start"
	EventCanvasUpdate = "canvas_update"
	EventToolFinish   = "tool_finish"
	EventError        = "error"
	EventDone         = "done"
)

// Usage holds best-effort token counts for one model turn.
type Usage struct {
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
}

// Outbound is one event of the outward chat stream. Exactly the fields
// relevant to the event type are set; the rest stay empty and are omitted
// from the wire encoding.
type Outbound struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
	Message     string `json:"message,omitempty"`
	Canvas      string `json:"canvas,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Error       string `json:"error,omitempty"`
	Usage       *Usage `json:"usage,omitempty"`
}

// TextDelta builds a text_delta event.
func TextDelta(text string) Outbound {
	return Outbound{Type: EventTextDelta, Text: text}
}

// ToolStart builds a tool_start event.
func ToolStart(toolName, message string) Outbound {
	return Outbound{Type: EventToolStart, ToolName: toolName, Message: message}
}

// CanvasUpdate builds a canvas_update event. The canvas argument is the raw
// JSON text of the new canvas, forwarded without re-encoding.
func CanvasUpdate(canvas, explanation string) Outbound {
	return Outbound{Type: EventCanvasUpdate, Canvas: canvas, Explanation: explanation}
}

// ToolFinish builds a tool_finish event.
func ToolFinish(toolName string) Outbound {
	return Outbound{Type: EventToolFinish, ToolName: toolName}
}

// ErrorEvent builds an error event.
func ErrorEvent(msg string) Outbound {
	return Outbound{Type: EventError, Error: msg}
}

// Done builds the terminal done event. A nil usage becomes an empty record
// so the wire shape always carries a "usage" key.
func Done(usage *Usage) Outbound {
	if usage == nil {
		usage = &Usage{}
	}
	return Outbound{Type: EventDone, Usage: usage}
}
