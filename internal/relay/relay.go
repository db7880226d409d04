// Package relay translates one upstream model turn into the outward chat
// stream protocol. It forwards text tokens verbatim, assembles the single
// permitted tool call from partial-JSON fragments, and guarantees the
// canvas update is delivered at most once per turn in valid form, even
// when the upstream never closes the tool block before ending the turn.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/noesis-labs/noesis/internal/anthropic"
	"github.com/noesis-labs/noesis/pkg/schema"
)

// Emitter delivers one outward event to the client sink. A returned error
// means the sink is gone (client disconnect); the relay stops promptly.
type Emitter func(schema.Outbound) error

// State is the relay's position within one model turn.
type State string

const (
	StateIdle             State = "idle"
	StateTextStreaming    State = "text_streaming"
	StateToolAccumulating State = "tool_accumulating"
)

// accumulator buffers the tool call of one turn. Owned exclusively by a
// single Run invocation; reset exactly once when the call is flushed.
type accumulator struct {
	toolName string
	buffer   strings.Builder
	open     bool
}

func (a *accumulator) reset() {
	a.toolName = ""
	a.buffer.Reset()
	a.open = false
}

// Relay consumes upstream events for one turn and emits outward events.
// A Relay value is stateless; per-turn state lives inside Run.
type Relay struct {
	toolName string
	logger   *slog.Logger
}

// New creates a Relay that recognizes the given tool name.
func New(toolName string, logger *slog.Logger) *Relay {
	return &Relay{toolName: toolName, logger: logger}
}

// Run drives one turn: it consumes events until message_stop or a stream
// error, emitting outward events in order. The returned usage is the
// turn's best-effort token accounting, nil when the turn ended without a
// message_stop. Upstream failures surface as a single outward error event,
// never as a panic or an unhandled fault.
func (r *Relay) Run(ctx context.Context, events <-chan anthropic.Event, emit Emitter) (usage *schema.Usage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "relay panic", slog.Any("panic", rec))
			_ = emit(schema.ErrorEvent(fmt.Sprintf("internal error: %v", rec)))
			err = fmt.Errorf("relay panic: %v", rec)
		}
	}()

	state := StateIdle
	var acc accumulator

	for {
		var ev anthropic.Event
		var ok bool
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok = <-events:
			if !ok {
				// Upstream ended without message_stop: the caller treats
				// stream-end-without-done as an incomplete turn.
				return nil, nil
			}
		}

		switch ev.Kind {
		case anthropic.KindBlockStart:
			switch {
			case ev.Block == anthropic.BlockText:
				state = StateTextStreaming
			case ev.Block == anthropic.BlockToolUse && ev.ToolName == r.toolName:
				acc.reset()
				acc.toolName = ev.ToolName
				acc.open = true
				state = StateToolAccumulating
				if err := emit(schema.ToolStart(ev.ToolName, "🔧 Editing canvas...")); err != nil {
					return nil, err
				}
			default:
				// Unrecognized block kinds are inert: no outward event,
				// no state change, and their deltas are ignored below.
			}

		case anthropic.KindBlockDelta:
			if ev.Text != "" {
				if err := emit(schema.TextDelta(ev.Text)); err != nil {
					return nil, err
				}
			}
			if state == StateToolAccumulating && ev.PartialJSON != "" {
				acc.buffer.WriteString(ev.PartialJSON)
			}

		case anthropic.KindBlockStop:
			if state == StateToolAccumulating && acc.buffer.Len() > 0 {
				if err := r.flush(&acc, emit); err != nil {
					return nil, err
				}
			}
			state = StateIdle

		case anthropic.KindMessageStop:
			// The upstream is not guaranteed to close the tool block before
			// ending the turn. Flushing here, guarded by the empty-buffer
			// check, keeps canvas_update at-most-once per turn.
			if acc.open && acc.buffer.Len() > 0 {
				if err := r.flush(&acc, emit); err != nil {
					return nil, err
				}
			}
			if err := emit(schema.Done(ev.Usage)); err != nil {
				return nil, err
			}
			return ev.Usage, nil

		case anthropic.KindStreamError:
			r.logger.ErrorContext(ctx, "upstream stream failed", slog.String("error", ev.Err.Error()))
			if emitErr := emit(schema.ErrorEvent(ev.Err.Error())); emitErr != nil {
				return nil, emitErr
			}
			return nil, ev.Err
		}
	}
}

// toolInput is the outer tool-argument shape.
type toolInput struct {
	CanvasJSON  string `json:"canvas_json"`
	Explanation string `json:"explanation"`
}

// flush performs the two-stage parse of the accumulated tool argument and
// emits either canvas_update + tool_finish or a single error event. Either
// way the accumulator is cleared, so a later flush finds nothing to do.
func (r *Relay) flush(acc *accumulator, emit Emitter) error {
	raw := acc.buffer.String()
	toolName := acc.toolName
	acc.reset()

	var input toolInput
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return emit(schema.ErrorEvent(fmt.Sprintf("invalid tool arguments: %v", err)))
	}
	// The canvas text is validated but never re-encoded, so formatting and
	// numeric precision pass through untouched.
	if !json.Valid([]byte(input.CanvasJSON)) {
		return emit(schema.ErrorEvent("invalid canvas JSON in tool arguments"))
	}

	if err := emit(schema.CanvasUpdate(input.CanvasJSON, input.Explanation)); err != nil {
		return err
	}
	return emit(schema.ToolFinish(toolName))
}
