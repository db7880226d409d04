package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noesis-labs/noesis/internal/anthropic"
	"github.com/noesis-labs/noesis/pkg/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func feed(events ...anthropic.Event) <-chan anthropic.Event {
	ch := make(chan anthropic.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

type sink struct {
	events []schema.Outbound
	failAt int // fail on the nth emit (1-based); 0 never fails
}

func (s *sink) emit(ev schema.Outbound) error {
	if s.failAt > 0 && len(s.events)+1 >= s.failAt {
		return errors.New("sink closed")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *sink) types() []string {
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func blockStart(block anthropic.BlockType, toolName string) anthropic.Event {
	return anthropic.Event{Kind: anthropic.KindBlockStart, Block: block, ToolName: toolName}
}

func textDelta(text string) anthropic.Event {
	return anthropic.Event{Kind: anthropic.KindBlockDelta, Text: text}
}

func jsonDelta(fragment string) anthropic.Event {
	return anthropic.Event{Kind: anthropic.KindBlockDelta, PartialJSON: fragment}
}

func blockStop() anthropic.Event {
	return anthropic.Event{Kind: anthropic.KindBlockStop}
}

func messageStop(usage *schema.Usage) anthropic.Event {
	return anthropic.Event{Kind: anthropic.KindMessageStop, Usage: usage}
}

func run(t *testing.T, s *sink, events ...anthropic.Event) (*schema.Usage, error) {
	t.Helper()
	r := New(anthropic.EditCanvasToolName, testLogger())
	return r.Run(context.Background(), feed(events...), s.emit)
}

func TestTextOnlyTurn(t *testing.T) {
	s := &sink{}
	usage, err := run(t, s,
		blockStart(anthropic.BlockText, ""),
		textDelta("Hel"),
		textDelta("lo"),
		blockStop(),
		messageStop(&schema.Usage{InputTokens: 10, OutputTokens: 2}),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"text_delta", "text_delta", "done"}, s.types())
	assert.Equal(t, "Hel", s.events[0].Text)
	assert.Equal(t, "lo", s.events[1].Text)
	require.NotNil(t, usage)
	assert.Equal(t, int64(10), usage.InputTokens)
}

func TestToolCallWithExplicitBlockStop(t *testing.T) {
	s := &sink{}
	_, err := run(t, s,
		blockStart(anthropic.BlockToolUse, "edit_canvas"),
		jsonDelta(`{"canvas_json":"{\"nodes\":[],\"edges\":[]}",`),
		jsonDelta(`"explanation":"cleared"}`),
		blockStop(),
		messageStop(nil),
	)
	require.NoError(t, err)

	require.Equal(t, []string{"tool_start", "canvas_update", "tool_finish", "done"}, s.types())
	assert.Equal(t, "edit_canvas", s.events[0].ToolName)
	assert.Equal(t, `{"nodes":[],"edges":[]}`, s.events[1].Canvas)
	assert.Equal(t, "cleared", s.events[1].Explanation)
	assert.Equal(t, "edit_canvas", s.events[2].ToolName)
}

// The upstream may end the turn without closing the tool block; the flush
// must then happen at message_stop, before done.
func TestToolCallFlushedAtMessageStop(t *testing.T) {
	s := &sink{}
	_, err := run(t, s,
		blockStart(anthropic.BlockToolUse, "edit_canvas"),
		jsonDelta(`{"canvas_json":"{\"nodes\":[]`),
		jsonDelta(`,\"edges\":[]}","explanation":"cleared"}`),
		messageStop(nil),
	)
	require.NoError(t, err)

	require.Equal(t, []string{"tool_start", "canvas_update", "tool_finish", "done"}, s.types())
	assert.Equal(t, `{"nodes":[],"edges":[]}`, s.events[1].Canvas)
	assert.Equal(t, "cleared", s.events[1].Explanation)
}

func TestNoDoubleEmitWhenBlockStopAlreadyFlushed(t *testing.T) {
	s := &sink{}
	_, err := run(t, s,
		blockStart(anthropic.BlockToolUse, "edit_canvas"),
		jsonDelta(`{"canvas_json":"{}","explanation":"noop"}`),
		blockStop(),
		messageStop(nil),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"tool_start", "canvas_update", "tool_finish", "done"}, s.types())
}

func TestMalformedOuterJSON(t *testing.T) {
	s := &sink{}
	_, err := run(t, s,
		blockStart(anthropic.BlockToolUse, "edit_canvas"),
		jsonDelta(`{"canvas_json":"{}"`), // dangling, never closed
		messageStop(nil),
	)
	require.NoError(t, err)

	require.Equal(t, []string{"tool_start", "error", "done"}, s.types())
	assert.Contains(t, s.events[1].Error, "invalid tool arguments")
}

func TestMalformedInnerCanvasJSON(t *testing.T) {
	s := &sink{}
	_, err := run(t, s,
		blockStart(anthropic.BlockToolUse, "edit_canvas"),
		jsonDelta(`{"canvas_json":"{\"nodes\":","explanation":"broken"}`),
		blockStop(),
		messageStop(nil),
	)
	require.NoError(t, err)

	require.Equal(t, []string{"tool_start", "error", "done"}, s.types())
	assert.Contains(t, s.events[1].Error, "invalid canvas JSON")
}

func TestMissingCanvasJSONFieldRejected(t *testing.T) {
	s := &sink{}
	_, err := run(t, s,
		blockStart(anthropic.BlockToolUse, "edit_canvas"),
		jsonDelta(`{"explanation":"only text"}`),
		blockStop(),
		messageStop(nil),
	)
	require.NoError(t, err)

	// A whole-reject: the valid explanation field is not salvaged.
	require.Equal(t, []string{"tool_start", "error", "done"}, s.types())
}

func TestParseFailureDoesNotEndTurn(t *testing.T) {
	s := &sink{}
	_, err := run(t, s,
		blockStart(anthropic.BlockToolUse, "edit_canvas"),
		jsonDelta(`not json`),
		blockStop(),
		blockStart(anthropic.BlockText, ""),
		textDelta("trailing text"),
		blockStop(),
		messageStop(nil),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"tool_start", "error", "text_delta", "done"}, s.types())
}

func TestUnrecognizedToolIsInert(t *testing.T) {
	s := &sink{}
	_, err := run(t, s,
		blockStart(anthropic.BlockToolUse, "other_tool"),
		jsonDelta(`{"anything":1}`),
		blockStop(),
		messageStop(nil),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, s.types())
}

func TestUnknownBlockKindIsInert(t *testing.T) {
	s := &sink{}
	_, err := run(t, s,
		blockStart(anthropic.BlockOther, ""),
		blockStop(),
		messageStop(nil),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, s.types())
}

func TestDoneIsAlwaysLastAndCarriesUsage(t *testing.T) {
	s := &sink{}
	usage, err := run(t, s,
		blockStart(anthropic.BlockText, ""),
		textDelta("hi"),
		messageStop(&schema.Usage{InputTokens: 7, OutputTokens: 3}),
	)
	require.NoError(t, err)

	last := s.events[len(s.events)-1]
	assert.Equal(t, schema.EventDone, last.Type)
	require.NotNil(t, last.Usage)
	assert.Equal(t, int64(3), last.Usage.OutputTokens)
	assert.Equal(t, usage, last.Usage)
}

func TestStreamErrorEmitsSingleErrorWithoutDone(t *testing.T) {
	s := &sink{}
	_, err := run(t, s,
		blockStart(anthropic.BlockText, ""),
		textDelta("partial"),
		anthropic.Event{Kind: anthropic.KindStreamError, Err: errors.New("connection reset")},
	)
	require.Error(t, err)

	assert.Equal(t, []string{"text_delta", "error"}, s.types())
	assert.Contains(t, s.events[1].Error, "connection reset")
}

func TestUpstreamCloseWithoutMessageStop(t *testing.T) {
	s := &sink{}
	usage, err := run(t, s,
		blockStart(anthropic.BlockText, ""),
		textDelta("partial"),
	)
	require.NoError(t, err)
	assert.Nil(t, usage)
	assert.Equal(t, []string{"text_delta"}, s.types(), "no done: incomplete turn")
}

func TestEmitterFailureStopsProduction(t *testing.T) {
	s := &sink{failAt: 2}
	_, err := run(t, s,
		blockStart(anthropic.BlockText, ""),
		textDelta("one"),
		textDelta("two"),
		textDelta("three"),
		messageStop(nil),
	)
	require.Error(t, err)
	assert.Equal(t, []string{"text_delta"}, s.types())
}

func TestContextCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan anthropic.Event) // never fed
	s := &sink{}
	r := New(anthropic.EditCanvasToolName, testLogger())
	_, err := r.Run(ctx, ch, s.emit)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.events)
}
