// Package toolcall implements the tool (function) call orchestration used
// when both tools and tool_executables are supplied to the bot client's
// stream_request: aggregating streamed call deltas into complete calls
// ordered by index, dispatching each to a local executable in order, and
// shaping the results back into ToolResultDefinitions for the second query
// round.
package toolcall

import (
	"encoding/json"
	"sort"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

// Delta is one streamed tool-call fragment extracted from a PartialResponse's
// dynamic data payload.
type Delta struct {
	Index             int
	ID                string
	Type              string
	FunctionName      string
	ArgumentsFragment string
}

// toolCallDataShape mirrors the subset of choices[0].delta.tool_calls this
// package cares about. Extraction degrades gracefully to "skip this delta"
// on any shape mismatch, per the design note on dynamic tool-call deltas —
// it never panics or returns an error for malformed input.
type toolCallDataShape struct {
	Choices []struct {
		Delta struct {
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
}

// ExtractDeltas pulls tool-call deltas out of a PartialResponse's Data
// field. A nil/empty payload, or one that does not match the expected
// shape, yields no deltas rather than an error.
func ExtractDeltas(data json.RawMessage) []Delta {
	if len(data) == 0 {
		return nil
	}
	var shape toolCallDataShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil
	}
	if len(shape.Choices) == 0 {
		return nil
	}
	deltas := make([]Delta, 0, len(shape.Choices[0].Delta.ToolCalls))
	for _, tc := range shape.Choices[0].Delta.ToolCalls {
		deltas = append(deltas, Delta{
			Index:             tc.Index,
			ID:                tc.ID,
			Type:              tc.Type,
			FunctionName:      tc.Function.Name,
			ArgumentsFragment: tc.Function.Arguments,
		})
	}
	return deltas
}

// Aggregator concatenates same-index deltas, in arrival order, into
// complete tool calls. It is not safe for concurrent use; round 1 of the
// tool orchestrator feeds it from a single consumption loop.
type Aggregator struct {
	calls map[int]*protocol.ToolCallDefinition
	order []int
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{calls: make(map[int]*protocol.ToolCallDefinition)}
}

// Add folds one delta into its call, creating the call on first sight of
// its index and appending subsequent argument fragments as a string.
func (a *Aggregator) Add(d Delta) {
	call, ok := a.calls[d.Index]
	if !ok {
		call = &protocol.ToolCallDefinition{Index: d.Index}
		a.calls[d.Index] = call
		a.order = append(a.order, d.Index)
	}
	if d.ID != "" {
		call.ID = d.ID
	}
	if d.Type != "" {
		call.Type = d.Type
	}
	if d.FunctionName != "" {
		call.Function.Name = d.FunctionName
	}
	call.Function.Arguments += d.ArgumentsFragment
}

// Finish returns the aggregated calls sorted by ascending index, per the
// ordering guarantee that final tool-call ordering is by index, not
// arrival time.
func (a *Aggregator) Finish() []protocol.ToolCallDefinition {
	indices := make([]int, len(a.order))
	copy(indices, a.order)
	sort.Ints(indices)

	out := make([]protocol.ToolCallDefinition, 0, len(indices))
	for _, idx := range indices {
		out = append(out, *a.calls[idx])
	}
	return out
}
