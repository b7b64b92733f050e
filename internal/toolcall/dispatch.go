package toolcall

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

// Item is one element of an executable's lazy result sequence: either a
// live-status PartialResponse forwarded upstream immediately, or a
// terminal Result ending the sequence.
type Item struct {
	Partial *protocol.PartialResponse
	Result  *protocol.AsyncResult
}

// RunFunc executes one tool call's arguments and streams Items on the
// returned channel, closing it when the call is complete.
type RunFunc func(ctx context.Context, arguments json.RawMessage) <-chan Item

// Executable binds a tool's camelCase name (matched against a call's
// function.name after conversion to snake_case) to its implementation.
type Executable struct {
	Name string
	Run  RunFunc
}

// byExecutableKey builds the camel→snake lookup table described in the
// component design: a call's function.name arrives in snake_case, so
// executables are indexed by the snake_case form of their own name.
func byExecutableKey(executables []Executable) map[string]Executable {
	m := make(map[string]Executable, len(executables))
	for _, e := range executables {
		m[protocol.CamelToSnake(e.Name)] = e
	}
	return m
}

// Dispatch runs each tool call in order against the matching executable,
// forwarding live PartialResponse items via onPartial as they arrive, and
// returns the resulting ToolResultDefinitions in call order. Calls whose
// function.name has no matching executable are skipped silently, per the
// component design.
func Dispatch(ctx context.Context, calls []protocol.ToolCallDefinition, executables []Executable, onPartial func(protocol.PartialResponse)) []protocol.ToolResultDefinition {
	byName := byExecutableKey(executables)

	results := make([]protocol.ToolResultDefinition, 0, len(calls))
	for _, call := range calls {
		exe, ok := byName[call.Function.Name]
		if !ok {
			observeDispatch(call.Function.Name, "skipped", time.Now())
			continue
		}

		start := time.Now()
		var args json.RawMessage
		if call.Function.Arguments != "" {
			// Invalid JSON arguments are passed through verbatim; it is the
			// executable's responsibility to reject arguments it cannot parse.
			args = json.RawMessage(call.Function.Arguments)
		}

		var resultValue any
		for item := range exe.Run(ctx, args) {
			switch {
			case item.Partial != nil:
				if onPartial != nil {
					onPartial(*item.Partial)
				}
			case item.Result != nil:
				resultValue = item.Result.Result
			}
		}

		content, err := json.Marshal(resultValue)
		outcome := "ok"
		if err != nil {
			content = []byte("null")
			outcome = "error"
		}
		observeDispatch(call.Function.Name, outcome, start)
		results = append(results, protocol.ToolResultDefinition{
			Role:       "tool",
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    string(content),
		})
	}
	return results
}
