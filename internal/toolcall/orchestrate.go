package toolcall

import (
	"context"

	"github.com/tbourn/go-bot-protocol/internal/botclient"
	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

// Streamer is the subset of *botclient.Client the orchestrator needs: one
// retried round-trip per round.
type Streamer interface {
	StreamRequest(ctx context.Context, botName, apiKey string, req protocol.QueryRequest) <-chan botclient.QueryEvent
}

// Run drives the two-round tool-call protocol on top of a plain
// botclient.Client: round 1 runs req (with Tools set) to
// completion, silently gathering tool-call deltas from each PartialResponse's
// Data payload; round 1's text is not forwarded upstream, matching "collect
// calls" rather than "stream a reply." Collected calls are aggregated by
// ascending index and dispatched to executables, whose live status partials
// are forwarded upstream as they arrive. Round 2 then reissues req with
// ToolCalls/ToolResults attached and forwards its events upstream verbatim,
// exactly as if it were the only round.
func Run(ctx context.Context, client Streamer, botName, apiKey string, req protocol.QueryRequest, executables []Executable) <-chan botclient.QueryEvent {
	out := make(chan botclient.QueryEvent)

	go func() {
		defer close(out)

		round1 := req
		round1.ToolCalls = nil
		round1.ToolResults = nil

		agg := NewAggregator()
		var round1Err error
		for ev := range client.StreamRequest(ctx, botName, apiKey, round1) {
			if ev.Err != nil {
				round1Err = ev.Err
				break
			}
			for _, d := range ExtractDeltas(ev.Response.Data) {
				agg.Add(d)
			}
		}
		if round1Err != nil {
			select {
			case out <- botclient.QueryEvent{Err: round1Err}:
			case <-ctx.Done():
			}
			return
		}

		calls := agg.Finish()
		if len(calls) == 0 {
			calls = nil
		}

		var results []protocol.ToolResultDefinition
		if len(calls) > 0 {
			results = Dispatch(ctx, calls, executables, func(p protocol.PartialResponse) {
				select {
				case out <- botclient.QueryEvent{Response: p}:
				case <-ctx.Done():
				}
			})
		}

		round2 := req
		round2.ToolCalls = calls
		round2.ToolResults = results

		for ev := range client.StreamRequest(ctx, botName, apiKey, round2) {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Err != nil {
				return
			}
		}
	}()

	return out
}
