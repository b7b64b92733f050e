package botclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
	"github.com/tbourn/go-bot-protocol/internal/sse"
)

var tracer = otel.Tracer("botclient")

// QueryEvent is one item produced while consuming a bot's stream: either a
// PartialResponse to forward upstream, or a terminal error ending the
// sequence (the channel is closed immediately after an error is sent).
type QueryEvent struct {
	Response protocol.PartialResponse
	Err      error
}

// PerformQuery posts req to botName and returns a channel of QueryEvents,
// one per response the decoded SSE events produce (ping, done and unknown
// events produce none), closed when the stream ends (successfully or
// with a terminal error as the last item). It opens one OpenTelemetry span
// for the attempt and guards the response Content-Type before yielding
// anything.
//
// apiKey, when non-empty, is sent as a Bearer Authorization header.
func (c *Client) PerformQuery(ctx context.Context, botName, apiKey string, req protocol.QueryRequest, attempt int) <-chan QueryEvent {
	out := make(chan QueryEvent)

	go func() {
		defer close(out)

		ctx, span := tracer.Start(ctx, "botclient.PerformQuery",
			trace.WithAttributes(
				attribute.String("bot.name", botName),
				attribute.Int("attempt", attempt),
			),
		)
		defer span.End()

		body, err := json.Marshal(req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			out <- QueryEvent{Err: fmt.Errorf("%w: marshal query: %v", protocol.ErrBotErrorNoRetry, err)}
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+botName, bytes.NewReader(body))
		if err != nil {
			span.RecordError(err)
			out <- QueryEvent{Err: fmt.Errorf("%w: build request: %v", protocol.ErrBotErrorNoRetry, err)}
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		if apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := c.httpClient().Do(httpReq)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			out <- QueryEvent{Err: protocol.WrapBotError(botName, err)}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			drained, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			err := fmt.Errorf("%w: status %d: %s", protocol.ErrBotError, resp.StatusCode, truncate(string(drained), 500))
			span.RecordError(err)
			out <- QueryEvent{Err: err}
			return
		}

		contentType := resp.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "text/event-stream") {
			err := fmt.Errorf("%w: got %q", protocol.ErrInvalidContentType, contentType)
			span.RecordError(err)
			out <- QueryEvent{Err: err}
			return
		}

		toolsInPlay := len(req.Tools) > 0
		state := newConsumeState(toolsInPlay)
		dec := sse.NewStreamDecoder(resp.Body)

		eventCount := 0
		for {
			ev, ok, err := dec.Next()
			if err != nil {
				span.RecordError(err)
				out <- QueryEvent{Err: protocol.WrapBotError(botName, err)}
				return
			}
			if !ok {
				c.reportError(ctx, botName, apiKey, "Bot exited without sending 'done' event")
				return
			}

			eventCount++
			if eventCount == protocol.MaxEventCount {
				// Soft guard: logged, never a hard error.
				c.logger().Warn().Str("bot", botName).Int("events", eventCount).
					Msg("stream exceeded the event-count guard")
			}

			res := state.handleEvent(ev.Event, ev.Data)
			if res.reportText != "" {
				c.reportError(ctx, botName, apiKey, res.reportText)
			}
			if res.yield != nil {
				select {
				case out <- QueryEvent{Response: *res.yield}:
				case <-ctx.Done():
					return
				}
			}
			if res.err != nil {
				out <- QueryEvent{Err: res.err}
				return
			}
			if res.done {
				return
			}
		}
	}()

	return out
}
