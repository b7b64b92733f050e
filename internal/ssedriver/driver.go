// Package ssedriver drives a single streaming HTTP response: it consumes a
// handler's lazy sequence of response items, SSE-encodes each one, and
// interleaves heartbeats and cooperative shutdown with it. It is the layer
// that sits between internal/botserver's query handler and the raw
// http.ResponseWriter.
//
// The drive loop runs three concurrent tasks (emitter, heartbeat, close
// watcher); whichever finishes first wins and the rest are cancelled
// cooperatively. Only the emitter's write path touches the response writer;
// heartbeats go through the same writer function.
package ssedriver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-bot-protocol/internal/observability"
	"github.com/tbourn/go-bot-protocol/internal/protocol"
	"github.com/tbourn/go-bot-protocol/internal/sse"
)

var tracer = otel.Tracer("ssedriver")

// DefaultPing is the heartbeat period used when Config.Ping is unset.
const DefaultPing = 15 * time.Second

// errSendTimeout marks a write that did not complete within Config.SendTimeout.
var errSendTimeout = errors.New("ssedriver: send timeout")

// Config configures one driven stream.
type Config struct {
	// Ping is the heartbeat period. Zero defaults to DefaultPing.
	Ping time.Duration

	// Sep is the line separator used by the SSE encoder. Empty defaults to
	// sse.CRLF.
	Sep sse.Separator

	// SendTimeout bounds each individual SSE write. Zero disables the
	// timeout (the default): writes block for as long as the transport
	// allows.
	SendTimeout time.Duration

	// PingMessageFactory, if set, produces the heartbeat event in place of
	// the default comment-style ping.
	PingMessageFactory func() sse.Event

	// Headers are additional response headers. A header here with the same
	// name as one of the mandatory SSE headers overrides it; otherwise the
	// mandatory headers stand.
	Headers map[string]string

	// Finalize, if set, runs after the handler's event sequence completes
	// and before the terminal done event is written. The dispatcher uses it
	// to await and drain the request's pending attachment uploads. A
	// Finalize error is reported to the peer as one final error event with
	// retry disallowed; done is still written afterwards.
	Finalize func(ctx context.Context) error

	// DataSender, if set, is an optional producer task run alongside the
	// emitter (typically the goroutine feeding the event channel). It joins
	// the drive loop's first-to-finish race: when it returns, the stream
	// winds down like any other task, and its error ends the stream.
	DataSender func(ctx context.Context) error
}

// Item is one thing the handler's event sequence can produce: either a
// protocol response to translate into an SSE event, or a pre-built SSE event
// to pass through unchanged (Raw.Event is already set by the handler).
type Item struct {
	Response *protocol.PartialResponse
	Raw      *sse.Event
}

// ResponseItem wraps a protocol.PartialResponse as an Item.
func ResponseItem(r protocol.PartialResponse) Item { return Item{Response: &r} }

// RawItem wraps a pre-built sse.Event as an Item, passed through verbatim.
func RawItem(ev sse.Event) Item { return Item{Raw: &ev} }

type taskResult struct {
	task string
	err  error
}

// Drive runs the streaming response loop for one query. events is the
// handler's lazy item sequence; Drive consumes it until it closes, the
// request's context is cancelled, or a write fails or times out. It always
// writes the mandatory SSE headers and closes the stream exactly once.
//
// botName labels the observability counters and the trace span; it does not
// otherwise affect behavior.
func Drive(ctx context.Context, w http.ResponseWriter, r *http.Request, botName string, events <-chan Item, cfg Config) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("ssedriver: response writer does not support flushing")
	}

	ping := cfg.Ping
	if ping <= 0 {
		ping = DefaultPing
	}
	sep := cfg.Sep
	if sep == "" {
		sep = sse.CRLF
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	for k, v := range cfg.Headers {
		h.Set(k, v)
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	closeStream := observability.StreamOpened(botName)
	defer closeStream()

	ctx, span := tracer.Start(ctx, "ssedriver.Drive", trace.WithAttributes(attribute.String("bot.name", botName)))
	defer span.End()

	driveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	enc := sse.NewEncoder(w, sep)
	var writeMu sync.Mutex

	write := func(ev sse.Event) error {
		writeMu.Lock()
		defer writeMu.Unlock()

		if cfg.SendTimeout <= 0 {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		done := make(chan error, 1)
		go func() {
			err := enc.Encode(ev)
			if err == nil {
				flusher.Flush()
			}
			done <- err
		}()
		select {
		case err := <-done:
			return err
		case <-time.After(cfg.SendTimeout):
			go func() { <-done }() // drain so the encode goroutine never leaks
			return errSendTimeout
		}
	}

	tasks := 3
	if cfg.DataSender != nil {
		tasks = 4
	}
	results := make(chan taskResult, tasks)

	go runEmitter(driveCtx, events, write, botName, results)
	go runHeartbeat(driveCtx, ping, cfg.PingMessageFactory, write, results)
	go runCloseWatcher(driveCtx, r, results)
	if cfg.DataSender != nil {
		go func() {
			results <- taskResult{task: "data_sender", err: cfg.DataSender(driveCtx)}
		}()
	}

	first := <-results
	cancel()
	for i := 1; i < tasks; i++ {
		<-results
	}

	if errors.Is(first.err, errSendTimeout) {
		_ = enc.Encode(sse.Event{
			Event: "error",
			Data:  `{"text":"error sse write timeout","allow_retry":false}`,
		})
		flusher.Flush()
		return first.err
	}

	// The terminal done event is written only when the handler's sequence
	// completed and the transport is still healthy. A peer disconnect or a
	// failed write ends the stream without one.
	if first.task == "emitter" && first.err == nil {
		if cfg.Finalize != nil {
			if ferr := cfg.Finalize(ctx); ferr != nil {
				resp := protocol.NewError(ferr.Error(), false, "")
				_ = write(sse.Event{Event: "error", Data: errorJSON(&resp)})
			}
		}
		if err := write(doneEvent()); err != nil {
			return err
		}
	}

	return first.err
}

func doneEvent() sse.Event {
	return sse.Event{Event: "done", Data: "{}"}
}

func runEmitter(ctx context.Context, events <-chan Item, write func(sse.Event) error, botName string, results chan<- taskResult) {
	for {
		select {
		case <-ctx.Done():
			// Cancelled mid-pump: either the peer went away or another task
			// failed first. Surfacing ctx.Err keeps this distinguishable
			// from a normally completed sequence, so no done event follows.
			results <- taskResult{task: "emitter", err: ctx.Err()}
			return
		case item, ok := <-events:
			if !ok {
				results <- taskResult{task: "emitter", err: nil}
				return
			}
			ev := translate(item)
			observability.ObserveStreamEvent(botName, ev.Event)
			if err := write(ev); err != nil {
				results <- taskResult{task: "emitter", err: err}
				return
			}
		}
	}
}

func runHeartbeat(ctx context.Context, ping time.Duration, factory func() sse.Event, write func(sse.Event) error, results chan<- taskResult) {
	t := time.NewTicker(ping)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			results <- taskResult{task: "heartbeat", err: nil}
			return
		case <-t.C:
			ev := defaultPing()
			if factory != nil {
				ev = factory()
			}
			if err := write(ev); err != nil {
				results <- taskResult{task: "heartbeat", err: err}
				return
			}
		}
	}
}

func runCloseWatcher(ctx context.Context, r *http.Request, results chan<- taskResult) {
	select {
	case <-ctx.Done():
		results <- taskResult{task: "close_watcher", err: nil}
	case <-r.Context().Done():
		results <- taskResult{task: "close_watcher", err: r.Context().Err()}
	}
}

func defaultPing() sse.Event {
	return sse.Event{Comment: "ping - " + time.Now().UTC().Format(time.RFC3339)}
}

// translate maps one handler item onto the SSE event it produces, per the
// handler -> event translation rules: raw events pass through unchanged,
// MetaResponse/ErrorResponse/PartialResponse (all modeled as
// protocol.PartialResponse, discriminated by Kind and flags) map onto
// meta/error/suggested_reply/replace_response/text.
func translate(item Item) sse.Event {
	if item.Raw != nil && item.Raw.Event != "" {
		return *item.Raw
	}

	resp := item.Response
	if resp == nil {
		return sse.Event{Event: "text", Data: textJSON("")}
	}

	switch resp.Kind {
	case protocol.KindMeta:
		return sse.Event{Event: "meta", Data: metaJSON(resp)}
	case protocol.KindError:
		return sse.Event{Event: "error", Data: errorJSON(resp)}
	default:
		switch {
		case resp.IsSuggestedReply:
			return sse.Event{Event: "suggested_reply", Data: textJSON(resp.Text)}
		case resp.IsReplaceResponse:
			return sse.Event{Event: "replace_response", Data: textJSON(resp.Text), ID: resp.RequestID}
		default:
			return sse.Event{Event: "text", Data: textJSON(resp.Text), ID: resp.RequestID}
		}
	}
}

func textJSON(text string) string {
	b, _ := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	return string(b)
}

func metaJSON(resp *protocol.PartialResponse) string {
	b, _ := json.Marshal(struct {
		Linkify          bool                 `json:"linkify"`
		SuggestedReplies bool                 `json:"suggested_replies"`
		ContentType      protocol.ContentType `json:"content_type"`
		RefetchSettings  bool                 `json:"refetch_settings"`
	}{
		Linkify:          resp.Linkify,
		SuggestedReplies: resp.SuggestedReplies,
		ContentType:      resp.ContentType,
		RefetchSettings:  resp.RefetchSettings,
	})
	return string(b)
}

// errorJSON serializes an error event's payload. Unlike every other event,
// the wire keys here are camelCase (allowRetry, errorType); only the
// synthetic send-timeout trailer uses allow_retry.
func errorJSON(resp *protocol.PartialResponse) string {
	b, _ := json.Marshal(struct {
		Text       string `json:"text"`
		AllowRetry bool   `json:"allowRetry"`
		ErrorType  string `json:"errorType,omitempty"`
	}{
		Text:       resp.Text,
		AllowRetry: resp.AllowRetry,
		ErrorType:  resp.ErrorType,
	})
	return string(b)
}
