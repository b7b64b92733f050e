package botclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

// TestStreamRequest_RetriesBeforeAnyBytesYielded is invariant 5: a transport
// error on an attempt that produced no responses yet is retried.
func TestStreamRequest_RetriesBeforeAnyBytesYielded(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: text\r\ndata: {\"text\":\"ok\"}\r\n\r\nevent: done\r\ndata: {}\r\n\r\n")
	}))
	defer srv.Close()

	c := New(nil)
	c.BaseURL = srv.URL + "/"
	c.RetrySleep = time.Millisecond

	var events []QueryEvent
	for ev := range c.StreamRequest(context.Background(), "echobot", "", protocol.NewQueryRequest(nil)) {
		events = append(events, ev)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("attempts = %d; want 2", attempts)
	}
	if len(events) != 1 || events[0].Err != nil || events[0].Response.Text != "ok" {
		t.Fatalf("events = %+v", events)
	}
}

// TestStreamRequest_NoRetryAfterPartialYield is invariant 6: once an
// attempt has yielded a response, a subsequent error event with
// allow_retry false on that same attempt ends the stream after exactly one
// attempt.
func TestStreamRequest_NoRetryAfterPartialYield(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: text\r\ndata: {\"text\":\"partial\"}\r\n\r\nevent: error\r\ndata: {\"text\":\"boom\",\"allow_retry\":false}\r\n\r\n")
	}))
	defer srv.Close()

	c := New(nil)
	c.BaseURL = srv.URL + "/"
	c.RetrySleep = time.Millisecond

	var events []QueryEvent
	for ev := range c.StreamRequest(context.Background(), "echobot", "", protocol.NewQueryRequest(nil)) {
		events = append(events, ev)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("attempts = %d; want 1 (no-retry error must not trigger another attempt)", attempts)
	}
	if len(events) != 2 || events[0].Response.Text != "partial" || events[1].Err == nil {
		t.Fatalf("events = %+v", events)
	}
}

func TestStreamRequest_ExhaustsTriesAndWrapsFinalError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(nil)
	c.BaseURL = srv.URL + "/"
	c.NumTries = 3
	c.RetrySleep = time.Millisecond

	var last QueryEvent
	for ev := range c.StreamRequest(context.Background(), "echobot", "", protocol.NewQueryRequest(nil)) {
		last = ev
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("attempts = %d; want 3", attempts)
	}
	if last.Err == nil {
		t.Fatalf("want a final wrapped error")
	}
}

// A retryable error event on an attempt that already yielded a response is
// not retried; its final wrapped message must carry the "communicating with
// bot" context exactly once.
func TestStreamRequest_RetryableErrorAfterYieldWrapsOnce(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: text\r\ndata: {\"text\":\"partial\"}\r\n\r\nevent: error\r\ndata: {\"text\":\"boom\"}\r\n\r\n")
	}))
	defer srv.Close()

	c := New(nil)
	c.BaseURL = srv.URL + "/"
	c.NumTries = 3
	c.RetrySleep = time.Millisecond

	var last QueryEvent
	for ev := range c.StreamRequest(context.Background(), "echobot", "", protocol.NewQueryRequest(nil)) {
		last = ev
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("attempts = %d; want 1 (already yielded, plain error)", attempts)
	}
	if last.Err == nil {
		t.Fatalf("want a final wrapped error")
	}
	msg := last.Err.Error()
	if n := strings.Count(msg, "error communicating with bot"); n != 1 {
		t.Fatalf("final error wraps the bot context %d times, want 1: %q", n, msg)
	}
	if !strings.Contains(msg, "boom") {
		t.Fatalf("final error lost the event text: %q", msg)
	}
}

func TestStreamRequest_DefaultsAppliedWhenUnset(t *testing.T) {
	c := &Client{}
	if c.NumTries != 0 || c.RetrySleep != 0 {
		t.Fatalf("zero value client should carry zero fields before StreamRequest applies defaults")
	}
}
