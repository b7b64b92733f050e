package ssedriver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
	"github.com/tbourn/go-bot-protocol/internal/sse"
)

// blockingRecorder wraps httptest.ResponseRecorder, adding an artificial
// delay to every Write so send-timeout behavior can be exercised without a
// real slow network peer.
type blockingRecorder struct {
	*httptest.ResponseRecorder
	delay time.Duration
	mu    sync.Mutex
}

func (b *blockingRecorder) Write(p []byte) (int, error) {
	time.Sleep(b.delay)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ResponseRecorder.Write(p)
}

// WriteString overrides the embedded ResponseRecorder's WriteString so that
// io.WriteString (used by the SSE encoder) can't bypass the delay injected
// above by going straight to the embedded type's io.StringWriter method.
func (b *blockingRecorder) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

func (b *blockingRecorder) Flush() { b.ResponseRecorder.Flush() }

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodPost, "/echobot", nil)
}

func TestDrive_EmitsTranslatedTextEventAndMandatoryHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequest(t)

	events := make(chan Item, 1)
	events <- ResponseItem(protocol.NewPartial("hello"))
	close(events)

	err := Drive(context.Background(), w, r, "echobot", events, Config{})
	if err != nil {
		t.Fatalf("Drive() error: %v", err)
	}

	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if got := w.Header().Get("Connection"); got != "keep-alive" {
		t.Fatalf("Connection = %q", got)
	}
	if got := w.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Fatalf("X-Accel-Buffering = %q", got)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: text") {
		t.Fatalf("expected text event in body, got: %q", body)
	}
	if !strings.Contains(body, `data: {"text":"hello"}`) {
		t.Fatalf("expected text payload in body, got: %q", body)
	}
}

func TestDrive_DoneIsAlwaysTheLastEvent(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequest(t)

	events := make(chan Item, 1)
	events <- ResponseItem(protocol.NewPartial("hi"))
	close(events)

	if err := Drive(context.Background(), w, r, "echobot", events, Config{}); err != nil {
		t.Fatalf("Drive() error: %v", err)
	}

	body := w.Body.String()
	want := "event: text\r\ndata: {\"text\":\"hi\"}\r\n\r\nevent: done\r\ndata: {}\r\n\r\n"
	if body != want {
		t.Fatalf("body = %q, want %q", body, want)
	}
}

func TestDrive_FinalizeErrorEmitsErrorEventBeforeDone(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequest(t)

	events := make(chan Item)
	close(events)

	cfg := Config{Finalize: func(context.Context) error { return errors.New("upload failed") }}
	if err := Drive(context.Background(), w, r, "echobot", events, cfg); err != nil {
		t.Fatalf("Drive() error: %v", err)
	}

	body := w.Body.String()
	errIdx := strings.Index(body, "event: error")
	doneIdx := strings.Index(body, "event: done")
	if errIdx < 0 || doneIdx < 0 || errIdx > doneIdx {
		t.Fatalf("expected error event before done, got: %q", body)
	}
	if !strings.Contains(body, `"allowRetry":false`) || !strings.Contains(body, "upload failed") {
		t.Fatalf("unexpected finalize error payload: %q", body)
	}
}

func TestDrive_DataSenderErrorEndsStream(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequest(t)

	events := make(chan Item) // kept open; the data sender decides the outcome
	sendErr := errors.New("producer failed")
	cfg := Config{DataSender: func(ctx context.Context) error { return sendErr }}

	err := Drive(context.Background(), w, r, "echobot", events, cfg)
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected data sender error, got: %v", err)
	}
	if strings.Contains(w.Body.String(), "event: done") {
		t.Fatalf("expected no done event, got: %q", w.Body.String())
	}
}

func TestProduce_HandlerErrorBecomesErrorEventThenDone(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequest(t)

	events := Produce(context.Background(), func(ctx context.Context, emit func(Item) bool) error {
		return errors.New("boom")
	})

	if err := Drive(context.Background(), w, r, "echobot", events, Config{}); err != nil {
		t.Fatalf("Drive() error: %v", err)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: error") || !strings.Contains(body, `"allowRetry":false`) || !strings.Contains(body, "boom") {
		t.Fatalf("expected error event with retry disallowed, got: %q", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Fatalf("expected terminal done event, got: %q", body)
	}
}

func TestProduce_PanicIsRecovered(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequest(t)

	events := Produce(context.Background(), func(ctx context.Context, emit func(Item) bool) error {
		panic("unexpected state")
	})

	if err := Drive(context.Background(), w, r, "echobot", events, Config{}); err != nil {
		t.Fatalf("Drive() error: %v", err)
	}
	if !strings.Contains(w.Body.String(), "unexpected state") {
		t.Fatalf("expected recovered panic text, got: %q", w.Body.String())
	}
}

func TestDrive_HeaderOptionOverridesDefault(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequest(t)

	events := make(chan Item)
	close(events)

	cfg := Config{Headers: map[string]string{"Cache-Control": "no-transform", "X-Custom": "1"}}
	if err := Drive(context.Background(), w, r, "echobot", events, cfg); err != nil {
		t.Fatalf("Drive() error: %v", err)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-transform" {
		t.Fatalf("expected header option to override default, got %q", got)
	}
	if got := w.Header().Get("X-Custom"); got != "1" {
		t.Fatalf("expected additional header to be set, got %q", got)
	}
	// Mandatory headers not named by the option still stand.
	if got := w.Header().Get("Connection"); got != "keep-alive" {
		t.Fatalf("Connection = %q", got)
	}
}

func TestDrive_ClosesWhenEventChannelCloses(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequest(t)

	events := make(chan Item)
	close(events)

	done := make(chan error, 1)
	go func() { done <- Drive(context.Background(), w, r, "echobot", events, Config{}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Drive() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Drive() did not return after the event channel closed")
	}
}

func TestDrive_ClientDisconnectStopsLoop(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequest(t)
	ctx, cancel := context.WithCancel(r.Context())
	r = r.WithContext(ctx)

	events := make(chan Item) // never closes, never sends

	done := make(chan error, 1)
	go func() { done <- Drive(context.Background(), w, r, "echobot", events, Config{}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Drive() did not return after request context was cancelled")
	}

	// A disconnected peer never sees a done event.
	if strings.Contains(w.Body.String(), "event: done") {
		t.Fatalf("expected no done event after disconnect, got: %q", w.Body.String())
	}
}

func TestDrive_SendTimeoutWritesSyntheticErrorEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &blockingRecorder{ResponseRecorder: rec, delay: 50 * time.Millisecond}
	r := newRequest(t)

	events := make(chan Item, 1)
	events <- ResponseItem(protocol.NewPartial("slow"))

	cfg := Config{SendTimeout: 5 * time.Millisecond}
	err := Drive(context.Background(), w, r, "echobot", events, cfg)
	if !errors.Is(err, errSendTimeout) {
		t.Fatalf("expected errSendTimeout, got: %v", err)
	}

	time.Sleep(100 * time.Millisecond) // let the delayed write land before reading body
	w.mu.Lock()
	body := rec.Body.String()
	w.mu.Unlock()
	if !strings.Contains(body, `"text":"error sse write timeout"`) || !strings.Contains(body, `"allow_retry":false`) {
		t.Fatalf("expected synthetic timeout error event in body, got: %q", body)
	}
}

func TestDrive_HeartbeatFiresOnConfiguredInterval(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequest(t)

	events := make(chan Item) // kept open so the heartbeat task wins the race

	done := make(chan error, 1)
	go func() {
		done <- Drive(context.Background(), w, r, "echobot", events, Config{Ping: 10 * time.Millisecond})
	}()

	time.Sleep(50 * time.Millisecond)
	close(events)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Drive() did not return")
	}

	if !strings.Contains(w.Body.String(), ": ping - ") {
		t.Fatalf("expected at least one heartbeat comment, got: %q", w.Body.String())
	}
}

func TestDrive_CustomPingMessageFactory(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequest(t)

	events := make(chan Item)
	factory := func() sse.Event { return sse.Event{Event: "custom_ping", Data: "hi"} }

	done := make(chan error, 1)
	go func() {
		done <- Drive(context.Background(), w, r, "echobot", events, Config{Ping: 10 * time.Millisecond, PingMessageFactory: factory})
	}()

	time.Sleep(50 * time.Millisecond)
	close(events)
	<-done

	if !strings.Contains(w.Body.String(), "event: custom_ping") {
		t.Fatalf("expected custom ping event, got: %q", w.Body.String())
	}
}

func TestTranslate_RawPassthrough(t *testing.T) {
	raw := sse.Event{Event: "ping", Data: "raw"}
	got := translate(RawItem(raw))
	if got.Event != "ping" || got.Data != "raw" {
		t.Fatalf("expected raw passthrough, got: %+v", got)
	}
}

func TestTranslate_Meta(t *testing.T) {
	resp := protocol.NewMeta(true, false, protocol.ContentTypePlain)
	ev := translate(ResponseItem(resp))
	if ev.Event != "meta" {
		t.Fatalf("expected meta event, got: %q", ev.Event)
	}
	if !strings.Contains(ev.Data, `"linkify":true`) || !strings.Contains(ev.Data, `"content_type":"text/plain"`) {
		t.Fatalf("unexpected meta payload: %q", ev.Data)
	}
}

func TestTranslate_Error(t *testing.T) {
	resp := protocol.NewError("boom", false, "internal")
	ev := translate(ResponseItem(resp))
	if ev.Event != "error" {
		t.Fatalf("expected error event, got: %q", ev.Event)
	}
	if !strings.Contains(ev.Data, `"allowRetry":false`) || !strings.Contains(ev.Data, `"errorType":"internal"`) {
		t.Fatalf("unexpected error payload: %q", ev.Data)
	}
}

func TestTranslate_SuggestedReply(t *testing.T) {
	resp := protocol.NewPartial("try this")
	resp.IsSuggestedReply = true
	ev := translate(ResponseItem(resp))
	if ev.Event != "suggested_reply" {
		t.Fatalf("expected suggested_reply event, got: %q", ev.Event)
	}
}

func TestTranslate_ReplaceResponse(t *testing.T) {
	resp := protocol.NewPartial("replacement")
	resp.IsReplaceResponse = true
	ev := translate(ResponseItem(resp))
	if ev.Event != "replace_response" {
		t.Fatalf("expected replace_response event, got: %q", ev.Event)
	}
}

func TestTranslate_PlainText(t *testing.T) {
	ev := translate(ResponseItem(protocol.NewPartial("plain")))
	if ev.Event != "text" {
		t.Fatalf("expected text event, got: %q", ev.Event)
	}
}
