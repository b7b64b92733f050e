package botclient

import (
	"testing"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

func TestHandleEvent_TextAccumulates(t *testing.T) {
	s := newConsumeState(false)
	r1 := s.handleEvent("text", `{"text":"hel"}`)
	r2 := s.handleEvent("text", `{"text":"lo"}`)
	if r1.yield == nil || r1.yield.Text != "hel" {
		t.Fatalf("r1.yield = %+v", r1.yield)
	}
	if r2.yield == nil || r2.yield.Text != "lo" {
		t.Fatalf("r2.yield = %+v", r2.yield)
	}
	if got := s.finalText(); got != "hello" {
		t.Fatalf("finalText() = %q; want \"hello\"", got)
	}
}

func TestHandleEvent_ReplaceResponseResets(t *testing.T) {
	s := newConsumeState(false)
	s.handleEvent("text", `{"text":"hel"}`)
	s.handleEvent("replace_response", `{"text":"bye"}`)
	if got := s.finalText(); got != "bye" {
		t.Fatalf("finalText() = %q; want \"bye\"", got)
	}
}

// TestHandleEvent_MetaFirstRule is invariant: a meta event seen after the
// first event of the stream is silently ignored.
func TestHandleEvent_MetaFirstRule(t *testing.T) {
	s := newConsumeState(false)
	s.handleEvent("text", `{"text":"hi"}`)
	r := s.handleEvent("meta", `{"linkify":true,"suggested_replies":true}`)
	if r.yield != nil || r.reportText != "" {
		t.Fatalf("late meta event should be ignored silently, got %+v", r)
	}
}

func TestHandleEvent_MetaAsFirstEvent(t *testing.T) {
	s := newConsumeState(false)
	r := s.handleEvent("meta", `{"linkify":true,"suggested_replies":false,"content_type":"text/plain"}`)
	if r.yield == nil || r.yield.Kind != protocol.KindMeta {
		t.Fatalf("r.yield = %+v", r.yield)
	}
	if !r.yield.Linkify || r.yield.SuggestedReplies || r.yield.ContentType != protocol.ContentTypePlain {
		t.Errorf("meta fields wrong: %+v", r.yield)
	}
}

func TestHandleEvent_ErrorAllowRetryDefaultsTrue(t *testing.T) {
	s := newConsumeState(false)
	r := s.handleEvent("error", `{"text":"boom"}`)
	if r.err == nil {
		t.Fatalf("expected retryable error")
	}
	if r.err.Error() == protocol.ErrBotErrorNoRetry.Error() {
		t.Fatalf("default allow_retry should not produce a no-retry error")
	}
}

func TestHandleEvent_ErrorAllowRetryFalse(t *testing.T) {
	s := newConsumeState(false)
	r := s.handleEvent("error", `{"text":"boom","allow_retry":false}`)
	if r.err != protocol.ErrBotErrorNoRetry {
		t.Fatalf("err = %v; want ErrBotErrorNoRetry", r.err)
	}
}

func TestHandleEvent_DoneWithNoTextReports(t *testing.T) {
	s := newConsumeState(false)
	r := s.handleEvent("done", "")
	if !r.done || r.reportText == "" {
		t.Fatalf("expected done=true with a report for a textless response, got %+v", r)
	}
}

func TestHandleEvent_DoneWithToolsInPlaySuppressesReport(t *testing.T) {
	s := newConsumeState(true)
	r := s.handleEvent("done", "")
	if !r.done || r.reportText != "" {
		t.Fatalf("tool-only responses must not report missing text, got %+v", r)
	}
}

func TestHandleEvent_PingIsIgnored(t *testing.T) {
	s := newConsumeState(false)
	r := s.handleEvent("ping", "")
	if r.yield != nil || r.done || r.err != nil || r.reportText != "" {
		t.Fatalf("ping should be a no-op, got %+v", r)
	}
}

func TestHandleEvent_UnknownEventReportsAndContinues(t *testing.T) {
	s := newConsumeState(false)
	r := s.handleEvent("frobnicate", `{"x":1}`)
	if r.yield != nil || r.done || r.err != nil || r.reportText == "" {
		t.Fatalf("unknown event should report without terminating, got %+v", r)
	}
}

func TestHandleEvent_SuggestedReplyDoesNotAccumulate(t *testing.T) {
	s := newConsumeState(false)
	s.handleEvent("text", `{"text":"hi"}`)
	r := s.handleEvent("suggested_reply", `{"text":"try again?"}`)
	if r.yield == nil || !r.yield.IsSuggestedReply {
		t.Fatalf("r.yield = %+v", r.yield)
	}
	if got := s.finalText(); got != "hi" {
		t.Fatalf("suggested_reply must not be folded into finalText, got %q", got)
	}
}

func TestHandleEvent_JSONEventPassesDataThrough(t *testing.T) {
	s := newConsumeState(false)
	r := s.handleEvent("json", `{"foo":"bar"}`)
	if r.yield == nil || string(r.yield.Data) != `{"foo":"bar"}` {
		t.Fatalf("r.yield = %+v", r.yield)
	}
}
