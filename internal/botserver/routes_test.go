package botserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
	"github.com/tbourn/go-bot-protocol/internal/ssedriver"
)

const testKey = "0123456789abcdef0123456789abcdef"

func mountedEngine(t *testing.T, bots ...BotConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	app, err := NewApp(baseCfg(), nil, bots...)
	if err != nil {
		t.Fatalf("NewApp() error: %v", err)
	}
	r := gin.New()
	app.Mount(r)
	return r
}

func echoHandlers() Handlers {
	return Handlers{
		Query: func(ctx context.Context, bot protocol.PoeBot, req protocol.QueryRequest) <-chan ssedriver.Item {
			return ssedriver.Produce(ctx, func(ctx context.Context, emit func(ssedriver.Item) bool) error {
				emit(ssedriver.ResponseItem(protocol.NewPartial("hi")))
				return nil
			})
		},
	}
}

func postJSON(r *gin.Engine, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPOST_NoAuthorizationIs403(t *testing.T) {
	r := mountedEngine(t, BotConfig{Path: "/echobot", AccessKey: testKey})

	w := postJSON(r, "/echobot", "", `{"version":"1.0","type":"settings"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Not authenticated") {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestPOST_WrongKeyIs401WithChallenge(t *testing.T) {
	r := mountedEngine(t, BotConfig{Path: "/echobot", AccessKey: testKey})

	w := postJSON(r, "/echobot", "Bearer "+strings.Repeat("x", 32), `{"version":"1.0","type":"settings"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Fatalf("WWW-Authenticate = %q, want Bearer", got)
	}
	if !strings.Contains(w.Body.String(), "Invalid access key") {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestPOST_UnsupportedTypeIs501(t *testing.T) {
	r := mountedEngine(t, BotConfig{Path: "/echobot", AllowWithoutKey: true})

	w := postJSON(r, "/echobot", "", `{"version":"1.0","type":"fetch_state"}`)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", w.Code)
	}
}

func TestPOST_SettingsReturnsDefaults(t *testing.T) {
	r := mountedEngine(t, BotConfig{Path: "/echobot", AccessKey: testKey})

	w := postJSON(r, "/echobot", "Bearer "+testKey, `{"version":"1.0","type":"settings"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp protocol.SettingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal settings: %v", err)
	}
	if !resp.ExpandTextAttachments {
		t.Fatalf("expected expand_text_attachments default true, got %+v", resp)
	}
}

func TestPOST_ReportFeedbackAndErrorReturnEmptyJSON(t *testing.T) {
	var feedback, reported bool
	r := mountedEngine(t, BotConfig{
		Path:            "/echobot",
		AllowWithoutKey: true,
		Handlers: Handlers{
			ReportFeedback: func(ctx context.Context, bot protocol.PoeBot, req protocol.ReportFeedbackRequest) error {
				feedback = true
				return nil
			},
			ReportError: func(ctx context.Context, bot protocol.PoeBot, req protocol.ReportErrorRequest) error {
				reported = true
				return nil
			},
		},
	})

	w := postJSON(r, "/echobot", "", `{"version":"1.0","type":"report_feedback","message_id":"m1","feedback_type":"like"}`)
	if w.Code != http.StatusOK || w.Body.String() != "{}" {
		t.Fatalf("report_feedback: status=%d body=%q", w.Code, w.Body.String())
	}
	w = postJSON(r, "/echobot", "", `{"version":"1.0","type":"report_error","message":"oops"}`)
	if w.Code != http.StatusOK || w.Body.String() != "{}" {
		t.Fatalf("report_error: status=%d body=%q", w.Code, w.Body.String())
	}
	if !feedback || !reported {
		t.Fatalf("handlers not invoked: feedback=%v reported=%v", feedback, reported)
	}
}

func TestPOST_QueryStreamsTextThenDone(t *testing.T) {
	r := mountedEngine(t, BotConfig{Path: "/echobot", AllowWithoutKey: true, Handlers: echoHandlers()})

	w := postJSON(r, "/echobot", "", `{"version":"1.0","type":"query","query":[],"message_id":"m1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: text\r\ndata: {\"text\":\"hi\"}\r\n\r\n") {
		t.Fatalf("missing text record: %q", body)
	}
	if !strings.HasSuffix(body, "event: done\r\ndata: {}\r\n\r\n") {
		t.Fatalf("done is not the last record: %q", body)
	}
}

func TestPOST_QueryDrainsPendingAttachmentsBeforeDone(t *testing.T) {
	r := mountedEngine(t, BotConfig{
		Path:            "/echobot",
		AllowWithoutKey: true,
		Handlers: Handlers{
			Query: func(ctx context.Context, bot protocol.PoeBot, req protocol.QueryRequest) <-chan ssedriver.Item {
				return ssedriver.Produce(ctx, func(ctx context.Context, emit func(ssedriver.Item) bool) error {
					task := bot.Attachments.Schedule(req.MessageID)
					task.Err = protocol.ErrAttachmentUpload
					close(task.Done)
					emit(ssedriver.ResponseItem(protocol.NewPartial("hi")))
					return nil
				})
			},
		},
	})

	w := postJSON(r, "/echobot", "", `{"version":"1.0","type":"query","query":[],"message_id":"m1"}`)

	body := w.Body.String()
	errIdx := strings.Index(body, "event: error")
	doneIdx := strings.Index(body, "event: done")
	if errIdx < 0 || doneIdx < 0 || errIdx > doneIdx {
		t.Fatalf("expected upload failure surfaced as error before done, got: %q", body)
	}
}

func TestGET_LandingPageIsHTML(t *testing.T) {
	r := mountedEngine(t, BotConfig{Path: "/echobot", Name: "echobot", AllowWithoutKey: true})

	req := httptest.NewRequest(http.MethodGet, "/echobot", nil)
	req.Header.Set("Accept-Encoding", "identity")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "Echobot") {
		t.Fatalf("body = %q", w.Body.String())
	}
}
