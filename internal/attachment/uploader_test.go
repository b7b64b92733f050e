package attachment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

func TestUploadByURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "secret-key" {
			t.Errorf("Authorization header = %q; want %q (no Bearer prefix)", got, "secret-key")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["message_id"] != "m1" {
			t.Errorf("message_id = %v; want m1", body["message_id"])
		}
		_ = json.NewEncoder(w).Encode(Result{InlineRef: "ref-1", AttachmentURL: "https://example.test/a"})
	}))
	defer srv.Close()

	u := &Uploader{Client: srv.Client(), URL: srv.URL, AccessKey: "secret-key"}
	res, err := u.UploadByURL(context.Background(), "m1", "https://example.test/src.png", true)
	if err != nil {
		t.Fatalf("UploadByURL: %v", err)
	}
	if res.InlineRef != "ref-1" || res.AttachmentURL != "https://example.test/a" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestUploadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("message_id") != "m2" {
			t.Errorf("message_id = %q; want m2", r.FormValue("message_id"))
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		_ = json.NewEncoder(w).Encode(Result{InlineRef: "ref-2"})
	}))
	defer srv.Close()

	u := &Uploader{Client: srv.Client(), URL: srv.URL, AccessKey: "k"}
	res, err := u.UploadFile(context.Background(), "m2", false, "a.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if res.InlineRef != "ref-2" {
		t.Errorf("InlineRef = %q; want ref-2", res.InlineRef)
	}
}

func TestUploadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	u := &Uploader{Client: srv.Client(), URL: srv.URL, AccessKey: "k"}
	_, err := u.UploadByURL(context.Background(), "m3", "https://example.test", false)
	if err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
}

func TestScheduleByURL_DrainsViaTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Result{InlineRef: "ref-3"})
	}))
	defer srv.Close()

	table := protocol.NewPendingAttachmentTable()
	u := &Uploader{Client: srv.Client(), URL: srv.URL, AccessKey: "k"}
	u.ScheduleByURL(context.Background(), table, "m4", "https://example.test", true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tasks := table.Drain("m4")
	if len(tasks) != 1 {
		t.Fatalf("len(tasks) = %d; want 1", len(tasks))
	}
	if err := Await(ctx, tasks); err != nil {
		t.Fatalf("Await: %v", err)
	}
	if tasks[0].InlineRef != "ref-3" {
		t.Errorf("InlineRef = %q; want ref-3", tasks[0].InlineRef)
	}

	if remaining := table.Drain("m4"); len(remaining) != 0 {
		t.Errorf("table still has %d tasks after drain", len(remaining))
	}
}
