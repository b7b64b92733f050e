// Package attachment implements the one external collaborator the core
// schedules but does not own: uploading an attachment to the platform's
// storage. The core only depends on the hook — Schedule queues a task
// against a protocol.PendingAttachmentTable and returns immediately; the
// streaming response driver drains and awaits the table entry before it
// finalizes a query response.
package attachment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

// DefaultUploadURL is the platform's attachment ingestion endpoint.
const DefaultUploadURL = "https://www.quora.com/poe_api/file_attachment_3RD_PARTY_POST"

// Result is the decoded response body of a successful upload.
type Result struct {
	InlineRef     string `json:"inline_ref"`
	AttachmentURL string `json:"attachment_url"`
}

// Uploader posts attachments to the platform, using the same net/http
// client posture as internal/botclient.
type Uploader struct {
	Client    *http.Client
	URL       string
	AccessKey string
}

// NewUploader returns an Uploader targeting DefaultUploadURL, authenticated
// with accessKey (sent without a "Bearer" prefix, per the upload contract).
func NewUploader(accessKey string) *Uploader {
	return &Uploader{
		Client:    http.DefaultClient,
		URL:       DefaultUploadURL,
		AccessKey: accessKey,
	}
}

// UploadByURL posts a JSON body instructing the platform to fetch
// downloadURL on the upload's behalf.
func (u *Uploader) UploadByURL(ctx context.Context, messageID, downloadURL string, isInline bool) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"message_id":   messageID,
		"is_inline":    isInline,
		"download_url": downloadURL,
	})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url(), bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", u.AccessKey)
	return u.do(req)
}

// UploadFile posts the attachment's bytes as a multipart/form-data body.
func (u *Uploader) UploadFile(ctx context.Context, messageID string, isInline bool, filename string, r io.Reader) (Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("message_id", messageID); err != nil {
		return Result{}, err
	}
	if err := mw.WriteField("is_inline", boolString(isInline)); err != nil {
		return Result{}, err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return Result{}, err
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url(), &buf)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", u.AccessKey)
	return u.do(req)
}

func (u *Uploader) url() string {
	if u.URL != "" {
		return u.URL
	}
	return DefaultUploadURL
}

func (u *Uploader) client() *http.Client {
	if u.Client != nil {
		return u.Client
	}
	return http.DefaultClient
}

func (u *Uploader) do(req *http.Request) (Result, error) {
	resp, err := u.client().Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", protocol.ErrAttachmentUpload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("%w: upload returned status %d", protocol.ErrAttachmentUpload, resp.StatusCode)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("%w: decoding response: %v", protocol.ErrAttachmentUpload, err)
	}
	return out, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ScheduleByURL registers a task against table for messageID and runs the
// URL-based upload in a background goroutine, recording its outcome onto
// the task and closing Done when finished. The caller never blocks here;
// draining (awaiting Done) happens later, at response finalization.
func (u *Uploader) ScheduleByURL(ctx context.Context, table *protocol.PendingAttachmentTable, messageID, downloadURL string, isInline bool) *protocol.AttachmentTask {
	task := table.Schedule(messageID)
	go func() {
		defer close(task.Done)
		res, err := u.UploadByURL(ctx, messageID, downloadURL, isInline)
		if err != nil {
			task.Err = err
			return
		}
		task.InlineRef = res.InlineRef
		task.AttachmentURL = res.AttachmentURL
	}()
	return task
}

// ScheduleFile is the multipart-upload equivalent of ScheduleByURL. The
// caller retains ownership of r and must keep it valid until the returned
// task's Done channel closes.
func (u *Uploader) ScheduleFile(ctx context.Context, table *protocol.PendingAttachmentTable, messageID string, isInline bool, filename string, r io.Reader) *protocol.AttachmentTask {
	task := table.Schedule(messageID)
	go func() {
		defer close(task.Done)
		res, err := u.UploadFile(ctx, messageID, isInline, filename, r)
		if err != nil {
			task.Err = err
			return
		}
		task.InlineRef = res.InlineRef
		task.AttachmentURL = res.AttachmentURL
	}()
	return task
}

// Await blocks until every task in tasks has finished (or ctx is done),
// returning the first error encountered, if any. Used by the driver to
// drain a PendingAttachmentTable entry before finalizing a response.
func Await(ctx context.Context, tasks []*protocol.AttachmentTask) error {
	for _, t := range tasks {
		select {
		case <-t.Done:
			if t.Err != nil {
				return t.Err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
