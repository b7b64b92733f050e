package botclient

import (
	"encoding/json"
	"fmt"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

// truncate caps s at max bytes, matching the 100/500-char truncation rule
// applied to unknown-event diagnostics.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// textPayload is the JSON shape of text/replace_response/suggested_reply
// event data: a required string field named "text".
type textPayload struct {
	Text string `json:"text"`
}

// metaPayload is the JSON shape of a meta event's data.
type metaPayload struct {
	Linkify          *bool   `json:"linkify"`
	SuggestedReplies *bool   `json:"suggested_replies"`
	ContentType      *string `json:"content_type"`
}

// errorPayload is the JSON shape of an error event's data. Both key casings
// are seen in the wild: allow_retry from older bots, allowRetry from servers
// built on this package's driver.
type errorPayload struct {
	AllowRetry      *bool  `json:"allow_retry"`
	AllowRetryCamel *bool  `json:"allowRetry"`
	ErrorType       string `json:"error_type"`
	Text            string `json:"text"`
}

func (p errorPayload) allowRetry() bool {
	if p.AllowRetry != nil {
		return *p.AllowRetry
	}
	if p.AllowRetryCamel != nil {
		return *p.AllowRetryCamel
	}
	return true
}

// consumeState tracks the per-attempt state needed by the client state
// machine: accumulated text chunks, whether the first event (for the
// meta-first rule) has been seen, and whether any text/error/tool activity
// occurred (for the "no text in response" check on done).
type consumeState struct {
	chunks      []string
	firstEvent  bool
	metaSeen    bool
	sawText     bool
	sawError    bool
	toolsInPlay bool
}

func newConsumeState(toolsInPlay bool) *consumeState {
	return &consumeState{firstEvent: true, toolsInPlay: toolsInPlay}
}

// finalText joins the accumulated chunks, the semantics get_final_response
// exposes after a stream completes.
func (s *consumeState) finalText() string {
	out := ""
	for _, c := range s.chunks {
		out += c
	}
	return out
}

// dispatchResult is what processing one decoded SSE event produces for the
// caller: zero or one PartialResponse to yield, and whether the attempt
// should terminate (done, or a terminal error).
type dispatchResult struct {
	yield      *protocol.PartialResponse
	done       bool
	err        error
	reportText string // non-empty: a back-channel report_error should be sent
}

// handleEvent implements the client state machine table in the component
// design, one incoming SSE event at a time.
func (s *consumeState) handleEvent(name, data string) dispatchResult {
	isFirst := s.firstEvent
	s.firstEvent = false

	switch name {
	case "text":
		var p textPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return dispatchResult{reportText: "Malformed text event: " + truncate(err.Error(), 500)}
		}
		s.chunks = append(s.chunks, p.Text)
		s.sawText = true
		resp := protocol.NewPartial(p.Text)
		return dispatchResult{yield: &resp}

	case "replace_response":
		var p textPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return dispatchResult{reportText: "Malformed replace_response event: " + truncate(err.Error(), 500)}
		}
		s.chunks = []string{p.Text}
		s.sawText = true
		resp := protocol.NewPartial(p.Text)
		resp.IsReplaceResponse = true
		return dispatchResult{yield: &resp}

	case "suggested_reply":
		var p textPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return dispatchResult{reportText: "Malformed suggested_reply event: " + truncate(err.Error(), 500)}
		}
		resp := protocol.NewPartial(p.Text)
		resp.IsSuggestedReply = true
		return dispatchResult{yield: &resp}

	case "json":
		resp := protocol.PartialResponse{Kind: protocol.KindPartial, Data: json.RawMessage(data)}
		return dispatchResult{yield: &resp}

	case "meta":
		if !isFirst {
			// Later meta events are silently ignored.
			return dispatchResult{}
		}
		var p metaPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil || p.Linkify == nil || p.SuggestedReplies == nil {
			return dispatchResult{reportText: "Malformed meta event"}
		}
		contentType := protocol.ContentTypeMarkdown
		if p.ContentType != nil {
			switch protocol.ContentType(*p.ContentType) {
			case protocol.ContentTypeMarkdown, protocol.ContentTypePlain:
				contentType = protocol.ContentType(*p.ContentType)
			default:
				return dispatchResult{reportText: "Invalid meta content_type: " + truncate(*p.ContentType, 100)}
			}
		}
		s.metaSeen = true
		resp := protocol.NewMeta(*p.Linkify, *p.SuggestedReplies, contentType)
		return dispatchResult{yield: &resp}

	case "error":
		var p errorPayload
		_ = json.Unmarshal([]byte(data), &p)
		s.sawError = true
		if p.allowRetry() {
			// A bare sentinel wrap: the retry loop adds the
			// "communicating with bot" context exactly once, on final
			// failure.
			return dispatchResult{err: fmt.Errorf("%w: %s", protocol.ErrBotError, p.Text)}
		}
		return dispatchResult{err: protocol.ErrBotErrorNoRetry}

	case "ping":
		// Ignored, and does not count toward the "no text" check.
		return dispatchResult{}

	case "done":
		if !s.sawText && !s.sawError && !s.toolsInPlay {
			return dispatchResult{done: true, reportText: "Bot returned no text in response"}
		}
		return dispatchResult{done: true}

	default:
		return dispatchResult{
			reportText: "Unknown event type: " + truncate(name, 100) + " " + truncate(data, 500),
		}
	}
}
