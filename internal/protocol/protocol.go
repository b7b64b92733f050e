// Package protocol defines the wire-level data model shared by the bot
// client, the bot server dispatcher, and the tool orchestrator: protocol
// messages, attachments, the tagged request union, settings, and the
// partial-response family returned while streaming a query.
//
// Fields are tagged for snake_case on the wire; callers work with the
// plain Go identifiers inside the process.
package protocol

import "encoding/json"

// ProtocolVersion is the constant protocol version stamped on every
// client-originated request.
const ProtocolVersion = "1.0"

// Size limits shared by the client and server.
const (
	// MessageLengthLimit is the protocol's message length limit. No code in
	// this module applies it; unknown-event diagnostics are truncated to
	// 100/500 characters in botclient.
	MessageLengthLimit = 10000
	// MaxEventCount is a soft guard on the number of events a client will
	// consume from one query before logging and continuing regardless.
	MaxEventCount = 1000
	// IdentifierLength is the exact length required of a non-empty access_key.
	IdentifierLength = 32
)

// FeedbackKind enumerates the feedback types a message may carry.
type FeedbackKind string

const (
	FeedbackLike    FeedbackKind = "like"
	FeedbackDislike FeedbackKind = "dislike"
)

// ContentType enumerates the allowed content types for a ProtocolMessage or
// a MetaResponse.
type ContentType string

const (
	ContentTypeMarkdown ContentType = "text/markdown"
	ContentTypePlain    ContentType = "text/plain"
)

// Role enumerates the author of a ProtocolMessage.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
)

// Feedback is a single feedback entry attached to a ProtocolMessage.
type Feedback struct {
	Type   FeedbackKind `json:"type"`
	Reason string       `json:"reason,omitempty"`
}

// Attachment describes a file or link associated with a message. Url is
// unique within the deduplicated view used by role-alternation merging
// (the merge itself lives in the bot server's request-normalization path,
// not here — this type only carries the data).
type Attachment struct {
	URL           string `json:"url"`
	ContentType   string `json:"content_type"`
	Name          string `json:"name"`
	ParsedContent string `json:"parsed_content,omitempty"`
}

// ProtocolMessage is one turn in a conversation. Ordering within a Query's
// message sequence is significant; duplicates are permitted and are not
// deduplicated by this package.
type ProtocolMessage struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	ContentType ContentType  `json:"content_type"`
	Timestamp   int64        `json:"timestamp"`
	MessageID   string       `json:"message_id"`
	Feedback    []Feedback   `json:"feedback,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	SenderID    string       `json:"sender_id,omitempty"`
}

// ValidIdentifier reports whether s is a non-empty opaque ASCII identifier.
func ValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// ValidAccessKey reports whether s is exactly IdentifierLength ASCII
// characters, the rule stated for access_key in the data model.
func ValidAccessKey(s string) bool {
	return len(s) == IdentifierLength && ValidIdentifier(s)
}

// RequestType enumerates the Request tagged union's discriminator.
type RequestType string

const (
	RequestQuery          RequestType = "query"
	RequestSettings       RequestType = "settings"
	RequestReportFeedback RequestType = "report_feedback"
	RequestReportError    RequestType = "report_error"
)

// QueryRequest is the `query`-typed member of the Request union.
type QueryRequest struct {
	Version          string            `json:"version"`
	Type             RequestType       `json:"type"`
	Query            []ProtocolMessage `json:"query"`
	UserID           string            `json:"user_id"`
	ConversationID   string            `json:"conversation_id"`
	MessageID        string            `json:"message_id"`
	Temperature      float64           `json:"temperature"`
	SkipSystemPrompt bool              `json:"skip_system_prompt"`
	LogitBias        map[string]float64 `json:"logit_bias,omitempty"`
	StopSequences    []string          `json:"stop_sequences,omitempty"`
	// Metadata is accepted but never interpreted by this package; preserved
	// verbatim.
	Metadata string `json:"metadata,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	AccessKey string `json:"access_key,omitempty"`

	Tools       []ToolDefinition       `json:"tools,omitempty"`
	ToolCalls   []ToolCallDefinition   `json:"tool_calls,omitempty"`
	ToolResults []ToolResultDefinition `json:"tool_results,omitempty"`
}

// DefaultTemperature is applied by NewQueryRequest when the caller does not
// set one explicitly.
const DefaultTemperature = 0.7

// NewQueryRequest builds a QueryRequest with protocol defaults applied
// (version stamped, temperature defaulted).
func NewQueryRequest(messages []ProtocolMessage) QueryRequest {
	return QueryRequest{
		Version:     ProtocolVersion,
		Type:        RequestQuery,
		Query:       messages,
		Temperature: DefaultTemperature,
	}
}

// SettingsRequest is the `settings`-typed member of the Request union.
type SettingsRequest struct {
	Version string      `json:"version"`
	Type    RequestType `json:"type"`
}

// ReportFeedbackRequest is the `report_feedback`-typed member of the
// Request union.
type ReportFeedbackRequest struct {
	Version        string       `json:"version"`
	Type           RequestType  `json:"type"`
	ConversationID string       `json:"conversation_id"`
	MessageID      string       `json:"message_id"`
	UserID         string       `json:"user_id"`
	FeedbackType   FeedbackKind `json:"feedback_type"`
}

// ReportErrorRequest is the `report_error`-typed member of the Request
// union, also used by the bot client's back-channel error report.
type ReportErrorRequest struct {
	Version  string         `json:"version"`
	Type     RequestType    `json:"type"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SettingsResponse is returned from handle_settings. Two deprecated fields
// (ContextClearWindowSecs, AllowUserContextClear) are accepted on decode
// but never acted upon.
type SettingsResponse struct {
	ServerBotDependencies            map[string]int `json:"server_bot_dependencies,omitempty"`
	AllowAttachments                 bool           `json:"allow_attachments"`
	IntroductionMessage              string         `json:"introduction_message,omitempty"`
	ExpandTextAttachments            bool           `json:"expand_text_attachments"`
	EnableImageComprehension         bool           `json:"enable_image_comprehension"`
	EnforceAuthorRoleAlternation     bool           `json:"enforce_author_role_alternation"`
	EnableMultiBotChatPrompting      bool           `json:"enable_multi_bot_chat_prompting"`

	// Deprecated, accepted for backward compatibility, never consulted.
	ContextClearWindowSecs int  `json:"context_clear_window_secs,omitempty"`
	AllowUserContextClear  bool `json:"allow_user_context_clear,omitempty"`
}

// NewSettingsResponse returns a SettingsResponse with the documented
// defaults (expand_text_attachments defaults true).
func NewSettingsResponse() SettingsResponse {
	return SettingsResponse{ExpandTextAttachments: true}
}

// ResponseKind discriminates the PartialResponse family. Modeled as a
// tagged variant (common fields plus a kind discriminator) rather than an
// inheritance hierarchy, per the design note on cyclic/polymorphic message
// types: C5 dispatches on Kind.
type ResponseKind string

const (
	KindPartial ResponseKind = "partial"
	KindMeta    ResponseKind = "meta"
	KindError   ResponseKind = "error"
)

// PartialResponse is one chunk of a streamed bot answer. MetaResponse and
// ErrorResponse specialize it by setting Kind and the kind-specific
// fields; Kind defaults to KindPartial when left unset by NewPartial.
type PartialResponse struct {
	Kind ResponseKind `json:"-"`

	Text            string          `json:"text"`
	Data            json.RawMessage `json:"data,omitempty"`
	RawResponse     json.RawMessage `json:"raw_response,omitempty"`
	FullPrompt      string          `json:"full_prompt,omitempty"`
	RequestID       string          `json:"request_id,omitempty"`
	IsSuggestedReply bool           `json:"is_suggested_reply"`
	IsReplaceResponse bool          `json:"is_replace_response"`

	// Meta fields, populated only when Kind == KindMeta.
	Linkify           bool        `json:"linkify,omitempty"`
	SuggestedReplies  bool        `json:"suggested_replies,omitempty"`
	ContentType       ContentType `json:"content_type,omitempty"`
	RefetchSettings   bool        `json:"refetch_settings,omitempty"`

	// Error fields, populated only when Kind == KindError.
	AllowRetry bool   `json:"allow_retry,omitempty"`
	ErrorType  string `json:"error_type,omitempty"`
}

// NewPartial builds a plain PartialResponse carrying text.
func NewPartial(text string) PartialResponse {
	return PartialResponse{Kind: KindPartial, Text: text}
}

// NewMeta builds a MetaResponse. ContentType defaults to text/markdown.
func NewMeta(linkify, suggestedReplies bool, contentType ContentType) PartialResponse {
	if contentType == "" {
		contentType = ContentTypeMarkdown
	}
	return PartialResponse{
		Kind:             KindMeta,
		Linkify:          linkify,
		SuggestedReplies: suggestedReplies,
		ContentType:      contentType,
	}
}

// NewError builds an ErrorResponse with the given allow-retry flag and
// error type.
func NewError(text string, allowRetry bool, errorType string) PartialResponse {
	return PartialResponse{
		Kind:       KindError,
		Text:       text,
		AllowRetry: allowRetry,
		ErrorType:  errorType,
	}
}
