// This file centralizes the error kinds used across the protocol engine, so
// that they can be consistently raised by the client/server/orchestrator
// and checked by callers with errors.Is/errors.As.
package protocol

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (name -> meaning, where surfaced):
//   - ErrInvalidParameter: construction-time misuse. Never reaches the wire.
//   - ErrBotError: transient failure talking to a remote bot. Retried
//     subject to the client's retry policy.
//   - ErrBotErrorNoRetry: terminal failure (bad protocol framing, structural
//     JSON errors in events, explicit allow_retry=false error event). Never
//     retried.
//   - ErrInvalidBotSettings: a settings response failed validation.
//   - ErrAttachmentUpload: an upload request failed; surfaced as a final
//     error event in the streaming response.
//   - ErrInvalidContentType: the response Content-Type did not begin with
//     text/event-stream.
//   - ErrInvalidRetry: an SSE retry field was not a valid integer.
//   - ErrUnsupportedRequestType: the dispatcher received an unknown request type.
var (
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrBotError              = errors.New("bot error")
	ErrBotErrorNoRetry       = errors.New("bot error (no retry)")
	ErrInvalidBotSettings    = errors.New("invalid bot settings")
	ErrAttachmentUpload      = errors.New("attachment upload error")
	ErrInvalidContentType    = errors.New("invalid content type")
	ErrInvalidRetry          = errors.New("invalid retry value")
	ErrUnsupportedRequestType = errors.New("unsupported request type")
)

// HTTPError is a handler-signalled HTTP fault carrying a status, a message,
// and optional headers to attach verbatim to the response. It translates to
// the response code exactly as constructed; it never reaches the wire as a
// streamed event (see error-handling design).
type HTTPError struct {
	Status  int
	Message string
	Headers map[string]string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// NewHTTPError constructs an HTTPError with no extra headers.
func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

// WrapBotError wraps err (or builds the bare message with no cause if err
// is nil) as a retryable bot error, matching the client retry policy's
// final-failure message shape `Error communicating with bot <name>`. The
// cause stays in the error chain for errors.Is/errors.As.
func WrapBotError(botName string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: error communicating with bot %s", ErrBotError, botName)
	}
	return fmt.Errorf("%w: error communicating with bot %s: %w", ErrBotError, botName, err)
}
