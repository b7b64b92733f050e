package botserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-bot-protocol/internal/httpmw"
)

// Error codes returned in the JSON error envelope: auth, decode, and the
// one type-dispatch-specific code.
const (
	codeBadRequest        = "bad_request"
	codeNotAuthenticated  = "not_authenticated"
	codeInvalidAccessKey  = "invalid_access_key"
	codeUnsupportedType   = "unsupported_request_type"
	codeInternal          = "internal_error"
)

// errorResponse is the standard error envelope returned by every endpoint.
type errorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// fail aborts the request with a structured error envelope, logging 5xx
// responses with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := errorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		httpmw.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("bot dispatch error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
