// Package botclient implements the outbound half of the protocol: posting a
// query to a remote bot, decoding its SSE stream through internal/sse,
// running it through the client state machine, and applying the retry
// policy. Structured logging uses an injected *zerolog.Logger, never a
// package global, and each attempt opens its own OpenTelemetry span.
package botclient

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the outbound endpoint base the client posts queries
// against: POST {base_url}{bot_name}.
const DefaultBaseURL = "https://api.poe.com/bot/"

// DefaultNumTries and DefaultRetrySleep are the stream_request retry
// policy defaults.
const (
	DefaultNumTries   = 2
	DefaultRetrySleep = 500 * time.Millisecond
)

// Client performs queries against remote bots and consumes their SSE
// streams. The zero value is not ready for use; construct with New.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	Logger     *zerolog.Logger
	NumTries   int
	RetrySleep time.Duration
}

// New returns a Client with the documented defaults. A nil logger installs
// a no-op logger rather than falling back to a package global.
func New(logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		HTTPClient: http.DefaultClient,
		BaseURL:    DefaultBaseURL,
		Logger:     logger,
		NumTries:   DefaultNumTries,
		RetrySleep: DefaultRetrySleep,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) logger() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
