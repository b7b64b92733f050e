package botclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

// reportError posts a best-effort report_error request back to the bot.
// Failures are logged, never raised: a broken back-channel must not affect
// the outcome of the query it is reporting on.
func (c *Client) reportError(ctx context.Context, botName, apiKey, message string) {
	req := protocol.ReportErrorRequest{
		Version: protocol.ProtocolVersion,
		Type:    protocol.RequestReportError,
		Message: message,
	}
	body, err := json.Marshal(req)
	if err != nil {
		c.logger().Warn().Err(err).Str("bot", botName).Msg("report_error: marshal failed")
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+botName, bytes.NewReader(body))
	if err != nil {
		c.logger().Warn().Err(err).Str("bot", botName).Msg("report_error: build request failed")
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		c.logger().Warn().Err(err).Str("bot", botName).Msg("report_error: request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger().Warn().Str("bot", botName).Int("status", resp.StatusCode).Msg("report_error: non-2xx response")
	}
}
