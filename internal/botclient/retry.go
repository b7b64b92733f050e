package botclient

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/tbourn/go-bot-protocol/internal/protocol"
)

// isConnectionAbortedOrTimeout reports whether err looks like a
// connection-aborted or read-timeout transport failure, the one subcase in
// which a stream that already yielded bytes is still eligible for retry.
func isConnectionAbortedOrTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ECONNRESET)
}

// StreamRequest applies the retry policy around PerformQuery: up to
// NumTries attempts, sleeping RetrySleep between them. BotErrorNoRetry is
// never retried. Any other error is retried only if this attempt had not
// yet yielded any response, or the error is a connection-aborted/
// read-timeout transport failure. The final failure is surfaced wrapped by
// protocol.WrapBotError.
func (c *Client) StreamRequest(ctx context.Context, botName, apiKey string, req protocol.QueryRequest) <-chan QueryEvent {
	out := make(chan QueryEvent)

	numTries := c.NumTries
	if numTries <= 0 {
		numTries = DefaultNumTries
	}
	retrySleep := c.RetrySleep
	if retrySleep <= 0 {
		retrySleep = DefaultRetrySleep
	}

	go func() {
		defer close(out)

		var lastErr error
		for attempt := 1; attempt <= numTries; attempt++ {
			yieldedAny := false
			attemptFailed := false

			for ev := range c.PerformQuery(ctx, botName, apiKey, req, attempt) {
				if ev.Err != nil {
					lastErr = ev.Err
					attemptFailed = true

					if errors.Is(ev.Err, protocol.ErrBotErrorNoRetry) {
						out <- ev
						return
					}
					retryable := !yieldedAny || isConnectionAbortedOrTimeout(ev.Err)
					if !retryable || attempt == numTries {
						out <- QueryEvent{Err: protocol.WrapBotError(botName, ev.Err)}
						return
					}
					break
				}
				yieldedAny = true
				out <- ev
			}

			if !attemptFailed {
				return
			}

			select {
			case <-ctx.Done():
				out <- QueryEvent{Err: ctx.Err()}
				return
			case <-time.After(retrySleep):
			}
		}

		if lastErr != nil {
			out <- QueryEvent{Err: protocol.WrapBotError(botName, lastErr)}
		}
	}()

	return out
}
