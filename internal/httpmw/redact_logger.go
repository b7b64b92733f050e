// This file implements RedactingLogger, the access logger mounted in front
// of the bot routes. It writes structured request logs and stores a
// request-scoped zerolog.Logger under the "logger" context key, and it
// scrubs the protocol's own secrets from request metadata before anything
// is emitted.
//
// The secrets this surface actually handles are bearer credentials: per-bot
// access keys and outbound api keys, both 32-character opaque identifiers
// that arrive in the Authorization header and occasionally leak into query
// strings or custom headers on misconfigured callers. Request and response
// bodies are never logged.
//
// Security note: this middleware reduces but does not eliminate the risk of
// credentials leaking to logs; callers should still keep keys out of query
// strings.

package httpmw

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders specifies extra HTTP header names whose values will be fully
// replaced with "[REDACTED]". Matching is case-insensitive and merged with
// built-in sensitive headers ("Authorization", "Cookie", "Set-Cookie").
type RedactOptions struct {
	MaskHeaders []string
}

// Compiled once; order of application matters (see redactValue).
var (
	// api_key=... / access_key=... pairs in query strings or header values.
	keyParamRE = regexp.MustCompile(`(?i)\b(api_key|access_key)=[^&\s]+`)

	// Bearer credentials embedded in non-masked header values.
	bearerRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/=-]+`)

	// Bare 32-character opaque identifiers, the protocol's access-key shape.
	accessKeyRE = regexp.MustCompile(`\b[0-9A-Za-z]{32}\b`)
)

// redactValue scrubs protocol credentials from s. Named key=value pairs are
// redacted first so the bare-key pattern never sees a partially consumed
// match, then Bearer credentials, then bare 32-char keys.
func redactValue(s string) string {
	if s == "" {
		return s
	}
	out := keyParamRE.ReplaceAllString(s, "$1=[REDACTED:key]")
	out = bearerRE.ReplaceAllString(out, "Bearer [REDACTED:key]")
	out = accessKeyRE.ReplaceAllString(out, "[REDACTED:key]")
	return out
}

// RedactingLogger returns the access-log middleware used by the dispatcher.
//
// Behavior:
//   - Stores a request-scoped zerolog.Logger in the Gin context (key
//     "logger"), so LoggerFrom returns it.
//   - Logs method, path, redacted query string, status, sizes, latency, and
//     request headers (with scrubbing applied).
//   - Fully masks built-in sensitive headers and any additional headers
//     provided in opts.MaskHeaders; applies redactValue to the rest.
//   - Selects log level by outcome: INFO, WARN for 4xx, ERROR for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redactValue(truncate(c.Request.URL.RawQuery, maxQueryLogLength))

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			val := strings.Join(vv, ", ")
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redactValue(val)
		}

		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("query", safeQuery).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()

		c.Set("logger", &l)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		ev := l.With().
			Int("status", status).
			Dur("latency", latency).
			Int("bytes_out", c.Writer.Size()).
			Interface("headers", safeHeaders).
			Logger()

		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}
