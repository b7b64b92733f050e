package botserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"

	"github.com/tbourn/go-bot-protocol/internal/attachment"
	"github.com/tbourn/go-bot-protocol/internal/httpmw"
	"github.com/tbourn/go-bot-protocol/internal/observability"
	"github.com/tbourn/go-bot-protocol/internal/protocol"
	"github.com/tbourn/go-bot-protocol/internal/ssedriver"
)

// Mount attaches the common middleware stack and every bot's GET/POST routes
// to r. Middleware order matters: tracing, correlation, logging, recovery,
// metrics, rate limiting, CORS, security headers.
func (a *App) Mount(r *gin.Engine) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(a.cfg.OTEL.ServiceName))
	r.Use(httpmw.RequestID())
	// The redacting variant of the access logger: bots are addressed with
	// bearer access keys, which must never reach the logs.
	r.Use(httpmw.RedactingLogger(httpmw.RedactOptions{}))
	r.Use(httpmw.Recovery())
	r.Use(observability.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := httpmw.NewRateLimiter(a.cfg.RateRPS, a.cfg.RateBurst, httpmw.KeyByBotAndIP())
	r.Use(rl.Handler())

	if len(a.cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: false,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     a.cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: false,
		}))
	}

	r.Use(httpmw.SecurityHeaders(httpmw.SecurityOptions{
		EnableHSTS:   a.cfg.Security.EnableHSTS,
		HSTSMaxAge:   a.cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if a.cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// gzip only ever wraps the static landing page: POST handles both JSON
	// replies and SSE streams on the same path, and gzip buffers the full
	// response before flushing it, which would defeat incremental SSE
	// delivery. Applying it per-route (rather than engine-wide) keeps it
	// off that shared path entirely.
	gz := gzip.Gzip(gzip.DefaultCompression)

	for _, path := range a.order {
		mb := a.bots[path]
		r.GET(path, gz, landingPage(mb))
		r.POST(path, authenticate(mb), func(c *gin.Context) {
			dispatch(c, a, mb)
		})
	}
}

// landingPage godoc
// @ID          botLandingPage
// @Summary     Bot landing page
// @Tags        Bots
// @Produce     html
//
// @Param       bot  path  string  true  "Bot path"
//
// @Success     200  {string}  string  "OK"
// @Router      /{bot} [get]
func landingPage(mb *mountedBot) gin.HandlerFunc {
	name := mb.cfg.Name
	if name == "" {
		name = mb.cfg.Path
	}
	intro := protocol.TitleCaseIntroduction(name, language.English)
	html := fmt.Sprintf(`<!doctype html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>`,
		name, name, intro)
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, html)
	}
}

// authenticate enforces the bearer-token rule for this bot.
func authenticate(mb *mountedBot) gin.HandlerFunc {
	return func(c *gin.Context) {
		if mb.bot.AccessKey == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			fail(c, http.StatusForbidden, codeNotAuthenticated, "Not authenticated")
			c.Abort()
			return
		}
		key := auth[len(prefix):]
		if key != mb.bot.AccessKey {
			c.Header("WWW-Authenticate", "Bearer")
			fail(c, http.StatusUnauthorized, codeInvalidAccessKey, "Invalid access key")
			c.Abort()
			return
		}
		c.Next()
	}
}

// typeEnvelope peeks the body's discriminator field without committing to a
// concrete request type, mirroring the dispatcher's decode-then-route shape.
type typeEnvelope struct {
	Type protocol.RequestType `json:"type"`
}

// dispatch godoc
// @ID          botRequest
// @Summary     Dispatch a bot protocol request
// @Description Routes the JSON body by its `type` field: query (streams SSE), settings, report_feedback, report_error.
// @Tags        Bots
// @Accept      json
// @Produce     json
// @Produce     text/event-stream
//
// @Param       Authorization  header  string  false  "Bearer access key"
// @Param       bot            path    string  true   "Bot path"
//
// @Success     200  {object}  protocol.SettingsResponse  "settings response (query requests stream text/event-stream instead)"
// @Failure     400  {object}  botserver.errorResponse  "Malformed body"
// @Failure     401  {object}  botserver.errorResponse  "Invalid access key"
// @Failure     403  {object}  botserver.errorResponse  "Not authenticated"
// @Failure     501  {object}  botserver.errorResponse  "Unsupported request type"
// @Router      /{bot} [post]
func dispatch(c *gin.Context, a *App, mb *mountedBot) {
	body, err := readBody(c)
	if err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "could not read request body")
		return
	}

	var env typeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "malformed JSON body")
		return
	}

	switch env.Type {
	case protocol.RequestQuery:
		dispatchQuery(c, a, mb, body)
	case protocol.RequestSettings:
		dispatchSettings(c, mb, body)
	case protocol.RequestReportFeedback:
		dispatchReportFeedback(c, mb, body)
	case protocol.RequestReportError:
		dispatchReportError(c, mb, body)
	default:
		fail(c, http.StatusNotImplemented, codeUnsupportedType, "unsupported request type")
	}
}

func dispatchQuery(c *gin.Context, a *App, mb *mountedBot, body []byte) {
	var req protocol.QueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "malformed query request")
		return
	}
	if mb.cfg.Handlers.Query == nil {
		fail(c, http.StatusNotImplemented, codeUnsupportedType, "bot does not implement query")
		return
	}

	req = normalizeQuery(httpmw.LoggerFrom(c), mb.bot, req)
	events := mb.cfg.Handlers.Query(c.Request.Context(), mb.bot, req)

	// Whatever ends the stream, the request's attachment entry must not
	// outlive its response.
	defer mb.bot.Attachments.Drain(req.MessageID)

	cfg := ssedriver.Config{
		Ping:        a.cfg.Stream.PingInterval,
		SendTimeout: a.cfg.Stream.SendTimeout,
		Finalize: func(ctx context.Context) error {
			return attachment.Await(ctx, mb.bot.Attachments.Drain(req.MessageID))
		},
	}
	if err := ssedriver.Drive(c.Request.Context(), c.Writer, c.Request, mb.bot.Path, events, cfg); err != nil {
		lg := httpmw.LoggerFrom(c)
		lg.Warn().Err(err).Str("bot", mb.bot.Path).Msg("stream ended with error")
	}
}

func dispatchSettings(c *gin.Context, mb *mountedBot, body []byte) {
	var req protocol.SettingsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "malformed settings request")
		return
	}
	resp := protocol.NewSettingsResponse()
	if mb.cfg.Handlers.Settings != nil {
		r, err := mb.cfg.Handlers.Settings(c.Request.Context(), mb.bot, req)
		if err != nil {
			fail(c, http.StatusInternalServerError, codeInternal, "settings handler failed")
			return
		}
		resp = r
	}
	ok(c, http.StatusOK, resp)
}

func dispatchReportFeedback(c *gin.Context, mb *mountedBot, body []byte) {
	var req protocol.ReportFeedbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "malformed report_feedback request")
		return
	}
	if mb.cfg.Handlers.ReportFeedback != nil {
		if err := mb.cfg.Handlers.ReportFeedback(c.Request.Context(), mb.bot, req); err != nil {
			fail(c, http.StatusInternalServerError, codeInternal, "report_feedback handler failed")
			return
		}
	}
	ok(c, http.StatusOK, struct{}{})
}

func dispatchReportError(c *gin.Context, mb *mountedBot, body []byte) {
	var req protocol.ReportErrorRequest
	if err := json.Unmarshal(body, &req); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "malformed report_error request")
		return
	}
	if mb.cfg.Handlers.ReportError != nil {
		if err := mb.cfg.Handlers.ReportError(c.Request.Context(), mb.bot, req); err != nil {
			fail(c, http.StatusInternalServerError, codeInternal, "report_error handler failed")
			return
		}
	}
	ok(c, http.StatusOK, struct{}{})
}

func readBody(c *gin.Context) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(c.Request.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
