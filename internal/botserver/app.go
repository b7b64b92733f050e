// Package botserver is the dispatcher that mounts one or more bots onto a
// Gin engine: one POST endpoint per bot, authenticated and routed by the
// request body's `type` field, plus a GET landing page on the same path.
//
// Construction (NewApp) performs all validation eagerly and fails fast with
// an error: mounting the wrong bot set is a startup bug, not a request-time
// one.
package botserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-bot-protocol/internal/config"
	"github.com/tbourn/go-bot-protocol/internal/protocol"
	"github.com/tbourn/go-bot-protocol/internal/ssedriver"
)

// Handlers is the set of callbacks a mounted bot supplies. Query is the only
// one every real bot needs; the others default to reasonable no-ops when
// left nil (see the dispatch defaults in routes.go).
type Handlers struct {
	// Query streams a response to a query request. The returned channel is
	// consumed by internal/ssedriver and must be closed when the response is
	// complete.
	Query func(ctx context.Context, bot protocol.PoeBot, req protocol.QueryRequest) <-chan ssedriver.Item

	// Settings answers a settings request. Nil defaults to
	// protocol.NewSettingsResponse().
	Settings func(ctx context.Context, bot protocol.PoeBot, req protocol.SettingsRequest) (protocol.SettingsResponse, error)

	// ReportFeedback observes feedback. Nil is treated as a no-op.
	ReportFeedback func(ctx context.Context, bot protocol.PoeBot, req protocol.ReportFeedbackRequest) error

	// ReportError observes a back-channel error report. Nil is treated as a
	// no-op.
	ReportError func(ctx context.Context, bot protocol.PoeBot, req protocol.ReportErrorRequest) error
}

// BotConfig describes one bot to mount. Exactly one of AccessKey /
// APIKeyDeprecated / AllowWithoutKey determines how the bot authenticates
// incoming requests; see resolveKey for the precedence rule.
type BotConfig struct {
	// Path is the route this bot is mounted at, e.g. "/echobot". Must be
	// unique across all bots passed to NewApp.
	Path string

	// Name is used only for the landing page and default introduction
	// message; it does not affect routing.
	Name string

	// AccessKey is this bot's own shared-secret bearer token. Preferred over
	// every other key source.
	AccessKey string

	// APIKeyDeprecated is the deprecated per-bot key alias. Still honored,
	// but its use is logged as a warning.
	APIKeyDeprecated string

	// AllowWithoutKey permits unauthenticated requests when no key can be
	// resolved from any source.
	AllowWithoutKey bool

	ShouldInsertAttachmentMessages bool
	ConcatAttachmentsToMessage     bool

	Handlers Handlers
}

// mountedBot is a BotConfig plus its resolved access key.
type mountedBot struct {
	cfg       BotConfig
	bot       protocol.PoeBot
	resolvedKey string
}

// App is a constructed, validated set of mounted bots ready to be attached
// to a Gin engine via Mount.
type App struct {
	cfg    config.Config
	logger *zerolog.Logger
	bots   map[string]*mountedBot // keyed by Path
	order  []string
}

// NewApp validates and constructs an App from one or more bot configs.
// Construction fails (rather than panicking at request time) when:
//   - two bots share a Path ("InvalidParameter": duplicate path)
//   - more than one bot is mounted and any of them would otherwise have
//     fallen back to a top-level (env-sourced) key — each must carry its own
//   - no key can be resolved for a bot and AllowWithoutKey is false
func NewApp(cfg config.Config, logger *zerolog.Logger, bots ...BotConfig) (*App, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if len(bots) == 0 {
		return nil, errors.New("botserver: at least one bot must be mounted")
	}

	multiBot := len(bots) > 1

	app := &App{
		cfg:    cfg,
		logger: logger,
		bots:   make(map[string]*mountedBot, len(bots)),
	}

	for _, b := range bots {
		if b.Path == "" {
			return nil, errors.New("botserver: bot path must not be empty")
		}
		if _, exists := app.bots[b.Path]; exists {
			return nil, fmt.Errorf("botserver: invalid parameter: duplicate bot path %q", b.Path)
		}

		key, err := resolveKey(b, cfg, multiBot, logger)
		if err != nil {
			return nil, err
		}

		app.bots[b.Path] = &mountedBot{
			cfg: b,
			bot: protocol.PoeBot{
				Path:                           b.Path,
				AccessKey:                      key,
				AllowWithoutKey:                b.AllowWithoutKey,
				ShouldInsertAttachmentMessages: b.ShouldInsertAttachmentMessages,
				ConcatAttachmentsToMessage:     b.ConcatAttachmentsToMessage,
				Attachments:                    protocol.NewPendingAttachmentTable(),
			},
			resolvedKey: key,
		}
		app.order = append(app.order, b.Path)
	}

	return app, nil
}

// resolveKey implements the key resolution order:
// explicit per-bot key -> process env POE_ACCESS_KEY -> deprecated explicit
// api_key -> process env POE_API_KEY (deprecated, warns). The env fallbacks
// are only honored for a single mounted bot; with multiple bots each must
// carry its own key.
func resolveKey(b BotConfig, cfg config.Config, multiBot bool, logger *zerolog.Logger) (string, error) {
	if b.AccessKey != "" {
		return b.AccessKey, nil
	}
	if !multiBot && cfg.AccessKey != "" {
		return cfg.AccessKey, nil
	}
	if b.APIKeyDeprecated != "" {
		logger.Warn().Str("bot", b.Path).Msg("bot uses deprecated api_key instead of access_key")
		return b.APIKeyDeprecated, nil
	}
	if !multiBot && cfg.APIKey != "" {
		logger.Warn().Str("bot", b.Path).Msg("falling back to deprecated POE_API_KEY")
		return cfg.APIKey, nil
	}
	if b.AllowWithoutKey {
		return "", nil
	}
	if multiBot {
		return "", fmt.Errorf("botserver: invalid parameter: bot %q has no access key and multiple bots are mounted, so no top-level key applies", b.Path)
	}
	return "", fmt.Errorf("botserver: invalid parameter: bot %q has no access key; set access_key or allow_without_key", b.Path)
}

// Log returns the App's base logger, for callers (e.g. cmd/poebot) that want
// to log startup details consistently.
func (a *App) Log() *zerolog.Logger { return a.logger }

func init() {
	// Keep zerolog's global default logger's writer consistent with the rest
	// of the process even before config.Load runs (e.g. during NewApp calls
	// from tests).
	log.Logger = log.With().Logger()
}
