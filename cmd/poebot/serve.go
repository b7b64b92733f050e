package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-bot-protocol/examples/echobot"
	"github.com/tbourn/go-bot-protocol/internal/botserver"
	"github.com/tbourn/go-bot-protocol/internal/observability"
	"github.com/tbourn/go-bot-protocol/internal/sysutil"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot server with the example echo bot mounted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
		if err != nil {
			return fmt.Errorf("setup otel: %w", err)
		}
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("otel shutdown failed")
			}
		}()

		gin.SetMode(cfg.GinMode)

		app, err := botserver.NewApp(cfg, &logger, botserver.BotConfig{
			Path:            "/" + echobot.Name,
			Name:            echobot.Name,
			AllowWithoutKey: cfg.AccessKey == "",
			Handlers:        echobot.Handlers(),
		})
		if err != nil {
			return err
		}

		r := gin.New()
		app.Mount(r)

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           r,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			// No server-wide write deadline: query responses are long-lived
			// SSE streams; per-event deadlines come from the stream driver.
			WriteTimeout:   0,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		}

		logger.Info().
			Str("addr", srv.Addr).
			Str("bot", echobot.Name).
			Str("version", appVersion).
			Msg("server starting")

		exitCode = sysutil.Serve(srv, &logger)
		return nil
	},
}
