package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-bot-protocol/internal/config"
	"github.com/tbourn/go-bot-protocol/internal/sysutil"
)

// appVersion labels traces and the serve banner.
const appVersion = "0.1.0"

var (
	// Global flags
	envFile string

	// Shared state set during PersistentPreRunE
	cfg    config.Config
	logger zerolog.Logger

	// exitCode lets serve propagate a non-zero code (forced shutdown)
	// without treating it as a usage error.
	exitCode = sysutil.ExitOK
)

// rootCmd is the base command for poebot.
var rootCmd = &cobra.Command{
	Use:           "poebot",
	Short:         "Bot protocol server and client over HTTP + Server-Sent Events",
	Long:          "Poebot hosts one or more bots behind a single HTTP listener and can\nquery remote bots as a client, streaming their responses to stdout.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Populate the environment from a .env file before the config
		// loader reads it. A missing default .env is not an error.
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("load env file %q: %w", envFile, err)
			}
		} else {
			_ = godotenv.Load()
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sysutil.SetLogLevel(cfg.LogLevel)
		var out io.Writer = os.Stderr
		if cfg.LogPretty {
			out = zerolog.ConsoleWriter{Out: os.Stderr}
		}
		logger = zerolog.New(out).With().Timestamp().Str("service", cfg.OTEL.ServiceName).Logger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file loaded before configuration is read")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
}

// execute runs the root command and returns the process exit code.
func execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return exitCode
}
