package sysutil

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownGrace is how long in-flight requests get to finish after a
// termination signal before the listener is torn down hard.
const ShutdownGrace = 10 * time.Second

// Exit codes for the local runner: clean shutdown, and forced shutdown
// after the grace period expired.
const (
	ExitOK     = 0
	ExitForced = 1
)

// Serve runs srv until SIGINT/SIGTERM arrives or the listener fails, then
// drains it within ShutdownGrace. It returns the process exit code. Signal
// handlers are registered here, at the outermost server entrypoint, and
// restored before returning.
func Serve(srv *http.Server, logger *zerolog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("listener failed")
			return ExitForced
		}
		return ExitOK
	case <-ctx.Done():
		logger.Info().Dur("grace", ShutdownGrace).Msg("shutdown signal received, draining")
	}

	return Shutdown(srv, ShutdownGrace, logger)
}

// Shutdown drains srv within grace, returning ExitOK on a clean drain and
// ExitForced when the deadline expired and the server was closed with
// requests still in flight.
func Shutdown(srv *http.Server, grace time.Duration, logger *zerolog.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown expired, forcing close")
		_ = srv.Close()
		return ExitForced
	}
	logger.Info().Msg("server stopped cleanly")
	return ExitOK
}
