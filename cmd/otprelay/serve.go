package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/nhle/otp-relay/internal/model"
	"github.com/nhle/otp-relay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func runServe(args []string) int {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := fs.String("config", model.DefaultConfigPath(), "path to config.yaml")
	port := fs.Int("port", 0, "listen port (overrides server.port)")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := bootstrap(ctx, *configPath, storeIfPresent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return exitFailure
	}
	defer env.Close()

	if *port > 0 {
		env.cfg.Server.Port = *port
	}

	app := server.New(newService(env), env.registry)
	addr := ":" + strconv.Itoa(env.cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("pkg", pkgName).
			Str("addr", addr).
			Int("active_accounts", len(env.registry.ListActive())).
			Msg("HTTP server listening")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		log.Error().Str("pkg", pkgName).Err(err).Msg("HTTP server stopped")
		return exitFailure
	case <-ctx.Done():
	}

	log.Info().Str("pkg", pkgName).Msg("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Error().Str("pkg", pkgName).Err(err).Msg("forced shutdown")
		return exitFailure
	}

	return exitOK
}
