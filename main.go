package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"support_server/config"
	"support_server/internal/bootstrap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	mode := flag.String("mode", "", "Run mode: api, worker, all (overrides MODE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load config", err)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		fatal("failed to initialize dependencies", err)
	}
	defer cleanup()
	log := deps.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var poller interface{ Stop() }
	if cfg.RunsWorker() {
		p, err := bootstrap.NewWorker(ctx, cfg, deps)
		if err != nil {
			fatal("failed to initialize worker", err)
		}
		if err := p.Start(); err != nil {
			fatal("failed to start worker", err)
		}
		poller = p
	}

	if cfg.RunsAPI() {
		app := bootstrap.NewAPI(cfg, deps)

		go func() {
			<-ctx.Done()
			log.Info().Msg("shutting down API server")
			if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
				log.Error().Err(err).Msg("API shutdown error")
			}
		}()

		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Msg("starting API server")
		if err := app.Listen(addr); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	} else {
		<-ctx.Done()
	}

	if poller != nil {
		log.Info().Msg("shutting down worker")
		done := make(chan struct{})
		go func() {
			poller.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			log.Warn().Msg("worker shutdown timed out")
		}
	}
	log.Info().Msg("shutdown complete")
}

func fatal(msg string, err error) {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger.Fatal().Err(err).Msg(msg)
}
