package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/spf13/pflag"

	router "github.com/dkeye/rendezvous/internal/adapters/http"
	wssignal "github.com/dkeye/rendezvous/internal/adapters/signal"
	"github.com/dkeye/rendezvous/internal/app"
	"github.com/dkeye/rendezvous/internal/app/orch"
	"github.com/dkeye/rendezvous/internal/auth"
	"github.com/dkeye/rendezvous/internal/config"
	"github.com/dkeye/rendezvous/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

func run() error {
	var configFile string
	flagSet := pflag.NewFlagSet("rendezvous", pflag.ContinueOnError)
	flagSet.StringVar(&configFile, "config", "", "path to YAML config (default: config/config.$CONFIG_ENV.yaml)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Usable before config.Load, replaced by SetupLogger.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.SetupLogger(cfg, os.Stderr); err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}

	m := metrics.New()
	store := app.NewStore(app.StoreConfig{
		TTL:                    cfg.Cache.TTL,
		MaxCandidatesPerSender: cfg.Cache.MaxCandidatesPerSender,
	}, m)
	validator, err := auth.NewValidator(cfg.Auth)
	if err != nil {
		return err
	}
	policy, err := app.PolicyFor(cfg.Backpressure)
	if err != nil {
		return err
	}

	relay := &orch.Router{
		Store:   store,
		Auth:    validator,
		Policy:  policy,
		Metrics: m,
	}
	deps := router.Deps{
		Signal:  wssignal.NewController(relay, wssignal.LimitsFrom(cfg), wssignal.NewRateLimiter(cfg.Rate.Messages, cfg.Rate.Window), m),
		Store:   store,
		Metrics: m,
	}
	if cfg.Auth.Mode == config.AuthModeJWT {
		signer, err := auth.NewSigner(cfg.Auth.Secret, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
		deps.Devices = app.NewDeviceRegistry(nil)
		deps.Tokens = auth.NewTokenValidator(cfg.Auth.Secret, cfg.Auth.TokenLeeway)
		deps.Signer = signer
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, deps),
	}
	sweeper := app.NewSweeper(store, cfg.Sweep.Interval, nil, m)

	var wg conc.WaitGroup
	wg.Go(func() { sweeper.Run(ctx) })
	wg.Go(func() {
		log.Info().Str("addr", addr).Str("auth", string(cfg.Auth.Mode)).Msg("rendezvous server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	wg.Wait()
	log.Info().Msg("Server exited gracefully")
	return nil
}
