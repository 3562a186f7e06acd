package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"github.com/spf13/pflag"

	"github.com/dkeye/Hearing/internal/adapters/auth"
	"github.com/dkeye/Hearing/internal/adapters/conference"
	"github.com/dkeye/Hearing/internal/adapters/heartbeat"
	router "github.com/dkeye/Hearing/internal/adapters/http"
	wssignal "github.com/dkeye/Hearing/internal/adapters/signal"
	"github.com/dkeye/Hearing/internal/app"
	"github.com/dkeye/Hearing/internal/app/hub"
	"github.com/dkeye/Hearing/internal/config"
	"github.com/dkeye/Hearing/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("hearing-server", pflag.ExitOnError)
	flags.String("config", "", "path to a config yaml (default config/config.$CONFIG_ENV.yaml)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	initLogger(cfg.Server)

	injector := setupDI(cfg)

	h, err := do.Invoke[*hub.Hub](injector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve hub")
	}
	ctrl, err := do.Invoke[*wssignal.SignalWSController](injector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve signal controller")
	}
	verifier, err := do.Invoke[*auth.Verifier](injector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve token verifier")
	}

	r := router.SetupRouter(ctx, cfg.Server, h, ctrl, verifier)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Hearing server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if report := injector.ShutdownWithContext(shutdownCtx); report != nil && !report.Succeed {
		log.Error().Str("report", report.Error()).Msg("dependency shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func initLogger(cfg config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.Provide(injector, func(i do.Injector) (app.Policy, error) {
		return app.PolicyByName(cfg.Server.BackpressurePolicy)
	})
	do.Provide(injector, func(i do.Injector) (*app.Directory, error) {
		return app.NewDirectory(), nil
	})
	conference.RegisterDI(injector)
	heartbeat.RegisterDI(injector)
	do.Provide(injector, func(i do.Injector) (*hub.Hub, error) {
		return hub.New(
			do.MustInvoke[*app.Directory](i),
			do.MustInvoke[core.ConferenceStore](i),
			do.MustInvoke[core.HeartbeatStore](i),
			do.MustInvoke[app.Policy](i),
		), nil
	})
	wssignal.RegisterDI(injector)
	auth.RegisterDI(injector)

	return injector
}
