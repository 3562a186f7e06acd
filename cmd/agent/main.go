package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/spf13/pflag"

	"github.com/dkeye/Hearing/internal/adapters/conference"
	"github.com/dkeye/Hearing/internal/adapters/rtc"
	wssignal "github.com/dkeye/Hearing/internal/adapters/signal"
	"github.com/dkeye/Hearing/internal/config"
	"github.com/dkeye/Hearing/internal/domain"
	"github.com/dkeye/Hearing/internal/session"
)

func main() {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(sigCtx)
	defer cancel(nil)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := pflag.NewFlagSet("hearing-agent", pflag.ExitOnError)
	flags.String("config", "", "path to a config yaml (default config/config.$CONFIG_ENV.yaml)")
	flags.String("agent.conference_id", "", "conference to attend")
	flags.String("agent.participant_id", "", "participant id within the conference")
	flags.String("agent.token", "", "identity token for the hub")
	flags.String("agent.hub_url", "", "hub websocket url")
	flags.String("agent.whip_url", "", "WHIP endpoint for the call; empty disables media")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Server.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	ac := cfg.Agent

	identity := domain.Identity{
		Name:          ac.ParticipantID,
		ParticipantID: ac.ParticipantID,
		ConferenceID:  ac.ConferenceID,
	}

	var sess *session.Session
	client := wssignal.NewClient(wssignal.ClientOptions{
		URL:           ac.HubURL,
		Token:         ac.Token,
		MaxAttempts:   ac.MaxSignalAttempts,
		RedialInitial: ac.RedialInitial,
		RedialMax:     ac.RedialMax,
	}, func(ev domain.Event) bool { return sess.Post(ev) }, nil)

	con := &console{out: os.Stdout, cancel: cancel}
	deps := session.Deps{
		Conferences: conference.NewHTTPFetcher(cfg.ConferenceAPI.BaseURL, ac.Token, cfg.ConferenceAPI.Timeout),
		Publisher:   client,
		Notifier:    con,
		Errors:      con,
	}
	if ac.WHIPURL != "" {
		deps.Media = rtc.NewCall(rtc.Options{
			WHIPURL:    ac.WHIPURL,
			Token:      ac.Token,
			ICEServers: ac.ICEServers,
			UserAgent:  "hearing-agent",
		}, func(sig session.CallSignal) { sess.CallSignal(sig) })
	}

	sess, err = session.New(identity, session.Config{
		ReconnectDelay:    ac.ReconnectDelay,
		MaxSignalAttempts: ac.MaxSignalAttempts,
		MaxCallRetries:    ac.MaxCallRetries,
		HeartbeatInterval: ac.HeartbeatInterval,
		ClosedThreshold:   ac.ClosedThreshold,
	}, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build session")
	}

	if err := client.Connect(ctx); err != nil {
		log.Fatal().Err(err).Str("hub", ac.HubURL).Msg("failed to connect to hub")
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			cancel(err)
		}
	})
	wg.Go(func() {
		err := sess.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			cancel(err)
			return
		}
		cancel(nil)
	})
	go readCommands(ctx, os.Stdin, os.Stdout, sess)

	log.Info().
		Str("module", "agent").
		Str("conference", ac.ConferenceID).
		Str("participant", ac.ParticipantID).
		Msg("agent started")
	wg.Wait()

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		log.Error().Err(cause).Str("module", "agent").Msg("agent stopped")
		os.Exit(1)
	}
	log.Info().Str("module", "agent").Msg("agent exited")
}
