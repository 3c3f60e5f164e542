package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/phonelog/liveview/internal/calls"
	"github.com/phonelog/liveview/internal/config"
	"github.com/phonelog/liveview/internal/logging"
	"github.com/phonelog/liveview/internal/mock"
	"github.com/phonelog/liveview/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	mockMode := flag.Bool("mock", false, "Generate synthetic calls")
	logLevel := flag.String("log-level", "", "Override log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog().Fatal().Err(err).Msg("failed to load config")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *mockMode {
		cfg.Server.Mock.Enabled = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log, err := logging.New(cfg.Log.Level, os.Stderr, true)
	if err != nil {
		bootLog().Fatal().Err(err).Msg("invalid log config")
	}

	store := calls.NewStore()
	tokens := ws.NewTokens(cfg.Server.CSRFSecret, cfg.Server.TokenTTL, nil)
	broadcaster := ws.NewBroadcaster(tokens, ws.ContentSource(store),
		cfg.Server.AckTimeout, cfg.Server.MaxConnections, log)
	server := ws.NewServer(&cfg.Server, store, broadcaster, tokens, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Mock.Enabled {
		log.Info().Dur("interval", cfg.Server.Mock.Interval).Msg("starting in mock mode")
		gen := mock.NewGenerator(store, broadcaster, cfg.Server.Mock.Interval, cfg.Server.Mock.MaxCalls, log)
		gen.Start(ctx)
	}

	if err := ws.ListenAndServe(ctx, cfg.Server.Addr(), server.Handler(), broadcaster, log); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("shut down")
}

func bootLog() *zerolog.Logger {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return &l
}
