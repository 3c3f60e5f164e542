package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/phonelog/liveview/internal/app"
	"github.com/phonelog/liveview/internal/client"
	"github.com/phonelog/liveview/internal/config"
	"github.com/phonelog/liveview/internal/datefmt"
	"github.com/phonelog/liveview/internal/i18n"
	"github.com/phonelog/liveview/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	wsURL := flag.String("url", "", "WebSocket URL of the push server")
	token := flag.String("token", "", "Auth token (if the server requires it)")
	lang := flag.String("lang", "", "Display language, e.g. en or nb")
	noAnimate := flag.Bool("no-animate", false, "Open detail panels without animation")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *wsURL != "" {
		cfg.Client.URL = *wsURL
	}
	if *token != "" {
		cfg.Client.AuthToken = *token
	}
	if *lang != "" {
		cfg.Client.Language = *lang
	}
	if *noAnimate {
		cfg.Client.Animate = false
	}

	logFile, err := logging.OpenFile(cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log, err := logging.New(cfg.Log.Level, logFile, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tag := i18n.DetectFromEnv()
	if cfg.Client.Language != "" {
		tag = i18n.DetectLanguage(cfg.Client.Language)
	}

	pageURL := cfg.Client.PageURL
	if pageURL == "" {
		pageURL = client.HTTPBase(cfg.Client.URL)
	}

	ws := client.NewWSClient(cfg.Client.URL, cfg.Client.AuthToken, log)
	httpClient := client.NewHTTPClient(pageURL, cfg.Client.AuthToken, tag.String())

	dispatcher := app.NewDispatcher()
	m := app.New(ws, httpClient, app.Options{
		Translator:            i18n.New(tag),
		Formatter:             datefmt.New(tag, cfg.Client.Location()),
		Dispatcher:            dispatcher,
		CancelReloadOnConnect: cfg.Client.CancelReloadOnConnect,
		Animate:               cfg.Client.Animate,
		Log:                   log,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	dispatcher.Attach(p.Send)

	log.Info().Str("url", cfg.Client.URL).Str("lang", tag.String()).Msg("starting live view")
	if _, err := p.Run(); err != nil {
		log.Error().Err(err).Msg("program exited")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
