package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rainwatch/rainwatch/internal/agent"
	"github.com/rainwatch/rainwatch/internal/api"
	"github.com/rainwatch/rainwatch/internal/config"
	"github.com/rainwatch/rainwatch/internal/forecast"
	"github.com/rainwatch/rainwatch/internal/geocode"
	"github.com/rainwatch/rainwatch/internal/notify"
	"github.com/rainwatch/rainwatch/internal/settings"
	"github.com/rainwatch/rainwatch/pkg/http/client"
)

const userAgent = "rainwatch/1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Loading configuration")
	}
	cfg.InitializeLogging()

	store, err := settings.NewSQLiteStore(cfg.SettingsDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Opening settings store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Closing settings store")
		}
	}()

	forecastClient := client.New(client.Options{
		BaseURL:   cfg.ForecastBaseURL,
		UserAgent: userAgent,
		Timeout:   cfg.HTTPTimeout,
	})
	geocodeClient := client.New(client.Options{
		BaseURL:   cfg.GeocodeBaseURL,
		UserAgent: userAgent,
		Timeout:   cfg.HTTPTimeout,
	})
	reverseClient := client.New(client.Options{
		BaseURL:   cfg.ReverseBaseURL,
		UserAgent: userAgent,
		Timeout:   cfg.HTTPTimeout,
	})

	geocoder, err := geocode.NewOpenMeteoGeocoder(geocodeClient, reverseClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Creating geocoder")
	}

	fetcher := forecast.NewService(forecastClient, geocoder)
	fetcher.StrictValidation = cfg.StrictValidation

	var notifier notify.Notifier
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.HTTPTimeout)
	} else {
		notifier = notify.NewLogNotifier()
	}

	agentCfg, err := settings.LoadAgentConfig(store)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading agent configuration")
	}

	watcher := agent.New(store, fetcher, notifier, agentCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Resume watching if the agent was active at last shutdown.
	if agentCfg.IsActive {
		if err := watcher.Enable(ctx); err != nil {
			log.Warn().Err(err).Msg("Could not resume rain watch")
		}
	}

	handler := api.NewHandler(watcher, geocoder)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Control API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Control API server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	// No Disable here: isActive stays persisted so the watch resumes on the
	// next start. The pending timer dies with the process.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Control API shutdown")
	}
}
