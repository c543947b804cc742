package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is the process-level configuration, loaded from the environment.
// Agent behavior (location, cadence, lookahead) lives in the settings store
// instead; it mutates at runtime and survives restarts.
type Config struct {
	Environment string        `envconfig:"ENV" default:"production" validate:"oneof=local development production"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string        `envconfig:"LISTEN_ADDR" default:":8090" validate:"required"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`

	ForecastBaseURL string `envconfig:"FORECAST_BASE_URL" default:"https://api.open-meteo.com" validate:"url"`
	GeocodeBaseURL  string `envconfig:"GEOCODE_BASE_URL" default:"https://geocoding-api.open-meteo.com" validate:"url"`
	ReverseBaseURL  string `envconfig:"REVERSE_GEOCODE_BASE_URL" default:"https://nominatim.openstreetmap.org" validate:"url"`

	SettingsDBPath   string `envconfig:"SETTINGS_DB_PATH" default:"rainwatch.db" validate:"required"`
	NotifyWebhookURL string `envconfig:"NOTIFY_WEBHOOK_URL" default:"" validate:"omitempty,url"`

	// StrictValidation enables the forecast invariant checks. Meant for
	// non-production builds; it never changes production control flow.
	StrictValidation bool `envconfig:"STRICT_VALIDATION" default:"false"`
}

// Load reads the configuration: .env file first (non-fatal if absent), then
// environment variables, then struct validation.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	var cfg Config
	if err := envconfig.Process("RAINWATCH", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// InitializeLogging sets up logging based on the configuration
func (c *Config) InitializeLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Setup console logger for development environments
	if c.Environment == "local" || c.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}
