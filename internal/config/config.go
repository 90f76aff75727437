// Package config loads process configuration from the environment.
//
// Values come from OS environment variables, falling back to a .env file in the
// working directory. Missing required values or bad formats are reported as a
// *ConfigError so binaries can fail fast at startup.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds settings shared by the bot, poller and web binaries
type Config struct {
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`

	DBPath   string `envconfig:"DB_PATH"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080" validate:"required"`

	PondFeedURLs   []string      `envconfig:"POND_FEED_URLS" validate:"dive,url"`
	FeedTimeout    time.Duration `envconfig:"FEED_TIMEOUT" default:"15s" validate:"gt=0"`
	FeedLocation   string        `envconfig:"FEED_LOCATION" default:"UTC"`
	PollSchedule   string        `envconfig:"POLL_SCHEDULE" default:"0 * * * *" validate:"required"`
	DigestSchedule string        `envconfig:"DIGEST_SCHEDULE" default:"0 8 * * *" validate:"required"`
	DigestWindow   time.Duration `envconfig:"DIGEST_WINDOW" default:"24h" validate:"gt=0"`
}

// ErrorType classifies configuration failures
type ErrorType string

const (
	ErrParsing    ErrorType = "parsing"
	ErrValidation ErrorType = "validation"
	ErrMissing    ErrorType = "missing"
)

// ConfigError describes why configuration could not be loaded
type ConfigError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads .env (if present) and the environment into a validated Config
func Load() (*Config, error) {
	// A missing .env file is fine; real environment variables win.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to process environment", Err: err}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}

	if _, err := cfg.FeedTimeLocation(); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "FEED_LOCATION is not a known time zone", Err: err}
	}

	return &cfg, nil
}

// FeedTimeLocation is the time zone pond controllers print their clocks in.
// An empty value means UTC.
func (c *Config) FeedTimeLocation() (*time.Location, error) {
	return time.LoadLocation(c.FeedLocation)
}

// RequireTelegram checks that a bot token is configured
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return &ConfigError{Type: ErrMissing, Message: "TELEGRAM_BOT_TOKEN environment variable is not set"}
	}
	return nil
}

// RequireFeeds checks that at least one pond feed URL is configured
func (c *Config) RequireFeeds() error {
	if len(c.PondFeedURLs) == 0 {
		return &ConfigError{Type: ErrMissing, Message: "POND_FEED_URLS environment variable is not set"}
	}
	return nil
}
