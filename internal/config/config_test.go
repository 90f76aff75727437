package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN", "OPENAI_API_KEY", "DB_PATH", "HTTP_ADDR", "POND_FEED_URLS",
		"FEED_TIMEOUT", "POLL_SCHEDULE", "DIGEST_SCHEDULE", "DIGEST_WINDOW",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("FEED_TIMEOUT", "15s")
	t.Setenv("POLL_SCHEDULE", "0 * * * *")
	t.Setenv("DIGEST_SCHEDULE", "0 8 * * *")
	t.Setenv("DIGEST_WINDOW", "24h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Second, cfg.FeedTimeout)
	assert.Equal(t, "0 * * * *", cfg.PollSchedule)
	assert.Equal(t, 24*time.Hour, cfg.DigestWindow)
	assert.Empty(t, cfg.PondFeedURLs)
}

func TestLoadFeedURLs(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("FEED_TIMEOUT", "5s")
	t.Setenv("POLL_SCHEDULE", "*/15 * * * *")
	t.Setenv("DIGEST_SCHEDULE", "0 8 * * *")
	t.Setenv("DIGEST_WINDOW", "12h")
	t.Setenv("POND_FEED_URLS", "http://controller-a.local/status,http://controller-b.local/status")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://controller-a.local/status", "http://controller-b.local/status"}, cfg.PondFeedURLs)
	assert.NoError(t, cfg.RequireFeeds())
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("POLL_SCHEDULE", "0 * * * *")
	t.Setenv("DIGEST_SCHEDULE", "0 8 * * *")
	t.Setenv("DIGEST_WINDOW", "24h")
	t.Setenv("FEED_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrParsing, cfgErr.Type)
}

func TestLoadRejectsInvalidFeedURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("FEED_TIMEOUT", "15s")
	t.Setenv("POLL_SCHEDULE", "0 * * * *")
	t.Setenv("DIGEST_SCHEDULE", "0 8 * * *")
	t.Setenv("DIGEST_WINDOW", "24h")
	t.Setenv("POND_FEED_URLS", "not a url")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestRequireTelegram(t *testing.T) {
	cfg := &Config{}
	err := cfg.RequireTelegram()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")

	cfg.TelegramBotToken = "123:abc"
	assert.NoError(t, cfg.RequireTelegram())
}

func TestLoadFeedLocation(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("FEED_TIMEOUT", "15s")
	t.Setenv("POLL_SCHEDULE", "0 * * * *")
	t.Setenv("DIGEST_SCHEDULE", "0 8 * * *")
	t.Setenv("DIGEST_WINDOW", "24h")

	t.Setenv("FEED_LOCATION", "UTC")
	cfg, err := Load()
	require.NoError(t, err)
	loc, err := cfg.FeedTimeLocation()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	t.Setenv("FEED_LOCATION", "Atlantis/Lost_City")
	_, err = Load()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrValidation, cfgErr.Type)
}
