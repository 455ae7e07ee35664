package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botmon/internal/config"
	"botmon/internal/presence"
	"botmon/internal/transport"
)

func baseConfig() *config.Config {
	return &config.Config{
		Discord: config.DiscordConfig{Token: "t"},
		Storage: config.StorageConfig{Driver: "memory"},
	}
}

func TestScheduleSpec(t *testing.T) {
	assert.Equal(t, defaultHealthCheck, scheduleSpec("", defaultHealthCheck))
	assert.Equal(t, "", scheduleSpec(" OFF ", defaultHealthCheck))
	assert.Equal(t, "interval:5m", scheduleSpec(" interval:5m ", defaultHealthCheck))
}

func TestStorageConfigDefaults(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage.Driver = ""

	sc, err := storageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "memory", sc.Driver)
	assert.Equal(t, time.Second, sc.BusyTimeout)
	assert.Equal(t, 5*time.Second, sc.OpTimeout)

	cfg.Storage.Driver = " SQLite "
	cfg.Storage.BusyTimeout = "3s"
	sc, err = storageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, 3*time.Second, sc.BusyTimeout)
}

func TestLogConfigMapsOpsSection(t *testing.T) {
	cfg := baseConfig()
	cfg.Logging = config.LoggingConfig{
		Level:    "debug",
		Console:  true,
		Telegram: config.LoggingTelegram{Enabled: true, MinLevel: "error", RatePerSec: 2},
	}
	lc := logConfig(cfg)
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.Ops.Enabled)
	assert.Equal(t, "error", lc.Ops.MinLevel)
	assert.Equal(t, 2, lc.Ops.RatePerSec)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		ok     bool
	}{
		{"defaults", func(*config.Config) {}, true},
		{"maintenance off", func(c *config.Config) { c.Scheduler.HealthCheck, c.Scheduler.Compact = "off", "off" }, true},
		{"bad timezone", func(c *config.Config) { c.Scheduler.Timezone = "Mars/Olympus" }, false},
		{"bad schedule", func(c *config.Config) { c.Scheduler.Compact = "interval:soon" }, false},
		{"negative workers", func(c *config.Config) { c.TaskEngine.Workers = -1 }, false},
		{"negative rate", func(c *config.Config) { c.Notifier.RatePerSec = -1 }, false},
		{"bad command timeout", func(c *config.Config) { c.Commands.Timeout = "1 minute" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			err := validate(context.Background(), cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSignalFrom(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sig := signalFrom(transport.Presence{
		UserID:     "bot_42",
		Status:     " Offline ",
		Automated:  true,
		GuildID:    "g1",
		ReceivedAt: at,
	})
	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, "bot_42", sig.SubjectID)
	assert.Equal(t, presence.Offline, sig.Status)
	assert.Equal(t, at, sig.ReceivedAt)
	assert.Equal(t, presence.WentOffline, sig.Classify().Class)

	other := signalFrom(transport.Presence{UserID: "bot_42"})
	assert.NotEqual(t, sig.ID, other.ID)
	assert.False(t, other.ReceivedAt.IsZero())
}
