package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const sampleYAML = `
discord:
  token: file-token
  status_text: "Monitoring bots"
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./botmon.db
  table: register
monitor:
  fanout: 4
scheduler:
  health_check: "interval:30s"
`

func TestParseYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	m := NewConfigManager(p)
	m.SetEnvLookup(env(nil))

	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "file-token", cfg.Discord.Token)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 4, cfg.Monitor.Fanout)
	assert.Equal(t, "interval:30s", cfg.Scheduler.HealthCheck)
	assert.Nil(t, m.Get(), "parse must not commit")
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	dir := t.TempDir()

	t.Run("unknown field", func(t *testing.T) {
		p := writeFile(t, dir, "a.json", `{"discord":{"token":"x","owner":"y"}}`)
		_, err := NewConfigManager(p).Parse()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown field")
	})

	t.Run("trailing data", func(t *testing.T) {
		p := writeFile(t, dir, "b.json", `{"discord":{"token":"x"}}{"discord":{}}`)
		_, err := NewConfigManager(p).Parse()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "trailing data")
	})

	t.Run("trailing data after valid object", func(t *testing.T) {
		p := writeFile(t, dir, "c.json", `{"discord":{"token":"x"}} {"unrelated":1}`)
		_, err := NewConfigManager(p).Parse()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "trailing data")
		assert.NotContains(t, err.Error(), "unknown field")
	})

	t.Run("empty yaml", func(t *testing.T) {
		p := writeFile(t, dir, "d.yaml", "# nothing here\n")
		_, err := NewConfigManager(p).Parse()
		require.ErrorIs(t, err, errEmptyConfig)
	})
}

func TestEnvOverrides(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	m := NewConfigManager(p)
	m.SetEnvLookup(env(map[string]string{
		EnvBotToken:  " env-token ",
		EnvTableName: "watchers",
	}))

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Discord.Token)
	assert.Equal(t, "watchers", cfg.Storage.Table)
	assert.Same(t, cfg, m.Get())
}

func TestEnvEmptyIsIgnored(t *testing.T) {
	cfg := &Config{Discord: DiscordConfig{Token: "keep"}}
	ApplyEnv(cfg, env(map[string]string{EnvBotToken: "  "}))
	assert.Equal(t, "keep", cfg.Discord.Token)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Discord.Token = "" }, wantErr: "discord token"},
		{name: "bad driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, wantErr: "unknown driver"},
		{name: "bad duration", mutate: func(c *Config) { c.Notifier.SendTimeout = "soon" }, wantErr: "notifier.send_timeout"},
		{name: "ops without chat", mutate: func(c *Config) { c.Logging.Telegram.Enabled = true }, wantErr: "telegram.chat_id"},
		{name: "negative fanout", mutate: func(c *Config) { c.Monitor.Fanout = -1 }, wantErr: "monitor.fanout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Discord: DiscordConfig{Token: "t"}, Storage: StorageConfig{Driver: "memory"}}
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	oldCfg := &Config{
		Discord: DiscordConfig{Token: "old-secret"},
		Storage: StorageConfig{Driver: "postgres", DSN: "postgres://u:p@h/db"},
	}
	newCfg := &Config{
		Discord: DiscordConfig{Token: "new-secret"},
		Storage: StorageConfig{Driver: "postgres", DSN: "postgres://u:p2@h/db"},
		Logging: LoggingConfig{Level: "debug"},
	}

	changed, attrs, restart := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"discord", "logging", "storage"}, changed)
	assert.Equal(t, []string{"discord", "storage"}, restart)
	assert.NotEmpty(t, attrs)

	same, _, _ := SummarizeConfigChange(newCfg, newCfg)
	assert.Empty(t, same)
}

func TestWatchPublishesChange(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"discord":{"token":"a"},"logging":{"level":"info"}}`)

	m := NewConfigManager(p)
	m.SetEnvLookup(env(nil))
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "config.json", `{"discord":{"token":"a"},"logging":{"level":"debug"}}`)

	select {
	case cfg := <-sub:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}

	cancel()
	<-done
}

func TestPublishKeepsNewest(t *testing.T) {
	m := NewConfigManager("unused.json")
	sub := m.Subscribe(1)

	first := &Config{Logging: LoggingConfig{Level: "info"}}
	second := &Config{Logging: LoggingConfig{Level: "warn"}}
	m.publish(first)
	m.publish(second)

	got := <-sub
	assert.Same(t, second, got)

	m.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("notifier.send_timeout", "", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)

	d, err = ParseDuration("notifier.send_timeout", " 0s ", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)

	d, err = ParseDuration("notifier.send_timeout", "1m30s", 0)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseDuration("notifier.send_timeout", "-1s", 0)
	assert.ErrorContains(t, err, "notifier.send_timeout")

	_, err = ParseDuration("notifier.send_timeout", "soon", 0)
	assert.ErrorContains(t, err, "is not a duration")
}
