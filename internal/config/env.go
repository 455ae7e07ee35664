package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	EnvBotToken  = "BOT_TOKEN"
	EnvTableName = "TABLE_NAME"
)

var ErrMissingToken = errors.New("discord token is required (set discord.token or BOT_TOKEN)")

// ApplyEnv overlays environment-provided secrets onto cfg. A set but empty
// variable is ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	if v, ok := lookup(EnvBotToken); ok && strings.TrimSpace(v) != "" {
		cfg.Discord.Token = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTableName); ok && strings.TrimSpace(v) != "" {
		cfg.Storage.Table = strings.TrimSpace(v)
	}
}

// Validate checks the fields that can be checked without building components.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(c.Discord.Token) == "" {
		errs = append(errs, ErrMissingToken)
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory", "mem", "file", "sqlite", "sqlite3", "postgres", "postgresql", "pgx", "redis":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Logging.Telegram.Enabled && (strings.TrimSpace(c.Telegram.Token) == "" || c.Telegram.ChatID == 0) {
		errs = append(errs, errors.New("logging.telegram.enabled requires telegram.token and telegram.chat_id"))
	}
	if c.Monitor.Fanout < 0 {
		errs = append(errs, errors.New("monitor.fanout must be >= 0"))
	}
	for path, raw := range map[string]string{
		"storage.busy_timeout":        c.Storage.BusyTimeout,
		"storage.op_timeout":          c.Storage.OpTimeout,
		"task_engine.default_timeout": c.TaskEngine.DefaultTimeout,
		"commands.timeout":            c.Commands.Timeout,
		"notifier.send_timeout":       c.Notifier.SendTimeout,
	} {
		if _, err := ParseDuration(path, raw, 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
