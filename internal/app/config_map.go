package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"botmon/internal/commands"
	"botmon/internal/config"
	"botmon/internal/notifier"
	"botmon/internal/observability/httpserver"
	"botmon/internal/storage"
	"botmon/internal/task/engine"
	"botmon/internal/task/scheduler"
	logx "botmon/pkg/logx"
)

const (
	defaultHealthCheck = "interval:1m"
	defaultCompact     = "@hourly"
)

func logConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Ops: logx.OpsConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDuration("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	opTimeout, err := config.ParseDuration("storage.op_timeout", sc.OpTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "memory"
	}
	return storage.Config{
		Driver:       driver,
		Path:         strings.TrimSpace(sc.Path),
		DSN:          strings.TrimSpace(sc.DSN),
		Table:        strings.TrimSpace(sc.Table),
		RedisURL:     strings.TrimSpace(sc.RedisURL),
		KeyPrefix:    strings.TrimSpace(sc.KeyPrefix),
		BusyTimeout:  busy,
		CompactEvery: sc.CompactEvery,
		OpTimeout:    opTimeout,
	}, nil
}

func engineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
		return engine.Config{}, fmt.Errorf("task_engine: workers, queue_size and history_size must be >= 0")
	}
	def, err := config.ParseDuration("task_engine.default_timeout", te.DefaultTimeout, 0)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: def,
		HistorySize:    te.HistorySize,
	}, nil
}

func notifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	to, err := config.ParseDuration("notifier.send_timeout", n.SendTimeout, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{RatePerSec: n.RatePerSec, SendTimeout: to, HistorySize: n.HistorySize}, nil
}

func commandsConfig(cfg *config.Config) (commands.Config, error) {
	to, err := config.ParseDuration("commands.timeout", cfg.Commands.Timeout, 0)
	if err != nil {
		return commands.Config{}, err
	}
	return commands.Config{Timeout: to}, nil
}

func httpConfig(cfg *config.Config) httpserver.Config {
	m := cfg.Metrics
	return httpserver.Config{
		Enabled:     m.Enabled,
		Addr:        m.Addr,
		MetricsPath: m.Path,
		Pprof:       m.Pprof,
		Token:       m.Token,
	}
}

// scheduleSpec resolves a maintenance spec: empty means the default, "off"
// disables the job.
func scheduleSpec(raw, def string) string {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return def
	case strings.EqualFold(s, "off"):
		return ""
	}
	return s
}

// validate rejects a reloaded config that a component would refuse. It runs
// after config.Validate.
func validate(_ context.Context, cfg *config.Config) error {
	if _, err := storageConfig(cfg); err != nil {
		return err
	}
	if _, err := engineConfig(cfg); err != nil {
		return err
	}
	if _, err := notifierConfig(cfg); err != nil {
		return err
	}
	if _, err := commandsConfig(cfg); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	for path, spec := range map[string]string{
		"scheduler.health_check": scheduleSpec(cfg.Scheduler.HealthCheck, defaultHealthCheck),
		"scheduler.compact":      scheduleSpec(cfg.Scheduler.Compact, defaultCompact),
	} {
		if spec == "" {
			continue
		}
		if _, err := scheduler.ParseSchedule(spec); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}
