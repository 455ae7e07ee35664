package config

import (
	"sort"
	"strings"

	logx "botmon/pkg/logx"
)

// restartOnly lists sections that are read once at startup. Changes are
// reported but take effect on the next start.
var restartOnly = map[string]bool{
	"discord":     true,
	"telegram":    true,
	"storage":     true,
	"task_engine": true,
	"monitor":     true,
	"commands":    true,
	"events":      true,
}

// SummarizeConfigChange returns the changed section names, safe log fields
// describing the new values, and the subset of changed sections that need a
// restart. Tokens and DSNs are reported only as "_set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	o, n := oldCfg.Discord, newCfg.Discord
	if o != n {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.token_set", isSet(n.Token)),
			logx.Bool("discord.token_changed", o.Token != n.Token),
			logx.String("discord.status_text", trim(n.StatusText)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		l := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
			logx.Bool("logging.telegram_enabled", l.Telegram.Enabled),
			logx.String("logging.telegram_min_level", l.Telegram.MinLevel),
		)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", isSet(newCfg.Telegram.Token)),
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Int("telegram.thread_id", newCfg.Telegram.ThreadID),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		s := newCfg.Storage
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", trim(s.Driver)),
			logx.Bool("storage.path_set", isSet(s.Path)),
			logx.Bool("storage.dsn_set", isSet(s.DSN)),
			logx.Bool("storage.redis_url_set", isSet(s.RedisURL)),
			logx.String("storage.table", trim(s.Table)),
		)
	}

	if oldCfg.TaskEngine != newCfg.TaskEngine {
		te := newCfg.TaskEngine
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Int("task_engine.workers", te.Workers),
			logx.Int("task_engine.queue_size", te.QueueSize),
			logx.String("task_engine.default_timeout", trim(te.DefaultTimeout)),
			logx.Int("task_engine.history_size", te.HistorySize),
		)
	}

	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs, logx.Int("monitor.fanout", newCfg.Monitor.Fanout))
	}

	if oldCfg.Commands != newCfg.Commands {
		changed = append(changed, "commands")
		attrs = append(attrs, logx.String("commands.timeout", trim(newCfg.Commands.Timeout)))
	}

	if oldCfg.Notifier != newCfg.Notifier {
		nt := newCfg.Notifier
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", nt.RatePerSec),
			logx.String("notifier.send_timeout", trim(nt.SendTimeout)),
			logx.Int("notifier.history_size", nt.HistorySize),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		sc := newCfg.Scheduler
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", trim(sc.Timezone)),
			logx.String("scheduler.health_check", trim(sc.HealthCheck)),
			logx.String("scheduler.compact", trim(sc.Compact)),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		mc := newCfg.Metrics
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", mc.Enabled),
			logx.String("metrics.addr", trim(mc.Addr)),
			logx.String("metrics.path", trim(mc.Path)),
			logx.Bool("metrics.pprof", mc.Pprof),
			logx.Bool("metrics.token_set", isSet(mc.Token)),
		)
	}

	if oldCfg.Events != newCfg.Events {
		changed = append(changed, "events")
		attrs = append(attrs,
			logx.Bool("events.nats_url_set", isSet(newCfg.Events.NatsURL)),
			logx.String("events.subject", trim(newCfg.Events.Subject)),
		)
	}

	sort.Strings(changed)
	var restart []string
	for _, s := range changed {
		if restartOnly[s] {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}

func trim(s string) string { return strings.TrimSpace(s) }
func isSet(s string) bool  { return strings.TrimSpace(s) != "" }
