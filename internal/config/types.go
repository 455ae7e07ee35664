package config

// Config is the on-disk shape of the botmon config file (JSON or YAML).
//
// discord.token and storage.table may be left empty in the file and supplied
// through the environment; see ApplyEnv.
type Config struct {
	Discord  DiscordConfig  `json:"discord"`
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Storage  StorageConfig  `json:"storage"`

	TaskEngine TaskEngineConfig `json:"task_engine,omitempty"`
	Monitor    MonitorConfig    `json:"monitor,omitempty"`
	Commands   CommandsConfig   `json:"commands,omitempty"`
	Notifier   NotifierConfig   `json:"notifier,omitempty"`
	Scheduler  SchedulerConfig  `json:"scheduler,omitempty"`

	Metrics MetricsConfig `json:"metrics,omitempty"`
	Events  EventsConfig  `json:"events,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token,omitempty"`
	// StatusText is shown as the bot's "Playing ..." status.
	StatusText string `json:"status_text,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warnings and errors to the telegram ops chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TelegramConfig is the ops chat used by the log sink. The bot never polls.
type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// StorageConfig selects the register backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./botmon.db", "table": "register" }
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`

	DSN   string `json:"dsn,omitempty"`
	Table string `json:"table,omitempty"`

	RedisURL  string `json:"redis_url,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`

	BusyTimeout  string `json:"busy_timeout,omitempty"` // sqlite
	CompactEvery int    `json:"compact_every,omitempty"`
	OpTimeout    string `json:"op_timeout,omitempty"`
}

// TaskEngineConfig sizes the worker pool that runs signal handling,
// command handling and scheduled maintenance.
//
// Defaults: workers 4, queue_size 256, default_timeout "0s", history_size 200.
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

type MonitorConfig struct {
	// Fanout bounds concurrent dispatches for one signal. Default 8.
	Fanout int `json:"fanout,omitempty"`
}

type CommandsConfig struct {
	Timeout string `json:"timeout,omitempty"`
}

type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// SchedulerConfig drives the maintenance jobs. Each spec accepts the
// scheduler's schedule syntax ("cron:*/5 * * * *", "interval:30s", "@hourly",
// "03:00"). An empty spec uses the built-in default and "off" disables the job.
type SchedulerConfig struct {
	Timezone    string `json:"timezone,omitempty"`
	HealthCheck string `json:"health_check,omitempty"`
	Compact     string `json:"compact,omitempty"`
}

// MetricsConfig controls the HTTP server exposing metrics, probes and pprof.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Path    string `json:"path,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
	Token   string `json:"token,omitempty"` // do not log
}

// EventsConfig enables the NATS export of bus events. Empty NatsURL disables it.
type EventsConfig struct {
	NatsURL string `json:"nats_url,omitempty"`
	Subject string `json:"subject,omitempty"`
}
