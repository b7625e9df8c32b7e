package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "2h").
// Omitted or zero values fall back to the defaults documented per field.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Data       DataConfig       `json:"data"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Retry      RetryConfig      `json:"retry"`
	WakeTimers WakeTimersConfig `json:"wake_timers,omitempty"`
	Channels   ChannelsConfig   `json:"channels"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
	Metrics    MetricsConfig    `json:"metrics,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Alerts  LoggingAlerts `json:"alerts,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlerts forwards WARN+ log lines to an operator through one of the
// configured channels.
type LoggingAlerts struct {
	Enabled    bool   `json:"enabled"`
	Channel    string `json:"channel,omitempty"`
	Recipient  string `json:"recipient,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// DataConfig points at the user data tree.
//
// Layout:
//
//	<dir>/users/<user_id>/account.json
//	<dir>/users/<user_id>/preferences.json
//	<dir>/users/<user_id>/schedules.json
//	<dir>/users/<user_id>/tasks/active_tasks.json
//	<dir>/users/<user_id>/messages/<category>.json
type DataConfig struct {
	Dir string `json:"dir"`
}

// SchedulerConfig controls the daily message scheduler.
//
// Defaults:
//   - daily_pass: "0 1 * * *"
//   - poll_interval: "30s"
//   - collision_window: "2h"
//   - max_sample_attempts: 10
//   - send_retry_attempts: 3
//   - send_retry_delay: "5s"
//   - stop_timeout: "5s"
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`

	// DailyPass is a cron spec (seconds optional) for the full rescheduling pass.
	DailyPass string `json:"daily_pass,omitempty"`

	PollInterval      string `json:"poll_interval,omitempty"`
	CollisionWindow   string `json:"collision_window,omitempty"`
	MaxSampleAttempts int    `json:"max_sample_attempts,omitempty"`
	SendRetryAttempts int    `json:"send_retry_attempts,omitempty"`
	SendRetryDelay    string `json:"send_retry_delay,omitempty"`
	StopTimeout       string `json:"stop_timeout,omitempty"`
}

// RetryConfig controls the failed-message retry queue.
//
// Defaults:
//   - interval: "60s"
//   - batch_size: 10
//   - max_retries: 3
//   - retry_delay: "300s"
//   - stop_timeout: "5s"
type RetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Interval    string `json:"interval,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`
	MaxRetries  int    `json:"max_retries,omitempty"`
	RetryDelay  string `json:"retry_delay,omitempty"`
	StopTimeout string `json:"stop_timeout,omitempty"`
}

// WakeTimersConfig controls OS wake timers (systemd, Linux only).
//
// Example:
//
//	"wake_timers": { "enabled": true, "prefix": "remindbot", "unit": "remindbot-wake.service" }
type WakeTimersConfig struct {
	Enabled bool   `json:"enabled"`
	Prefix  string `json:"prefix,omitempty"` // default: "remindbot"
	Unit    string `json:"unit,omitempty"`   // default: "remindbot-wake.service"
}

type ChannelsConfig struct {
	// RatePerSec caps outgoing sends across all channels (default 5).
	RatePerSec int `json:"rate_per_sec,omitempty"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Email    *EmailConfig    `json:"email,omitempty"`
	Discord  *DiscordConfig  `json:"discord,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

// EmailConfig configures the Postmark email channel.
type EmailConfig struct {
	Enabled      bool   `json:"enabled"`
	ServerToken  string `json:"server_token"`
	AccountToken string `json:"account_token,omitempty"`
	From         string `json:"from"`
	ReplyTo      string `json:"reply_to,omitempty"`
	Subject      string `json:"subject,omitempty"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

// StorageConfig controls the delivery log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/deliveries.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// MetricsConfig controls the optional HTTP server exposing /metrics and pprof.
//
// Prefer binding to localhost (default "127.0.0.1:9090").
type MetricsConfig struct {
	Enabled              bool   `json:"enabled"`
	Addr                 string `json:"addr,omitempty"`
	Pprof                bool   `json:"pprof,omitempty"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
}
