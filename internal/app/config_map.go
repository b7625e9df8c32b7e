package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/channels"
	"remindbot/internal/channels/discord"
	"remindbot/internal/channels/email"
	"remindbot/internal/channels/telegram"
	"remindbot/internal/config"
	"remindbot/internal/metrics"
	"remindbot/internal/retry"
	"remindbot/internal/schedule"
	"remindbot/internal/storage"
	"remindbot/internal/waketimer"
	logx "remindbot/pkg/logx"
)

const defaultChannelRate = 5

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alerts: logx.AlertConfig{
			Enabled:    cfg.Logging.Alerts.Enabled,
			MinLevel:   cfg.Logging.Alerts.MinLevel,
			RatePerSec: cfg.Logging.Alerts.RatePerSec,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (schedule.Config, error) {
	sc := cfg.Scheduler
	out := schedule.Config{
		Timezone:  strings.TrimSpace(sc.Timezone),
		DailyPass: strings.TrimSpace(sc.DailyPass),
	}
	if out.Timezone != "" {
		if _, err := time.LoadLocation(out.Timezone); err != nil {
			return schedule.Config{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", out.Timezone, err)
		}
	}
	if out.DailyPass != "" {
		if _, err := schedule.ParseCron(out.DailyPass); err != nil {
			return schedule.Config{}, fmt.Errorf("scheduler.daily_pass: %w", err)
		}
	}
	var err error
	if out.PollInterval, err = config.ParseDurationOrDefault("scheduler.poll_interval", sc.PollInterval, schedule.DefaultPollInterval); err != nil {
		return schedule.Config{}, err
	}
	if out.CollisionWindow, err = config.ParseDurationOrDefault("scheduler.collision_window", sc.CollisionWindow, schedule.DefaultCollisionWindow); err != nil {
		return schedule.Config{}, err
	}
	if out.SendRetryDelay, err = config.ParseDurationOrDefault("scheduler.send_retry_delay", sc.SendRetryDelay, schedule.DefaultSendRetryDelay); err != nil {
		return schedule.Config{}, err
	}
	if out.StopTimeout, err = config.ParseDurationOrDefault("scheduler.stop_timeout", sc.StopTimeout, schedule.DefaultStopTimeout); err != nil {
		return schedule.Config{}, err
	}
	if out.MaxSampleAttempts, err = config.IntOrDefault("scheduler.max_sample_attempts", sc.MaxSampleAttempts, schedule.DefaultMaxSampleAttempts); err != nil {
		return schedule.Config{}, err
	}
	if out.SendRetryAttempts, err = config.IntOrDefault("scheduler.send_retry_attempts", sc.SendRetryAttempts, schedule.DefaultSendRetryAttempts); err != nil {
		return schedule.Config{}, err
	}
	return out, nil
}

func mapRetryConfig(cfg *config.Config) (retry.Config, error) {
	rc := cfg.Retry
	var out retry.Config
	var err error
	if out.Interval, err = config.ParseDurationOrDefault("retry.interval", rc.Interval, retry.DefaultInterval); err != nil {
		return retry.Config{}, err
	}
	if out.RetryDelay, err = config.ParseDurationOrDefault("retry.retry_delay", rc.RetryDelay, retry.DefaultRetryDelay); err != nil {
		return retry.Config{}, err
	}
	if out.StopTimeout, err = config.ParseDurationOrDefault("retry.stop_timeout", rc.StopTimeout, retry.DefaultStopTimeout); err != nil {
		return retry.Config{}, err
	}
	if out.BatchSize, err = config.IntOrDefault("retry.batch_size", rc.BatchSize, retry.DefaultBatchSize); err != nil {
		return retry.Config{}, err
	}
	if out.MaxRetries, err = config.IntOrDefault("retry.max_retries", rc.MaxRetries, retry.DefaultMaxRetries); err != nil {
		return retry.Config{}, err
	}
	return out, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapWakeConfig(cfg *config.Config) (waketimer.Config, bool) {
	wc := cfg.WakeTimers
	return waketimer.Config{Prefix: wc.Prefix, Unit: wc.Unit}, wc.Enabled
}

func mapMetricsConfig(cfg *config.Config) metrics.ServerConfig {
	mc := cfg.Metrics
	return metrics.ServerConfig{
		Enabled:              mc.Enabled,
		Addr:                 strings.TrimSpace(mc.Addr),
		Pprof:                mc.Pprof,
		ReadTimeout:          10 * time.Second,
		WriteTimeout:         time.Minute,
		BlockProfileRate:     mc.BlockProfileRate,
		MutexProfileFraction: mc.MutexProfileFraction,
	}
}

func channelRate(cfg *config.Config) int {
	if cfg.Channels.RatePerSec < 0 {
		return 0
	}
	if cfg.Channels.RatePerSec == 0 {
		return defaultChannelRate
	}
	return cfg.Channels.RatePerSec
}

// buildChannels creates every enabled channel. A misconfigured channel fails
// the whole build so the operator sees it at startup.
func buildChannels(cfg *config.Config) (*channels.Registry, error) {
	reg := channels.NewRegistry()
	cc := cfg.Channels
	if cc.Telegram != nil && cc.Telegram.Enabled {
		ch, err := telegram.New(telegram.Config{Token: cc.Telegram.Token})
		if err != nil {
			return nil, fmt.Errorf("channels.telegram: %w", err)
		}
		reg.Register(ch)
	}
	if cc.Email != nil && cc.Email.Enabled {
		ch, err := email.New(email.Config{
			ServerToken:  cc.Email.ServerToken,
			AccountToken: cc.Email.AccountToken,
			From:         cc.Email.From,
			ReplyTo:      cc.Email.ReplyTo,
			Subject:      cc.Email.Subject,
		})
		if err != nil {
			return nil, fmt.Errorf("channels.email: %w", err)
		}
		reg.Register(ch)
	}
	if cc.Discord != nil && cc.Discord.Enabled {
		ch, err := discord.New(discord.Config{Token: cc.Discord.Token})
		if err != nil {
			return nil, fmt.Errorf("channels.discord: %w", err)
		}
		reg.Register(ch)
	}
	return reg, nil
}

// Validate checks everything NewApp and the reload loop would map.
func Validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Data.Dir) == "" {
		return fmt.Errorf("data.dir is required")
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapRetryConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := buildChannels(cfg); err != nil {
		return err
	}
	if a := cfg.Logging.Alerts; a.Enabled && (strings.TrimSpace(a.Channel) == "" || strings.TrimSpace(a.Recipient) == "") {
		return fmt.Errorf("logging.alerts requires channel and recipient")
	}
	return nil
}
