package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeConfigChange returns the sorted list of changed sections and
// safe structured attrs for logging. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alerts_enabled", newCfg.Logging.Alerts.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Data.Dir) != strings.TrimSpace(newCfg.Data.Dir) {
		changed = append(changed, "data")
		attrs = append(attrs, logx.String("data.dir", strings.TrimSpace(newCfg.Data.Dir)))
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.daily_pass", strings.TrimSpace(newCfg.Scheduler.DailyPass)),
			logx.String("scheduler.collision_window", strings.TrimSpace(newCfg.Scheduler.CollisionWindow)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Retry, newCfg.Retry) {
		changed = append(changed, "retry")
		attrs = append(attrs,
			logx.Bool("retry.enabled", newCfg.Retry.Enabled),
			logx.String("retry.interval", strings.TrimSpace(newCfg.Retry.Interval)),
			logx.Int("retry.batch_size", newCfg.Retry.BatchSize),
			logx.Int("retry.max_retries", newCfg.Retry.MaxRetries),
		)
	}

	if !reflect.DeepEqual(oldCfg.WakeTimers, newCfg.WakeTimers) {
		changed = append(changed, "wake_timers")
		attrs = append(attrs,
			logx.Bool("wake_timers.enabled", newCfg.WakeTimers.Enabled),
			logx.String("wake_timers.prefix", newCfg.WakeTimers.Prefix),
		)
	}

	if channelsChanged(oldCfg.Channels, newCfg.Channels) {
		changed = append(changed, "channels")
		attrs = append(attrs,
			logx.Int("channels.rate_per_sec", newCfg.Channels.RatePerSec),
			logx.Strings("channels.enabled", EnabledChannels(newCfg.Channels)),
		)
	}

	oldS, newS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", strings.TrimSpace(newCfg.Metrics.Addr)),
			logx.Bool("metrics.pprof", newCfg.Metrics.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// EnabledChannels lists the names of enabled channels in a stable order.
func EnabledChannels(c ChannelsConfig) []string {
	out := make([]string, 0, 3)
	if c.Telegram != nil && c.Telegram.Enabled {
		out = append(out, "telegram")
	}
	if c.Email != nil && c.Email.Enabled {
		out = append(out, "email")
	}
	if c.Discord != nil && c.Discord.Enabled {
		out = append(out, "discord")
	}
	return out
}

func channelsChanged(a, b ChannelsConfig) bool {
	return a.RatePerSec != b.RatePerSec || !reflect.DeepEqual(a.Telegram, b.Telegram) ||
		!reflect.DeepEqual(a.Email, b.Email) || !reflect.DeepEqual(a.Discord, b.Discord)
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
