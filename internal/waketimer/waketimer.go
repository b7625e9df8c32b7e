// Package waketimer registers one-shot systemd timers with WakeSystem=true
// so a suspended host resumes in time for a scheduled send.
package waketimer

import (
	"errors"
	"strings"
	"time"
)

var ErrUnsupported = errors.New("waketimer: unsupported OS (linux only)")

const (
	DefaultPrefix = "remindbot"
	DefaultUnit   = "remindbot-wake.service"

	calendarLayout = "2006-01-02 15:04:05"
)

type Config struct {
	// Prefix namespaces every timer unit: "<prefix>-<key>.timer".
	Prefix string
	// Unit is activated when a timer elapses. It only needs to exist.
	Unit string
}

func (c Config) withDefaults() Config {
	c.Prefix = strings.TrimSpace(c.Prefix)
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	c.Unit = strings.TrimSpace(c.Unit)
	if c.Unit == "" {
		c.Unit = DefaultUnit
	}
	return c
}

// UnitName returns the timer unit name for key.
func UnitName(prefix, key string) string {
	return prefix + "-" + key + ".timer"
}

// UnitPattern matches every timer whose key starts with keyPrefix. Callers
// end keyPrefix with '-' so that one key never matches a longer sibling.
func UnitPattern(prefix, keyPrefix string) string {
	return prefix + "-" + keyPrefix + "*.timer"
}

// CalendarSpec renders t as an OnCalendar expression in the host's zone.
func CalendarSpec(t time.Time) string {
	return t.In(time.Local).Truncate(time.Second).Format(calendarLayout)
}
