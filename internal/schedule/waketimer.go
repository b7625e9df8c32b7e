package schedule

import (
	"context"
	"strings"
	"time"

	"remindbot/internal/userdata"
)

// WakeTimer asks the host to be awake at At for one job. Slot separates
// timers that share a period, such as several reminders for one task.
type WakeTimer struct {
	UserID   string
	Category string
	Period   string
	Slot     string
	At       time.Time
}

// Key is the stable timer name "<user>-<category>-<period>[-<slot>]" with
// characters outside [A-Za-z0-9_.] replaced by '_'. '-' only ever appears as
// a separator.
func (w WakeTimer) Key() string {
	k := WakeTimerPrefix(w.UserID, w.Category) + sanitizeKey(w.Period)
	if w.Slot != "" {
		k += "-" + sanitizeKey(w.Slot)
	}
	return k
}

// WakeTimerPrefix is the key prefix shared by every timer of (user, category).
func WakeTimerPrefix(userID, category string) string {
	return sanitizeKey(userID) + "-" + sanitizeKey(category) + "-"
}

func sanitizeKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

// WakeTimerRegistrar persists one-shot OS wake timers. Register replaces a
// timer with the same key. Remove deletes the timer named key and
// RemovePrefix every timer whose key starts with keyPrefix; both report how
// many went away.
type WakeTimerRegistrar interface {
	Register(ctx context.Context, t WakeTimer) error
	Remove(ctx context.Context, key string) (int, error)
	RemovePrefix(ctx context.Context, keyPrefix string) (int, error)
}

// NopWakeTimers registers nothing.
type NopWakeTimers struct{}

func (NopWakeTimers) Register(context.Context, WakeTimer) error         { return nil }
func (NopWakeTimers) Remove(context.Context, string) (int, error)       { return 0, nil }
func (NopWakeTimers) RemovePrefix(context.Context, string) (int, error) { return 0, nil }

const taskSlotLayout = "20060102_1504"

// taskPeriod is the period name used for a task reminder's wake timer.
func taskPeriod(taskID string) string { return "task_" + taskID }

// taskWakeTimer is keyed per reminder time so reminders of one task never
// replace each other.
func taskWakeTimer(userID, taskID string, at time.Time) WakeTimer {
	return WakeTimer{
		UserID:   userID,
		Category: userdata.CategoryTasks,
		Period:   taskPeriod(taskID),
		Slot:     at.Format(taskSlotLayout),
		At:       at,
	}
}

// taskWakePrefix covers every reminder timer of one task and no other.
func taskWakePrefix(userID, taskID string) string {
	return WakeTimer{UserID: userID, Category: userdata.CategoryTasks, Period: taskPeriod(taskID)}.Key() + "-"
}
