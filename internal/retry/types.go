// Package retry holds messages that failed every in-place send attempt and
// re-sends them on a fixed cadence until they succeed or run out of retries.
package retry

import (
	"context"
	"time"
)

const (
	DefaultInterval    = 60 * time.Second
	DefaultBatchSize   = 10
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 300 * time.Second
	DefaultStopTimeout = 5 * time.Second
)

type Config struct {
	Interval    time.Duration
	BatchSize   int
	MaxRetries  int
	RetryDelay  time.Duration
	StopTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// QueuedMessage is a message waiting for another send attempt. Timestamp is
// the time of the last failure.
type QueuedMessage struct {
	ID          string
	UserID      string
	Category    string
	Message     string
	Recipient   string
	ChannelName string
	Timestamp   time.Time
	RetryCount  int
	MaxRetries  int
	RetryDelay  time.Duration
}

// Exhausted reports whether no retries are left.
func (m QueuedMessage) Exhausted() bool { return m.RetryCount >= m.MaxRetries }

// Due reports whether RetryDelay has elapsed since Timestamp.
func (m QueuedMessage) Due(now time.Time) bool { return now.Sub(m.Timestamp) >= m.RetryDelay }

// Resender performs the actual re-send. Without one, the manager only
// applies the backoff policy.
type Resender interface {
	Resend(ctx context.Context, msg QueuedMessage) error
}

type ResendFunc func(ctx context.Context, msg QueuedMessage) error

func (f ResendFunc) Resend(ctx context.Context, msg QueuedMessage) error { return f(ctx, msg) }

// PassStats summarizes one processing pass.
type PassStats struct {
	Processed int
	Waiting   int
	Retried   int
	Delivered int
	Dropped   int
}
