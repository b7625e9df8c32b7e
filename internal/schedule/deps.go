package schedule

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/tasks"
	"remindbot/internal/userdata"
)

// UserData is the read side of the user data layer.
type UserData interface {
	GetAllUserIDs() ([]string, error)
	GetPreferences(userID string) (userdata.Preferences, error)
	GetScheduleTimePeriods(userID, category string) (map[string]TimePeriod, error)
}

type TaskStore interface {
	AreTasksEnabled(userID string) bool
	LoadActiveTasks(userID string) ([]tasks.Task, error)
	GetTaskByID(userID, taskID string) (*tasks.Task, error)
	UpdateTask(userID, taskID string, fields map[string]any) error
}

// Dispatcher sends messages. Errors may implement Undelivered.
type Dispatcher interface {
	HandleMessageSending(ctx context.Context, userID, category string) error
	HandleTaskReminder(ctx context.Context, userID, taskID string) error
}

// RetryQueue accepts messages that failed every in-place attempt.
type RetryQueue interface {
	QueueFailedMessage(userID, category, message, recipient, channelName string)
}

// Undelivered is implemented by send errors that still carry the message
// that could not be delivered.
type Undelivered interface {
	error
	Undelivered() (message, recipient, channelName string)
}

// Deps are the Manager's collaborators. Users and Tasks are required;
// everything else has a usable default.
type Deps struct {
	Users      UserData
	Tasks      TaskStore
	Dispatcher Dispatcher
	Retry      RetryQueue
	WakeTimers WakeTimerRegistrar
	Bus        eventbus.Bus

	Now      func() time.Time
	Rand     RandSource
	Selector Selector
}

// Config tunes a Manager. Zero values take defaults.
type Config struct {
	Timezone          string
	DailyPass         string
	PollInterval      time.Duration
	CollisionWindow   time.Duration
	MaxSampleAttempts int
	SendRetryAttempts int
	SendRetryDelay    time.Duration
	StopTimeout       time.Duration
}

const (
	DefaultDailyPass         = "0 1 * * *"
	DefaultPollInterval      = 30 * time.Second
	DefaultCollisionWindow   = 2 * time.Hour
	DefaultMaxSampleAttempts = 10
	DefaultSendRetryAttempts = 3
	DefaultSendRetryDelay    = 5 * time.Second
	DefaultStopTimeout       = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.DailyPass == "" {
		c.DailyPass = DefaultDailyPass
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.CollisionWindow <= 0 {
		c.CollisionWindow = DefaultCollisionWindow
	}
	if c.MaxSampleAttempts <= 0 {
		c.MaxSampleAttempts = DefaultMaxSampleAttempts
	}
	if c.SendRetryAttempts <= 0 {
		c.SendRetryAttempts = DefaultSendRetryAttempts
	}
	if c.SendRetryDelay < 0 {
		c.SendRetryDelay = 0
	} else if c.SendRetryDelay == 0 {
		c.SendRetryDelay = DefaultSendRetryDelay
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// lockedRand makes a RandSource safe for the loop goroutine and callers.
type lockedRand struct {
	mu  sync.Mutex
	src RandSource
}

func newLockedRand(src RandSource) *lockedRand {
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &lockedRand{src: src}
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Intn(n)
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float64()
}
