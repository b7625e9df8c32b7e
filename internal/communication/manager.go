// Package communication resolves who gets which message over which channel
// and performs the send, recording every outcome.
package communication

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/channels"
	"remindbot/internal/eventbus"
	"remindbot/internal/retry"
	"remindbot/internal/storage"
	"remindbot/internal/tasks"
	"remindbot/internal/userdata"
	logx "remindbot/pkg/logx"
)

// Users is the user data the manager reads.
type Users interface {
	GetAccount(userID string) (userdata.Account, error)
	LoadMessages(userID, category string) ([]userdata.Message, error)
}

type Tasks interface {
	GetTaskByID(userID, taskID string) (*tasks.Task, error)
}

type Config struct {
	// RatePerSec caps sends across channels; 0 disables the limit.
	RatePerSec int
	Timezone   *time.Location
}

type Deps struct {
	Users    Users
	Tasks    Tasks
	Channels *channels.Registry
	Store    storage.Store
	Bus      eventbus.Bus
	Now      func() time.Time
	Rand     *rand.Rand
}

type Manager struct {
	cfg     Config
	log     logx.Logger
	users   Users
	tasks   Tasks
	chans   *channels.Registry
	store   storage.Store
	bus     eventbus.Bus
	now     func() time.Time
	limiter *rate.Limiter

	rmu sync.Mutex
	rng *rand.Rand
}

func New(cfg Config, deps Deps, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	m := &Manager{
		cfg:   cfg,
		log:   log,
		users: deps.Users,
		tasks: deps.Tasks,
		chans: deps.Channels,
		store: deps.Store,
		bus:   deps.Bus,
		now:   deps.Now,
		rng:   deps.Rand,
	}
	if m.chans == nil {
		m.chans = channels.NewRegistry()
	}
	if m.bus == nil {
		m.bus = eventbus.Nop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	m.limiter = rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return m
}

// HandleMessageSending sends one message of category to the user over the
// channel named in their account.
func (m *Manager) HandleMessageSending(ctx context.Context, userID, category string) error {
	route, err := m.route(userID)
	if err != nil {
		return err
	}
	text := m.pickMessage(userID, category)
	return m.deliver(ctx, userID, category, route.Type, route.Contact, text, 1)
}

// HandleTaskReminder sends a reminder for one task.
func (m *Manager) HandleTaskReminder(ctx context.Context, userID, taskID string) error {
	if m.tasks == nil {
		return ErrNoTask
	}
	task, err := m.tasks.GetTaskByID(userID, taskID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoTask, err)
	}
	route, err := m.route(userID)
	if err != nil {
		return err
	}
	return m.deliver(ctx, userID, userdata.CategoryTasks, route.Type, route.Contact, FormatTaskReminder(*task), 1)
}

// Resend delivers a queued message as-is.
func (m *Manager) Resend(ctx context.Context, msg retry.QueuedMessage) error {
	return m.deliver(ctx, msg.UserID, msg.Category, msg.ChannelName, msg.Recipient, msg.Message, msg.RetryCount+2)
}

// SendDirect sends text over a named channel without a user account, used
// for operator alerts.
func (m *Manager) SendDirect(ctx context.Context, channelName, recipient, text string) error {
	ch, err := m.chans.Get(channelName)
	if err != nil {
		return err
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	return ch.Send(ctx, recipient, text)
}

// AlertSink routes log alerts to one operator recipient.
func (m *Manager) AlertSink(channelName, recipient string) logx.AlertSink {
	return logx.AlertFunc(func(ctx context.Context, text string) error {
		return m.SendDirect(ctx, channelName, recipient, text)
	})
}

func (m *Manager) route(userID string) (userdata.ChannelRoute, error) {
	if m.users == nil {
		return userdata.ChannelRoute{}, ErrNoAccount
	}
	acct, err := m.users.GetAccount(userID)
	if err != nil {
		return userdata.ChannelRoute{}, fmt.Errorf("read account %s: %w", userID, err)
	}
	r := acct.Channel
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	r.Contact = strings.TrimSpace(r.Contact)
	if r.Type == "" {
		return userdata.ChannelRoute{}, fmt.Errorf("%w: %s", ErrNoAccount, userID)
	}
	if r.Contact == "" {
		return userdata.ChannelRoute{}, fmt.Errorf("%s: %w", userID, channels.ErrNoRecipient)
	}
	return r, nil
}

// deliver sends text and records the outcome. Failures after the channel
// was resolved come back as *SendError.
func (m *Manager) deliver(ctx context.Context, userID, category, channelName, recipient, text string, attempt int) error {
	ch, err := m.chans.Get(channelName)
	if err != nil {
		m.record(ctx, userID, category, channelName, recipient, storage.OutcomeFailed, attempt, err)
		return err
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	if err := ch.Send(ctx, recipient, text); err != nil {
		m.record(ctx, userID, category, ch.Name(), recipient, storage.OutcomeFailed, attempt, err)
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeMessageFailed, Data: eventbus.DeliveryData{UserID: userID, Category: category, Channel: ch.Name(), Attempt: attempt}})
		return &SendError{UserID: userID, Category: category, Channel: ch.Name(), Recipient: recipient, Message: text, Err: err}
	}
	m.record(ctx, userID, category, ch.Name(), recipient, storage.OutcomeSent, attempt, nil)
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeMessageSent, Data: eventbus.DeliveryData{UserID: userID, Category: category, Channel: ch.Name(), Attempt: attempt}})
	m.log.Info("message sent",
		logx.String("user", userID),
		logx.String("category", category),
		logx.String("channel", ch.Name()),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}

func (m *Manager) record(ctx context.Context, userID, category, channelName, recipient, outcome string, attempt int, err error) {
	if m.store == nil {
		return
	}
	rec := storage.DeliveryRecord{
		At:        m.now(),
		UserID:    userID,
		Category:  category,
		Channel:   channelName,
		Recipient: recipient,
		Outcome:   outcome,
		Attempt:   attempt,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if werr := m.store.AppendDelivery(ctx, rec); werr != nil {
		m.log.Warn("recording delivery failed", logx.Err(werr))
	}
}
