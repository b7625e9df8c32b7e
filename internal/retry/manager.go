package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type Option func(*Manager)

func WithResender(r Resender) Option { return func(m *Manager) { m.resender = r } }

func WithBus(b eventbus.Bus) Option { return func(m *Manager) { m.bus = b } }

// WithStore records retried and dropped messages in the delivery log.
func WithStore(s storage.Store) Option { return func(m *Manager) { m.store = s } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// Manager owns the retry FIFO and its loop goroutine. The queue is safe for
// concurrent producers; only the loop (or a direct ProcessQueue call)
// consumes it.
type Manager struct {
	cfg Config
	log logx.Logger

	resender Resender
	bus      eventbus.Bus
	store    storage.Store
	now      func() time.Time

	qmu   sync.Mutex
	queue []QueuedMessage

	mu  sync.Mutex
	sup *supervisor.Supervisor
}

func New(cfg Config, log logx.Logger, opts ...Option) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		cfg: cfg.withDefaults(),
		log: log,
		bus: eventbus.Nop(),
		now: time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if m.bus == nil {
		m.bus = eventbus.Nop()
	}
	return m
}

// SetResender swaps the re-send hook; the app wires it after the
// communication layer exists.
func (m *Manager) SetResender(r Resender) {
	m.qmu.Lock()
	m.resender = r
	m.qmu.Unlock()
}

// QueueFailedMessage appends a fresh entry with the configured retry policy.
func (m *Manager) QueueFailedMessage(userID, category, message, recipient, channelName string) {
	msg := QueuedMessage{
		ID:          uuid.New().String(),
		UserID:      userID,
		Category:    category,
		Message:     message,
		Recipient:   recipient,
		ChannelName: channelName,
		Timestamp:   m.now(),
		MaxRetries:  m.cfg.MaxRetries,
		RetryDelay:  m.cfg.RetryDelay,
	}
	m.qmu.Lock()
	m.queue = append(m.queue, msg)
	depth := len(m.queue)
	m.qmu.Unlock()

	m.bus.Publish(eventbus.Event{Type: eventbus.TypeRetryQueued, Data: deliveryData(msg)})
	m.log.Info("message queued for retry",
		logx.String("user", userID),
		logx.String("category", category),
		logx.String("channel", channelName),
		logx.Int("queue", depth),
	)
}

// GetQueueSize returns the current queue depth.
func (m *Manager) GetQueueSize() int {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	return len(m.queue)
}

// Pending returns a copy of the queue in FIFO order.
func (m *Manager) Pending() []QueuedMessage {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	return append([]QueuedMessage(nil), m.queue...)
}

// ClearQueue drops every queued message.
func (m *Manager) ClearQueue() {
	m.qmu.Lock()
	n := len(m.queue)
	m.queue = nil
	m.qmu.Unlock()
	m.log.Info("retry queue cleared", logx.Int("dropped", n))
}

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sup != nil && m.sup.Context().Err() == nil
}

// StartRetryThread starts the loop. It is a no-op while running.
func (m *Manager) StartRetryThread(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sup != nil && m.sup.Context().Err() == nil {
		return
	}
	m.sup = supervisor.New(ctx, supervisor.WithLogger(m.log))
	m.sup.GoRestart("retry.loop", m.loop)
	m.log.Info("retry loop started", logx.Duration("interval", m.cfg.Interval), logx.Int("batch", m.cfg.BatchSize))
}

// StopRetryThread stops the loop and waits up to the stop timeout. State is
// reset before waiting; stopping an idle manager is a no-op.
func (m *Manager) StopRetryThread() {
	m.mu.Lock()
	sup := m.sup
	m.sup = nil
	m.mu.Unlock()
	if sup == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
	defer cancel()
	if err := sup.Stop(ctx); errors.Is(err, context.DeadlineExceeded) {
		m.log.Warn("retry loop did not exit before timeout", logx.Duration("timeout", m.cfg.StopTimeout))
		return
	}
	m.log.Info("retry loop stopped", logx.Int("queue", m.GetQueueSize()))
}

func (m *Manager) loop(ctx context.Context) error {
	t := time.NewTicker(m.cfg.Interval)
	defer t.Stop()
	for {
		m.safePass(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// safePass keeps a panicking pass from ending the loop.
func (m *Manager) safePass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("retry pass panicked", logx.Any("panic", r))
		}
	}()
	st := m.ProcessQueue(ctx)
	if st.Processed > 0 {
		m.log.Debug("retry pass done",
			logx.Int("processed", st.Processed),
			logx.Int("waiting", st.Waiting),
			logx.Int("retried", st.Retried),
			logx.Int("delivered", st.Delivered),
			logx.Int("dropped", st.Dropped),
		)
	}
}

// ProcessQueue handles up to BatchSize messages from the front of the queue.
// Exhausted messages are dropped, messages still inside their delay go back
// unchanged, and the rest are re-sent; failures count a retry and requeue.
func (m *Manager) ProcessQueue(ctx context.Context) PassStats {
	batch := m.take(m.cfg.BatchSize)
	var st PassStats
	var requeue []QueuedMessage
	for _, msg := range batch {
		st.Processed++
		now := m.now()
		switch {
		case msg.Exhausted():
			st.Dropped++
			m.drop(ctx, msg)
		case !msg.Due(now):
			st.Waiting++
			requeue = append(requeue, msg)
		default:
			if m.attempt(ctx, msg) {
				st.Delivered++
				continue
			}
			st.Retried++
			msg.RetryCount++
			msg.Timestamp = now
			requeue = append(requeue, msg)
		}
	}
	if len(requeue) > 0 {
		m.qmu.Lock()
		m.queue = append(m.queue, requeue...)
		m.qmu.Unlock()
	}
	return st
}

func (m *Manager) take(n int) []QueuedMessage {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	n = min(n, len(m.queue))
	out := append([]QueuedMessage(nil), m.queue[:n]...)
	m.queue = append([]QueuedMessage(nil), m.queue[n:]...)
	return out
}

// attempt runs the resender and reports delivery.
func (m *Manager) attempt(ctx context.Context, msg QueuedMessage) bool {
	m.qmu.Lock()
	r := m.resender
	m.qmu.Unlock()

	m.bus.Publish(eventbus.Event{Type: eventbus.TypeRetryAttempted, Data: deliveryData(msg)})
	if r == nil {
		m.record(ctx, msg, storage.OutcomeRetried, nil)
		return false
	}
	err := safeResend(ctx, r, msg)
	if err == nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeRetryDelivered, Data: deliveryData(msg)})
		m.log.Info("queued message delivered", logx.String("user", msg.UserID), logx.String("category", msg.Category), logx.Int("retry", msg.RetryCount+1))
		return true
	}
	m.record(ctx, msg, storage.OutcomeRetried, err)
	m.log.Warn("retry failed",
		logx.String("user", msg.UserID),
		logx.String("category", msg.Category),
		logx.Int("retry", msg.RetryCount+1),
		logx.Int("max", msg.MaxRetries),
		logx.Err(err),
	)
	return false
}

func safeResend(ctx context.Context, r Resender, msg QueuedMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resend panicked: %v", p)
		}
	}()
	return r.Resend(ctx, msg)
}

func (m *Manager) drop(ctx context.Context, msg QueuedMessage) {
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeRetryDropped, Data: deliveryData(msg)})
	m.record(ctx, msg, storage.OutcomeDropped, nil)
	m.log.Warn("max retries exceeded; message dropped",
		logx.String("user", msg.UserID),
		logx.String("category", msg.Category),
		logx.String("channel", msg.ChannelName),
		logx.Int("retries", msg.RetryCount),
	)
}

func (m *Manager) record(ctx context.Context, msg QueuedMessage, outcome string, err error) {
	if m.store == nil {
		return
	}
	rec := storage.DeliveryRecord{
		At:        m.now(),
		UserID:    msg.UserID,
		Category:  msg.Category,
		Channel:   msg.ChannelName,
		Recipient: msg.Recipient,
		Outcome:   outcome,
		Attempt:   msg.RetryCount + 1,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if werr := m.store.AppendDelivery(ctx, rec); werr != nil {
		m.log.Warn("recording retry outcome failed", logx.Err(werr))
	}
}

func deliveryData(msg QueuedMessage) eventbus.DeliveryData {
	return eventbus.DeliveryData{UserID: msg.UserID, Category: msg.Category, Channel: msg.ChannelName, Attempt: msg.RetryCount}
}
