package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a small in-memory signal used to decouple components.
//
// Publish never blocks; subscribers get buffered channels and a slow
// subscriber drops events instead of stalling the publisher.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Event types published by remindbot components.
const (
	TypeJobScheduled     = "schedule.job_scheduled"
	TypeJobFired         = "schedule.job_fired"
	TypeJobSkipped       = "schedule.job_skipped"
	TypePassCompleted    = "schedule.pass_completed"
	TypeMessageSent      = "delivery.sent"
	TypeMessageFailed    = "delivery.failed"
	TypeRetryQueued      = "retry.queued"
	TypeRetryAttempted   = "retry.attempted"
	TypeRetryDropped     = "retry.dropped"
	TypeRetryDelivered   = "retry.delivered"
	TypeWakeTimerFailure = "waketimer.failed"
)

// DeliveryData accompanies delivery.* and retry.* events.
type DeliveryData struct {
	UserID   string
	Category string
	Channel  string
	Attempt  int
}

// JobData accompanies schedule.* events.
type JobData struct {
	UserID   string
	Category string
	Period   string
	At       time.Time
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Nop returns a bus that discards everything.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}

func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Taking the write lock waits out in-flight publishes, so
			// closing afterwards cannot race a send.
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
