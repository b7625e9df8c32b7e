package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeMessageSent, Data: DeliveryData{UserID: "u1"}})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		assert.Equal(t, TypeMessageSent, e.Type)
		assert.False(t, e.Time.IsZero())
		require.IsType(t, DeliveryData{}, e.Data)
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: TypeRetryQueued})
	}
	assert.Len(t, ch, 1)

	unsub()
	unsub()
	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, func() { b.Publish(Event{Type: TypeRetryQueued}) })
}

func TestNopBus(t *testing.T) {
	b := Nop()
	b.Publish(Event{Type: "x"})
	ch, unsub := b.Subscribe(1)
	defer unsub()
	_, open := <-ch
	assert.False(t, open)
}
