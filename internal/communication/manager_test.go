package communication

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/channels"
	"remindbot/internal/eventbus"
	"remindbot/internal/retry"
	"remindbot/internal/storage"
	"remindbot/internal/tasks"
	"remindbot/internal/userdata"
	logx "remindbot/pkg/logx"
)

// Monday.
var testNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type fakeUsers struct {
	accounts map[string]userdata.Account
	messages map[string][]userdata.Message
	msgErr   error
}

func (f *fakeUsers) GetAccount(userID string) (userdata.Account, error) {
	a, ok := f.accounts[userID]
	if !ok {
		return userdata.Account{}, userdata.ErrUnknownUser
	}
	return a, nil
}

func (f *fakeUsers) LoadMessages(userID, category string) ([]userdata.Message, error) {
	if f.msgErr != nil {
		return nil, f.msgErr
	}
	return f.messages[userID+"/"+category], nil
}

type fakeTasks map[string]tasks.Task

func (f fakeTasks) GetTaskByID(_, taskID string) (*tasks.Task, error) {
	t, ok := f[taskID]
	if !ok {
		return nil, tasks.ErrTaskNotFound
	}
	return &t, nil
}

type sent struct {
	recipient, text string
}

type recorder struct {
	name string
	err  error
	mu   sync.Mutex
	got  []sent
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Send(_ context.Context, recipient, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, sent{recipient, text})
	return r.err
}

type memStore struct {
	mu   sync.Mutex
	recs []storage.DeliveryRecord
}

func (s *memStore) AppendDelivery(_ context.Context, r storage.DeliveryRecord) error {
	s.mu.Lock()
	s.recs = append(s.recs, r)
	s.mu.Unlock()
	return nil
}

func (s *memStore) RecentDeliveries(context.Context, string, int) ([]storage.DeliveryRecord, error) {
	return nil, nil
}

func (s *memStore) Close() error { return nil }

type fixture struct {
	m     *Manager
	users *fakeUsers
	ch    *recorder
	store *memStore
	bus   eventbus.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users: &fakeUsers{
			accounts: map[string]userdata.Account{
				"alice": {UserID: "alice", Channel: userdata.ChannelRoute{Type: "Email", Contact: " alice@example.com "}},
				"bob":   {UserID: "bob"},
				"carol": {UserID: "carol", Channel: userdata.ChannelRoute{Type: "pager", Contact: "123"}},
			},
			messages: map[string][]userdata.Message{},
		},
		ch:    &recorder{name: "email"},
		store: &memStore{},
		bus:   eventbus.New(),
	}
	f.m = New(Config{Timezone: time.UTC}, Deps{
		Users:    f.users,
		Tasks:    fakeTasks{"t1": {ID: "t1", Title: "Pay rent", Priority: "high", DueDate: "2026-10-20"}},
		Channels: channels.NewRegistry(f.ch),
		Store:    f.store,
		Bus:      f.bus,
		Now:      func() time.Time { return testNow },
		Rand:     rand.New(rand.NewSource(1)),
	}, logx.Nop())
	return f
}

func TestHandleMessageSendingUsesAccountRoute(t *testing.T) {
	f := newFixture(t)
	f.users.messages["alice/motivational"] = []userdata.Message{{ID: "1", Text: "keep going"}}
	events, cancel := f.bus.Subscribe(4)
	defer cancel()

	require.NoError(t, f.m.HandleMessageSending(context.Background(), "alice", "motivational"))

	require.Len(t, f.ch.got, 1)
	assert.Equal(t, sent{"alice@example.com", "keep going"}, f.ch.got[0])
	require.Len(t, f.store.recs, 1)
	assert.Equal(t, storage.OutcomeSent, f.store.recs[0].Outcome)
	assert.Equal(t, "email", f.store.recs[0].Channel)

	select {
	case ev := <-events:
		assert.Equal(t, eventbus.TypeMessageSent, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestMessageFilteredByDay(t *testing.T) {
	f := newFixture(t)
	f.users.messages["alice/motivational"] = []userdata.Message{
		{ID: "1", Text: "weekend only", Days: []string{"saturday", "sunday"}},
		{ID: "2", Text: "monday vibes", Days: []string{"Monday"}},
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, f.m.HandleMessageSending(context.Background(), "alice", "motivational"))
	}
	for _, s := range f.ch.got {
		assert.Equal(t, "monday vibes", s.text)
	}
}

func TestFallbackMessage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.HandleMessageSending(context.Background(), "alice", "health"))
	assert.Equal(t, FallbackMessage("health"), f.ch.got[0].text)

	f.users.msgErr = errors.New("disk gone")
	require.NoError(t, f.m.HandleMessageSending(context.Background(), "alice", "whatever"))
	assert.Equal(t, defaultFallback, f.ch.got[1].text)
}

func TestRouteErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.m.HandleMessageSending(ctx, "nobody", "health"), userdata.ErrUnknownUser)
	assert.ErrorIs(t, f.m.HandleMessageSending(ctx, "bob", "health"), ErrNoAccount)

	err := f.m.HandleMessageSending(ctx, "carol", "health")
	assert.ErrorIs(t, err, channels.ErrUnknownChannel)
	var se *SendError
	assert.False(t, errors.As(err, &se))
	require.Len(t, f.store.recs, 1)
	assert.Equal(t, storage.OutcomeFailed, f.store.recs[0].Outcome)
}

func TestSendFailureIsUndelivered(t *testing.T) {
	f := newFixture(t)
	f.ch.err = errors.New("smtp down")

	err := f.m.HandleMessageSending(context.Background(), "alice", "health")
	require.Error(t, err)

	var u interface {
		Undelivered() (string, string, string)
	}
	require.True(t, errors.As(err, &u))
	msg, rcpt, ch := u.Undelivered()
	assert.Equal(t, FallbackMessage("health"), msg)
	assert.Equal(t, "alice@example.com", rcpt)
	assert.Equal(t, "email", ch)
	assert.ErrorIs(t, err, f.ch.err)
	assert.Equal(t, storage.OutcomeFailed, f.store.recs[0].Outcome)
	assert.Equal(t, "smtp down", f.store.recs[0].Error)
}

func TestHandleTaskReminder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.HandleTaskReminder(context.Background(), "alice", "t1"))
	require.Len(t, f.ch.got, 1)
	assert.Equal(t, "Task reminder: Pay rent\nPriority: high\nDue: 2026-10-20", f.ch.got[0].text)
	assert.Equal(t, userdata.CategoryTasks, f.store.recs[0].Category)

	assert.ErrorIs(t, f.m.HandleTaskReminder(context.Background(), "alice", "missing"), ErrNoTask)
}

func TestResendCountsAttempt(t *testing.T) {
	f := newFixture(t)
	err := f.m.Resend(context.Background(), retry.QueuedMessage{
		UserID: "alice", Category: "health", Message: "drink water",
		Recipient: "alice@example.com", ChannelName: "email", RetryCount: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, sent{"alice@example.com", "drink water"}, f.ch.got[0])
	assert.Equal(t, 3, f.store.recs[0].Attempt)
}

func TestAlertSink(t *testing.T) {
	f := newFixture(t)
	sink := f.m.AlertSink("email", "ops@example.com")
	require.NoError(t, sink.Alert(context.Background(), "disk full"))
	assert.Equal(t, sent{"ops@example.com", "disk full"}, f.ch.got[0])
	assert.Empty(t, f.store.recs)

	assert.ErrorIs(t, f.m.AlertSink("sms", "x").Alert(context.Background(), "y"), channels.ErrUnknownChannel)
}

func TestFormatTaskReminderMinimal(t *testing.T) {
	assert.Equal(t, "Task reminder: Call mom", FormatTaskReminder(tasks.Task{Title: " Call mom "}))
}
