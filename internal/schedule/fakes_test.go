package schedule

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/tasks"
	"remindbot/internal/userdata"
	logx "remindbot/pkg/logx"
)

// Monday.
var baseNow = time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeUsers struct {
	mu      sync.Mutex
	ids     []string
	idsErr  error
	prefs   map[string]userdata.Preferences
	periods map[string]map[string]map[string]TimePeriod // user -> category -> name
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		prefs:   map[string]userdata.Preferences{},
		periods: map[string]map[string]map[string]TimePeriod{},
	}
}

func (f *fakeUsers) addPeriod(user, category, name string, p TimePeriod) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.periods[user] == nil {
		f.periods[user] = map[string]map[string]TimePeriod{}
	}
	if f.periods[user][category] == nil {
		f.periods[user][category] = map[string]TimePeriod{}
	}
	f.periods[user][category][name] = p
}

func (f *fakeUsers) GetAllUserIDs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids, f.idsErr
}

func (f *fakeUsers) GetPreferences(userID string) (userdata.Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prefs[userID]
	if !ok {
		return userdata.Preferences{}, userdata.ErrUnknownUser
	}
	return p, nil
}

func (f *fakeUsers) GetScheduleTimePeriods(userID, category string) (map[string]TimePeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]TimePeriod{}
	for name, p := range f.periods[userID][category] {
		p.Name = name
		out[name] = p
	}
	return out, nil
}

type fakeTasks struct {
	mu        sync.Mutex
	enabled   map[string]bool
	list      map[string][]tasks.Task
	loads     int
	updates   []string
	updateErr error
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{enabled: map[string]bool{}, list: map[string][]tasks.Task{}}
}

func (f *fakeTasks) AreTasksEnabled(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[userID]
}

func (f *fakeTasks) LoadActiveTasks(userID string) ([]tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	var out []tasks.Task
	for _, t := range f.list[userID] {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) GetTaskByID(userID, taskID string) (*tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.list[userID] {
		if t.ID == taskID {
			return &t, nil
		}
	}
	return nil, tasks.ErrTaskNotFound
}

func (f *fakeTasks) UpdateTask(userID, taskID string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	for i, t := range f.list[userID] {
		if t.ID == taskID {
			if v, ok := fields["reminder_sent"].(bool); ok {
				f.list[userID][i].ReminderSent = v
			}
			f.updates = append(f.updates, taskID)
			return nil
		}
	}
	return tasks.ErrTaskNotFound
}

type undeliveredErr struct{ msg, recipient, channel string }

func (e *undeliveredErr) Error() string { return "send failed: " + e.channel }
func (e *undeliveredErr) Undelivered() (string, string, string) {
	return e.msg, e.recipient, e.channel
}

type fakeDispatcher struct {
	mu        sync.Mutex
	sends     int
	reminders []string
	failSends int // fail the first N message sends
	failAll   bool
}

func (d *fakeDispatcher) HandleMessageSending(_ context.Context, userID, category string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sends++
	if d.failAll || d.sends <= d.failSends {
		return &undeliveredErr{msg: "hello " + category, recipient: userID + "@example.com", channel: "email"}
	}
	return nil
}

func (d *fakeDispatcher) HandleTaskReminder(_ context.Context, _ string, taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll {
		return errors.New("boom")
	}
	d.reminders = append(d.reminders, taskID)
	return nil
}

func (d *fakeDispatcher) sendCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sends
}

type queuedCall struct{ user, category, message, recipient, channel string }

type fakeRetry struct {
	mu    sync.Mutex
	calls []queuedCall
}

func (r *fakeRetry) QueueFailedMessage(userID, category, message, recipient, channelName string) {
	r.mu.Lock()
	r.calls = append(r.calls, queuedCall{userID, category, message, recipient, channelName})
	r.mu.Unlock()
}

// fakeWake keeps one live timer per key, like systemd does.
type fakeWake struct {
	mu         sync.Mutex
	registered []WakeTimer
	live       map[string]WakeTimer
	removed    []string
	failReg    bool
	failRemove bool
}

func (w *fakeWake) Register(_ context.Context, t WakeTimer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failReg {
		return errors.New("dbus unavailable")
	}
	w.registered = append(w.registered, t)
	if w.live == nil {
		w.live = map[string]WakeTimer{}
	}
	w.live[t.Key()] = t
	return nil
}

func (w *fakeWake) Remove(_ context.Context, key string) (int, error) {
	return w.removeWhere(key, func(k string) bool { return k == key })
}

func (w *fakeWake) RemovePrefix(_ context.Context, prefix string) (int, error) {
	return w.removeWhere(prefix, func(k string) bool { return strings.HasPrefix(k, prefix) })
}

func (w *fakeWake) removeWhere(arg string, match func(string) bool) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failRemove {
		return 0, errors.New("dbus unavailable")
	}
	w.removed = append(w.removed, arg)
	n := 0
	for k := range w.live {
		if match(k) {
			delete(w.live, k)
			n++
		}
	}
	return n, nil
}

func (w *fakeWake) liveKeys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys := make([]string, 0, len(w.live))
	for k := range w.live {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (w *fakeWake) registrations() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.registered)
}

type harness struct {
	m     *Manager
	clock *fakeClock
	users *fakeUsers
	tasks *fakeTasks
	disp  *fakeDispatcher
	retry *fakeRetry
	wake  *fakeWake
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		clock: &fakeClock{t: baseNow},
		users: newFakeUsers(),
		tasks: newFakeTasks(),
		disp:  &fakeDispatcher{},
		retry: &fakeRetry{},
		wake:  &fakeWake{},
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	h.m = New(Deps{
		Users:      h.users,
		Tasks:      h.tasks,
		Dispatcher: h.disp,
		Retry:      h.retry,
		WakeTimers: h.wake,
		Now:        h.clock.Now,
		Rand:       rand.New(rand.NewSource(42)),
	}, cfg, logx.Nop())
	return h
}

func period(start, end string, days ...string) TimePeriod {
	return TimePeriod{StartTime: start, EndTime: end, Active: true, Days: days}
}

// countingRand fails the test when any draw happens.
type countingRand struct {
	t     *testing.T
	draws int
}

func (r *countingRand) Intn(int) int {
	r.draws++
	r.t.Errorf("unexpected Intn draw")
	return 0
}

func (r *countingRand) Float64() float64 {
	r.draws++
	r.t.Errorf("unexpected Float64 draw")
	return 0
}
