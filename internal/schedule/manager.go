package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/tasks"
	logx "remindbot/pkg/logx"
)

const dailyPassJob = "daily-pass"

// Manager owns the job table and the loop goroutine.
type Manager struct {
	cfg Config
	log logx.Logger
	loc *time.Location

	users    UserData
	tasks    TaskStore
	dispatch Dispatcher
	retry    RetryQueue
	wake     WakeTimerRegistrar
	bus      eventbus.Bus
	clock    func() time.Time
	rng      RandSource
	selector Selector

	jobs *JobTable

	// passMu keeps full passes and single-user passes from interleaving.
	passMu sync.Mutex

	mu  sync.Mutex
	sup *supervisor.Supervisor // nil while stopped
}

// New builds a stopped Manager. Missing optional deps fall back to no-ops.
func New(deps Deps, cfg Config, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:      cfg,
		log:      log,
		users:    deps.Users,
		tasks:    deps.Tasks,
		dispatch: deps.Dispatcher,
		retry:    deps.Retry,
		wake:     deps.WakeTimers,
		bus:      deps.Bus,
		clock:    deps.Now,
		selector: deps.Selector,
		jobs:     NewJobTable(),
	}
	m.loc = loadLocation(cfg.Timezone, log)
	if m.wake == nil {
		m.wake = NopWakeTimers{}
	}
	if m.bus == nil {
		m.bus = eventbus.Nop()
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	m.rng = newLockedRand(deps.Rand)
	if m.selector == nil {
		m.selector = NewTaskSelector(m.rng, m.now, func(err error) {
			m.log.Warn("weighted task selection failed; using uniform choice", logx.Err(err))
		})
	}
	return m
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (m *Manager) now() time.Time { return m.clock().In(m.loc) }

// Location is the timezone every period is resolved in.
func (m *Manager) Location() *time.Location { return m.loc }

// Jobs exposes the job table.
func (m *Manager) Jobs() *JobTable { return m.jobs }

// Running reports whether the loop goroutine is live.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveLocked()
}

// liveLocked also treats a loop whose parent context ended as stopped.
func (m *Manager) liveLocked() bool {
	return m.sup != nil && m.sup.Context().Err() == nil
}

// RunDailyScheduler runs one full scheduling pass and starts the loop.
// It is a no-op while already running.
func (m *Manager) RunDailyScheduler(ctx context.Context) {
	m.mu.Lock()
	if m.liveLocked() {
		m.mu.Unlock()
		m.log.Debug("scheduler already running")
		return
	}
	sup := supervisor.New(ctx, supervisor.WithLogger(m.log))
	m.sup = sup
	m.mu.Unlock()

	if _, err := m.jobs.AddRecurring(dailyPassJob, m.cfg.DailyPass, KindDailyPass, m.now(), func(ctx context.Context) error {
		m.ScheduleAllUsersImmediately(ctx)
		return nil
	}); err != nil {
		m.log.Error("invalid daily pass spec; daily rescheduling disabled", logx.String("spec", m.cfg.DailyPass), logx.Err(err))
	}

	m.ScheduleAllUsersImmediately(sup.Context())

	sup.GoRestart("scheduler.loop", func(ctx context.Context) error {
		return m.loop(ctx, sup)
	})
	m.log.Info("scheduler started",
		logx.String("tz", m.loc.String()),
		logx.Duration("poll", m.cfg.PollInterval),
		logx.Int("jobs", m.jobs.Len()),
	)
}

// StopScheduler cancels the loop and waits up to the stop timeout for it to
// exit. State is reset before waiting. Stopping a stopped scheduler is a no-op.
func (m *Manager) StopScheduler() {
	m.mu.Lock()
	sup := m.sup
	m.sup = nil
	m.mu.Unlock()
	if sup == nil {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
	defer cancel()
	err := sup.Stop(ctx)
	m.jobs.Clear()
	if errors.Is(err, context.DeadlineExceeded) {
		m.log.Warn("scheduler loop did not exit before timeout", logx.Duration("timeout", m.cfg.StopTimeout))
		return
	}
	m.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (m *Manager) loop(ctx context.Context, sup *supervisor.Supervisor) error {
	t := time.NewTicker(m.cfg.PollInterval)
	defer t.Stop()
	defer func() {
		// The parent context ended without StopScheduler.
		m.mu.Lock()
		if m.sup == sup && ctx.Err() != nil {
			m.sup = nil
		}
		m.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.RunPending(ctx)
		}
	}
}

// RunPending fires every job due now, in time order, and returns how many
// ran. A failing or panicking job is logged and does not affect the rest.
func (m *Manager) RunPending(ctx context.Context) int {
	due := m.jobs.PopDue(m.now())
	for _, j := range due {
		if ctx.Err() != nil {
			return 0
		}
		m.runJob(ctx, j)
	}
	return len(due)
}

func (m *Manager) runJob(ctx context.Context, j ScheduledJob) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("job panicked", logx.String("job", j.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeJobFired, Data: jobData(j)})
	if j.Run == nil {
		return
	}
	start := time.Now()
	if err := j.Run(ctx); err != nil {
		m.log.Warn("job failed", logx.String("job", j.Name), logx.String("kind", j.Kind.String()), logx.Err(err))
		return
	}
	m.log.Debug("job done", logx.String("job", j.Name), logx.Duration("took", time.Since(start)))
}

func jobData(j ScheduledJob) eventbus.JobData {
	return eventbus.JobData{UserID: j.UserID, Category: j.Category, Period: j.Period, At: j.At}
}

// ScheduleAllUsersImmediately schedules every known user. One user's
// failure never stops the pass.
func (m *Manager) ScheduleAllUsersImmediately(ctx context.Context) {
	m.passMu.Lock()
	defer m.passMu.Unlock()

	start := time.Now()
	ids, err := m.userIDs()
	if err != nil {
		m.log.Error("listing users failed; skipping pass", logx.Err(err))
		return
	}
	failed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := m.scheduleUserSafe(ctx, id); err != nil {
			failed++
			m.log.Error("scheduling user failed", logx.String("user", id), logx.Err(err))
		}
	}
	m.bus.Publish(eventbus.Event{Type: eventbus.TypePassCompleted, Data: len(ids)})
	m.log.Info("scheduling pass done",
		logx.Int("users", len(ids)),
		logx.Int("failed", failed),
		logx.Int("jobs", m.jobs.Len()),
		logx.Duration("took", time.Since(start)),
	)
}

// userIDs shields the pass from a panicking user source.
func (m *Manager) userIDs() (ids []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("user id source panicked: %v", r)
		}
	}()
	return m.users.GetAllUserIDs()
}

// ScheduleNewUser schedules one user without a full rescan.
func (m *Manager) ScheduleNewUser(ctx context.Context, userID string) {
	m.passMu.Lock()
	defer m.passMu.Unlock()
	if err := m.scheduleUserSafe(ctx, userID); err != nil {
		m.log.Error("scheduling new user failed", logx.String("user", userID), logx.Err(err))
		return
	}
	m.log.Info("new user scheduled", logx.String("user", userID))
}

func (m *Manager) scheduleUserSafe(ctx context.Context, userID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.scheduleUser(ctx, userID)
}

func (m *Manager) scheduleUser(ctx context.Context, userID string) error {
	prefs, err := m.users.GetPreferences(userID)
	if err != nil {
		return fmt.Errorf("read preferences: %w", err)
	}
	for _, category := range prefs.MessageCategories() {
		m.ScheduleDailyMessageJob(ctx, userID, category)
	}
	if prefs.CheckinSettings.Enabled {
		m.scheduleCheckins(ctx, userID)
	}
	if m.tasks != nil && m.tasks.AreTasksEnabled(userID) {
		m.ScheduleAllTaskReminders(ctx, userID)
	}
	return nil
}

// activeTasks is a nil-safe LoadActiveTasks.
func (m *Manager) activeTasks(userID string) ([]tasks.Task, error) {
	if m.tasks == nil {
		return nil, errors.New("no task store")
	}
	return m.tasks.LoadActiveTasks(userID)
}
