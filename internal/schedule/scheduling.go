package schedule

import (
	"context"
	"sort"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/userdata"
	logx "remindbot/pkg/logx"
)

// ScheduleDailyMessageJob replaces the jobs of every period of category
// with freshly sampled ones. Inactive periods end up with no job.
func (m *Manager) ScheduleDailyMessageJob(ctx context.Context, userID, category string) {
	periods, err := m.users.GetScheduleTimePeriods(userID, category)
	if err != nil {
		m.log.Error("reading time periods failed", logx.String("user", userID), logx.String("category", category), logx.Err(err))
		return
	}
	if len(periods) == 0 {
		m.log.Debug("no time periods", logx.String("user", userID), logx.String("category", category))
		return
	}
	scheduled := 0
	for _, name := range sortedPeriodNames(periods) {
		m.removePeriodJob(ctx, userID, category, name)
		if !periods[name].Active {
			continue
		}
		if m.ScheduleMessageForPeriod(ctx, userID, category, name) {
			scheduled++
		}
	}
	m.log.Debug("category scheduled", logx.String("user", userID), logx.String("category", category), logx.Int("jobs", scheduled))
}

func sortedPeriodNames(periods map[string]TimePeriod) []string {
	names := make([]string, 0, len(periods))
	for n := range periods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// removePeriodJob drops the job and wake timer of one (user, category, period).
func (m *Manager) removePeriodJob(ctx context.Context, userID, category, period string) {
	m.jobs.Remove(jobName(userID, category, period))
	key := WakeTimer{UserID: userID, Category: category, Period: period}.Key()
	if _, err := m.wake.Remove(ctx, key); err != nil {
		m.log.Warn("removing wake timer failed", logx.String("timer", key), logx.Err(err))
	}
}

// ScheduleMessageForPeriod samples a send time inside the period, avoiding
// the user's other jobs, and records the job. It gives up after
// MaxSampleAttempts conflicting samples and reports whether a job exists.
func (m *Manager) ScheduleMessageForPeriod(ctx context.Context, userID, category, period string) bool {
	log := m.log.With(logx.String("user", userID), logx.String("category", category), logx.String("period", period))
	for attempt := 1; attempt <= m.cfg.MaxSampleAttempts; attempt++ {
		s, ok := m.GetRandomTimeWithinPeriod(ctx, userID, category, period)
		if !ok {
			return false
		}
		at, err := time.ParseInLocation(DateTimeLayout, s, m.loc)
		if err != nil {
			log.Error("sampled time unparseable", logx.String("at", s), logx.Err(err))
			return false
		}
		if m.IsTimeConflict(userID, at) {
			log.Trace("sampled time conflicts; resampling", logx.String("at", s), logx.Int("attempt", attempt))
			continue
		}
		m.SetWakeTimer(ctx, at, userID, category, period)
		m.addJob(ScheduledJob{
			Name:     jobName(userID, category, period),
			Kind:     KindMessage,
			UserID:   userID,
			Category: category,
			Period:   period,
			At:       at,
			Context:  "daily_message",
			Run: func(ctx context.Context) error {
				return m.HandleSendingScheduledMessage(ctx, userID, category, m.cfg.SendRetryAttempts, m.cfg.SendRetryDelay)
			},
		})
		log.Info("message scheduled", logx.String("at", s))
		return true
	}
	log.Warn("no conflict-free time found; period skipped", logx.Int("attempts", m.cfg.MaxSampleAttempts))
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeJobSkipped, Data: eventbus.JobData{UserID: userID, Category: category, Period: period}})
	return false
}

func (m *Manager) addJob(j ScheduledJob) ScheduledJob {
	j.CreatedAt = m.now()
	j = m.jobs.Upsert(j)
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeJobScheduled, Data: jobData(j)})
	return j
}

// IsTimeConflict reports whether another job of the same user runs within
// the collision window of t. Other users' jobs never conflict.
func (m *Manager) IsTimeConflict(userID string, t time.Time) bool {
	window := m.cfg.CollisionWindow
	hits := m.jobs.Find(func(j ScheduledJob) bool {
		if j.UserID != userID || j.Kind == KindDailyPass {
			return false
		}
		d := j.At.Sub(t)
		if d < 0 {
			d = -d
		}
		return d < window
	})
	return len(hits) > 0
}

// GetRandomTimeWithinPeriod samples a minute inside the named period on its
// next applicable day, formatted with DateTimeLayout. It returns false when
// the period is unknown, incomplete or never applies.
func (m *Manager) GetRandomTimeWithinPeriod(_ context.Context, userID, category, period string) (string, bool) {
	p, ok := m.lookupPeriod(userID, category, period)
	if !ok {
		return "", false
	}
	w, err := nextWindow(p, m.now())
	if err != nil {
		m.log.Warn("period has no usable window",
			logx.String("user", userID), logx.String("category", category), logx.String("period", period), logx.Err(err))
		return "", false
	}
	return sampleWindow(w, m.rng).Format(DateTimeLayout), true
}

func (m *Manager) lookupPeriod(userID, category, period string) (TimePeriod, bool) {
	periods, err := m.users.GetScheduleTimePeriods(userID, category)
	if err != nil {
		m.log.Error("reading time periods failed", logx.String("user", userID), logx.String("category", category), logx.Err(err))
		return TimePeriod{}, false
	}
	p, ok := periods[period]
	if !ok {
		m.log.Warn("unknown time period", logx.String("user", userID), logx.String("category", category), logx.String("period", period))
		return TimePeriod{}, false
	}
	p.Name = period
	return p, true
}

func (m *Manager) scheduleCheckins(ctx context.Context, userID string) {
	periods, err := m.users.GetScheduleTimePeriods(userID, userdata.CategoryCheckin)
	if err != nil {
		m.log.Error("reading check-in periods failed", logx.String("user", userID), logx.Err(err))
		return
	}
	for _, name := range sortedPeriodNames(periods) {
		if !periods[name].Active {
			m.removePeriodJob(ctx, userID, userdata.CategoryCheckin, name)
			continue
		}
		m.ScheduleCheckinAtExactTime(ctx, userID, name)
	}
}

// ScheduleCheckinAtExactTime schedules a check-in at the period's start
// time, today if still ahead and otherwise on the next applicable day.
func (m *Manager) ScheduleCheckinAtExactTime(ctx context.Context, userID, period string) bool {
	p, ok := m.lookupPeriod(userID, userdata.CategoryCheckin, period)
	if !ok {
		return false
	}
	at, err := nextExactTime(p, m.now())
	if err != nil {
		m.log.Error("check-in period unusable", logx.String("user", userID), logx.String("period", period), logx.Err(err))
		return false
	}
	m.SetWakeTimer(ctx, at, userID, userdata.CategoryCheckin, period)
	m.addJob(ScheduledJob{
		Name:     jobName(userID, userdata.CategoryCheckin, period),
		Kind:     KindCheckin,
		UserID:   userID,
		Category: userdata.CategoryCheckin,
		Period:   period,
		At:       at,
		Context:  "checkin",
		Run: func(ctx context.Context) error {
			return m.HandleSendingScheduledMessage(ctx, userID, userdata.CategoryCheckin, m.cfg.SendRetryAttempts, m.cfg.SendRetryDelay)
		},
	})
	m.log.Info("check-in scheduled", logx.String("user", userID), logx.String("period", period), logx.String("at", at.Format(DateTimeLayout)))
	return true
}

// SetWakeTimer registers a wake timer. Failures are logged and published,
// never returned.
func (m *Manager) SetWakeTimer(ctx context.Context, at time.Time, userID, category, period string) {
	m.registerWake(ctx, WakeTimer{UserID: userID, Category: category, Period: period, At: at})
}

func (m *Manager) registerWake(ctx context.Context, wt WakeTimer) {
	if err := m.wake.Register(ctx, wt); err != nil {
		m.log.Warn("wake timer registration failed", logx.String("timer", wt.Key()), logx.Time("at", wt.At), logx.Err(err))
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeWakeTimerFailure, Data: eventbus.JobData{UserID: wt.UserID, Category: wt.Category, Period: wt.Period, At: wt.At}})
	}
}

// CleanupOldTasks removes every job of (user, category) and the matching
// wake timers. Other users and categories are untouched.
func (m *Manager) CleanupOldTasks(ctx context.Context, userID, category string) int {
	removed := m.jobs.RemoveWhere(func(j ScheduledJob) bool {
		return j.UserID == userID && j.Category == category
	})
	prefix := WakeTimerPrefix(userID, category)
	if n, err := m.wake.RemovePrefix(ctx, prefix); err != nil {
		m.log.Warn("removing wake timers failed", logx.String("prefix", prefix), logx.Err(err))
	} else if n > 0 {
		m.log.Debug("wake timers removed", logx.String("prefix", prefix), logx.Int("count", n))
	}
	if len(removed) > 0 {
		m.log.Debug("old jobs removed", logx.String("user", userID), logx.String("category", category), logx.Int("count", len(removed)))
	}
	return len(removed)
}
