package schedule

import (
	"context"
	"time"

	"remindbot/internal/tasks"
	"remindbot/internal/userdata"
	logx "remindbot/pkg/logx"
)

// SelectTaskForReminder picks the task for one reminder slot. It returns nil
// for an empty list and the only task, without drawing, for a single one.
func (m *Manager) SelectTaskForReminder(list []tasks.Task) *tasks.Task {
	return SelectTask(m.selector, list)
}

// ScheduleAllTaskReminders replaces the user's task reminders with one
// reminder per active task period. Nothing happens when tasks are disabled.
func (m *Manager) ScheduleAllTaskReminders(ctx context.Context, userID string) {
	if m.tasks == nil || !m.tasks.AreTasksEnabled(userID) {
		m.log.Debug("tasks disabled; no reminders", logx.String("user", userID))
		return
	}
	m.CleanupOldTasks(ctx, userID, userdata.CategoryTasks)

	periods, err := m.users.GetScheduleTimePeriods(userID, userdata.CategoryTasks)
	if err != nil {
		m.log.Error("reading task periods failed", logx.String("user", userID), logx.Err(err))
		return
	}
	var open []tasks.Task
	loaded := false
	scheduled := 0
	for _, name := range sortedPeriodNames(periods) {
		p := periods[name]
		if !p.Active || p.StartTime == "" || p.EndTime == "" {
			continue
		}
		if !loaded {
			open, err = m.activeTasks(userID)
			if err != nil {
				m.log.Error("loading active tasks failed", logx.String("user", userID), logx.Err(err))
				return
			}
			loaded = true
		}
		if len(open) == 0 {
			m.log.Debug("no open tasks; no reminders", logx.String("user", userID))
			return
		}
		task := m.SelectTaskForReminder(open)
		if task == nil {
			continue
		}
		w, err := nextWindow(p, m.now())
		if err != nil {
			m.log.Warn("task period has no usable window", logx.String("user", userID), logx.String("period", name), logx.Err(err))
			continue
		}
		at := sampleWindow(w, m.rng).Format(DateTimeLayout)
		if m.ScheduleTaskReminderAtTime(ctx, userID, task.ID, at) {
			scheduled++
		}
	}
	m.log.Debug("task reminders scheduled", logx.String("user", userID), logx.Int("count", scheduled))
}

// ScheduleTaskReminderAtTime schedules a reminder for taskID at
// reminderTime (DateTimeLayout or "HH:MM"). Completed or unknown tasks are
// never scheduled and return false.
func (m *Manager) ScheduleTaskReminderAtTime(ctx context.Context, userID, taskID, reminderTime string) bool {
	if m.tasks == nil {
		return false
	}
	log := m.log.With(logx.String("user", userID), logx.String("task", taskID))
	task, err := m.tasks.GetTaskByID(userID, taskID)
	if err != nil || task == nil {
		log.Warn("task lookup failed; reminder not scheduled", logx.Err(err))
		return false
	}
	if task.Completed {
		log.Debug("task completed; reminder not scheduled")
		return false
	}
	at, err := parseReminderTime(reminderTime, m.now())
	if err != nil {
		log.Error("invalid reminder time", logx.String("at", reminderTime), logx.Err(err))
		return false
	}
	wt := taskWakeTimer(userID, taskID, at)
	m.registerWake(ctx, wt)
	m.addJob(ScheduledJob{
		Name:     taskJobName(userID, taskID, at),
		Kind:     KindTaskReminder,
		UserID:   userID,
		Category: userdata.CategoryTasks,
		Period:   wt.Period,
		TaskID:   taskID,
		At:       at,
		Context:  "task_reminder",
		Run: func(ctx context.Context) error {
			return m.HandleTaskReminder(ctx, userID, taskID)
		},
	})
	log.Info("task reminder scheduled", logx.String("at", at.Format(DateTimeLayout)))
	return true
}

func taskJobName(userID, taskID string, at time.Time) string {
	return jobName(userID, userdata.CategoryTasks, "task:"+taskID) + "@" + at.Format(DateTimeLayout)
}

// CleanupTaskReminders removes every reminder job and wake timer of one
// task. It returns false only when wake timer removal fails.
func (m *Manager) CleanupTaskReminders(ctx context.Context, userID, taskID string) bool {
	removed := m.jobs.RemoveWhere(func(j ScheduledJob) bool {
		return j.Kind == KindTaskReminder && j.UserID == userID && j.TaskID == taskID
	})
	if _, err := m.wake.RemovePrefix(ctx, taskWakePrefix(userID, taskID)); err != nil {
		m.log.Warn("removing task wake timers failed", logx.String("user", userID), logx.String("task", taskID), logx.Err(err))
		return false
	}
	m.log.Debug("task reminders cleaned", logx.String("user", userID), logx.String("task", taskID), logx.Int("jobs", len(removed)))
	return true
}

// HandleTaskReminder sends the reminder for an open task and marks it sent.
// Completed tasks are ignored.
func (m *Manager) HandleTaskReminder(ctx context.Context, userID, taskID string) error {
	if m.tasks == nil {
		return nil
	}
	task, err := m.tasks.GetTaskByID(userID, taskID)
	if err != nil {
		return err
	}
	if task == nil || task.Completed {
		return nil
	}
	if m.dispatch == nil {
		m.log.Debug("no dispatcher; task reminder dropped", logx.String("user", userID), logx.String("task", taskID))
		return nil
	}
	if err := m.dispatch.HandleTaskReminder(ctx, userID, taskID); err != nil {
		m.queueForRetry(userID, userdata.CategoryTasks, err)
		return err
	}
	if err := m.tasks.UpdateTask(userID, taskID, map[string]any{"reminder_sent": true}); err != nil {
		m.log.Warn("marking reminder sent failed", logx.String("user", userID), logx.String("task", taskID), logx.Err(err))
	}
	return nil
}
