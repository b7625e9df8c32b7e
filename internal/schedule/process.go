package schedule

import (
	"context"
	"errors"
)

// Factory builds a fresh Manager (and its dispatcher) for a one-off call.
type Factory func() (*Manager, error)

var errNoFactory = errors.New("schedule: nil factory")

func (f Factory) build() (*Manager, error) {
	if f == nil {
		return nil, errNoFactory
	}
	return f()
}

// ProcessUserSchedules schedules everything for one user on a fresh Manager
// and returns it so callers can inspect the resulting jobs.
func ProcessUserSchedules(ctx context.Context, f Factory, userID string) (*Manager, error) {
	m, err := f.build()
	if err != nil {
		return nil, err
	}
	m.ScheduleNewUser(ctx, userID)
	return m, nil
}

// ProcessCategorySchedule schedules one message category for one user.
func ProcessCategorySchedule(ctx context.Context, f Factory, userID, category string) (*Manager, error) {
	m, err := f.build()
	if err != nil {
		return nil, err
	}
	m.ScheduleDailyMessageJob(ctx, userID, category)
	return m, nil
}

// ScheduleAllTaskRemindersFor schedules one user's task reminders.
func ScheduleAllTaskRemindersFor(ctx context.Context, f Factory, userID string) (*Manager, error) {
	m, err := f.build()
	if err != nil {
		return nil, err
	}
	m.ScheduleAllTaskReminders(ctx, userID)
	return m, nil
}
