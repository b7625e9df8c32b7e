package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTableUpsertReplacesByName(t *testing.T) {
	jt := NewJobTable()
	first := jt.Upsert(ScheduledJob{Name: "alice:motivational:morning", At: baseNow})
	second := jt.Upsert(ScheduledJob{Name: "alice:motivational:morning", At: baseNow.Add(time.Hour)})

	assert.Equal(t, 1, jt.Len())
	assert.NotEqual(t, first.ID, second.ID)
	got, ok := jt.Get("alice:motivational:morning")
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
}

func TestJobTablePopDue(t *testing.T) {
	jt := NewJobTable()
	jt.Upsert(ScheduledJob{Name: "late", At: baseNow.Add(2 * time.Hour)})
	jt.Upsert(ScheduledJob{Name: "b", At: baseNow.Add(-time.Minute)})
	jt.Upsert(ScheduledJob{Name: "a", At: baseNow.Add(-time.Hour)})
	_, err := jt.AddRecurring("daily-pass", "0 1 * * *", KindDailyPass, baseNow.Add(-24*time.Hour), func(context.Context) error { return nil })
	require.NoError(t, err)

	due := jt.PopDue(baseNow)
	names := make([]string, 0, len(due))
	for _, j := range due {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"daily-pass", "a", "b"}, names)

	assert.Equal(t, 2, jt.Len())
	pass, ok := jt.Get("daily-pass")
	require.True(t, ok)
	assert.True(t, pass.At.Equal(time.Date(2026, 10, 20, 1, 0, 0, 0, time.UTC)), pass.At)
	assert.Empty(t, jt.PopDue(baseNow))
}

func TestJobTableRemoveWhere(t *testing.T) {
	jt := NewJobTable()
	jt.Upsert(ScheduledJob{Name: "1", UserID: "alice", Kind: KindTaskReminder, TaskID: "t1"})
	jt.Upsert(ScheduledJob{Name: "2", UserID: "alice", Kind: KindTaskReminder, TaskID: "t2"})
	jt.Upsert(ScheduledJob{Name: "3", UserID: "bob", Kind: KindTaskReminder, TaskID: "t1"})

	removed := jt.RemoveWhere(func(j ScheduledJob) bool { return j.UserID == "alice" && j.TaskID == "t1" })
	require.Len(t, removed, 1)
	assert.Equal(t, "1", removed[0].Name)
	assert.Equal(t, 2, jt.Len())
	assert.True(t, jt.Remove("2"))
	assert.False(t, jt.Remove("2"))
}

func TestParseCron(t *testing.T) {
	for _, spec := range []string{"0 1 * * *", "0 0 1 * * *", "@daily", "@every 12h"} {
		_, err := ParseCron(spec)
		assert.NoError(t, err, spec)
	}
	_, err := ParseCron("every morning")
	assert.Error(t, err)
}

func TestWakeTimerKey(t *testing.T) {
	wt := WakeTimer{UserID: "user 1", Category: "motivational", Period: "late/night"}
	assert.Equal(t, "user_1-motivational-late_night", wt.Key())
	assert.Equal(t, "user_1-motivational-", WakeTimerPrefix("user 1", "motivational"))
	assert.Equal(t, "task_abc", taskPeriod("abc"))

	at := time.Date(2026, 10, 19, 18, 5, 0, 0, time.UTC)
	assert.Equal(t, "alice-tasks-task_a_b-20261019_1805", taskWakeTimer("alice", "a-b", at).Key())
	assert.Equal(t, "alice-tasks-task_a_b-", taskWakePrefix("alice", "a-b"))
}
