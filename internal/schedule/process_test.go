package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/userdata"
)

func TestModuleWrappersBuildFreshManagers(t *testing.T) {
	h := newHarness(t, Config{})
	h.users.prefs["alice"] = userdata.Preferences{Categories: []string{"motivational"}}
	h.users.addPeriod("alice", "motivational", "morning", period("09:00", "12:00"))

	builds := 0
	factory := Factory(func() (*Manager, error) {
		builds++
		return New(Deps{Users: h.users, Tasks: h.tasks, Now: h.clock.Now}, Config{Timezone: "UTC"}, h.m.log), nil
	})
	ctx := context.Background()

	m1, err := ProcessUserSchedules(ctx, factory, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, m1.Jobs().Len())

	m2, err := ProcessCategorySchedule(ctx, factory, "alice", "motivational")
	require.NoError(t, err)
	assert.Equal(t, 1, m2.Jobs().Len())
	assert.NotSame(t, m1, m2)

	m3, err := ScheduleAllTaskRemindersFor(ctx, factory, "alice")
	require.NoError(t, err)
	assert.Zero(t, m3.Jobs().Len())
	assert.Equal(t, 3, builds)
}

func TestModuleWrappersPropagateFactoryErrors(t *testing.T) {
	boom := errors.New("no channels configured")
	_, err := ProcessUserSchedules(context.Background(), func() (*Manager, error) { return nil, boom }, "alice")
	assert.ErrorIs(t, err, boom)

	_, err = ProcessCategorySchedule(context.Background(), nil, "alice", "x")
	assert.Error(t, err)
}
