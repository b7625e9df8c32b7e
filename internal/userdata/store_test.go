package userdata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "remindbot/pkg/logx"
)

func seedUser(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.SaveUserData(id, DomainAccount, Account{
		UserID:  id,
		Channel: ChannelRoute{Type: "telegram", Contact: "42"},
	}))
	require.NoError(t, s.SaveUserData(id, DomainPreferences, Preferences{
		Categories:      []string{"motivational", "checkin", "health", "tasks"},
		CheckinSettings: FeatureSettings{Enabled: true},
	}))
	require.NoError(t, WriteJSON(filepath.Join(s.UserDir(id), "schedules.json"), map[string]any{
		"motivational": map[string]any{
			"periods": map[string]any{
				"morning": map[string]any{"start_time": "09:00", "end_time": "12:00", "days": []string{"ALL"}},
				"evening": map[string]any{"start_time": "18:00", "end_time": "20:00", "active": false},
			},
		},
	}))
}

func TestStoreReadsUserDomains(t *testing.T) {
	s := NewStore(t.TempDir(), logx.Nop())
	seedUser(t, s, "bob")
	seedUser(t, s, "alice")

	ids, err := s.GetAllUserIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, ids)

	acc, err := s.GetAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, "telegram", acc.Channel.Type)

	prefs, err := s.GetPreferences("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"motivational", "health"}, prefs.MessageCategories())
	assert.True(t, prefs.CheckinSettings.Enabled)

	raw, err := s.GetUserData("alice", DomainPreferences)
	require.NoError(t, err)
	assert.Contains(t, raw, "categories")

	_, err = s.GetUserData("alice", "billing")
	require.ErrorIs(t, err, ErrUnknownDomain)
	_, err = s.GetPreferences("nobody")
	require.ErrorIs(t, err, ErrUnknownUser)
}

func TestGetScheduleTimePeriods(t *testing.T) {
	s := NewStore(t.TempDir(), logx.Nop())
	seedUser(t, s, "alice")

	periods, err := s.GetScheduleTimePeriods("alice", "motivational")
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, "morning", periods["morning"].Name)
	assert.True(t, periods["morning"].Active, "missing active key defaults to active")
	assert.False(t, periods["evening"].Active)

	none, err := s.GetScheduleTimePeriods("alice", "health")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLoadMessagesPrefersUserLibrary(t *testing.T) {
	s := NewStore(t.TempDir(), logx.Nop())
	seedUser(t, s, "alice")
	require.NoError(t, WriteJSON(filepath.Join(s.Dir(), "messages", "health.json"), messageFile{
		Messages: []Message{{ID: "shared", Text: "drink water"}},
	}))

	msgs, err := s.LoadMessages("alice", "health")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "shared", msgs[0].ID)

	require.NoError(t, WriteJSON(filepath.Join(s.UserDir("alice"), "messages", "health.json"), messageFile{
		Messages: []Message{{ID: "own", Text: "stretch"}},
	}))
	msgs, err = s.LoadMessages("alice", "health")
	require.NoError(t, err)
	assert.Equal(t, "own", msgs[0].ID)

	msgs, err = s.LoadMessages("alice", "unknown")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDaysInclude(t *testing.T) {
	assert.True(t, DaysInclude(nil, time.Monday))
	assert.True(t, DaysInclude([]string{"ALL"}, time.Sunday))
	assert.True(t, DaysInclude([]string{"Monday", "wed"}, time.Wednesday))
	assert.False(t, DaysInclude([]string{"Monday", "wed"}, time.Tuesday))
	assert.True(t, DaysInclude([]string{"THURSDAY"}, time.Thursday))
}
