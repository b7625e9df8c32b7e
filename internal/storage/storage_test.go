package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "remindbot/pkg/logx"
)

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendDelivery(ctx, DeliveryRecord{
			At:       base.Add(time.Duration(i) * time.Minute),
			UserID:   "alice",
			Category: "motivational",
			Channel:  "telegram",
			Outcome:  OutcomeSent,
			Attempt:  i + 1,
		}))
	}
	require.NoError(t, st.AppendDelivery(ctx, DeliveryRecord{
		At: base, UserID: "bob", Category: "checkin", Outcome: OutcomeFailed, Error: "boom",
	}))

	got, err := st.RecentDeliveries(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 5, got[0].Attempt, "newest first")
	assert.Equal(t, 3, got[2].Attempt)
	assert.True(t, got[0].At.Equal(base.Add(4*time.Minute)))

	got, err = st.RecentDeliveries(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].Error)
	assert.Equal(t, OutcomeFailed, got[0].Outcome)

	require.Error(t, st.AppendDelivery(ctx, DeliveryRecord{UserID: "x"}))
}

func TestFileStore(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "remindbot.store")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	exerciseStore(t, st)
}

func TestSQLiteStore(t *testing.T) {
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "deliveries.db"), BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	exerciseStore(t, st)
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "mongo"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}
