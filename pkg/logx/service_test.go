package logx

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingSink) Alert(_ context.Context, text string) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, text)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	assert.NotPanics(t, func() {
		l.With(String("comp", "x")).Info("hello", Int("n", 1))
	})
	assert.False(t, Nop().IsZero())
}

func TestFormatAlert(t *testing.T) {
	line := []byte(`{"level":"warn","time":"x","message":"send failed","user":"u1","attempt":2}`)
	got := FormatAlert(line)
	assert.Equal(t, "[WARN] send failed\n- attempt=2\n- user=u1", got)

	assert.Equal(t, "plain text", FormatAlert([]byte("  plain text \n")))
}

func TestAlertSinkReceivesWarnings(t *testing.T) {
	sink := &recordingSink{}
	svc, log := New(Config{
		Level: "debug",
		File:  FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "test.log")},
		Alerts: AlertConfig{
			Enabled:    true,
			MinLevel:   "warn",
			RatePerSec: 50,
		},
	})
	t.Cleanup(func() { _ = svc.Close() })
	svc.SetAlertSink(sink)

	log.Info("routine")
	log.Warn("retry queue dropping message", String("user", "u1"))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := sink.snapshot()[0]
	assert.True(t, strings.HasPrefix(msg, "[WARN] retry queue dropping message"), msg)
	assert.Contains(t, msg, "user=u1")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel(" debug ", LevelInfo))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING", LevelInfo))
	assert.Equal(t, LevelInfo, ParseLevel("bogus", LevelInfo))
}
