package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

func TestObserve(t *testing.T) {
	c := NewCollector(Gauges{})

	c.Observe(eventbus.Event{Type: eventbus.TypeJobScheduled, Data: eventbus.JobData{Category: "health"}})
	c.Observe(eventbus.Event{Type: eventbus.TypeJobScheduled, Data: eventbus.JobData{Category: "health"}})
	c.Observe(eventbus.Event{Type: eventbus.TypeMessageSent, Data: eventbus.DeliveryData{Channel: "email", Category: "health"}})
	c.Observe(eventbus.Event{Type: eventbus.TypeMessageFailed, Data: eventbus.DeliveryData{Channel: "telegram", Category: "checkin"}})
	c.Observe(eventbus.Event{Type: eventbus.TypeRetryDropped})
	c.Observe(eventbus.Event{Type: eventbus.TypePassCompleted})
	c.Observe(eventbus.Event{Type: "unknown.event"})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobsScheduled.WithLabelValues("health")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sent.WithLabelValues("email", "health")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failed.WithLabelValues("telegram", "checkin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retryOutcome.WithLabelValues("dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.passes))
}

func TestGaugesSampledAtScrape(t *testing.T) {
	size := 3
	c := NewCollector(Gauges{RetryQueue: func() int { return size }})

	n, err := testutil.GatherAndCount(c.Registry(), "remindbot_retry_queue_size")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expected := "# HELP remindbot_retry_queue_size Messages waiting in the retry queue.\n" +
		"# TYPE remindbot_retry_queue_size gauge\nremindbot_retry_queue_size 7\n"
	size = 7
	assert.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "remindbot_retry_queue_size"))
}

func TestRunConsumesBus(t *testing.T) {
	c := NewCollector(Gauges{})
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, bus) }()

	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: eventbus.TypeWakeTimerFailure})
		return testutil.ToFloat64(c.wakeFailures) > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestServerServesMetrics(t *testing.T) {
	c := NewCollector(Gauges{})
	c.Observe(eventbus.Event{Type: eventbus.TypeRetryQueued})

	s := NewServer(ServerConfig{Enabled: true, Addr: "127.0.0.1:0"}, c.Handler(), logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "remindbot_retry_queued_total 1")

	resp, err = http.Get("http://" + s.Addr() + "/debug/pprof/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReconfigureDisableStops(t *testing.T) {
	s := NewServer(ServerConfig{Enabled: true, Addr: "127.0.0.1:0"}, nil, logx.Nop())
	s.Start(context.Background())
	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	s.Reconfigure(context.Background(), ServerConfig{Enabled: false})
	assert.Eventually(t, func() bool { return s.Addr() == "" }, 2*time.Second, 10*time.Millisecond)
}

func TestIsLoopbackAddr(t *testing.T) {
	assert.True(t, isLoopbackAddr("127.0.0.1:9090"))
	assert.True(t, isLoopbackAddr("localhost:1"))
	assert.False(t, isLoopbackAddr(":9090"))
	assert.False(t, isLoopbackAddr("0.0.0.0:9090"))
	assert.False(t, isLoopbackAddr("nonsense"))
}
