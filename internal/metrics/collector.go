// Package metrics turns bus events into Prometheus series and serves them
// alongside pprof.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remindbot/internal/eventbus"
)

const namespace = "remindbot"

// Gauges are sampled at scrape time. Nil funcs are skipped.
type Gauges struct {
	ScheduledJobs func() int
	RetryQueue    func() int
}

type Collector struct {
	reg *prometheus.Registry

	jobsScheduled *prometheus.CounterVec
	jobsFired     *prometheus.CounterVec
	jobsSkipped   *prometheus.CounterVec
	passes        prometheus.Counter
	sent          *prometheus.CounterVec
	failed        *prometheus.CounterVec
	retryQueued   prometheus.Counter
	retryAttempts prometheus.Counter
	retryOutcome  *prometheus.CounterVec
	wakeFailures  prometheus.Counter
}

// NewCollector registers every series on a private registry together with
// the Go and process collectors.
func NewCollector(g Gauges) *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		jobsScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_scheduled_total",
			Help: "Jobs placed in the job table.",
		}, []string{"category"}),
		jobsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_fired_total",
			Help: "Jobs that reached their run time.",
		}, []string{"category"}),
		jobsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_skipped_total",
			Help: "Periods left unscheduled after sampling gave up.",
		}, []string{"category"}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "schedule_passes_total",
			Help: "Completed all-user scheduling passes.",
		}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_sent_total",
			Help: "Messages handed to a channel successfully.",
		}, []string{"channel", "category"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_failed_total",
			Help: "Channel send failures.",
		}, []string{"channel", "category"}),
		retryQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "retry_queued_total",
			Help: "Messages added to the retry queue.",
		}),
		retryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "retry_attempts_total",
			Help: "Retry attempts made.",
		}),
		retryOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "retry_finished_total",
			Help: "Messages that left the retry queue, by outcome.",
		}, []string{"outcome"}),
		wakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "wake_timer_failures_total",
			Help: "Wake timers that could not be registered.",
		}),
	}
	c.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.jobsScheduled, c.jobsFired, c.jobsSkipped, c.passes,
		c.sent, c.failed,
		c.retryQueued, c.retryAttempts, c.retryOutcome,
		c.wakeFailures,
	)
	if g.ScheduledJobs != nil {
		c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "scheduled_jobs",
			Help: "Jobs currently in the job table.",
		}, func() float64 { return float64(g.ScheduledJobs()) }))
	}
	if g.RetryQueue != nil {
		c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "retry_queue_size",
			Help: "Messages waiting in the retry queue.",
		}, func() float64 { return float64(g.RetryQueue()) }))
	}
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Observe updates counters for one event. Unknown types are ignored.
func (c *Collector) Observe(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TypeJobScheduled:
		c.jobsScheduled.WithLabelValues(jobCategory(ev)).Inc()
	case eventbus.TypeJobFired:
		c.jobsFired.WithLabelValues(jobCategory(ev)).Inc()
	case eventbus.TypeJobSkipped:
		c.jobsSkipped.WithLabelValues(jobCategory(ev)).Inc()
	case eventbus.TypePassCompleted:
		c.passes.Inc()
	case eventbus.TypeMessageSent:
		d := delivery(ev)
		c.sent.WithLabelValues(d.Channel, d.Category).Inc()
	case eventbus.TypeMessageFailed:
		d := delivery(ev)
		c.failed.WithLabelValues(d.Channel, d.Category).Inc()
	case eventbus.TypeRetryQueued:
		c.retryQueued.Inc()
	case eventbus.TypeRetryAttempted:
		c.retryAttempts.Inc()
	case eventbus.TypeRetryDelivered:
		c.retryOutcome.WithLabelValues("delivered").Inc()
	case eventbus.TypeRetryDropped:
		c.retryOutcome.WithLabelValues("dropped").Inc()
	case eventbus.TypeWakeTimerFailure:
		c.wakeFailures.Inc()
	}
}

// Run feeds bus events into the collector until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) error {
	events, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.Observe(ev)
		}
	}
}

func jobCategory(ev eventbus.Event) string {
	switch d := ev.Data.(type) {
	case eventbus.JobData:
		return d.Category
	case *eventbus.JobData:
		if d != nil {
			return d.Category
		}
	}
	return ""
}

func delivery(ev eventbus.Event) eventbus.DeliveryData {
	switch d := ev.Data.(type) {
	case eventbus.DeliveryData:
		return d
	case *eventbus.DeliveryData:
		if d != nil {
			return *d
		}
	}
	return eventbus.DeliveryData{}
}
