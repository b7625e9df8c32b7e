// Package app wires configuration, storage, channels, the scheduler and the
// retry queue into one process.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"remindbot/internal/channels"
	"remindbot/internal/communication"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/metrics"
	"remindbot/internal/retry"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/schedule"
	"remindbot/internal/storage"
	"remindbot/internal/tasks"
	"remindbot/internal/userdata"
	"remindbot/internal/waketimer"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	users *userdata.Store
	tasks *tasks.Store
	chans *channels.Registry
	comm  *communication.Manager
	retry *retry.Manager
	wake  schedule.WakeTimerRegistrar

	collector *metrics.Collector
	metrics   *metrics.Server

	mu       sync.Mutex
	sched    *schedule.Manager
	schedCfg schedule.Config
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	chans, err := buildChannels(cfg)
	if err != nil {
		return nil, err
	}
	if chans.Len() == 0 {
		appLog.Warn("no delivery channels enabled; every send will fail")
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	retryCfg, err := mapRetryConfig(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	users := userdata.NewStore(cfg.Data.Dir, log.With(logx.String("comp", "userdata")))
	taskStore := tasks.NewStore(users)

	var wake schedule.WakeTimerRegistrar = schedule.NopWakeTimers{}
	if wc, enabled := mapWakeConfig(cfg); enabled {
		wake = waketimer.New(wc, log)
	}

	a := &App{
		cfgm:     cfgm,
		log:      appLog,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		users:    users,
		tasks:    taskStore,
		chans:    chans,
		wake:     wake,
		schedCfg: schedCfg,
	}

	a.retry = retry.New(retryCfg, log.With(logx.String("comp", "retry")),
		retry.WithBus(bus),
		retry.WithStore(store),
	)
	a.sched = a.newScheduler(schedCfg, wake)
	a.comm = communication.New(communication.Config{
		RatePerSec: channelRate(cfg),
		Timezone:   a.sched.Location(),
	}, communication.Deps{
		Users:    users,
		Tasks:    taskStore,
		Channels: chans,
		Store:    store,
		Bus:      bus,
	}, log.With(logx.String("comp", "communication")))
	a.retry.SetResender(a.comm)
	a.applyAlertSink(cfg)

	a.collector = metrics.NewCollector(metrics.Gauges{
		ScheduledJobs: func() int { return a.scheduler().Jobs().Len() },
		RetryQueue:    a.retry.GetQueueSize,
	})
	a.metrics = metrics.NewServer(mapMetricsConfig(cfg), a.collector.Handler(), log)
	return a, nil
}

// newScheduler builds a Manager whose dispatcher is resolved at send time,
// so schedulers built before the communication layer still deliver.
func (a *App) newScheduler(cfg schedule.Config, wake schedule.WakeTimerRegistrar) *schedule.Manager {
	return schedule.New(schedule.Deps{
		Users:      a.users,
		Tasks:      a.tasks,
		Dispatcher: lateDispatcher{a},
		Retry:      a.retry,
		WakeTimers: wake,
		Bus:        a.bus,
	}, cfg, a.log.With(logx.String("comp", "scheduler")))
}

type lateDispatcher struct{ a *App }

func (d lateDispatcher) HandleMessageSending(ctx context.Context, userID, category string) error {
	return d.a.comm.HandleMessageSending(ctx, userID, category)
}

func (d lateDispatcher) HandleTaskReminder(ctx context.Context, userID, taskID string) error {
	return d.a.comm.HandleTaskReminder(ctx, userID, taskID)
}

func (a *App) scheduler() *schedule.Manager {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sched
}

// Scheduler returns the live scheduling manager.
func (a *App) Scheduler() *schedule.Manager { return a.scheduler() }

func (a *App) Retry() *retry.Manager { return a.retry }

func (a *App) Logger() logx.Logger { return a.log }

// DryRunFactory builds throwaway schedulers that share the app's data and
// dispatcher but never touch OS wake timers.
func (a *App) DryRunFactory() schedule.Factory {
	return func() (*schedule.Manager, error) {
		a.mu.Lock()
		cfg := a.schedCfg
		a.mu.Unlock()
		return a.newScheduler(cfg, schedule.NopWakeTimers{}), nil
	}
}

// History returns the latest delivery records for userID.
func (a *App) History(ctx context.Context, userID string, limit int) ([]storage.DeliveryRecord, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.RecentDeliveries(ctx, userID, limit)
}

func (a *App) applyAlertSink(cfg *config.Config) {
	ac := cfg.Logging.Alerts
	if !ac.Enabled {
		a.logs.SetAlertSink(nil)
		return
	}
	a.logs.SetAlertSink(a.comm.AlertSink(strings.TrimSpace(ac.Channel), strings.TrimSpace(ac.Recipient)))
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return Validate(cfg) })

	cfg := a.cfgm.Get()

	a.sup.Go("metrics.collect", func(c context.Context) error {
		if err := a.collector.Run(c, a.bus); err != nil && c.Err() == nil {
			return err
		}
		return nil
	})
	a.metrics.Reconfigure(a.sup.Context(), mapMetricsConfig(cfg))

	if cfg.Retry.Enabled {
		a.retry.StartRetryThread(a.sup.Context())
	}
	if cfg.Scheduler.Enabled {
		a.scheduler().RunDailyScheduler(a.sup.Context())
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.reload(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Strings("channels", a.chans.Names()),
		logx.Bool("scheduler", cfg.Scheduler.Enabled),
		logx.Bool("retry", cfg.Retry.Enabled),
	)
	return nil
}

func (a *App) reload(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(next))
	a.applyAlertSink(next)
	a.metrics.Reconfigure(ctx, mapMetricsConfig(next))

	for _, s := range sections {
		switch s {
		case "data", "storage", "channels", "wake_timers":
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	switch {
	case prev.Retry.Enabled && !next.Retry.Enabled:
		a.log.Info("retry queue disabled via config")
		a.retry.StopRetryThread()
	case !prev.Retry.Enabled && next.Retry.Enabled:
		a.log.Info("retry queue enabled via config")
		a.retry.StartRetryThread(ctx)
	}

	if schedCfg, err := mapSchedulerConfig(next); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.applyScheduler(ctx, prev.Scheduler.Enabled, next.Scheduler.Enabled, schedCfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// applyScheduler swaps in a fresh Manager when its settings change and
// starts or stops it to follow the enabled flag.
func (a *App) applyScheduler(ctx context.Context, wasEnabled, enabled bool, cfg schedule.Config) {
	a.mu.Lock()
	old := a.sched
	changed := cfg != a.schedCfg
	if changed {
		a.schedCfg = cfg
		a.sched = a.newSchedulerLocked(cfg)
	}
	cur := a.sched
	a.mu.Unlock()

	if changed || (wasEnabled && !enabled) {
		old.StopScheduler()
	}
	if enabled && (changed || !wasEnabled) {
		a.log.Info("scheduler (re)started via config")
		cur.RunDailyScheduler(ctx)
	} else if wasEnabled && !enabled {
		a.log.Info("scheduler disabled via config")
	}
}

func (a *App) newSchedulerLocked(cfg schedule.Config) *schedule.Manager {
	return a.newScheduler(cfg, a.wake)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("retry", 6*time.Second, func(context.Context) error { a.retry.StopRetryThread(); return nil })
	step("scheduler", 6*time.Second, func(context.Context) error { a.scheduler().StopScheduler(); return nil })
	step("metrics", 2*time.Second, func(c context.Context) error { a.metrics.Stop(c); return nil })
	step("waketimer", time.Second, func(context.Context) error {
		if cl, ok := a.wake.(interface{ Close() error }); ok {
			return cl.Close()
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// Close releases resources of an app that was never started.
func (a *App) Close() error {
	if a.store != nil {
		_ = a.store.Close()
	}
	if cl, ok := a.wake.(interface{ Close() error }); ok {
		_ = cl.Close()
	}
	if a.logs != nil {
		return a.logs.Close()
	}
	return nil
}
