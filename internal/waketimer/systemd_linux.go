//go:build linux

package waketimer

import (
	"context"
	"fmt"
	"path"
	"sync"

	sdbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/godbus/dbus/v5"

	"remindbot/internal/schedule"
	logx "remindbot/pkg/logx"
)

// unitConn is the part of the systemd D-Bus API the registrar uses.
type unitConn interface {
	StartTransientUnitContext(ctx context.Context, name, mode string, props []sdbus.Property, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	ResetFailedUnitContext(ctx context.Context, name string) error
	ListUnitsByPatternsContext(ctx context.Context, states, patterns []string) ([]sdbus.UnitStatus, error)
	Close()
}

type calendarTimer struct {
	Base string
	Spec string
}

// Registrar talks to the system manager over D-Bus. The connection is opened
// lazily so a host without systemd only fails when timers are used.
type Registrar struct {
	cfg  Config
	log  logx.Logger
	dial func(ctx context.Context) (unitConn, error)

	mu   sync.Mutex
	conn unitConn
}

var _ schedule.WakeTimerRegistrar = (*Registrar)(nil)

func New(cfg Config, log logx.Logger) *Registrar {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registrar{
		cfg: cfg.withDefaults(),
		log: log.With(logx.String("comp", "waketimer")),
		dial: func(ctx context.Context) (unitConn, error) {
			return sdbus.NewSystemConnectionContext(ctx)
		},
	}
}

func (r *Registrar) connLocked(ctx context.Context) (unitConn, error) {
	if r.conn != nil {
		return r.conn, nil
	}
	c, err := r.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	r.conn = c
	return c, nil
}

// Register replaces any timer with the same key.
func (r *Registrar) Register(ctx context.Context, t schedule.WakeTimer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := r.connLocked(ctx)
	if err != nil {
		return err
	}
	name := UnitName(r.cfg.Prefix, t.Key())
	_, _ = conn.StopUnitContext(ctx, name, "replace", nil)
	_ = conn.ResetFailedUnitContext(ctx, name)

	props := []sdbus.Property{
		sdbus.PropDescription(fmt.Sprintf("remindbot wake for %s/%s (%s)", t.UserID, t.Category, t.Period)),
		{Name: "TimersCalendar", Value: dbus.MakeVariant([]calendarTimer{{Base: "OnCalendar", Spec: CalendarSpec(t.At)}})},
		{Name: "WakeSystem", Value: dbus.MakeVariant(true)},
		{Name: "RemainAfterElapse", Value: dbus.MakeVariant(false)},
		{Name: "Unit", Value: dbus.MakeVariant(r.cfg.Unit)},
	}
	if _, err := conn.StartTransientUnitContext(ctx, name, "replace", props, nil); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	r.log.Debug("wake timer registered", logx.String("unit", name), logx.Time("at", t.At))
	return nil
}

// Remove stops the timer named key.
func (r *Registrar) Remove(ctx context.Context, key string) (int, error) {
	return r.stopMatching(ctx, UnitName(r.cfg.Prefix, key))
}

// RemovePrefix stops every timer whose key starts with keyPrefix.
func (r *Registrar) RemovePrefix(ctx context.Context, keyPrefix string) (int, error) {
	return r.stopMatching(ctx, UnitPattern(r.cfg.Prefix, keyPrefix))
}

func (r *Registrar) stopMatching(ctx context.Context, pattern string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := r.connLocked(ctx)
	if err != nil {
		return 0, err
	}
	units, err := conn.ListUnitsByPatternsContext(ctx, nil, []string{pattern})
	if err != nil {
		return 0, fmt.Errorf("failed to list timers: %w", err)
	}
	removed := 0
	var firstErr error
	for _, u := range units {
		// Keep only exact pattern matches.
		if ok, _ := path.Match(pattern, u.Name); !ok {
			continue
		}
		if _, err := conn.StopUnitContext(ctx, u.Name, "replace", nil); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to stop %s: %w", u.Name, err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

func (r *Registrar) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	return nil
}
