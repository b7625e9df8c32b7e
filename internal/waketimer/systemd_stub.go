//go:build !linux

package waketimer

import (
	"context"

	"remindbot/internal/schedule"
	logx "remindbot/pkg/logx"
)

type Registrar struct{}

var _ schedule.WakeTimerRegistrar = (*Registrar)(nil)

func New(Config, logx.Logger) *Registrar { return &Registrar{} }

func (*Registrar) Register(context.Context, schedule.WakeTimer) error  { return ErrUnsupported }
func (*Registrar) Remove(context.Context, string) (int, error)       { return 0, ErrUnsupported }
func (*Registrar) RemovePrefix(context.Context, string) (int, error) { return 0, ErrUnsupported }
func (*Registrar) Close() error                                      { return nil }
