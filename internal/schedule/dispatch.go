package schedule

import (
	"context"
	"errors"
	"time"

	logx "remindbot/pkg/logx"
)

// HandleSendingScheduledMessage sends one message for (user, category),
// retrying in place up to attempts times with delay between tries. After
// the last failure an undelivered message goes to the retry queue. A nil
// dispatcher makes this a no-op.
func (m *Manager) HandleSendingScheduledMessage(ctx context.Context, userID, category string, attempts int, delay time.Duration) error {
	if m.dispatch == nil {
		m.log.Debug("no dispatcher; message dropped", logx.String("user", userID), logx.String("category", category))
		return nil
	}
	attempts = max(attempts, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		if err = m.dispatch.HandleMessageSending(ctx, userID, category); err == nil {
			if i > 1 {
				m.log.Info("message sent after retry", logx.String("user", userID), logx.String("category", category), logx.Int("attempt", i))
			}
			return nil
		}
		m.log.Warn("send attempt failed",
			logx.String("user", userID),
			logx.String("category", category),
			logx.Int("attempt", i),
			logx.Int("of", attempts),
			logx.Err(err),
		)
		if i < attempts && !sleepCtx(ctx, delay) {
			break
		}
	}
	m.queueForRetry(userID, category, err)
	return err
}

func (m *Manager) queueForRetry(userID, category string, err error) {
	var ud Undelivered
	if m.retry == nil || !errors.As(err, &ud) {
		return
	}
	msg, recipient, channel := ud.Undelivered()
	m.retry.QueueFailedMessage(userID, category, msg, recipient, channel)
}

// sleepCtx waits d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
