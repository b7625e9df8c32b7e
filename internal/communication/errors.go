package communication

import (
	"errors"
	"fmt"
)

var (
	ErrNoAccount = errors.New("communication: account has no channel")
	ErrNoTask    = errors.New("communication: task not found")
)

// SendError is a failed delivery that still carries its message, so the
// scheduler can hand it to the retry queue.
type SendError struct {
	UserID    string
	Category  string
	Channel   string
	Recipient string
	Message   string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s/%s via %s: %v", e.UserID, e.Category, e.Channel, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Undelivered returns what the retry queue needs to re-send.
func (e *SendError) Undelivered() (message, recipient, channelName string) {
	return e.Message, e.Recipient, e.Channel
}
