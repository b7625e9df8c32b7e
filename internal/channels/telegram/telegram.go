// Package telegram sends messages through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/channels"
)

const Name = "telegram"

type Config struct {
	Token string
	// URL overrides the Bot API endpoint.
	URL string
}

type Channel struct {
	bot *tele.Bot
}

// New builds an offline bot: no update polling and no getMe call at start.
func New(cfg Config) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%w: telegram token is empty", channels.ErrInvalidConfig)
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Channel{bot: b}, nil
}

func (c *Channel) Name() string { return Name }

// Send posts text to the chat id in recipient.
func (c *Channel) Send(ctx context.Context, recipient, text string) error {
	id, err := ParseChatID(recipient)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Send(&tele.Chat{ID: id}, text); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// ParseChatID accepts a numeric chat id, optionally negative for groups.
func ParseChatID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, channels.ErrNoRecipient
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("telegram: invalid chat id %q", s)
	}
	return id, nil
}
