// Package email sends messages through Postmark.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/mrz1836/postmark"

	"remindbot/internal/channels"
)

const Name = "email"

var ErrSendFailed = errors.New("email: send failed")

type Config struct {
	ServerToken  string
	AccountToken string
	From         string
	ReplyTo      string
	Subject      string
	// Tag labels messages in the Postmark dashboard.
	Tag string
}

func (c Config) validate() error {
	if c.ServerToken == "" {
		return fmt.Errorf("%w: postmark server token is required", channels.ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(c.From); err != nil {
		return fmt.Errorf("%w: from address: %v", channels.ErrInvalidConfig, err)
	}
	if c.ReplyTo != "" {
		if _, err := mail.ParseAddress(c.ReplyTo); err != nil {
			return fmt.Errorf("%w: reply_to address: %v", channels.ErrInvalidConfig, err)
		}
	}
	return nil
}

type Channel struct {
	cfg    Config
	client *postmark.Client
}

func New(cfg Config) (*Channel, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Subject == "" {
		cfg.Subject = "A note for you"
	}
	if cfg.Tag == "" {
		cfg.Tag = "reminder"
	}
	return &Channel{cfg: cfg, client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken)}, nil
}

func (c *Channel) Name() string { return Name }

func (c *Channel) Send(ctx context.Context, recipient, text string) error {
	to := strings.TrimSpace(recipient)
	if to == "" {
		return channels.ErrNoRecipient
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("email: invalid recipient %q: %w", to, err)
	}
	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:     c.cfg.From,
		ReplyTo:  c.cfg.ReplyTo,
		To:       to,
		Subject:  c.cfg.Subject,
		Tag:      c.cfg.Tag,
		TextBody: text,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
