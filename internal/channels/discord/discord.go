// Package discord sends direct messages through the Discord REST API.
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"remindbot/internal/channels"
)

const Name = "discord"

// maxMessageLen is Discord's per-message character limit.
const maxMessageLen = 2000

type Config struct {
	Token string
}

type Channel struct {
	s *discordgo.Session
}

// New creates a REST-only session; no gateway connection is opened.
func New(cfg Config) (*Channel, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: discord token is empty", channels.ErrInvalidConfig)
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, err
	}
	return &Channel{s: s}, nil
}

func (c *Channel) Name() string { return Name }

// Send opens (or reuses) the DM channel with the user id in recipient.
func (c *Channel) Send(ctx context.Context, recipient, text string) error {
	userID := strings.TrimSpace(recipient)
	if userID == "" {
		return channels.ErrNoRecipient
	}
	dm, err := c.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord dm channel: %w", err)
	}
	for _, part := range SplitMessage(text, maxMessageLen) {
		if _, err := c.s.ChannelMessageSend(dm.ID, part, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}

// SplitMessage cuts text into chunks of at most limit runes, preferring
// line breaks.
func SplitMessage(text string, limit int) []string {
	r := []rune(text)
	if len(r) <= limit {
		return []string{text}
	}
	var out []string
	for len(r) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if r[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}
