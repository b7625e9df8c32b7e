package discord

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/channels"
)

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitMessage("short", 10))

	parts := SplitMessage(strings.Repeat("a", 25), 10)
	assert.Equal(t, []string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 5)}, parts)

	text := "first line\nsecond line"
	parts = SplitMessage(text, 15)
	assert.Equal(t, []string{"first line\n", "second line"}, parts)
	assert.Equal(t, text, strings.Join(parts, ""))
}

func TestNew(t *testing.T) {
	_, err := New(Config{Token: " "})
	assert.ErrorIs(t, err, channels.ErrInvalidConfig)

	c, err := New(Config{Token: "abc"})
	require.NoError(t, err)
	assert.Equal(t, Name, c.Name())
	assert.Equal(t, "Bot abc", c.s.Token)
	assert.ErrorIs(t, c.Send(context.Background(), "", "hi"), channels.ErrNoRecipient)
}
