package telegram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/channels"
)

func TestParseChatID(t *testing.T) {
	id, err := ParseChatID(" 123456 ")
	require.NoError(t, err)
	assert.Equal(t, int64(123456), id)

	id, err = ParseChatID("-1001234")
	require.NoError(t, err)
	assert.Equal(t, int64(-1001234), id)

	_, err = ParseChatID("")
	assert.ErrorIs(t, err, channels.ErrNoRecipient)
	_, err = ParseChatID("@someone")
	assert.Error(t, err)
	_, err = ParseChatID("0")
	assert.Error(t, err)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, channels.ErrInvalidConfig)
}

func TestSendRejectsBadRecipientWithoutNetwork(t *testing.T) {
	c, err := New(Config{Token: "123:abc", URL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.Equal(t, Name, c.Name())
	assert.ErrorIs(t, c.Send(context.Background(), "", "hi"), channels.ErrNoRecipient)
}
