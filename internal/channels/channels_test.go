package channels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	var got []string
	tg := Func{ChannelName: "Telegram", SendFunc: func(_ context.Context, to, text string) error {
		got = append(got, to+":"+text)
		return nil
	}}
	r := NewRegistry(tg, nil)
	r.Register(Func{ChannelName: "email", SendFunc: func(context.Context, string, string) error { return nil }})

	assert.Equal(t, []string{"email", "telegram"}, r.Names())
	assert.Equal(t, 2, r.Len())

	c, err := r.Get(" TELEGRAM ")
	require.NoError(t, err)
	require.NoError(t, c.Send(context.Background(), "42", "hi"))
	assert.Equal(t, []string{"42:hi"}, got)

	_, err = r.Get("pigeon")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}
