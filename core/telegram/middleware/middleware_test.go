package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
)

type stubContext struct {
	tele.Context

	user   *tele.User
	upd    tele.Update
	values map[string]any
}

func newStub(uid int64, callback bool) *stubContext {
	c := &stubContext{user: &tele.User{ID: uid}, values: map[string]any{}}
	c.upd = tele.Update{ID: int(uid), Message: &tele.Message{Text: "hi"}}
	if callback {
		c.upd = tele.Update{ID: int(uid), Callback: &tele.Callback{Data: "x"}}
	}
	return c
}

func (c *stubContext) Sender() *tele.User    { return c.user }
func (c *stubContext) Chat() *tele.Chat      { return &tele.Chat{ID: c.user.ID} }
func (c *stubContext) Update() tele.Update   { return c.upd }
func (c *stubContext) Get(key string) any    { return c.values[key] }
func (c *stubContext) Set(key string, v any) { c.values[key] = v }

func count(n *int) tele.HandlerFunc {
	return func(tele.Context) error { *n++; return nil }
}

func TestWithAdminCheck(t *testing.T) {
	var ran, rejected int
	opts := AdminOptions{AdminID: 10, OnReject: count(&rejected)}

	h := WithAdminCheck(opts, commands.Command{Handler: count(&ran), AdminOnly: true})
	require.NoError(t, h(newStub(10, false)))
	require.NoError(t, h(newStub(11, false)))
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, rejected)

	public := WithAdminCheck(opts, commands.Command{Handler: count(&ran)})
	require.NoError(t, public(newStub(11, false)))
	assert.Equal(t, 2, ran)

	silent := WithAdminCheck(AdminOptions{}, commands.Command{Handler: count(&ran), AdminOnly: true})
	require.NoError(t, silent(newStub(10, false)), "no admin configured denies everyone")
	assert.Equal(t, 2, ran)
}

func TestRecover(t *testing.T) {
	var apologised int
	h := Recover(count(&apologised))(func(tele.Context) error { panic("boom") })

	err := h(newStub(1, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, apologised)

	want := errors.New("plain")
	assert.ErrorIs(t, Recover(nil)(func(tele.Context) error { return want })(newStub(1, false)), want)
}

func TestRateLimit(t *testing.T) {
	var ran, limited int
	h := RateLimit(RateLimitOptions{
		Interval:  time.Hour,
		Burst:     2,
		Exclude:   []string{"callback"},
		OnLimited: count(&limited),
	})(count(&ran))

	for range 3 {
		require.NoError(t, h(newStub(5, false)))
	}
	assert.Equal(t, 2, ran)
	assert.Equal(t, 1, limited)

	require.NoError(t, h(newStub(6, false)), "budgets are per user")
	require.NoError(t, h(newStub(5, true)), "excluded kinds pass")
	assert.Equal(t, 4, ran)

	off := RateLimit(RateLimitOptions{})(count(&ran))
	for range 5 {
		require.NoError(t, off(newStub(5, false)))
	}
	assert.Equal(t, 9, ran)
}

func TestReplyCounterMiddleware(t *testing.T) {
	c := newStub(3, false)
	h := ReplyCounterMiddleware(func(c tele.Context) error {
		tghelpers.CountReply(tghelpers.BuildContext(c), true)
		return nil
	})
	require.NoError(t, h(c))

	n, keyboard := tghelpers.ReplyCounts(tghelpers.BuildContext(c))
	assert.Equal(t, 1, n)
	assert.True(t, keyboard)
}
