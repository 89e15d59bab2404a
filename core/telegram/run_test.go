package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
	tgsender "github.com/m3rciful/funnelbot/core/telegram/sender"
)

// idlePoller delivers nothing and returns once the bot stops.
type idlePoller struct{}

func (idlePoller) Poll(_ *tele.Bot, _ chan tele.Update, stop chan struct{}) { <-stop }

func TestRunTelegramLifecycle(t *testing.T) {
	cfg := &coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "1:test", AdminID: 1}}
	dispatcher := tgsender.NewDispatcher(tgsender.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	var started, stopped bool
	err := RunTelegram(ctx, RunOptions{
		Config:      cfg,
		Dispatcher:  dispatcher,
		Poller:      idlePoller{},
		Offline:     true,
		Middlewares: []Middleware{{Name: "empty"}},
		Routes:      []Route{{Endpoint: "/ping", Handler: func(tele.Context) error { return nil }}, {}},
		OnStart: func(_ context.Context, rt Runtime) error {
			started = true
			require.NotNil(t, rt.Bot)
			require.NotNil(t, rt.Registry)
			time.AfterFunc(20*time.Millisecond, cancel)
			return nil
		},
		OnStop: func(ctx context.Context, _ Runtime) error {
			stopped = true
			assert.NoError(t, ctx.Err())
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, stopped)

	err = dispatcher.Enqueue(context.Background(), "send", "/x", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, tgsender.ErrQueueClosed)
}

func TestRunTelegramRequiresConfig(t *testing.T) {
	assert.Error(t, RunTelegram(context.Background(), RunOptions{}))
}

func TestPollerFor(t *testing.T) {
	cfg := &coreconfig.Config{Telegram: coreconfig.TelegramConfig{RunMode: coreconfig.RunModeLongpoll}}
	lp, ok := pollerFor(cfg).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, defaultLongPollTimeout, lp.Timeout)

	cfg.Telegram.RunMode = coreconfig.RunModeWebhook
	cfg.Webhook = coreconfig.WebhookConfig{URL: "https://bot.example.com/hook", Listen: "0.0.0.0", Port: 8443, SecretToken: "s3"}
	wh, ok := pollerFor(cfg).(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8443", wh.Listen)
	assert.Equal(t, "s3", wh.SecretToken)
	assert.Equal(t, "https://bot.example.com/hook", wh.Endpoint.PublicURL)
}
