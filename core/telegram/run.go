package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
	"github.com/m3rciful/funnelbot/core/logger"
	tgsender "github.com/m3rciful/funnelbot/core/telegram/sender"
)

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a telebot endpoint (a command string, tele.OnText,
// a callback button and so on).
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	// Dispatcher is used as is and closed on exit. When nil one is built
	// from DispatcherOptions.
	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	// Poller replaces the poller derived from Config. Offline skips every
	// startup call to the Bot API (getMe, deleteWebhook, setMyCommands).
	Poller  tele.Poller
	Offline bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot, installs middlewares and routes, runs
// OnStart and serves updates until ctx is cancelled or the poller quits.
// OnStop runs on the way out with a context that is no longer cancelled.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	defer dispatcher.Close()

	bot, err := newBot(ctx, opts)
	if err != nil {
		return err
	}
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
	if !opts.Offline {
		_ = PublishCommands(bot, opts.Registry, opts.Config.Telegram.AdminID)
	}

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: opts.Registry}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	serveErr := serve(ctx, bot)

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	return serveErr
}

// serve blocks until ctx is done or bot.Start returns on its own.
// Cancellation is a clean exit.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		bot.Stop()
		<-done
	}
	if err := ctx.Err(); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newBot(ctx context.Context, opts RunOptions) (*tele.Bot, error) {
	cfg := opts.Config
	poller := opts.Poller
	if poller == nil {
		poller = pollerFor(cfg)
	}

	started := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:       cfg.Telegram.Token,
		Poller:      poller,
		Client:      BuildHTTPClient(LongPollTimeout(cfg.Telegram.LongPollTimeoutSeconds)),
		Synchronous: !cfg.Telegram.Concurrent,
		Offline:     opts.Offline,
		OnError:     logUpdateError,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %s", tgsender.Redact(err))
	}

	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.Bool("synchronous", !cfg.Telegram.Concurrent),
		slog.Duration("duration", time.Since(started)),
	}
	if wh, ok := poller.(*tele.Webhook); ok {
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
		)
		logger.Info(ctx, logger.CompTG, "tg.mode", attrs...)
		return bot, nil
	}
	attrs = append(attrs, slog.String("mode", coreconfig.RunModeLongpoll))
	logger.Info(ctx, logger.CompTG, "tg.mode", attrs...)

	if !opts.DisableWebhookCleanup && !opts.Offline {
		// A webhook left over from an earlier deploy makes getUpdates fail.
		if err := bot.RemoveWebhook(false); err != nil {
			logger.Warn(ctx, logger.CompTG, "tg.delete_webhook",
				slog.String("status", "fail"),
				slog.String("err", tgsender.Redact(err)),
			)
		}
	}
	return bot, nil
}

func logUpdateError(err error, c tele.Context) {
	if err == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("err", tgsender.Redact(err)),
	}
	if c != nil {
		if sender := c.Sender(); sender != nil {
			attrs = append(attrs, slog.Int64("user_id", sender.ID))
		}
		attrs = append(attrs, slog.Int("update_id", c.Update().ID))
	}
	logger.Error(context.Background(), logger.CompTG, "update.error", attrs...)
}
