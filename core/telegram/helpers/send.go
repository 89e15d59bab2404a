package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var replyQueue atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes SendText through d. Nil restores direct sends.
func SetDispatcher(d *sender.Dispatcher) {
	replyQueue.Store(d)
}

// SendText replies with plain text in the chat of the update. With a
// dispatcher set the reply is queued; a full or closed queue falls back to
// sending inline.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	send := func(ctx context.Context) error {
		var err error
		if len(opts) > 0 && opts[0] != nil {
			err = c.Send(text, opts[0])
		} else {
			err = c.Send(text)
		}
		if err == nil {
			CountReply(ctx, len(opts) > 0 && opts[0] != nil && opts[0].ReplyMarkup != nil)
		}
		return err
	}

	ctx := BuildContext(c)
	q := replyQueue.Load()
	if q == nil {
		return send(ctx)
	}
	err := q.Enqueue(ctx, "reply.text", "sendMessage", send)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, logger.CompNotify, "reply.fallback",
			slog.String("status", "retry"),
			slog.String("err", err.Error()),
		)
		return send(ctx)
	}
	return err
}
