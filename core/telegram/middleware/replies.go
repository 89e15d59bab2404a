package middleware

import (
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// ReplyCounterMiddleware gives every update a reply counter. Handler
// summaries read it back through tghelpers.ReplyCounts.
func ReplyCounterMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.WithReplyCounter(tghelpers.BuildContext(c))
		tghelpers.StoreContext(c, ctx)
		return next(c)
	}
}
