package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/callbacks"
	"github.com/m3rciful/funnelbot/core/telegram/middleware"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	// NotFound overrides the registry's handler for unknown keys.
	NotFound tele.HandlerFunc
	OnPanic  tele.HandlerFunc
}

// CallbackRoute dispatches inline button presses by unique key. Known
// keys are acknowledged before the handler runs so the button spinner
// stops even when the handler is slow.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key := callbacks.CallbackKey(c)
		name := "callback." + handlerName(key)
		keyAttr := slog.String("cb_key", key)

		if h, ok := reg.GetCallback(key); ok {
			_ = c.Respond()
			return summarize(c, name, h, keyAttr)
		}
		notFound := opts.NotFound
		if notFound == nil {
			notFound = reg.CallbackNotFound()
		}
		if notFound == nil {
			notFound = func(c tele.Context) error { return c.Respond() }
		}
		return summarize(c, name, notFound, keyAttr, slog.String("cause", "not_found"))
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: wrap(handler, opts.OnPanic)}
}

// wrap puts panic recovery outside the update logger.
func wrap(h tele.HandlerFunc, onPanic tele.HandlerFunc) tele.HandlerFunc {
	return middleware.Recover(onPanic)(middleware.LoggerMiddleware(h))
}
