package telegram

import (
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
	"github.com/m3rciful/funnelbot/core/telegram/middleware"
)

// DefaultMiddlewares returns the chain every bot installs, outermost
// first: panic recovery, the per-user rate limit when configured, the
// request context with its receipt log, then reply counters.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited, onPanic tele.HandlerFunc) []Middleware {
	chain := []Middleware{{Name: "recover", Use: middleware.Recover(onPanic)}}
	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		chain = append(chain, Middleware{Name: "rate_limit", Use: middleware.RateLimit(middleware.RateLimitOptions{
			Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
			Burst:     cfg.RateLimit.Burst,
			Exclude:   cfg.RateLimit.ExcludeUpdates,
			OnLimited: onLimited,
		})})
	}
	return append(chain,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "replies", Use: middleware.ReplyCounterMiddleware},
	)
}
