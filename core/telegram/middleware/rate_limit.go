package middleware

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/logger"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
)

// RateLimitOptions allows each user Burst updates per Interval. Update
// kinds listed in Exclude ("message", "callback", "inline_query") pass
// unthrottled.
type RateLimitOptions struct {
	Interval  time.Duration
	Burst     int
	Exclude   []string
	OnLimited tele.HandlerFunc
}

// buckets holds one token bucket per user.
type buckets struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	users map[int64]*rate.Limiter
}

func (b *buckets) allow(uid int64) bool {
	b.mu.Lock()
	l := b.users[uid]
	if l == nil {
		l = rate.NewLimiter(b.limit, b.burst)
		b.users[uid] = l
	}
	b.mu.Unlock()
	return l.Allow()
}

// RateLimit drops updates above the per-user budget. A zero Interval
// disables it.
func RateLimit(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Interval <= 0 {
		return func(next tele.HandlerFunc) tele.HandlerFunc { return next }
	}
	b := &buckets{
		limit: rate.Every(opts.Interval),
		burst: max(opts.Burst, 1),
		users: make(map[int64]*rate.Limiter),
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			u := c.Sender()
			if u == nil || slices.Contains(opts.Exclude, updateKind(c.Update())) || b.allow(u.ID) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", updateKind(c.Update())),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Query != nil:
		return "inline_query"
	case upd.Message != nil:
		return "message"
	default:
		return "other"
	}
}
