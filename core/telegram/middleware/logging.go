package middleware

import (
	"log/slog"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
)

// seenUpdates remembers the last len(ring) update ids so an update passing
// through several wrapped routes is logged once.
type seenUpdates struct {
	mu   sync.Mutex
	ring [512]int
	next int
	set  map[int]struct{}
}

var receipts = &seenUpdates{set: make(map[int]struct{}, 512)}

// firstSight records id and reports whether it was new.
func (s *seenUpdates) firstSight(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[id]; ok {
		return false
	}
	if old := s.ring[s.next]; old != 0 {
		delete(s.set, old)
	}
	s.ring[s.next] = id
	s.next = (s.next + 1) % len(s.ring)
	s.set[id] = struct{}{}
	return true
}

// LoggerMiddleware creates the request context and writes a sampled debug
// receipt line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		upd := c.Update()
		if logger.ShouldSampleDebug() && receipts.firstSight(upd.ID) {
			logger.Debug(ctx, logger.CompTG, "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if u := c.Sender(); u != nil {
		if u.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
		}
		if u.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", u.LanguageCode))
		}
	}
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		if key := callbacks.CallbackKey(c); key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
	case upd.Message != nil && upd.Message.Photo != nil:
		attrs = append(attrs, slog.Bool("photo", true))
	case upd.Message != nil:
		attrs = append(attrs, slog.Int("count", len([]rune(upd.Message.Text))))
	}
	return attrs
}
