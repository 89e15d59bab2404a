package router

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/logger"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
)

// summarize runs h under name and writes one handler.handled line with the
// reply counts and duration. Extra attrs override the defaults.
func summarize(c tele.Context, name string, h tele.HandlerFunc, extra ...slog.Attr) error {
	start := time.Now()
	ctx := tghelpers.WithHandler(c, name)
	err := h(c)
	logHandled(ctx, start, err, extra...)
	return err
}

// skipped records an update that no handler claimed.
func skipped(c tele.Context, name string) {
	logHandled(tghelpers.WithHandler(c, name), time.Now(), nil, slog.String("status", "skip"))
}

func logHandled(ctx context.Context, start time.Time, err error, extra ...slog.Attr) {
	msgs, kb := tghelpers.ReplyCounts(ctx)
	status := "ok"
	if err != nil {
		status = "fail"
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("outcome", status),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.Info(ctx, logger.CompTG, "handler.handled", append(attrs, extra...)...)
}

// handlerName turns a command or callback key into a log-friendly name:
// "/Mark Deposited" -> "mark_deposited".
func handlerName(key string) string {
	key = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if key == "" {
		return "unknown"
	}
	return strings.ReplaceAll(key, " ", "_")
}

// errorCode prefers an explicit Code() on the error chain and falls back
// to the concrete type name, e.g. "FLOODERROR".
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
