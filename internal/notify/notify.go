// Package notify delivers outbound messages with format fallback and runs
// paced broadcasts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/funnelbot/core/logger"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
	"github.com/m3rciful/funnelbot/core/telegram/keyboard"
	"github.com/m3rciful/funnelbot/core/telegram/sender"
)

// Format is one rendering mode tried by Send.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPlain    Format = "plain"
)

// DefaultFormats is the fallback chain used when a Message names none.
var DefaultFormats = []Format{FormatMarkdown, FormatHTML, FormatPlain}

// Photo points at an image by local path or by Telegram file id.
type Photo struct {
	Path   string
	FileID string
}

// Message is a text or a captioned photo with optional inline buttons.
type Message struct {
	Text    string
	Photo   *Photo
	Buttons [][]keyboard.InlineBtn
	Formats []Format
	Silent  bool
}

func (m Message) formats() []Format {
	if len(m.Formats) == 0 {
		return DefaultFormats
	}
	return m.Formats
}

// Document is an in-memory file upload.
type Document struct {
	Name    string
	Data    []byte
	Caption string
}

// Transport performs single Telegram calls. Implementations return the sent
// message id.
type Transport interface {
	SendText(ctx context.Context, chatID int64, msg Message, f Format) (int, error)
	SendPhoto(ctx context.Context, chatID int64, msg Message, f Format) (int, error)
	SendDocument(ctx context.Context, chatID int64, doc Document) (int, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// Queue accepts fire-and-forget jobs. *sender.Dispatcher satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, action, endpoint string, run func(ctx context.Context) error) error
}

// Options tunes a Dispatcher.
type Options struct {
	Policy        sender.Policy
	Pace          time.Duration
	ProgressEvery int
	MaxCauses     int
	Queue         Queue
}

const (
	defaultPace          = 50 * time.Millisecond
	defaultProgressEvery = 50
	defaultMaxCauses     = 10
)

// Dispatcher sends messages through a Transport under a retry policy.
type Dispatcher struct {
	transport Transport
	opts      Options
}

// New builds a Dispatcher. A zero Pace means the default 50ms spacing; a
// negative Pace disables pacing.
func New(t Transport, opts Options) *Dispatcher {
	if opts.Pace == 0 {
		opts.Pace = defaultPace
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = defaultProgressEvery
	}
	if opts.MaxCauses <= 0 {
		opts.MaxCauses = defaultMaxCauses
	}
	return &Dispatcher{transport: t, opts: opts}
}

// Delivery describes a successful or failed Send.
type Delivery struct {
	MessageID int
	Format    Format
	// Rejected lists every format that failed before the outcome, in order.
	Rejected []Format

	PhotoFallback bool
	Blocked       bool
}

// Send delivers msg to chatID. Each format is tried in order; a blocked
// recipient ends the chain at once. A rejected photo falls back to a text
// message carrying the caption.
func (d *Dispatcher) Send(ctx context.Context, chatID int64, msg Message) (Delivery, error) {
	var del Delivery

	if msg.Photo != nil {
		id, f, rejected, err := d.tryFormats(ctx, msg.formats(), func(ctx context.Context, f Format) (int, error) {
			return d.transport.SendPhoto(ctx, chatID, msg, f)
		})
		del.Rejected = append(del.Rejected, rejected...)
		if err == nil {
			del.MessageID, del.Format = id, f
			tghelpers.CountReply(ctx, len(msg.Buttons) > 0)
			return del, nil
		}
		if sender.IsBlocked(err) || ctx.Err() != nil {
			return d.failed(ctx, chatID, del, err)
		}
		logger.Warn(ctx, logger.CompNotify, "notify.photo_fallback",
			slog.Int64("target_id", chatID),
			slog.String("err", sender.Redact(err)),
		)
		del.PhotoFallback = true
	}

	id, f, rejected, err := d.tryFormats(ctx, msg.formats(), func(ctx context.Context, f Format) (int, error) {
		return d.transport.SendText(ctx, chatID, msg, f)
	})
	del.Rejected = append(del.Rejected, rejected...)
	if err != nil {
		return d.failed(ctx, chatID, del, err)
	}
	del.MessageID, del.Format = id, f
	tghelpers.CountReply(ctx, len(msg.Buttons) > 0)
	if len(del.Rejected) > 0 {
		logger.Debug(ctx, logger.CompNotify, "notify.send",
			slog.String("status", "ok"),
			slog.Int64("target_id", chatID),
			slog.String("format", string(f)),
			slog.Int("fallbacks", len(del.Rejected)),
		)
	}
	return del, nil
}

func (d *Dispatcher) tryFormats(ctx context.Context, formats []Format, send func(ctx context.Context, f Format) (int, error)) (int, Format, []Format, error) {
	var (
		rejected []Format
		lastErr  error
	)
	for _, f := range formats {
		var id int
		_, err := d.opts.Policy.Do(ctx, func(ctx context.Context) error {
			var sendErr error
			id, sendErr = send(ctx, f)
			return sendErr
		})
		if err == nil {
			return id, f, rejected, nil
		}
		lastErr = err
		if sender.IsBlocked(err) || ctx.Err() != nil {
			break
		}
		rejected = append(rejected, f)
	}
	if lastErr == nil {
		lastErr = errors.New("notify: no formats to try")
	}
	return 0, "", rejected, lastErr
}

// failed logs the outcome. Blocked recipients are an expected result and
// stay at info level.
func (d *Dispatcher) failed(ctx context.Context, chatID int64, del Delivery, err error) (Delivery, error) {
	attrs := []slog.Attr{
		slog.Int64("target_id", chatID),
		slog.Int("fallbacks", len(del.Rejected)),
		slog.String("err", sender.Redact(err)),
	}
	if sender.IsBlocked(err) {
		del.Blocked = true
		logger.Info(ctx, logger.CompNotify, "notify.send",
			append([]slog.Attr{slog.String("status", "skip")}, attrs...)...)
		return del, err
	}
	logger.Error(ctx, logger.CompNotify, "notify.send",
		append([]slog.Attr{slog.String("status", "fail")}, attrs...)...)
	return del, err
}

// SendDocument uploads doc under the retry policy.
func (d *Dispatcher) SendDocument(ctx context.Context, chatID int64, doc Document) (int, error) {
	var id int
	_, err := d.opts.Policy.Do(ctx, func(ctx context.Context) error {
		var sendErr error
		id, sendErr = d.transport.SendDocument(ctx, chatID, doc)
		return sendErr
	})
	if err != nil {
		_, err = d.failed(ctx, chatID, Delivery{}, err)
		return 0, err
	}
	tghelpers.CountReply(ctx, false)
	return id, nil
}

// Delete removes a previously sent message. Zero ids are ignored.
func (d *Dispatcher) Delete(ctx context.Context, chatID int64, messageID int) error {
	if messageID == 0 {
		return nil
	}
	_, err := d.opts.Policy.Do(ctx, func(ctx context.Context) error {
		return d.transport.Delete(ctx, chatID, messageID)
	})
	if err != nil {
		// The message may already be gone or too old to delete.
		logger.Warn(ctx, logger.CompNotify, "notify.delete",
			slog.String("status", "fail"),
			slog.Int64("target_id", chatID),
			slog.Int("message_id", messageID),
			slog.String("err", sender.Redact(err)),
		)
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}
	return nil
}

// Notify sends plain text without waiting for delivery when a Queue is
// configured. Without one it sends inline.
func (d *Dispatcher) Notify(ctx context.Context, chatID int64, text string) error {
	msg := Message{Text: text, Formats: []Format{FormatPlain}}
	if d.opts.Queue == nil {
		_, err := d.Send(ctx, chatID, msg)
		return err
	}
	return d.opts.Queue.Enqueue(ctx, "notify.admin", "sendMessage", func(ctx context.Context) error {
		_, err := d.transport.SendText(ctx, chatID, msg, FormatPlain)
		return err
	})
}

func describeCause(id int64, err error) string {
	return fmt.Sprintf("%d: %s", id, strings.TrimSpace(sender.Redact(err)))
}
