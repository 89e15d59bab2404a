package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/telegram/keyboard"
)

// ErrNotBound is returned before the transport is attached to a running bot.
var ErrNotBound = errors.New("notify: telegram bot not bound")

// TelebotTransport implements Transport over a telebot instance that is
// attached once the runtime has created it.
type TelebotTransport struct {
	bot atomic.Pointer[tele.Bot]
}

var _ Transport = (*TelebotTransport)(nil)

// NewTelebotTransport returns an unbound transport.
func NewTelebotTransport() *TelebotTransport {
	return &TelebotTransport{}
}

// Bind attaches the running bot.
func (t *TelebotTransport) Bind(b *tele.Bot) { t.bot.Store(b) }

func (t *TelebotTransport) api(ctx context.Context) (*tele.Bot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := t.bot.Load()
	if b == nil {
		return nil, ErrNotBound
	}
	return b, nil
}

func (t *TelebotTransport) SendText(ctx context.Context, chatID int64, msg Message, f Format) (int, error) {
	b, err := t.api(ctx)
	if err != nil {
		return 0, err
	}
	sent, err := b.Send(tele.ChatID(chatID), msg.Text, sendOptions(msg, f))
	if err != nil {
		return 0, err
	}
	return sent.ID, nil
}

func (t *TelebotTransport) SendPhoto(ctx context.Context, chatID int64, msg Message, f Format) (int, error) {
	b, err := t.api(ctx)
	if err != nil {
		return 0, err
	}
	file, err := photoFile(msg.Photo)
	if err != nil {
		return 0, err
	}
	photo := &tele.Photo{File: file, Caption: msg.Text}
	sent, err := b.Send(tele.ChatID(chatID), photo, sendOptions(msg, f))
	if err != nil {
		return 0, err
	}
	return sent.ID, nil
}

func (t *TelebotTransport) SendDocument(ctx context.Context, chatID int64, doc Document) (int, error) {
	b, err := t.api(ctx)
	if err != nil {
		return 0, err
	}
	file := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(doc.Data)),
		FileName: doc.Name,
		Caption:  doc.Caption,
	}
	sent, err := b.Send(tele.ChatID(chatID), file)
	if err != nil {
		return 0, err
	}
	return sent.ID, nil
}

func (t *TelebotTransport) Delete(ctx context.Context, chatID int64, messageID int) error {
	b, err := t.api(ctx)
	if err != nil {
		return err
	}
	return b.Delete(tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID})
}

func sendOptions(msg Message, f Format) *tele.SendOptions {
	opts := &tele.SendOptions{
		ParseMode:             parseMode(f),
		DisableWebPagePreview: true,
		DisableNotification:   msg.Silent,
	}
	if len(msg.Buttons) > 0 {
		opts.ReplyMarkup = keyboard.InlineButtonsRows(msg.Buttons...)
	}
	return opts
}

func parseMode(f Format) tele.ParseMode {
	switch f {
	case FormatMarkdown:
		return tele.ModeMarkdown
	case FormatHTML:
		return tele.ModeHTML
	}
	return tele.ModeDefault
}

// photoFile resolves a local path or a file id. Missing files fail early so
// the caller can fall back to text.
func photoFile(p *Photo) (tele.File, error) {
	switch {
	case p == nil:
		return tele.File{}, errors.New("notify: no photo")
	case p.FileID != "":
		return tele.File{FileID: p.FileID}, nil
	case p.Path != "":
		if _, err := os.Stat(p.Path); err != nil {
			return tele.File{}, fmt.Errorf("notify: photo %s: %w", p.Path, err)
		}
		return tele.FromDisk(p.Path), nil
	}
	return tele.File{}, errors.New("notify: empty photo reference")
}
