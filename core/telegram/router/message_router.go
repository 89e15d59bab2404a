package router

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/middleware"
)

// FSM is the part of a state manager the text routes need.
type FSM interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions controls fallback behaviour for text and photo updates.
type TextOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
	OnPanic       tele.HandlerFunc

	UnknownText  tele.HandlerFunc
	UnknownPhoto tele.HandlerFunc
}

// TextRoutes routes plain text and photos. A user in an open dialog always
// goes to the FSM first. Text that starts with a registered command name
// but no slash runs that command behind the same admin check. Anything else
// reaches the registry's text fallback, then UnknownText.
func TextRoutes(fsm FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	admin := middleware.AdminOptions{AdminID: opts.AdminID, OnReject: opts.OnAdminReject}
	inDialog := func(c tele.Context) bool {
		return fsm != nil && c.Sender() != nil && fsm.InProgress(c.Sender().ID)
	}

	text := func(c tele.Context) error {
		if inDialog(c) {
			return summarize(c, "fsm", fsm.ManagerHandler)
		}
		if fields := strings.Fields(c.Text()); reg != nil && len(fields) > 0 {
			if key, cmd, ok := reg.LookupCommand(fields[0]); ok {
				return summarize(c, handlerName(key), middleware.WithAdminCheck(admin, cmd))
			}
		}
		var fallback tele.HandlerFunc
		if reg != nil {
			fallback = reg.TextFallback()
		}
		if fallback == nil {
			fallback = opts.UnknownText
		}
		if fallback == nil {
			skipped(c, "unknown_text")
			return nil
		}
		return summarize(c, "fallback", fallback)
	}

	photo := func(c tele.Context) error {
		switch {
		case inDialog(c):
			return summarize(c, "fsm_photo", fsm.ManagerHandler)
		case opts.UnknownPhoto != nil:
			return summarize(c, "unexpected_photo", opts.UnknownPhoto)
		}
		skipped(c, "unexpected_photo")
		return nil
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text, opts.OnPanic)},
		{Endpoint: tele.OnPhoto, Handler: wrap(photo, opts.OnPanic)},
	}
}
