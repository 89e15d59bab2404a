package bot

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/telegram/commands"
	"github.com/m3rciful/funnelbot/core/telegram/keyboard"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
	"github.com/m3rciful/funnelbot/core/telegram/state"
	"github.com/m3rciful/funnelbot/internal/admin"
)

// Admin dialog states.
const (
	stateAwaitApprove   state.State = "admin.await_approve_id"
	stateAwaitReset     state.State = "admin.await_reset_id"
	stateAwaitBroadcast state.State = "admin.await_broadcast"
	stateAwaitPhoto     state.State = "admin.await_photo"
)

const (
	promptBroadcast = "Enter broadcast message:"
	promptPhoto     = "🖼️ Please send the photo you want to broadcast with optional caption."
	promptApprove   = "Enter user ID to approve:"
	promptReset     = "Enter user ID to reset:"
	invalidUserID   = "❌ Invalid user ID. Please send a numeric user ID."
	broadcastQueued = "📤 Broadcast started. A report follows when it finishes."
	dialogCancelled = "❌ Cancelled."
	operationFailed = "❌ Operation failed."
)

type userOp func(ctx context.Context, caller, id int64) (string, error)

func (h *Handlers) adminCommands() map[string]commands.Command {
	return map[string]commands.Command{
		"/admin": {
			Handler:     h.dashboard,
			Description: "Admin dashboard",
			Aliases:     []string{"/dashboard"},
		},
		"/approve_user":     {Handler: h.withUserID("/approve_user", h.admin.Approve), Description: "Approve a user for signals"},
		"/revoke_user":      {Handler: h.withUserID("/revoke_user", h.admin.Revoke), Description: "Revoke a manual approval"},
		"/reset_user":       {Handler: h.withUserID("/reset_user", h.admin.Reset), Description: "Reset a user to the start"},
		"/check_user":       {Handler: h.withUserID("/check_user", h.admin.Status), Description: "Show one user"},
		"/mark_registered":  {Handler: h.withUserID("/mark_registered", h.admin.MarkRegistered), Description: "Confirm a registration"},
		"/mark_deposited":   {Handler: h.markDeposited, Description: "Confirm a deposit"},
		"/status":           {Handler: h.status, Description: "User statistics"},
		"/total_users":      {Handler: h.count(admin.TotalUsers), Description: "Count users"},
		"/total_registered": {Handler: h.count(admin.TotalRegistered), Description: "Count registered users"},
		"/total_deposited":  {Handler: h.count(admin.TotalDeposited), Description: "Count deposited users"},
		"/broadcast":        {Handler: h.broadcast, Description: "Send text to every user"},
		"/broadcast_photo":  {Handler: h.broadcastPhoto, Description: "Send a photo to every user"},
		"/export_users":     {Handler: h.export, Description: "Export users as CSV"},
		"/refresh_data":     {Handler: h.refresh, Description: "Reload user data"},
		"/cancel":           {Handler: h.cancel, Description: "Cancel the current dialog"},
	}
}

func (h *Handlers) adminCallbacks() map[string]tele.HandlerFunc {
	return map[string]tele.HandlerFunc{
		admin.CbTotalUsers:      h.count(admin.TotalUsers),
		admin.CbTotalRegistered: h.count(admin.TotalRegistered),
		admin.CbTotalDeposited:  h.count(admin.TotalDeposited),
		admin.CbExportUsers:     h.export,
		admin.CbRefreshData:     h.refresh,
		admin.CbBroadcast:       h.prompt(stateAwaitBroadcast, promptBroadcast),
		admin.CbApproveUser:     h.prompt(stateAwaitApprove, promptApprove),
		admin.CbResetUser:       h.prompt(stateAwaitReset, promptReset),
		admin.CbConfirmPhoto:    h.confirmPhoto,
		admin.CbCancelPhoto:     h.cancelPhoto,
	}
}

// fail turns an admin error into a reply. Unknown errors are returned
// so the router records them.
func (h *Handlers) fail(c tele.Context, err error) error {
	if text, ok := admin.Reply(err); ok {
		return h.reply(c, text)
	}
	_ = h.reply(c, operationFailed)
	return err
}

func (h *Handlers) answer(c tele.Context, text string, err error) error {
	if err != nil {
		return h.fail(c, err)
	}
	return h.reply(c, text)
}

func (h *Handlers) dashboard(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	msg, err := h.admin.Dashboard(ctx, senderID(c))
	if err != nil {
		return h.fail(c, err)
	}
	_, err = h.out.Send(ctx, c.Chat().ID, msg)
	return err
}

func (h *Handlers) withUserID(usage string, op userOp) tele.HandlerFunc {
	return func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			if !h.admin.IsAdmin(senderID(c)) {
				return h.fail(c, admin.ErrAccessDenied)
			}
			return h.reply(c, "⚠️ Usage: "+usage+" <user_id>")
		}
		id, err := parseUserID(args[0])
		if err != nil {
			return h.reply(c, invalidUserID)
		}
		text, err := op(tghelpers.BuildContext(c), senderID(c), id)
		return h.answer(c, text, err)
	}
}

func (h *Handlers) markDeposited(c tele.Context) error {
	args := c.Args()
	if len(args) == 0 {
		if !h.admin.IsAdmin(senderID(c)) {
			return h.fail(c, admin.ErrAccessDenied)
		}
		return h.reply(c, "⚠️ Usage: /mark_deposited <user_id> [amount]")
	}
	id, err := parseUserID(args[0])
	if err != nil {
		return h.reply(c, invalidUserID)
	}
	var amount decimal.NullDecimal
	if len(args) > 1 {
		d, err := decimal.NewFromString(args[1])
		if err != nil {
			return h.reply(c, "❌ Invalid amount.")
		}
		amount = decimal.NewNullDecimal(d)
	}
	text, err := h.admin.MarkDeposited(tghelpers.BuildContext(c), senderID(c), id, amount)
	return h.answer(c, text, err)
}

// status shows one user when an id is given and the totals otherwise.
func (h *Handlers) status(c tele.Context) error {
	if args := c.Args(); len(args) > 0 {
		id, err := parseUserID(args[0])
		if err != nil {
			return h.reply(c, invalidUserID)
		}
		text, err := h.admin.Status(tghelpers.BuildContext(c), senderID(c), id)
		return h.answer(c, text, err)
	}
	st, err := h.admin.Stats(tghelpers.BuildContext(c), senderID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return h.reply(c, st.Text())
}

func (h *Handlers) count(what admin.Total) tele.HandlerFunc {
	return func(c tele.Context) error {
		text, err := h.admin.Count(tghelpers.BuildContext(c), senderID(c), what)
		return h.answer(c, text, err)
	}
}

func (h *Handlers) refresh(c tele.Context) error {
	text, err := h.admin.Refresh(tghelpers.BuildContext(c), senderID(c))
	return h.answer(c, text, err)
}

func (h *Handlers) export(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	doc, err := h.admin.ExportCSV(ctx, senderID(c))
	if err != nil {
		return h.fail(c, err)
	}
	_, err = h.out.SendDocument(ctx, c.Chat().ID, doc)
	return err
}

// broadcast starts a run from the command payload, or asks for the text.
func (h *Handlers) broadcast(c tele.Context) error {
	text := strings.TrimSpace(c.Message().Payload)
	if text == "" {
		return h.prompt(stateAwaitBroadcast, promptBroadcast)(c)
	}
	return h.startBroadcast(c, text)
}

func (h *Handlers) startBroadcast(c tele.Context, text string) error {
	if err := h.admin.Broadcast(tghelpers.BuildContext(c), senderID(c), text); err != nil {
		return h.fail(c, err)
	}
	return h.reply(c, broadcastQueued)
}

func (h *Handlers) broadcastPhoto(c tele.Context) error {
	return h.prompt(stateAwaitPhoto, promptPhoto)(c)
}

// prompt opens a dialog for the admin.
func (h *Handlers) prompt(st state.State, text string) tele.HandlerFunc {
	return func(c tele.Context) error {
		id := senderID(c)
		if !h.admin.IsAdmin(id) {
			return h.fail(c, admin.ErrAccessDenied)
		}
		h.fsm.SetState(id, st)
		return tghelpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: keyboard.ForceReply()})
	}
}

func (h *Handlers) cancel(c tele.Context) error {
	h.fsm.Clear(senderID(c))
	return h.reply(c, dialogCancelled)
}

func (h *Handlers) dialogUserID(op userOp) tele.HandlerFunc {
	return func(c tele.Context) error {
		id, err := parseUserID(c.Text())
		if err != nil {
			return h.reply(c, invalidUserID)
		}
		h.fsm.ClearState(senderID(c))
		text, err := op(tghelpers.BuildContext(c), senderID(c), id)
		return h.answer(c, text, err)
	}
}

func (h *Handlers) dialogBroadcast(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return h.reply(c, promptBroadcast)
	}
	h.fsm.ClearState(senderID(c))
	return h.startBroadcast(c, text)
}

func (h *Handlers) dialogPhoto(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Photo == nil {
		return h.reply(c, promptPhoto)
	}
	ctx := tghelpers.BuildContext(c)
	preview, err := h.admin.PreparePhoto(ctx, senderID(c), admin.PhotoDraft{
		FileID:  m.Photo.FileID,
		Caption: m.Caption,
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.fsm.ClearState(senderID(c))
	_, err = h.out.Send(ctx, c.Chat().ID, preview)
	return err
}

func (h *Handlers) confirmPhoto(c tele.Context) error {
	h.retractTapped(c)
	if err := h.admin.ConfirmPhoto(tghelpers.BuildContext(c), senderID(c)); err != nil {
		return h.fail(c, err)
	}
	return h.reply(c, broadcastQueued)
}

func (h *Handlers) cancelPhoto(c tele.Context) error {
	h.retractTapped(c)
	text, err := h.admin.CancelPhoto(tghelpers.BuildContext(c), senderID(c))
	return h.answer(c, text, err)
}
