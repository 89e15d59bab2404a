// Package bot binds Telegram updates to the funnel and admin services.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
	"github.com/m3rciful/funnelbot/core/telegram/router"
	"github.com/m3rciful/funnelbot/core/telegram/state"
	"github.com/m3rciful/funnelbot/internal/admin"
	"github.com/m3rciful/funnelbot/internal/flow"
	"github.com/m3rciful/funnelbot/internal/i18n"
	"github.com/m3rciful/funnelbot/internal/notify"
)

// Outbox sends rich admin replies. *notify.Dispatcher satisfies it.
type Outbox interface {
	Send(ctx context.Context, chatID int64, msg notify.Message) (notify.Delivery, error)
	SendDocument(ctx context.Context, chatID int64, doc notify.Document) (int, error)
}

// Handlers holds the services behind every route.
type Handlers struct {
	flow  *flow.Service
	admin *admin.Service
	out   Outbox
	fsm   state.Manager
}

// New builds Handlers. fsm keeps the admin dialogs.
func New(f *flow.Service, a *admin.Service, out Outbox, fsm state.Manager) *Handlers {
	return &Handlers{flow: f, admin: a, out: out, fsm: fsm}
}

// Register adds every command, callback and dialog step to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	if err := reg.RegisterCommand("/start", commands.Command{
		Handler:     h.start,
		Description: "Open the main menu",
	}); err != nil {
		return err
	}
	for name, cmd := range h.adminCommands() {
		cmd.AdminOnly = true
		if err := reg.RegisterCommand(name, cmd); err != nil {
			return err
		}
	}

	for key, fn := range map[string]tele.HandlerFunc{
		flow.CbRegister:          h.onFunnel(h.triggerRegister),
		flow.CbGetSignal:         h.onFunnel(h.triggerGetSignal),
		flow.CbCheckRegistration: h.onFunnel(h.triggerCheckRegistration),
		flow.CbCheckDeposit:      h.onFunnel(h.triggerCheckDeposit),
		flow.CbBackToMain:        h.onFunnel(h.triggerStart),
		flow.CbInstruction:       h.onScreen(flow.ScreenInstruction),
		flow.CbChooseLanguage:    h.onScreen(flow.ScreenLanguages),
		flow.CbHelp:              h.onScreen(flow.ScreenHelp),
		flow.CbLangEN:            h.onLanguage,
		flow.CbLangHI:            h.onLanguage,
	} {
		if err := reg.RegisterCallback(key, fn); err != nil {
			return err
		}
	}
	for key, fn := range h.adminCallbacks() {
		if err := reg.RegisterCallback(key, fn); err != nil {
			return err
		}
	}

	reg.SetTextFallback(h.unknownText)
	h.fsm.Handle(stateAwaitApprove, h.dialogUserID(h.admin.Approve))
	h.fsm.Handle(stateAwaitReset, h.dialogUserID(h.admin.Reset))
	h.fsm.Handle(stateAwaitBroadcast, h.dialogBroadcast)
	h.fsm.Handle(stateAwaitPhoto, h.dialogPhoto)
	return nil
}

// Routes wraps the registry into runtime routes.
func (h *Handlers) Routes(reg *tg.Registry) []tg.Route {
	deny := func(c tele.Context) error { return h.reply(c, admin.DeniedText) }
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       h.admin.AdminID(),
		OnAdminReject: deny,
		OnPanic:       h.Apologize,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{OnPanic: h.Apologize}))
	routes = append(routes, router.TextRoutes(h.fsm, reg, router.TextOptions{
		AdminID:       h.admin.AdminID(),
		OnAdminReject: deny,
		OnPanic:       h.Apologize,
	})...)
	return routes
}

func (h *Handlers) reply(c tele.Context, text string) error {
	return tghelpers.SendText(c, text)
}

// Apologize answers a user whose update crashed a handler.
func (h *Handlers) Apologize(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	return h.flow.Say(tghelpers.BuildContext(c), c.Sender().ID, i18n.GenericError)
}

func (h *Handlers) unknownText(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	return h.flow.Say(tghelpers.BuildContext(c), c.Sender().ID, i18n.UnknownInput)
}

func parseUserID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

func senderID(c tele.Context) int64 {
	if s := c.Sender(); s != nil {
		return s.ID
	}
	return 0
}
