package bot

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
	"github.com/m3rciful/funnelbot/internal/flow"
	"github.com/m3rciful/funnelbot/internal/funnel"
	"github.com/m3rciful/funnelbot/internal/i18n"
	"github.com/m3rciful/funnelbot/internal/user"
)

type triggerFunc func(c tele.Context) funnel.Event

func (h *Handlers) start(c tele.Context) error {
	return h.handle(c, h.triggerStart(c))
}

func (h *Handlers) triggerStart(c tele.Context) funnel.Event {
	ev := funnel.Event{Trigger: funnel.TriggerStart}
	if s := c.Sender(); s != nil {
		ev.Username = s.Username
	}
	return ev
}

func (h *Handlers) triggerRegister(tele.Context) funnel.Event {
	return funnel.Event{Trigger: funnel.TriggerRegister}
}

func (h *Handlers) triggerGetSignal(tele.Context) funnel.Event {
	return funnel.Event{Trigger: funnel.TriggerGetSignal}
}

func (h *Handlers) triggerCheckRegistration(tele.Context) funnel.Event {
	return funnel.Event{Trigger: funnel.TriggerCheckRegistration}
}

// triggerCheckDeposit uses the client language code as the country hint.
func (h *Handlers) triggerCheckDeposit(c tele.Context) funnel.Event {
	ev := funnel.Event{Trigger: funnel.TriggerCheckDeposit}
	if s := c.Sender(); s != nil && s.LanguageCode != "" {
		ev.Country = strings.ToUpper(s.LanguageCode)
	}
	return ev
}

// onFunnel deletes the tapped menu and applies the trigger.
func (h *Handlers) onFunnel(trigger triggerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev := trigger(c)
		ev.Tapped = h.retractTapped(c)
		return h.handle(c, ev)
	}
}

func (h *Handlers) onScreen(screen flow.Screen) tele.HandlerFunc {
	return func(c tele.Context) error {
		h.retractTapped(c)
		id := senderID(c)
		if id == 0 {
			return nil
		}
		return h.flow.Show(tghelpers.BuildContext(c), id, screen)
	}
}

func (h *Handlers) onLanguage(c tele.Context) error {
	lang := user.LangEN
	if c.Callback() != nil && strings.HasSuffix(c.Callback().Unique, "_hi") {
		lang = user.LangHI
	}
	return h.handle(c, funnel.Event{Trigger: funnel.TriggerSetLanguage, Language: lang})
}

func (h *Handlers) handle(c tele.Context, ev funnel.Event) error {
	id := senderID(c)
	if id == 0 {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if _, err := h.flow.Handle(ctx, id, ev); err != nil {
		_ = h.flow.Say(ctx, id, i18n.GenericError)
		return err
	}
	return nil
}

// retractTapped deletes the message carrying the tapped button and returns
// its id, or 0 when there is none.
func (h *Handlers) retractTapped(c tele.Context) int {
	m := c.Message()
	id := senderID(c)
	if m == nil || id == 0 {
		return 0
	}
	h.flow.Retract(context.WithoutCancel(tghelpers.BuildContext(c)), id, m.ID)
	return m.ID
}
