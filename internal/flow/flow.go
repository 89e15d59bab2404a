// Package flow runs funnel decisions against the store and delivers the
// resulting screens, retractions and admin notices.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/internal/funnel"
	"github.com/m3rciful/funnelbot/internal/i18n"
	"github.com/m3rciful/funnelbot/internal/notify"
	"github.com/m3rciful/funnelbot/internal/user"
	"github.com/m3rciful/funnelbot/internal/verify"
)

// Links are the external destinations shown to users.
type Links struct {
	// Referral may contain {user_id}.
	Referral string
	WebApp   string
	Support  string
	HelpURL  string
	Promo    string
}

// Images are local photo paths; a missing file falls back to text.
type Images struct {
	Main     string
	Register string
	Deposit  string
}

// Config holds the funnel settings.
type Config struct {
	AdminID int64
	Links   Links
	Images  Images

	RequireRegistration bool
	RequireDeposit      bool
}

// Verifier confirms registrations and deposits with the partner.
type Verifier interface {
	Enabled() bool
	Registration(ctx context.Context, userID int64) bool
	Deposit(ctx context.Context, userID int64) verify.Deposit
}

// Outbox delivers messages. *notify.Dispatcher satisfies it.
type Outbox interface {
	Send(ctx context.Context, chatID int64, msg notify.Message) (notify.Delivery, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
	Notify(ctx context.Context, chatID int64, text string) error
}

// Service applies funnel events for private chats, where chat id equals
// user id.
type Service struct {
	store    user.Store
	out      Outbox
	verifier Verifier
	cfg      Config
	now      func() time.Time
}

// New builds a Service. verifier may be nil.
func New(store user.Store, out Outbox, verifier Verifier, cfg Config) *Service {
	return &Service{
		store:    store,
		out:      out,
		verifier: verifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Store exposes the underlying user store.
func (s *Service) Store() user.Store { return s.store }

// Handle decides ev for id under the store lock, then performs the side
// effects of the decision. A blocked recipient is not an error.
func (s *Service) Handle(ctx context.Context, id int64, ev funnel.Event) (funnel.Decision, error) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	ev = s.confirm(ctx, id, ev)

	var d funnel.Decision
	if _, err := s.store.Upsert(ctx, id, func(r *user.Record) {
		d = funnel.Decide(*r, ev)
		*r = d.Next
	}); err != nil {
		return d, fmt.Errorf("apply %s for %d: %w", ev.Trigger, id, err)
	}
	if d.From != d.To {
		logger.Info(ctx, logger.CompFunnel, "funnel.transition",
			slog.Int64("target_id", id),
			slog.String("trigger", string(ev.Trigger)),
			slog.String("from_state", string(d.From)),
			slog.String("to_state", string(d.To)),
		)
	}

	if d.RetractDeposit {
		s.retract(ctx, id, d.Prev.DepositMessageID, ev.Tapped)
	}
	if d.RetractSignal {
		s.retract(ctx, id, d.Prev.LastSignalMessageID, ev.Tapped)
	}
	for _, n := range d.Notices {
		s.notifyAdmin(ctx, n)
	}
	if d.Response == funnel.ResponseNone {
		return d, nil
	}
	return d, s.deliver(ctx, d.Next, d.Response)
}

// confirm fills Confirmed for check triggers. Without a verifier taps are
// trusted; a denial only blocks when the matching Require flag is set.
func (s *Service) confirm(ctx context.Context, id int64, ev funnel.Event) funnel.Event {
	enabled := s.verifier != nil && s.verifier.Enabled()
	switch ev.Trigger {
	case funnel.TriggerCheckRegistration:
		if !enabled {
			ev.Confirmed = true
			break
		}
		if rec, ok := s.store.Get(ctx, id); ok && rec.Registered {
			break
		}
		ev.Confirmed = s.verifier.Registration(ctx, id) || !s.cfg.RequireRegistration
	case funnel.TriggerCheckDeposit:
		if !enabled {
			ev.Confirmed = true
			break
		}
		rec := user.GetOrDefault(ctx, s.store, id)
		if funnel.BaseState(rec) != funnel.RegisteredNoDeposit {
			break
		}
		dep := s.verifier.Deposit(ctx, id)
		ev.Confirmed = dep.Confirmed || !s.cfg.RequireDeposit
		if dep.Amount.Valid && !ev.Amount.Valid {
			ev.Amount = dep.Amount
		}
	}
	return ev
}

func (s *Service) deliver(ctx context.Context, rec user.Record, resp funnel.Response) error {
	var last notify.Delivery
	for _, msg := range s.Render(rec, resp) {
		del, err := s.out.Send(ctx, rec.ID, msg)
		if err != nil {
			if del.Blocked {
				return nil
			}
			return fmt.Errorf("send %s to %d: %w", resp, rec.ID, err)
		}
		last = del
	}
	return s.remember(ctx, rec.ID, resp, last.MessageID)
}

// remember stores the ids of messages that may be retracted later.
func (s *Service) remember(ctx context.Context, id int64, resp funnel.Response, messageID int) error {
	if messageID == 0 {
		return nil
	}
	var mutate user.Mutator
	switch {
	case resp == funnel.ResponseDeposit:
		mutate = func(r *user.Record) { r.DepositMessageID = messageID }
	case resp.GrantsAccess():
		mutate = func(r *user.Record) { r.LastSignalMessageID = messageID }
	default:
		return nil
	}
	if _, err := s.store.Upsert(ctx, id, mutate); err != nil {
		return fmt.Errorf("remember message %d for %d: %w", messageID, id, err)
	}
	return nil
}

// ConfirmRegistration applies a partner or admin registration confirmation.
func (s *Service) ConfirmRegistration(ctx context.Context, userID int64) error {
	_, err := s.Handle(ctx, userID, funnel.Event{Trigger: funnel.TriggerRegistrationConfirmed})
	return err
}

// ConfirmDeposit applies a partner or admin deposit confirmation.
func (s *Service) ConfirmDeposit(ctx context.Context, userID int64, amount decimal.NullDecimal, country string) error {
	_, err := s.Handle(ctx, userID, funnel.Event{
		Trigger: funnel.TriggerDepositConfirmed,
		Amount:  amount,
		Country: country,
	})
	return err
}

// Show sends a screen that does not depend on funnel state.
func (s *Service) Show(ctx context.Context, id int64, screen Screen) error {
	rec := user.GetOrDefault(ctx, s.store, id)
	del, err := s.out.Send(ctx, id, s.screen(rec, screen))
	if err != nil && !del.Blocked {
		return fmt.Errorf("show %s to %d: %w", screen, id, err)
	}
	return nil
}

// Say sends a single localized line.
func (s *Service) Say(ctx context.Context, id int64, key i18n.Key) error {
	rec := user.GetOrDefault(ctx, s.store, id)
	del, err := s.out.Send(ctx, id, notify.Message{Text: s.text(rec, key), Formats: []notify.Format{notify.FormatPlain}})
	if err != nil && !del.Blocked {
		return err
	}
	return nil
}

// Retract deletes a message in a user's chat, typically the tapped menu.
func (s *Service) Retract(ctx context.Context, id int64, messageID int) {
	_ = s.out.Delete(ctx, id, messageID)
}

func (s *Service) retract(ctx context.Context, id int64, messageID, tapped int) {
	if messageID == 0 || messageID == tapped {
		return
	}
	_ = s.out.Delete(ctx, id, messageID)
}

func (s *Service) notifyAdmin(ctx context.Context, n funnel.Notice) {
	if s.cfg.AdminID == 0 {
		return
	}
	if err := s.out.Notify(ctx, s.cfg.AdminID, NoticeText(n)); err != nil {
		logger.Warn(ctx, logger.CompFunnel, "funnel.notice",
			slog.String("status", "fail"),
			slog.Int64("target_id", n.UserID),
			slog.String("err", err.Error()),
		)
	}
}

// NoticeText renders the admin notification for n.
func NoticeText(n funnel.Notice) string {
	at := n.At.UTC().Format(time.RFC3339)
	switch n.Kind {
	case funnel.NoticeDeposit:
		country := n.Country
		if country == "" {
			country = "unknown"
		}
		amount := "0.0"
		if n.Amount.Valid {
			amount = n.Amount.Decimal.String()
		}
		return fmt.Sprintf("💰 Deposit Received: %d:%s:%s at %s", n.UserID, country, amount, at)
	default:
		return fmt.Sprintf("✅ New Registration: %d at %s", n.UserID, at)
	}
}

func (s *Service) referral(id int64) string {
	return strings.ReplaceAll(s.cfg.Links.Referral, "{user_id}", strconv.FormatInt(id, 10))
}
