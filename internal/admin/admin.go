// Package admin implements the operator commands. Every operation checks the
// caller against the single configured admin id before touching anything.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/internal/funnel"
	"github.com/m3rciful/funnelbot/internal/notify"
	"github.com/m3rciful/funnelbot/internal/user"
)

var (
	ErrAccessDenied     = errors.New("admin: access denied")
	ErrUserNotFound     = errors.New("admin: user not found")
	ErrBroadcastRunning = errors.New("admin: broadcast already running")
	ErrEmptyMessage     = errors.New("admin: empty broadcast message")
	ErrNoUsers          = errors.New("admin: no users to broadcast to")
	ErrPhotoMissing     = errors.New("admin: no photo pending")
)

// NotFoundError names the missing user.
type NotFoundError struct{ ID int64 }

func (e *NotFoundError) Error() string        { return fmt.Sprintf("admin: user %d not found", e.ID) }
func (e *NotFoundError) Is(target error) bool { return target == ErrUserNotFound }

// DeniedText is the fixed reply for non-admin callers.
const DeniedText = "⚠️ Access denied!"

// Reply maps an operation error to the text shown to the admin. ok is false
// for unexpected errors.
func Reply(err error) (string, bool) {
	var nf *NotFoundError
	switch {
	case errors.As(err, &nf):
		return fmt.Sprintf("⚠️ User %d not found.", nf.ID), true
	case errors.Is(err, ErrAccessDenied):
		return DeniedText, true
	case errors.Is(err, ErrBroadcastRunning):
		return "⏳ A broadcast is already running. Please wait for it to finish.", true
	case errors.Is(err, ErrEmptyMessage):
		return "Usage: /broadcast Your message here", true
	case errors.Is(err, ErrNoUsers):
		return "⚠️ No users found in the database!", true
	case errors.Is(err, ErrPhotoMissing):
		return "⚠️ Photo data missing. Please start over.", true
	}
	return "", false
}

// Funnel applies state changes with their user-facing side effects.
type Funnel interface {
	Handle(ctx context.Context, id int64, ev funnel.Event) (funnel.Decision, error)
	ConfirmRegistration(ctx context.Context, userID int64) error
	ConfirmDeposit(ctx context.Context, userID int64, amount decimal.NullDecimal, country string) error
}

// Outbox delivers broadcasts and their reports. *notify.Dispatcher
// satisfies it.
type Outbox interface {
	Send(ctx context.Context, chatID int64, msg notify.Message) (notify.Delivery, error)
	Broadcast(ctx context.Context, ids []int64, msg notify.Message) notify.Report
}

// Service runs admin operations.
type Service struct {
	adminID int64
	store   user.Store
	funnel  Funnel
	out     Outbox

	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Bool
	wg      sync.WaitGroup

	mu    sync.Mutex
	draft *PhotoDraft
}

// New builds a Service for adminID.
func New(adminID int64, store user.Store, f Funnel, out Outbox) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		adminID: adminID,
		store:   store,
		funnel:  f,
		out:     out,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AdminID returns the configured operator id.
func (s *Service) AdminID() int64 { return s.adminID }

// IsAdmin reports whether caller is the operator.
func (s *Service) IsAdmin(caller int64) bool { return s.adminID != 0 && caller == s.adminID }

func (s *Service) authorize(ctx context.Context, caller int64, op string) error {
	if s.IsAdmin(caller) {
		return nil
	}
	logger.Warn(ctx, logger.CompAdmin, "admin.denied",
		slog.String("status", "skip"),
		slog.Int64("caller_id", caller),
		slog.String("op", op),
	)
	return ErrAccessDenied
}

func (s *Service) existing(ctx context.Context, id int64) (user.Record, error) {
	rec, ok := s.store.Get(ctx, id)
	if !ok {
		return user.Record{}, &NotFoundError{ID: id}
	}
	return rec, nil
}

func (s *Service) apply(ctx context.Context, id int64, trigger funnel.Trigger) error {
	if _, err := s.funnel.Handle(ctx, id, funnel.Event{Trigger: trigger}); err != nil {
		return err
	}
	logger.Info(ctx, logger.CompAdmin, "admin."+string(trigger),
		slog.String("status", "ok"),
		slog.Int64("target_id", id),
	)
	return nil
}

// Approve grants direct signal access.
func (s *Service) Approve(ctx context.Context, caller, id int64) (string, error) {
	if err := s.authorize(ctx, caller, "approve"); err != nil {
		return "", err
	}
	if err := s.apply(ctx, id, funnel.TriggerApprove); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ User %d manually approved for Get Signal access.", id), nil
}

// Revoke withdraws approval, retracts the last signal message and tells
// the user.
func (s *Service) Revoke(ctx context.Context, caller, id int64) (string, error) {
	if err := s.authorize(ctx, caller, "revoke"); err != nil {
		return "", err
	}
	if _, err := s.existing(ctx, id); err != nil {
		return "", err
	}
	if err := s.apply(ctx, id, funnel.TriggerRevoke); err != nil {
		return "", err
	}
	return fmt.Sprintf("❌ User %d approval has been revoked.", id), nil
}

// Reset clears registration, deposit and approval.
func (s *Service) Reset(ctx context.Context, caller, id int64) (string, error) {
	if err := s.authorize(ctx, caller, "reset"); err != nil {
		return "", err
	}
	if _, err := s.existing(ctx, id); err != nil {
		return "", err
	}
	if err := s.apply(ctx, id, funnel.TriggerReset); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ User %d has been reset.", id), nil
}

// MarkRegistered confirms a registration by hand.
func (s *Service) MarkRegistered(ctx context.Context, caller, id int64) (string, error) {
	if err := s.authorize(ctx, caller, "mark_registered"); err != nil {
		return "", err
	}
	if err := s.funnel.ConfirmRegistration(ctx, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ User %d marked as registered.", id), nil
}

// MarkDeposited confirms a deposit by hand.
func (s *Service) MarkDeposited(ctx context.Context, caller, id int64, amount decimal.NullDecimal) (string, error) {
	if err := s.authorize(ctx, caller, "mark_deposited"); err != nil {
		return "", err
	}
	rec := user.GetOrDefault(ctx, s.store, id)
	if err := s.funnel.ConfirmDeposit(ctx, id, amount, rec.Country); err != nil {
		return "", err
	}
	return fmt.Sprintf("💰 User %d marked as deposited.", id), nil
}

// Status describes one user.
func (s *Service) Status(ctx context.Context, caller, id int64) (string, error) {
	if err := s.authorize(ctx, caller, "status"); err != nil {
		return "", err
	}
	rec, err := s.existing(ctx, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("👤 User ID: %d\n📱 Registered: %s\n💰 Deposited: %s\n👑 Admin Approved: %s",
		id, mark(rec.Registered), mark(rec.Deposited), mark(rec.AdminApproved)), nil
}

func mark(b bool) string {
	if b {
		return "✅"
	}
	return "❌"
}

// Stats are aggregate counts over the store.
type Stats struct {
	Total      int
	Registered int
	Deposited  int
	Approved   int
}

// Text renders the statistics block.
func (st Stats) Text() string {
	return fmt.Sprintf("📊 Bot User Statistics:\n\n👥 Total Users: %d\n📝 Registered Users: %d\n💰 Deposited Users: %d\n👑 Approved Users: %d",
		st.Total, st.Registered, st.Deposited, st.Approved)
}

// Stats counts users per funnel flag.
func (s *Service) Stats(ctx context.Context, caller int64) (Stats, error) {
	if err := s.authorize(ctx, caller, "stats"); err != nil {
		return Stats{}, err
	}
	return Stats{
		Total:      len(s.store.ListIDs(ctx)),
		Registered: s.store.CountWhere(ctx, user.IsRegistered),
		Deposited:  s.store.CountWhere(ctx, user.IsDeposited),
		Approved:   s.store.CountWhere(ctx, user.IsApproved),
	}, nil
}

// Total selects a single counter.
type Total string

const (
	TotalUsers      Total = "users"
	TotalRegistered Total = "registered"
	TotalDeposited  Total = "deposited"
)

// Count renders one counter line.
func (s *Service) Count(ctx context.Context, caller int64, what Total) (string, error) {
	if err := s.authorize(ctx, caller, "count"); err != nil {
		return "", err
	}
	switch what {
	case TotalRegistered:
		return fmt.Sprintf("📝 Total registered users: %d", s.store.CountWhere(ctx, user.IsRegistered)), nil
	case TotalDeposited:
		return fmt.Sprintf("💰 Total deposited users: %d", s.store.CountWhere(ctx, user.IsDeposited)), nil
	default:
		return fmt.Sprintf("👥 Total users: %d", len(s.store.ListIDs(ctx))), nil
	}
}

// Refresh re-reads the store and reports what it holds.
func (s *Service) Refresh(ctx context.Context, caller int64) (string, error) {
	if err := s.authorize(ctx, caller, "refresh"); err != nil {
		return "", err
	}
	n := len(s.store.List(ctx))
	logger.Info(ctx, logger.CompAdmin, "admin.refresh", slog.String("status", "ok"), slog.Int("count", n))
	return fmt.Sprintf("♻️ User data refreshed successfully\n👥 Total users: %d", n), nil
}

// Close cancels a running broadcast and waits for it to report.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until the current broadcast, if any, has reported.
func (s *Service) Wait() { s.wg.Wait() }
