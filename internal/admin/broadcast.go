package admin

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/core/telegram/keyboard"
	"github.com/m3rciful/funnelbot/internal/notify"
)

// Callback uniques of the photo preview buttons.
const (
	CbConfirmPhoto = "confirm_photo_broadcast"
	CbCancelPhoto  = "cancel_photo_broadcast"
)

// PhotoDraft is a photo waiting for confirmation.
type PhotoDraft struct {
	FileID  string
	Caption string
}

// Broadcast sends text to every stored user in the background. The admin
// receives the report when the run finishes.
func (s *Service) Broadcast(ctx context.Context, caller int64, text string) error {
	if err := s.authorize(ctx, caller, "broadcast"); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return s.start(ctx, notify.Message{Text: text})
}

// PreparePhoto stores draft and returns the preview to show the admin.
func (s *Service) PreparePhoto(ctx context.Context, caller int64, draft PhotoDraft) (notify.Message, error) {
	if err := s.authorize(ctx, caller, "broadcast_photo"); err != nil {
		return notify.Message{}, err
	}
	if draft.FileID == "" {
		return notify.Message{}, ErrPhotoMissing
	}
	s.mu.Lock()
	s.draft = &draft
	s.mu.Unlock()

	preview := "📸 Photo broadcast preview:\n"
	if draft.Caption != "" {
		preview += "\nCaption: " + draft.Caption
	}
	return notify.Message{
		Text:    preview,
		Photo:   &notify.Photo{FileID: draft.FileID},
		Formats: []notify.Format{notify.FormatPlain},
		Buttons: [][]keyboard.InlineBtn{
			{{Text: "✅ Confirm", Unique: CbConfirmPhoto}},
			{{Text: "❌ Cancel", Unique: CbCancelPhoto}},
		},
	}, nil
}

// ConfirmPhoto starts the broadcast of the pending draft.
func (s *Service) ConfirmPhoto(ctx context.Context, caller int64) error {
	if err := s.authorize(ctx, caller, "broadcast_photo"); err != nil {
		return err
	}
	s.mu.Lock()
	draft := s.draft
	s.draft = nil
	s.mu.Unlock()
	if draft == nil {
		return ErrPhotoMissing
	}
	return s.BroadcastPhoto(ctx, caller, draft.FileID, draft.Caption)
}

// CancelPhoto drops the pending draft.
func (s *Service) CancelPhoto(ctx context.Context, caller int64) (string, error) {
	if err := s.authorize(ctx, caller, "broadcast_photo"); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.draft = nil
	s.mu.Unlock()
	return "❌ Photo broadcast cancelled.", nil
}

// BroadcastPhoto sends a photo with caption to every stored user in the
// background.
func (s *Service) BroadcastPhoto(ctx context.Context, caller int64, fileID, caption string) error {
	if err := s.authorize(ctx, caller, "broadcast_photo"); err != nil {
		return err
	}
	if fileID == "" {
		return ErrPhotoMissing
	}
	return s.start(ctx, notify.Message{Text: caption, Photo: &notify.Photo{FileID: fileID}})
}

// start launches one run at a time.
func (s *Service) start(ctx context.Context, msg notify.Message) error {
	ids := s.store.ListIDs(ctx)
	if len(ids) == 0 {
		logger.Warn(ctx, logger.CompAdmin, "admin.broadcast", slog.String("status", "skip"))
		return ErrNoUsers
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrBroadcastRunning
	}
	s.wg.Add(1)
	run := logger.WithRID(s.ctx, logger.NewRID("broadcast"))
	logger.Info(run, logger.CompAdmin, "admin.broadcast",
		slog.String("status", "ok"),
		slog.Int("recipients", len(ids)),
		slog.Bool("photo", msg.Photo != nil),
	)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.report(run, s.out.Broadcast(run, ids, msg))
	}()
	return nil
}

func (s *Service) report(run context.Context, r notify.Report) {
	ctx := context.WithoutCancel(run)
	lines := []string{r.Summary(), r.FormatBreakdown()}
	if details := r.FailureDetails(); details != "" {
		lines = append(lines, details)
	}
	if r.Cancelled {
		lines = append(lines, "⏹ Broadcast stopped before reaching every user.")
	}
	for _, text := range lines {
		if _, err := s.out.Send(ctx, s.adminID, notify.Message{Text: text, Formats: []notify.Format{notify.FormatPlain}}); err != nil {
			logger.Warn(ctx, logger.CompAdmin, "admin.broadcast_report",
				slog.String("status", "fail"),
				slog.String("run_id", r.RunID),
				slog.String("err", err.Error()),
			)
			return
		}
	}
}
