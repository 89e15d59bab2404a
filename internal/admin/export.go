package admin

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/internal/notify"
)

// ExportName is the file name of the CSV export.
const ExportName = "users_export.csv"

var exportHeader = []string{"User ID", "Username", "Registered", "Deposited", "Admin Approved", "Amount"}

// ExportCSV renders every stored user as a CSV document.
func (s *Service) ExportCSV(ctx context.Context, caller int64) (notify.Document, error) {
	if err := s.authorize(ctx, caller, "export"); err != nil {
		return notify.Document{}, err
	}
	records := s.store.List(ctx)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return notify.Document{}, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		amount := ""
		if r.Amount.Valid {
			amount = r.Amount.Decimal.String()
		}
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.Username,
			flag(r.Registered),
			flag(r.Deposited),
			flag(r.AdminApproved),
			amount,
		}
		if err := w.Write(row); err != nil {
			return notify.Document{}, fmt.Errorf("write csv row %d: %w", r.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return notify.Document{}, fmt.Errorf("flush csv: %w", err)
	}
	logger.Info(ctx, logger.CompAdmin, "admin.export", slog.String("status", "ok"), slog.Int("count", len(records)))
	return notify.Document{Name: ExportName, Data: buf.Bytes(), Caption: "📁 User data export"}, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
