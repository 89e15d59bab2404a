package admin

import (
	"context"

	"github.com/m3rciful/funnelbot/core/telegram/keyboard"
	"github.com/m3rciful/funnelbot/internal/notify"
)

// Dashboard button uniques.
const (
	CbTotalUsers      = "admin_total_users"
	CbTotalRegistered = "admin_total_registered"
	CbTotalDeposited  = "admin_total_deposited"
	CbBroadcast       = "admin_broadcast"
	CbExportUsers     = "admin_export_users"
	CbRefreshData     = "admin_refresh_data"
	CbApproveUser     = "admin_approve_user"
	CbResetUser       = "admin_reset_user"
)

// Dashboard returns the inline admin panel.
func (s *Service) Dashboard(ctx context.Context, caller int64) (notify.Message, error) {
	if err := s.authorize(ctx, caller, "dashboard"); err != nil {
		return notify.Message{}, err
	}
	return notify.Message{
		Text:    "Admin Dashboard:",
		Formats: []notify.Format{notify.FormatPlain},
		Buttons: [][]keyboard.InlineBtn{
			{{Text: "👥 Total Users", Unique: CbTotalUsers}},
			{{Text: "📝 Total Registered", Unique: CbTotalRegistered}},
			{{Text: "💰 Total Deposited", Unique: CbTotalDeposited}},
			{{Text: "📤 Broadcast", Unique: CbBroadcast}},
			{{Text: "📁 Export Users", Unique: CbExportUsers}},
			{{Text: "🔄 Refresh Data", Unique: CbRefreshData}},
			{{Text: "✅ Approve User", Unique: CbApproveUser}, {Text: "♻️ Reset User", Unique: CbResetUser}},
		},
	}, nil
}
