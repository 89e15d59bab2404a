package middleware

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
)

// AdminOptions names the single admin account. OnReject answers everyone
// else; nil drops the update silently.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

func (o AdminOptions) allows(c tele.Context) bool {
	u := c.Sender()
	return o.AdminID != 0 && u != nil && u.ID == o.AdminID
}

// WithAdminCheck returns cmd's handler, gated on the admin account when
// the command is admin-only.
func WithAdminCheck(opts AdminOptions, cmd commands.Command) tele.HandlerFunc {
	if !cmd.AdminOnly {
		return cmd.Handler
	}
	return func(c tele.Context) error {
		if opts.allows(c) {
			return cmd.Handler(c)
		}
		var uid int64
		if u := c.Sender(); u != nil {
			uid = u.ID
		}
		logger.Warn(tghelpers.BuildContext(c), logger.CompAdmin, "admin.denied",
			slog.String("status", "skip"),
			slog.Int64("user_id", uid),
		)
		if opts.OnReject == nil {
			return nil
		}
		return opts.OnReject(c)
	}
}
