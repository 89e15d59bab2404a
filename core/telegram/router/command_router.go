package router

import (
	"context"
	"log/slog"
	"sort"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/logger"
	tg "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/middleware"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
	OnPanic       tele.HandlerFunc
}

// CommandRoutes returns one route per command name and alias, each behind
// the admin check and the shared update middleware.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	admin := middleware.AdminOptions{AdminID: opts.AdminID, OnReject: opts.OnAdminReject}

	cmds := reg.Commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	var routes []tg.Route
	for _, name := range names {
		cmd := cmds[name]
		checked := middleware.WithAdminCheck(admin, cmd)
		h := wrap(func(c tele.Context) error {
			return summarize(c, handlerName(name), checked)
		}, opts.OnPanic)
		for _, endpoint := range append([]string{name}, cmd.Aliases...) {
			routes = append(routes, tg.Route{Endpoint: endpoint, Handler: h})
		}
	}

	logger.TWire.LogAttrs(context.Background(), slog.LevelInfo, "tg.wire",
		slog.String("status", "ok"),
		slog.Int("commands", len(names)),
		slog.Int("count", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
