package router

import (
	"log/slog"

	"github.com/m3rciful/enrollbot/core/logger"
	tg "github.com/m3rciful/enrollbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes returns one route per registered command.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}
	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for key, cmd := range cmds {
		name, handler := handlerName(key), cmd.Handler
		routes = append(routes, tg.Route{
			Endpoint: key,
			Handler:  func(c tele.Context) error { return invoke(c, name, handler) },
		})
	}
	logger.Info(logger.Background(), "tg.wire", "routes.commands",
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
