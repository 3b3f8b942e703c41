package router

import (
	"log/slog"

	tg "github.com/m3rciful/enrollbot/core/telegram"
	"github.com/m3rciful/enrollbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	// NotFound overrides the registry's callback fallback.
	NotFound tele.HandlerFunc
}

// CallbackRoute routes every callback through the registry by its key.
// Callbacks are acknowledged before the handler runs.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler: func(c tele.Context) error {
			cb := c.Callback()
			if cb == nil {
				return nil
			}
			_ = c.Respond()

			key, _ := callbacks.ParseCallbackData(cb)
			name := "callback." + handlerName(key)
			if h := lookupCallback(reg, key); h != nil {
				return invoke(c, name, h, slog.String("cb_key", key))
			}

			fallback := opts.NotFound
			if fallback == nil && reg != nil {
				fallback = reg.CallbackNotFound()
			}
			return invoke(c, name, fallback,
				slog.String("cb_key", key),
				slog.String("reason", "not_found"),
			)
		},
	}
}

func lookupCallback(reg *tg.Registry, key string) tele.HandlerFunc {
	if reg == nil {
		return nil
	}
	h, _ := reg.GetCallback(key)
	return h
}
