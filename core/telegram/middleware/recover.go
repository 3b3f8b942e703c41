package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/enrollbot/core/logger"
	tghelpers "github.com/m3rciful/enrollbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware turns a handler panic into an error so one bad update
// cannot stop the poller.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			ctx, ok := tghelpers.ContextFrom(c)
			if !ok {
				ctx = logger.Background()
			}
			logger.Error(ctx, "tg", "tg.panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}()
		return next(c)
	}
}
