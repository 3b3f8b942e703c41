package telegram

import (
	coreconfig "github.com/m3rciful/enrollbot/core/config"
	"github.com/m3rciful/enrollbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares returns recover, the optional per-user rate limit and the
// update logger, outermost first. onLimited may be nil.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	mws := []Middleware{{Name: "recover", Use: middleware.RecoverMiddleware}}

	if cfg != nil && cfg.RateLimit.Interval() > 0 {
		rl := cfg.RateLimit
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval:  rl.Interval(),
				Skip:      rl.Excluded,
				OnLimited: onLimited,
			}),
		})
	}
	return append(mws, Middleware{Name: "logger", Use: middleware.LoggerMiddleware})
}
