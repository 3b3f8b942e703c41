package middleware

import (
	"log/slog"
	"sync"
	"time"

	coreconfig "github.com/m3rciful/enrollbot/core/config"
	"github.com/m3rciful/enrollbot/core/logger"
	tghelpers "github.com/m3rciful/enrollbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures RateLimitMiddleware. A zero Interval disables it.
type RateLimitOptions struct {
	Interval time.Duration
	// Skip reports update kinds (see UpdateKind) that bypass the limit.
	Skip      func(kind string) bool
	OnLimited tele.HandlerFunc
	Now       func() time.Time
}

// UpdateKind classifies an update for rate-limit exclusions.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return coreconfig.UpdateCallback
	case upd.Message != nil:
		return coreconfig.UpdateMessage
	}
	return "other"
}

type lastSeen struct {
	mu       sync.Mutex
	at       map[int64]time.Time
	interval time.Duration
	sweeps   int
}

// allow records now for user unless the previous update is too recent.
func (l *lastSeen) allow(user int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.at[user]; ok && now.Sub(prev) < l.interval {
		return false
	}
	l.at[user] = now
	if l.sweeps++; l.sweeps >= 1024 {
		l.sweeps = 0
		for id, t := range l.at {
			if now.Sub(t) >= l.interval {
				delete(l.at, id)
			}
		}
	}
	return true
}

// RateLimitMiddleware drops updates that arrive from the same user faster than
// opts.Interval. Dropped updates are logged and passed to OnLimited.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	seen := &lastSeen{at: make(map[int64]time.Time), interval: opts.Interval}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := UpdateKind(c.Update())
			if opts.Skip != nil && opts.Skip(kind) {
				return next(c)
			}
			if seen.allow(user.ID, now()) {
				return next(c)
			}

			ctx := tghelpers.BuildContext(c)
			logger.Warn(ctx, "tg", "tg.rate_limit",
				slog.String("kind", kind),
				slog.String("outcome", "rate_limited"),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
