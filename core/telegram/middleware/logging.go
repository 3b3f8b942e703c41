package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/enrollbot/core/logger"
	"github.com/m3rciful/enrollbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/enrollbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers recently logged update ids so an update routed
// through several branches is logged once.
type seenUpdates struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[int]time.Time
	now  func() time.Time
}

var receipts = &seenUpdates{ttl: 10 * time.Second, seen: make(map[int]time.Time), now: time.Now}

// first reports whether id has not been seen within the ttl and records it.
func (s *seenUpdates) first(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, ts := range s.seen {
		if now.Sub(ts) > s.ttl {
			delete(s.seen, k)
		}
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = now
	return true
}

// LoggerMiddleware stores the update's correlation context and writes one
// sampled debug line per update. Message text goes under "text", which the
// logger masks by default.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.NewUpdateContext(c)
		c.Set("rid", logger.RIDFrom(ctx))
		c.Set("update_start", time.Now())

		upd := c.Update()
		if logger.ShouldSampleDebug() && receipts.first(upd.ID) {
			logger.Debug(ctx, "tg", "update.received", receiptAttrs(c, upd)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context, upd tele.Update) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("language", user.LanguageCode))
		}
	}
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		attrs = append(attrs,
			slog.String("cb_key", logger.SanitizeLimit(key, 128)),
			slog.String("payload", logger.SanitizeLimit(payload, 256)),
		)
	case upd.Message != nil:
		attrs = append(attrs, slog.String("text", logger.SanitizeLimit(c.Text(), 256)))
	}
	return attrs
}
