// Package helpers carries per-update logging context through telebot handlers.
package helpers

import (
	"context"

	"github.com/m3rciful/enrollbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const contextKey = "update_ctx"

// StoreContext attaches ctx to c for downstream handlers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextKey, ctx)
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(contextKey).(context.Context)
	return ctx, ok && ctx != nil
}

// NewUpdateContext builds a fresh correlation context (rid, update, user and
// chat ids) for the update in c and stores it.
func NewUpdateContext(c tele.Context) context.Context {
	upd := c.Update()
	var userID, chatID int64
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		chatID = ch.ID
	}

	ctx := logger.WithRID(context.Background(), logger.BuildRID(upd.ID, chatID, userID))
	ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// BuildContext returns the stored context, creating it on first use.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	return NewUpdateContext(c)
}

// WithHandler tags the stored context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
