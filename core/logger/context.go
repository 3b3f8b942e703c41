package logger

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	ctxRID contextKey = iota
	ctxUpdateID
	ctxUserID
	ctxChatID
	ctxLogger
	ctxHandler
)

func withValue(ctx context.Context, key contextKey, v any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func valueFrom[T any](ctx context.Context, key contextKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	v, _ := ctx.Value(key).(T)
	return v
}

// WithLogger stores log in ctx for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withValue(ctx, ctxLogger, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if l := valueFrom[*slog.Logger](ctx, ctxLogger); l != nil {
		return l
	}
	return L
}

// WithRID attaches a request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withValue(ctx, ctxRID, rid)
}

// RIDFrom returns the correlation id, if any.
func RIDFrom(ctx context.Context) string { return valueFrom[string](ctx, ctxRID) }

// WithUpdateMeta attaches the Telegram update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	ctx = withValue(ctx, ctxUpdateID, updateID)
	ctx = withValue(ctx, ctxUserID, userID)
	return withValue(ctx, ctxChatID, chatID)
}

// WithHandler names the handler processing the current update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withValue(ctx, ctxHandler, handler)
}

// HandlerFrom returns the handler name, if any.
func HandlerFrom(ctx context.Context) string { return valueFrom[string](ctx, ctxHandler) }

// UserIDFrom returns the Telegram user id, if any.
func UserIDFrom(ctx context.Context) int64 { return valueFrom[int64](ctx, ctxUserID) }

// ChatIDFrom returns the chat id, if any.
func ChatIDFrom(ctx context.Context) int64 { return valueFrom[int64](ctx, ctxChatID) }

// UpdateIDFrom returns the update id, if any.
func UpdateIDFrom(ctx context.Context) int { return valueFrom[int](ctx, ctxUpdateID) }

// contextAttrs lists correlation fields carried by ctx in key order.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var out []slog.Attr
	if rid := RIDFrom(ctx); rid != "" {
		out = append(out, slog.String("rid", rid))
	}
	if id := UpdateIDFrom(ctx); id != 0 {
		out = append(out, slog.Int("update_id", id))
	}
	if id := UserIDFrom(ctx); id != 0 {
		out = append(out, slog.Int64("user_id", id))
	}
	if id := ChatIDFrom(ctx); id != 0 {
		out = append(out, slog.Int64("chat_id", id))
	}
	if h := HandlerFrom(ctx); h != "" {
		out = append(out, slog.String("handler", h))
	}
	return out
}
