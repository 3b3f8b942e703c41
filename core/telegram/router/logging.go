// Package router turns a Registry into telebot routes. Each handled update
// produces one "handler.handled" summary line.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/enrollbot/core/logger"
	tghelpers "github.com/m3rciful/enrollbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

var timeNow = time.Now

// invoke runs fn under handler name and logs its summary.
func invoke(c tele.Context, name string, fn tele.HandlerFunc, extras ...slog.Attr) error {
	start := timeNow()
	ctx := tghelpers.WithHandler(c, name)
	var err error
	if fn != nil {
		err = fn(c)
	}
	attrs := append(summaryAttrs(name, start, logger.Status(err), err), extras...)
	logger.Info(ctx, "tg", "handler.handled", attrs...)
	return err
}

// skipped logs an update no handler accepted.
func skipped(c tele.Context, name string) {
	ctx := tghelpers.WithHandler(c, name)
	attrs := summaryAttrs(name, timeNow(), "skip", nil)
	logger.Info(ctx, "tg", "handler.handled", attrs...)
}

func summaryAttrs(name string, start time.Time, status string, err error) []slog.Attr {
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	attrs := []slog.Attr{
		slog.String("handler", name),
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Duration("duration", logger.RoundMS(timeNow().Sub(start))),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	return attrs
}

func handlerName(key string) string {
	key = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if key == "" {
		return "unknown"
	}
	return strings.ReplaceAll(key, " ", "_")
}

// errorCode prefers an error's Code() and falls back to its type name.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	name := fmt.Sprintf("%T", err)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToUpper(strings.TrimLeft(name, "*"))
}
