package router

import (
	"strings"

	tg "github.com/m3rciful/enrollbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls fallback behaviour for text and media updates.
type TextOptions struct {
	// Text receives every text update that is not a registered command alias.
	Text tele.HandlerFunc
	// Media receives photos, stickers, documents and other non-text messages.
	Media tele.HandlerFunc
}

// TextRoutes builds the text, media and sticker routes. Slash-prefixed text
// naming a registered command or alias goes to that command first; plain
// text never does, so free-form answers cannot trigger commands.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		if t := c.Text(); reg != nil && strings.HasPrefix(t, "/") {
			if key, cmd, ok := reg.LookupCommand(t); ok && cmd.Handler != nil {
				return invoke(c, handlerName(key), cmd.Handler)
			}
		}
		switch {
		case opts.Text != nil:
			return invoke(c, "text", opts.Text)
		case reg != nil && reg.TextFallback() != nil:
			return invoke(c, "fallback", reg.TextFallback())
		}
		skipped(c, "unknown_text")
		return nil
	}
	media := func(c tele.Context) error {
		if opts.Media == nil {
			skipped(c, "unexpected_media")
			return nil
		}
		return invoke(c, "media", opts.Media)
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: text},
		{Endpoint: tele.OnMedia, Handler: media},
		{Endpoint: tele.OnSticker, Handler: media},
	}
}
