package tgbot

import (
	"context"
	"strings"

	tg "github.com/m3rciful/enrollbot/core/telegram"
	"github.com/m3rciful/enrollbot/core/telegram/callbacks"
	"github.com/m3rciful/enrollbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/enrollbot/core/telegram/helpers"
	"github.com/m3rciful/enrollbot/core/telegram/router"
	"github.com/m3rciful/enrollbot/intake/catalog"
	"github.com/m3rciful/enrollbot/intake/flow"

	tele "gopkg.in/telebot.v4"
)

// Submitter accepts inbound events; *dispatch.Dispatcher satisfies it.
type Submitter interface {
	Submit(ctx context.Context, ev flow.Event) error
}

// EventFromContext converts an update into an intake event. It reports false
// for updates without a sender.
func EventFromContext(c tele.Context) (flow.Event, bool) {
	user := c.Sender()
	if user == nil {
		return flow.Event{}, false
	}
	ev := flow.Event{UserID: user.ID}
	if cb := c.Callback(); cb != nil {
		ev.Kind = flow.KindCallback
		ev.Payload = callbacks.Raw(cb)
		return ev, true
	}

	msg := c.Message()
	switch {
	case msg == nil:
		ev.Kind = flow.KindOther
	case msg.Text == "":
		ev.Kind = flow.KindOther
	case strings.HasPrefix(msg.Text, "/"):
		ev.Kind = flow.KindCommand
		ev.Payload = msg.Text
	default:
		ev.Kind = flow.KindText
		ev.Payload = msg.Text
	}
	return ev, true
}

// Handler forwards the update to disp.
func Handler(disp Submitter) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev, ok := EventFromContext(c)
		if !ok {
			return nil
		}
		return disp.Submit(tghelpers.BuildContext(c), ev)
	}
}

// Routes registers the intake commands and callbacks in reg and returns the
// routes to hand to the runtime.
func Routes(reg *tg.Registry, disp Submitter, cat *catalog.Catalog) []tg.Route {
	h := Handler(disp)

	descriptions := make(map[string]string)
	description := "Start"
	for _, lang := range cat.Languages() {
		text, err := cat.Lookup(lang, catalog.KeyCommandStart)
		if err != nil {
			continue
		}
		if iso, err := cat.ISO(lang); err == nil {
			descriptions[iso] = text
		}
	}
	_ = reg.RegisterCommand("/start", commands.Command{
		Handler:      h,
		Description:  description,
		Descriptions: descriptions,
	})

	for _, lang := range cat.Languages() {
		_ = reg.RegisterCallback(flow.LanguagePayload(lang), h)
	}
	reg.SetCallbackNotFound(h)

	routes := router.CommandRoutes(reg)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{Text: h, Media: h})...)
	return routes
}
