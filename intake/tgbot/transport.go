// Package tgbot connects the intake pipeline to Telegram.
package tgbot

import (
	"context"
	"errors"
	"sync"

	"github.com/m3rciful/enrollbot/core/telegram/keyboard"
	"github.com/m3rciful/enrollbot/core/telegram/sender"
	"github.com/m3rciful/enrollbot/intake/flow"

	tele "gopkg.in/telebot.v4"
)

// ErrNotBound is returned when a reply is sent before the bot has started.
var ErrNotBound = errors.New("tgbot: transport is not bound to a bot")

// BotAPI is the subset of *tele.Bot used for delivery.
type BotAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Transport delivers flow replies to Telegram. The bot and the outbound queue
// only exist once the runtime starts, so they are bound late.
type Transport struct {
	mu  sync.RWMutex
	bot BotAPI
	out *sender.Dispatcher
}

// NewTransport returns an unbound transport.
func NewTransport() *Transport {
	return &Transport{}
}

// Bind attaches the bot and, optionally, the outbound queue. With a nil queue
// replies are sent inline.
func (t *Transport) Bind(bot BotAPI, out *sender.Dispatcher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bot = bot
	t.out = out
}

// Send queues reply on the recipient's sender lane, keeping per-user order.
func (t *Transport) Send(ctx context.Context, reply flow.Reply) error {
	t.mu.RLock()
	bot, out := t.bot, t.out
	t.mu.RUnlock()
	if bot == nil {
		return ErrNotBound
	}

	var opts []interface{}
	if markup := Markup(reply); markup != nil {
		opts = append(opts, markup)
	}
	run := func() error {
		_, err := bot.Send(tele.ChatID(reply.UserID), reply.Text, opts...)
		return err
	}
	if out == nil {
		return run()
	}
	return out.Enqueue(ctx, reply.UserID, "send", "sendMessage", run)
}

// Markup renders reply options. Options carrying callback data become inline
// buttons; plain labels become a reply keyboard, one button per row.
func Markup(reply flow.Reply) *tele.ReplyMarkup {
	switch {
	case len(reply.Options) == 0 && reply.ClearOptions:
		return keyboard.Remove()
	case len(reply.Options) == 0:
		return nil
	case reply.Options[0].Data != "":
		btns := make([]keyboard.Button, len(reply.Options))
		for i, o := range reply.Options {
			btns[i] = keyboard.Button{Label: o.Label, Data: o.Data}
		}
		return keyboard.Inline(1, btns...)
	}
	labels := make([]string, len(reply.Options))
	for i, o := range reply.Options {
		labels[i] = o.Label
	}
	return keyboard.Reply(1, labels...)
}
