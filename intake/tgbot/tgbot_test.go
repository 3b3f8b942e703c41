package tgbot

import (
	"context"
	"errors"
	"sync"
	"testing"

	tg "github.com/m3rciful/enrollbot/core/telegram"
	"github.com/m3rciful/enrollbot/core/telegram/sender"
	"github.com/m3rciful/enrollbot/intake/catalog"
	"github.com/m3rciful/enrollbot/intake/flow"

	tele "gopkg.in/telebot.v4"
)

type sent struct {
	to   string
	text string
	opts []interface{}
}

type fakeBot struct {
	mu   sync.Mutex
	msgs []sent
}

func (b *fakeBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, sent{to: to.Recipient(), text: what.(string), opts: opts})
	return &tele.Message{}, nil
}

type fakeContext struct {
	tele.Context
	user  *tele.User
	msg   *tele.Message
	cb    *tele.Callback
	store map[string]interface{}
}

func newContext(user *tele.User) *fakeContext {
	return &fakeContext{user: user, store: map[string]interface{}{}}
}

func (f *fakeContext) Sender() *tele.User         { return f.user }
func (f *fakeContext) Message() *tele.Message     { return f.msg }
func (f *fakeContext) Callback() *tele.Callback   { return f.cb }
func (f *fakeContext) Chat() *tele.Chat           { return nil }
func (f *fakeContext) Update() tele.Update        { return tele.Update{ID: 10, Message: f.msg, Callback: f.cb} }
func (f *fakeContext) Get(key string) interface{} { return f.store[key] }
func (f *fakeContext) Set(key string, v interface{}) {
	f.store[key] = v
}

type captured struct {
	mu     sync.Mutex
	events []flow.Event
}

func (c *captured) Submit(_ context.Context, ev flow.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func TestSendRequiresBinding(t *testing.T) {
	tr := NewTransport()
	if err := tr.Send(context.Background(), flow.Reply{UserID: 1, Text: "hi"}); !errors.Is(err, ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
}

func TestSendInline(t *testing.T) {
	bot := &fakeBot{}
	tr := NewTransport()
	tr.Bind(bot, nil)

	err := tr.Send(context.Background(), flow.Reply{UserID: 42, Text: "🌐", Options: []flow.Option{
		{Label: "Русский", Data: "lang_ru"},
		{Label: "Қазақша", Data: "lang_kz"},
	}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(bot.msgs) != 1 || bot.msgs[0].to != "42" || bot.msgs[0].text != "🌐" {
		t.Fatalf("sent = %+v", bot.msgs)
	}
	markup, ok := bot.msgs[0].opts[0].(*tele.ReplyMarkup)
	if !ok || len(markup.InlineKeyboard) != 2 || markup.InlineKeyboard[0][0].Data != "lang_ru" {
		t.Fatalf("markup = %+v", bot.msgs[0].opts)
	}
}

func TestSendThroughSenderKeepsOrder(t *testing.T) {
	bot := &fakeBot{}
	out := sender.NewDispatcher(sender.Options{Workers: 3})
	tr := NewTransport()
	tr.Bind(bot, out)

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		if err := tr.Send(context.Background(), flow.Reply{UserID: 7, Text: text}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	out.Close()

	if len(bot.msgs) != len(texts) {
		t.Fatalf("sent %d messages", len(bot.msgs))
	}
	for i, m := range bot.msgs {
		if m.text != texts[i] || len(m.opts) != 0 {
			t.Fatalf("message %d = %+v", i, m)
		}
	}
}

func TestMarkup(t *testing.T) {
	if Markup(flow.Reply{Text: "x"}) != nil {
		t.Fatal("plain reply must not carry markup")
	}
	if m := Markup(flow.Reply{ClearOptions: true}); m == nil || !m.RemoveKeyboard {
		t.Fatal("ClearOptions must remove the keyboard")
	}
	m := Markup(flow.Reply{Options: []flow.Option{{Label: "Python"}, {Label: "Arduino"}}})
	if m == nil || len(m.ReplyKeyboard) != 2 || m.ReplyKeyboard[1][0].Text != "Arduino" {
		t.Fatalf("reply keyboard = %+v", m)
	}
}

func TestEventFromContext(t *testing.T) {
	user := &tele.User{ID: 5}
	cases := []struct {
		name string
		ctx  *fakeContext
		want flow.Event
	}{
		{"text", &fakeContext{user: user, msg: &tele.Message{Text: "Ivan"}}, flow.Event{UserID: 5, Kind: flow.KindText, Payload: "Ivan"}},
		{"command", &fakeContext{user: user, msg: &tele.Message{Text: "/start"}}, flow.Event{UserID: 5, Kind: flow.KindCommand, Payload: "/start"}},
		{"callback", &fakeContext{user: user, cb: &tele.Callback{Data: "lang_kz"}}, flow.Event{UserID: 5, Kind: flow.KindCallback, Payload: "lang_kz"}},
		{"photo", &fakeContext{user: user, msg: &tele.Message{Photo: &tele.Photo{}}}, flow.Event{UserID: 5, Kind: flow.KindOther}},
	}
	for _, tc := range cases {
		got, ok := EventFromContext(tc.ctx)
		if !ok || got != tc.want {
			t.Fatalf("%s: got %+v %v, want %+v", tc.name, got, ok, tc.want)
		}
	}
	if _, ok := EventFromContext(&fakeContext{}); ok {
		t.Fatal("updates without sender must be skipped")
	}
}

func TestHandlerSubmits(t *testing.T) {
	sink := &captured{}
	c := newContext(&tele.User{ID: 9})
	c.msg = &tele.Message{Text: "📚 Курсы"}

	if err := Handler(sink)(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].Payload != "📚 Курсы" || sink.events[0].Kind != flow.KindText {
		t.Fatalf("events = %+v", sink.events)
	}
}

func TestRoutesRegisterIntake(t *testing.T) {
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	reg := tg.NewRegistry()
	routes := Routes(reg, &captured{}, cat)

	if len(routes) != 5 {
		t.Fatalf("routes = %d, want 5", len(routes))
	}
	_, start, ok := reg.LookupCommand("/start")
	if !ok {
		t.Fatal("/start not registered")
	}
	if start.DescriptionFor("kk") == start.Description || start.DescriptionFor("ru") == start.Description {
		t.Fatalf("missing localized descriptions: %+v", start.Descriptions)
	}
	cbs := reg.ListCallbacks()
	if len(cbs) != 2 || cbs[0] != "lang_kz" || cbs[1] != "lang_ru" {
		t.Fatalf("callbacks = %v", cbs)
	}
	if codes := reg.CommandLanguages(); len(codes) != 2 {
		t.Fatalf("command languages = %v", codes)
	}
}
