package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/enrollbot/core/logger"
	"github.com/m3rciful/enrollbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry holds bot commands, callback handlers and their fallbacks. It is
// safe for concurrent use.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry returns an empty registry whose unknown-callback fallback
// answers with a short toast.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

func wireSkip(event, key, reason string) error {
	logger.Warn(context.Background(), "tg.wire", event,
		slog.String("key", key),
		slog.String("reason", reason),
	)
	return fmt.Errorf("telegram: %s %q: %s", strings.TrimPrefix(event, "register."), key, reason)
}

// RegisterCommand adds cmd under name, which must start with "/". Commands
// need a handler and a description; duplicates are rejected.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return wireSkip("register.command", name, "no_slash_prefix")
	case cmd.Handler == nil || cmd.Description == "":
		return wireSkip("register.command", name, "invalid")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[name]; dup {
		return wireSkip("register.command", name, "duplicate")
	}
	r.commands[name] = cmd
	return nil
}

// ListCommands returns the command menu sorted by name. visibleOnly drops
// hidden commands; languageCode selects localized descriptions.
func (r *Registry) ListCommands(visibleOnly bool, languageCode string) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for _, name := range slices.Sorted(maps.Keys(r.commands)) {
		meta := r.commands[name]
		if visibleOnly && meta.Hidden {
			continue
		}
		list = append(list, tele.Command{
			Text:        strings.TrimPrefix(name, "/"),
			Description: meta.DescriptionFor(languageCode),
		})
	}
	return list
}

// CommandLanguages lists, sorted, every language code with a localized description.
func (r *Registry) CommandLanguages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var codes []string
	for _, meta := range r.commands {
		for code := range meta.Descriptions {
			if !slices.Contains(codes, code) {
				codes = append(codes, code)
			}
		}
	}
	slices.Sort(codes)
	return codes
}

// LookupCommand resolves name, with or without the leading slash, or one of
// the aliases to the canonical command key.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	key := "/" + strings.TrimPrefix(name, "/")
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[key]; ok {
		return key, cmd, true
	}
	for canon, cmd := range r.commands {
		if slices.ContainsFunc(cmd.Aliases, func(a string) bool { return "/"+strings.TrimPrefix(a, "/") == key }) {
			return canon, cmd, true
		}
	}
	return "", commands.Command{}, false
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.commands)
}

// RegisterCallback maps key, as produced by callbacks.ParseCallbackData, to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return wireSkip("register.callback", key, "invalid")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		return wireSkip("register.callback", key, "duplicate")
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler registered for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered callback keys, sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.callbacks))
}

// SetCallbackNotFound replaces the fallback for unknown callbacks. nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the fallback for unknown callbacks.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text no route claims.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

// TextFallback returns the handler for unclaimed text.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// CommandSetter is the subset of *tele.Bot used to publish the command menu.
type CommandSetter interface {
	SetCommands(opts ...interface{}) error
}

// SetupCommands publishes the default command menu plus one menu per language
// code so clients show descriptions in the user's language. A failure on the
// default menu skips the localized ones.
func SetupCommands(bot CommandSetter, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	ctx := context.Background()
	if err := bot.SetCommands(reg.ListCommands(true, "")); err != nil {
		logger.Error(ctx, "tg.wire", "commands.publish", slog.String("err", err.Error()))
		return
	}
	codes := reg.CommandLanguages()
	for _, code := range codes {
		if err := bot.SetCommands(reg.ListCommands(true, code), code); err != nil {
			logger.Warn(ctx, "tg.wire", "commands.publish",
				slog.String("lang", code),
				slog.String("err", err.Error()),
			)
		}
	}
	logger.Info(ctx, "tg.wire", "commands.publish",
		slog.Int("commands", len(reg.ListCommands(false, ""))),
		slog.Int("languages", len(codes)),
	)
}
