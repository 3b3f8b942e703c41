package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/enrollbot/core/config"
	"github.com/m3rciful/enrollbot/core/logger"
	tghelpers "github.com/m3rciful/enrollbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/enrollbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	HTTPClient HTTPClientOptions

	DisableWebhookCleanup bool
	// Synchronous processes updates one at a time in arrival order.
	Synchronous bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot, wires middlewares and routes, publishes the
// command menu and serves updates until ctx is done. OnStop runs after the
// poller has stopped; the dispatcher is drained last.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config provided")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	poller := BuildPoller(cfg)
	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:       cfg.Telegram.Token,
		Poller:      poller,
		Client:      BuildHTTPClient(opts.HTTPClient),
		Synchronous: opts.Synchronous,
		OnError:     logUpdateError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	logMode(ctx, bot, cfg, poller, opts.DisableWebhookCleanup, logger.Took(start))

	rt := Runtime{Bot: bot, Dispatcher: opts.Dispatcher, Registry: opts.Registry}
	if rt.Dispatcher == nil {
		rt.Dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	defer rt.Dispatcher.Close()

	wire(bot, opts)
	SetupCommands(bot, opts.Registry)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}
	runErr := serve(ctx, bot)
	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	return runErr
}

// wire registers middlewares, outermost first, then routes.
func wire(bot *tele.Bot, opts RunOptions) {
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
}

// serve blocks in bot.Start until ctx is cancelled. Cancellation is a clean
// shutdown and yields nil.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		bot.Stop()
		<-done
	}
	if err := ctx.Err(); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func logUpdateError(err error, c tele.Context) {
	if err == nil {
		return
	}
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Error(ctx, "tg", "update.error", slog.String("err", logger.SanitizeLimit(err.Error(), 512)))
}

func logMode(ctx context.Context, bot *tele.Bot, cfg *coreconfig.Config, poller tele.Poller, keepWebhook bool, took time.Duration) {
	if wh, ok := poller.(*tele.Webhook); ok {
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", cfg.Telegram.RunMode),
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
			slog.Duration("duration", took),
		)
		return
	}
	logger.Info(ctx, "tg", "mode",
		slog.String("mode", cfg.Telegram.RunMode),
		slog.Duration("timeout", longPollTimeout(cfg)),
		slog.Duration("duration", took),
	)
	if keepWebhook {
		return
	}
	// A leftover webhook makes getUpdates fail with 409. Updates queued while
	// the bot was down are dropped rather than replayed into fresh sessions.
	if err := bot.RemoveWebhook(true); err != nil {
		logger.Warn(ctx, "tg", "webhook.remove", slog.String("err", err.Error()))
		return
	}
	logger.Debug(ctx, "tg", "webhook.remove", slog.String("status", "ok"))
}
