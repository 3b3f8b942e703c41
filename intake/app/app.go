// Package app wires the intake components into the Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	corebootstrap "github.com/m3rciful/enrollbot/core/bootstrap"
	corecmd "github.com/m3rciful/enrollbot/core/cmd"
	"github.com/m3rciful/enrollbot/core/logger"
	coretelegram "github.com/m3rciful/enrollbot/core/telegram"
	"github.com/m3rciful/enrollbot/core/telegram/state"
	"github.com/m3rciful/enrollbot/intake/catalog"
	"github.com/m3rciful/enrollbot/intake/dispatch"
	"github.com/m3rciful/enrollbot/intake/flow"
	"github.com/m3rciful/enrollbot/intake/submission"
	"github.com/m3rciful/enrollbot/intake/tgbot"
)

var runBootstrap = corebootstrap.Run

// App holds the wired intake bot.
type App struct {
	Config     *Config
	Catalog    *catalog.Catalog
	Machine    *flow.Machine
	Sessions   *state.MemoryStore[flow.Session]
	Sink       submission.Sink
	Transport  *tgbot.Transport
	Dispatcher *dispatch.Dispatcher

	infra      *corebootstrap.Result
	sinkCloser io.Closer

	closeOnce sync.Once
	closeErr  error
}

// Bootstrap initializes logging, storage and the intake pipeline.
func Bootstrap(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	infra, err := runBootstrap(corebootstrap.Options{
		Config:      &cfg.Core,
		Database:    cfg.Database,
		UseDatabase: cfg.UsesDatabase(),
	})
	if err != nil {
		return nil, err
	}

	a, err := build(context.Background(), cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *Config, infra *corebootstrap.Result) (*App, error) {
	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("app: load catalog: %w", err)
	}
	machine, err := flow.NewMachine(cat, flow.Options{
		DefaultLanguage: cfg.Intake.DefaultLanguage,
		Courses:         cfg.Intake.Courses,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	sink, closer, err := submission.Open(ctx, cfg.Intake.Sink, infra.DB)
	if err != nil {
		return nil, fmt.Errorf("app: open sink: %w", err)
	}

	sessions := state.NewMemoryStore(flow.NewSession, flow.Session.Clone)
	transport := tgbot.NewTransport()
	disp, err := dispatch.New(dispatch.Options{
		Store:     sessions,
		Machine:   machine,
		Sink:      sink,
		Transport: transport,
		Workers:   cfg.Intake.Workers,
		QueueSize: cfg.Intake.QueueSize,
	})
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	logger.Info(ctx, "app", "intake.ready",
		slog.String("language", machine.DefaultLanguage()),
		slog.Any("courses", machine.Courses()),
		slog.String("sink", cfg.Intake.Sink.Driver),
		slog.Int("workers", cfg.Intake.Workers),
	)

	return &App{
		Config:     cfg,
		Catalog:    cat,
		Machine:    machine,
		Sessions:   sessions,
		Sink:       sink,
		Transport:  transport,
		Dispatcher: disp,
		infra:      infra,
		sinkCloser: closer,
	}, nil
}

// TelegramRunOptions assembles routes, middlewares and lifecycle hooks.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	if a == nil || a.Config == nil {
		return coretelegram.RunOptions{}, errors.New("app: not bootstrapped")
	}
	reg := coretelegram.NewRegistry()
	routes := tgbot.Routes(reg, a.Dispatcher, a.Catalog)

	return coretelegram.RunOptions{
		Config:      &a.Config.Core,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(&a.Config.Core, nil),
		Routes:      routes,
		Synchronous: true,
		OnStart: func(_ context.Context, rt coretelegram.Runtime) error {
			if rt.Bot == nil {
				return errors.New("app: runtime has no bot")
			}
			a.Transport.Bind(rt.Bot, rt.Dispatcher)
			return nil
		},
		OnStop: func(_ context.Context, _ coretelegram.Runtime) error {
			return a.Close()
		},
	}, nil
}

// Close drains queued events, then releases the sink and the database.
// Later calls return the first result.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.Dispatcher != nil {
			a.Dispatcher.Close()
		}
		var errs []error
		if a.sinkCloser != nil {
			if err := a.sinkCloser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close sink: %w", err))
			}
		}
		if err := a.infra.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		a.closeErr = errors.Join(errs...)
		sessions := 0
		if a.Sessions != nil {
			sessions = a.Sessions.Len()
		}
		logger.Info(context.Background(), "app", "intake.closed",
			slog.Int("sessions", sessions),
			slog.String("status", logger.Status(a.closeErr)),
		)
	})
	return a.closeErr
}

// RunOptions adapts the intake app to the shared command runner.
func RunOptions(configPath string) corecmd.Options {
	return corecmd.Options{
		ConfigPath:        configPath,
		DefaultConfigPath: "configs/config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			c, ok := cfg.(*Config)
			if !ok {
				return nil, fmt.Errorf("app: unexpected config type %T", cfg)
			}
			return Bootstrap(c)
		},
	}
}
