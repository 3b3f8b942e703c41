// Package cmd wires configuration loading, bootstrap and the Telegram runtime
// into a single blocking Run.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/enrollbot/core/config"
	"github.com/m3rciful/enrollbot/core/logger"
	coretelegram "github.com/m3rciful/enrollbot/core/telegram"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is the minimal interface required to run a Telegram bot. Apps
// that also implement io.Closer are closed when the runtime exits without
// reaching the stop hook.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// ConfigPath wins over ConfigEnvVar and DefaultConfigPath when set.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// ConfigPathFor resolves the config location: explicit path, then the env
// variable (CONFIG_PATH by default), then the default.
func (o Options) ConfigPathFor() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	env := o.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if o.DefaultConfigPath != "" {
		return o.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: no config path: set %s or a default", env)
}

// Run loads configuration, bootstraps the app and blocks in the Telegram
// runtime until SIGINT or SIGTERM.
func Run(opts Options) error {
	switch {
	case opts.LoadConfig == nil:
		return errors.New("cmd: LoadConfig is required")
	case opts.Bootstrap == nil:
		return errors.New("cmd: Bootstrap is required")
	}
	path, err := opts.ConfigPathFor()
	if err != nil {
		return err
	}

	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	startedAt := time.Now()
	app, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	shutdown := opts.ShutdownLogger
	if shutdown == nil {
		shutdown = logger.Shutdown
	}
	defer func() {
		if err := shutdown(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()

	stopped := false
	defer func() {
		if !stopped {
			closeApp(app)
		}
	}()

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	runOpts.OnStart = afterStart(runOpts.OnStart, startedAt)
	runOpts.OnStop = beforeStop(runOpts.OnStop, &stopped)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

type hook = func(context.Context, coretelegram.Runtime) error

func afterStart(next hook, startedAt time.Time) hook {
	return func(ctx context.Context, rt coretelegram.Runtime) error {
		if next != nil {
			if err := next(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready",
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}
}

func beforeStop(next hook, stopped *bool) hook {
	return func(ctx context.Context, rt coretelegram.Runtime) error {
		*stopped = true
		logger.Info(ctx, "app", "shutdown")
		if next == nil {
			return nil
		}
		return next(ctx, rt)
	}
}

func closeApp(app TelegramApp) {
	c, ok := app.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Error(context.Background(), "app", "app.close",
			slog.String("status", logger.Status(err)),
			slog.String("err", err.Error()),
		)
	}
}
