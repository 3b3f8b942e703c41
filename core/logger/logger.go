package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/enrollbot/core/buildinfo"
	coreconfig "github.com/m3rciful/enrollbot/core/config"
)

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	shutdowned bool

	writers    []*asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger. It stays nil until InitLogger runs; the
	// component helpers below are safe to call before that.
	L *slog.Logger
)

// InitLogger configures the global structured logger. It may be called only once.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		levelVar.Set(selectLevel(cfg))
		debugSampler.Set(parseDebugSample(cfg))
		traceOverride = detectTraceFlag()

		main, errOut, closers := buildOutputs(cfg)
		logClosers = closers

		hcfg := handlerConfig{
			level:    &levelVar,
			writer:   newAsyncWriter(main, 64*1024),
			format:   selectFormat(cfg),
			keyOrder: selectKeyOrder(cfg),
			redact:   selectRedactKeys(cfg),
		}
		writers = append(writers, hcfg.writer)
		if len(errOut) > 0 {
			hcfg.errWriter = newAsyncWriter(errOut, 16*1024)
			writers = append(writers, hcfg.errWriter)
		}

		L = slog.New(newStructuredHandler(hcfg))
		slog.SetDefault(L)
		logStartup(cfg)
	})
	return nil
}

func logStartup(cfg *coreconfig.Config) {
	version, commit, date := buildinfo.Info()
	Info(context.Background(), "app", "startup",
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", version),
		slog.String("build_commit", commit),
		slog.String("build_time", date),
		slog.String("cfg_profile", selectProfile(cfg)),
	)
}

// Shutdown flushes buffered log output and closes opened files.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdowned {
		return nil
	}
	shutdowned = true

	var errs []error
	for _, w := range writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range logClosers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func selectFormat(cfg *coreconfig.Config) logFormat {
	if cfg == nil {
		return formatJSON
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	switch selectProfile(cfg) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

func selectKeyOrder(cfg *coreconfig.Config) []string {
	var raw string
	if cfg != nil {
		raw = strings.TrimSpace(cfg.Logging.KeysOrder)
	}
	if raw == "" || raw == "default" {
		return append([]string(nil), defaultKeyOrder...)
	}
	if order := splitList(raw); len(order) > 0 {
		return order
	}
	return append([]string(nil), defaultKeyOrder...)
}

func selectRedactKeys(cfg *coreconfig.Config) map[string]struct{} {
	keys := defaultRedactKeys
	if cfg != nil {
		switch raw := strings.TrimSpace(cfg.Logging.RedactKeys); raw {
		case "":
		case "none":
			return nil
		default:
			keys = splitList(raw)
		}
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func selectLevel(cfg *coreconfig.Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch normalizeLevel(strings.TrimSpace(cfg.Logging.Level)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelFatal:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// buildOutputs opens stdout plus the optional bot and errors files. A file
// that cannot be opened is reported on the standard logger and skipped.
func buildOutputs(cfg *coreconfig.Config) (main, errOut []io.Writer, closers []io.Closer) {
	main = []io.Writer{os.Stdout}
	if cfg == nil {
		return main, nil, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	if dir == "" {
		return main, nil, nil
	}
	open := func(name string) io.Writer {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("logger: failed to create log dir %s: %v", dir, err)
			return nil
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("logger: failed to open log file %s: %v", path, err)
			return nil
		}
		closers = append(closers, f)
		return f
	}
	if w := open(cfg.Logging.BotFile); w != nil {
		main = append(main, w)
	}
	if w := open(cfg.Logging.ErrorsFile); w != nil {
		errOut = append(errOut, w)
	}
	return main, errOut, closers
}

func selectProfile(cfg *coreconfig.Config) string {
	if cfg == nil {
		return ""
	}
	if profile := strings.TrimSpace(cfg.Logging.Profile); profile != "" {
		return strings.ToLower(profile)
	}
	return "prod"
}

// Background returns context.Background(); kept for call sites without a request context.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes event through logg, falling back to the context logger and
// then to L. It is a no-op before InitLogger.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to name, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

func emit(ctx context.Context, component string, level slog.Level, event string, attrs []slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelDebug, event, attrs)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelInfo, event, attrs)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelWarn, event, attrs)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelError, event, attrs)
}

func parseDebugSample(cfg *coreconfig.Config) (int, int) {
	if cfg == nil || strings.TrimSpace(cfg.Logging.DebugSample) == "" {
		return 1, 50
	}
	num, den := parseRatioSpec(cfg.Logging.DebugSample)
	switch {
	case num == 0 && den == 0:
		return 0, 0
	case num <= 0 || den <= 0:
		return 1, 50
	}
	return num, den
}

func detectTraceFlag() bool {
	return isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether a high-volume debug event should be logged.
// TRACE=1 disables sampling.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}
