package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	// SecretToken is echoed by Telegram in X-Telegram-Bot-Api-Secret-Token.
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// ErrorsFile, when set together with Dir, receives WARN and above.
	ErrorsFile string `yaml:"errors_file"`
	// RedactKeys lists attribute keys whose values are masked; "none" disables masking.
	RedactKeys string `yaml:"redact_keys"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateCallback = "callback"
	UpdateMessage  = "message"
)

var updateKinds = []string{UpdateCallback, UpdateMessage}

// RateLimitConfig holds per-user throttling. IntervalMS <= 0 disables it.
// ExcludeUpdates lists update kinds that bypass the limit ("callback", "message").
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Interval returns the minimum spacing between updates of one user.
func (r RateLimitConfig) Interval() time.Duration {
	if r.IntervalMS <= 0 {
		return 0
	}
	return time.Duration(r.IntervalMS) * time.Millisecond
}

// Excluded reports whether kind bypasses the limiter.
func (r RateLimitConfig) Excluded(kind string) bool {
	return slices.Contains(r.ExcludeUpdates, kind)
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads a YAML file, applies environment overrides and normalizes the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills defaults and reports every invalid field at once.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	return errors.Join(
		cfg.Telegram.normalize(),
		cfg.Webhook.validate(cfg.Telegram.RunMode),
		cfg.RateLimit.normalize(),
	)
}

func (t *TelegramConfig) normalize() error {
	var errs []error
	t.Token = strings.TrimSpace(t.Token)
	if t.Token == "" {
		errs = append(errs, errors.New("config: telegram.token is required"))
	}
	switch mode := strings.ToLower(strings.TrimSpace(t.RunMode)); mode {
	case "", "polling", RunModeLongpoll:
		t.RunMode = RunModeLongpoll
	case RunModeWebhook:
		t.RunMode = mode
	default:
		errs = append(errs, fmt.Errorf("config: telegram.run_mode %q is not one of webhook, longpoll", t.RunMode))
	}
	if t.LongPollTimeoutSeconds < 0 {
		errs = append(errs, errors.New("config: telegram.longpoll_timeout_seconds must be >= 0"))
	}
	return errors.Join(errs...)
}

// validate checks webhook settings only when mode selects them. An empty
// Listen binds every interface.
func (w *WebhookConfig) validate(mode string) error {
	if mode != RunModeWebhook {
		return nil
	}
	w.Listen = strings.TrimSpace(w.Listen)
	var errs []error
	if u, err := url.Parse(strings.TrimSpace(w.URL)); err != nil || u.Scheme != "https" || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: webhook.url %q must be an absolute https URL", w.URL))
	}
	if w.Port <= 0 || w.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: webhook.port %d is out of range", w.Port))
	}
	return errors.Join(errs...)
}

func (r *RateLimitConfig) normalize() error {
	kinds := make([]string, 0, len(r.ExcludeUpdates))
	for _, v := range r.ExcludeUpdates {
		kind := strings.ToLower(strings.TrimSpace(v))
		if kind == "" {
			continue
		}
		if !slices.Contains(updateKinds, kind) {
			return fmt.Errorf("config: rate_limit.exclude_updates value %q is not one of %s", v, strings.Join(updateKinds, ", "))
		}
		if !slices.Contains(kinds, kind) {
			kinds = append(kinds, kind)
		}
	}
	r.ExcludeUpdates = kinds
	return nil
}
