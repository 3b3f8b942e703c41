package submission

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/enrollbot/core/logger"
)

const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects and tunes the sink backend.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"INTAKE_SINK_DRIVER"`
	Path           string `yaml:"path" envconfig:"INTAKE_SINK_PATH"`
	Retries        int    `yaml:"retries" envconfig:"INTAKE_SINK_RETRIES"`
	RetryBackoffMS int    `yaml:"retry_backoff_ms" envconfig:"INTAKE_SINK_RETRY_BACKOFF_MS"`
}

// Normalize fills defaults for unset fields.
func (c *Config) Normalize() {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverFile
	}
	if strings.TrimSpace(c.Path) == "" {
		switch c.Driver {
		case DriverFile:
			c.Path = "data/submissions.ndjson"
		case DriverSQLite:
			c.Path = "data/submissions.db"
		}
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryBackoffMS <= 0 {
		c.RetryBackoffMS = 200
	}
}

// Validate reports unsupported drivers.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverFile, DriverPostgres, DriverSQLite:
		return nil
	}
	return fmt.Errorf("submission: unsupported sink driver %q", c.Driver)
}

// Policy derives the retry policy.
func (c Config) Policy() Policy {
	return Policy{Retries: c.Retries, Backoff: time.Duration(c.RetryBackoffMS) * time.Millisecond}
}

// Open builds the configured sink wrapped in a retry policy. pg is required for
// the postgres driver and ignored otherwise. The returned closer releases
// resources the sink owns; it never closes pg.
func Open(ctx context.Context, cfg Config, pg *sqlx.DB) (Sink, io.Closer, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		base   Sink
		closer io.Closer = nopCloser{}
	)
	switch cfg.Driver {
	case DriverFile:
		fs, err := NewFileSink(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		base, closer = fs, fs
	case DriverPostgres:
		s, err := NewSQLSink(pg, DriverPostgres)
		if err != nil {
			return nil, nil, err
		}
		base = s
	case DriverSQLite:
		db, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		s, err := NewSQLSink(db, DriverSQLite)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		base, closer = s, db
	}

	logger.Info(ctx, "intake.sink", "sink.open",
		slog.String("driver", cfg.Driver),
		slog.String("path", cfg.Path),
		slog.Int("retries", cfg.Retries),
	)
	return NewRetrying(base, cfg.Policy()), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
