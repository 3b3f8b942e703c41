package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/enrollbot/core/logger"
)

// Connect opens a pooled Postgres handle and verifies it with a ping.
func Connect(cfg Config) (*sqlx.DB, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	target := []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}
	fail := func(event string, err error) error {
		logger.Error(ctx, "db", event, append(target, slog.String("err", err.Error()))...)
		return fmt.Errorf("%s: %w", event, err)
	}

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fail("db.connect", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fail("db.ping", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	logger.Info(ctx, "db", "db.connect", append(target,
		slog.Int("count", cfg.MaxConnections),
		slog.Duration("duration", logger.Took(start)),
	)...)
	return db, nil
}

// WaitForPostgres pings dsn every two seconds until it answers, the timeout
// passes, or ctx is done.
func WaitForPostgres(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()
	for {
		err = db.PingContext(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout reached waiting for database: %w", err)
		case <-tick.C:
		}
	}
}
