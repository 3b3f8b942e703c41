package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/enrollbot/core/logger"
	"github.com/m3rciful/enrollbot/intake/flow"
)

const insertSubmission = `INSERT INTO submissions (id, user_id, name, age, course, phone, language, created_at)
VALUES (:id, :user_id, :name, :age, :course, :phone, :language, :created_at)`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	age TEXT NOT NULL,
	course TEXT NOT NULL,
	phone TEXT NOT NULL,
	language TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
`

func init() {
	// modernc registers as "sqlite", which sqlx does not know by name.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLSink inserts submissions into a "submissions" table. Writes go through a
// mutex so rows land in the order Append was called.
type SQLSink struct {
	mu     sync.Mutex
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

// NewSQLSink wraps an open handle. driver names the sink in logs and errors.
func NewSQLSink(db *sqlx.DB, driver string) (*SQLSink, error) {
	if db == nil {
		return nil, errors.New("submission: sql sink requires a database handle")
	}
	if driver == "" {
		driver = db.DriverName()
	}
	return &SQLSink{db: db, driver: driver, now: time.Now}, nil
}

// OpenSQLite opens (or creates) a SQLite database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	if path == "" {
		return nil, errors.New("submission: sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases alive and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	logger.Info(ctx, "db", "db.connect",
		slog.String("driver", "sqlite"),
		slog.String("path", path),
	)
	return db, nil
}

// Append inserts one row.
func (s *SQLSink) Append(ctx context.Context, sub flow.Submission) error {
	return s.AppendRecord(ctx, NewRecord(sub, s.now()))
}

// AppendRecord inserts a stamped record. A repeated id fails on the primary key.
func (s *SQLSink) AppendRecord(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if _, err := s.db.NamedExecContext(ctx, insertSubmission, rec); err != nil {
		return &WriteError{Sink: s.driver, Err: err}
	}
	logger.Debug(ctx, "intake.sink", "sink.append",
		slog.String("sink", s.driver),
		slog.String("submission_id", rec.ID),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Records lists stored rows oldest first.
func (s *SQLSink) Records(ctx context.Context) ([]Record, error) {
	var out []Record
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, user_id, name, age, course, phone, language, created_at FROM submissions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return out, nil
}

// Count returns the number of stored rows.
func (s *SQLSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM submissions`); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}
