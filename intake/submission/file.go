package submission

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m3rciful/enrollbot/core/logger"
	"github.com/m3rciful/enrollbot/intake/flow"
)

// FileSink appends one JSON object per line (NDJSON). JSON string escaping
// keeps embedded newlines and control characters inside the record, so every
// line is exactly one submission. A failed write is truncated away so the
// next record starts on a clean line.
type FileSink struct {
	mu    sync.Mutex
	path  string
	f     *os.File
	now   func() time.Time
	write func([]byte) (int, error)
}

// NewFileSink opens path for appending, creating parent directories as needed.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("submission: file sink path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create submission dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open submission log: %w", err)
	}
	s := &FileSink{path: path, f: f, now: time.Now}
	s.write = s.f.Write
	return s, nil
}

// Path returns the log location.
func (s *FileSink) Path() string { return s.path }

// Append writes sub as a single line and syncs it to disk.
func (s *FileSink) Append(ctx context.Context, sub flow.Submission) error {
	return s.AppendRecord(ctx, NewRecord(sub, s.now()))
}

// AppendRecord writes an already stamped record. On a failed write or sync
// the file is truncated back to its previous size.
func (s *FileSink) AppendRecord(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Sink: "file", Err: err}
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return &WriteError{Sink: "file", Err: err}
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return &WriteError{Sink: "file", Err: os.ErrClosed}
	}
	info, err := s.f.Stat()
	if err != nil {
		return &WriteError{Sink: "file", Err: err}
	}
	offset := info.Size()

	start := time.Now()
	if err := s.commit(line); err != nil {
		if terr := s.f.Truncate(offset); terr != nil {
			err = errors.Join(err, fmt.Errorf("truncate torn record: %w", terr))
		}
		logger.Warn(ctx, "intake.sink", "sink.rollback",
			slog.String("sink", "file"),
			slog.String("submission_id", rec.ID),
			slog.Int64("offset", offset),
		)
		return &WriteError{Sink: "file", Err: err}
	}
	logger.Debug(ctx, "intake.sink", "sink.append",
		slog.String("sink", "file"),
		slog.String("submission_id", rec.ID),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

func (s *FileSink) commit(line []byte) error {
	n, err := s.write(line)
	if err != nil {
		return err
	}
	if n < len(line) {
		return io.ErrShortWrite
	}
	return s.f.Sync()
}

// Records reads back every stored record in append order.
func (s *FileSink) Records() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReadFile(s.path)
}

// Close releases the file handle.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// CorruptLinesError lists log lines that did not decode as a record.
type CorruptLinesError struct {
	Lines []int
	Err   error
}

func (e *CorruptLinesError) Error() string {
	return fmt.Sprintf("submission log: %d corrupt line(s), first at line %d: %v", len(e.Lines), e.Lines[0], e.Err)
}

func (e *CorruptLinesError) Unwrap() error { return e.Err }

// ReadFile decodes an NDJSON submission log. Lines that fail to decode are
// skipped; the valid records are returned together with a *CorruptLinesError.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		out     []Record
		corrupt *CorruptLinesError
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			if corrupt == nil {
				corrupt = &CorruptLinesError{Err: err}
			}
			corrupt.Lines = append(corrupt.Lines, line)
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, err
	}
	if corrupt != nil {
		return out, corrupt
	}
	return out, nil
}
