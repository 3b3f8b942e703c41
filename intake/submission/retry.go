package submission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/enrollbot/core/logger"
	"github.com/m3rciful/enrollbot/intake/flow"
)

// Policy controls how many times a failed append is retried.
type Policy struct {
	Retries int
	Backoff time.Duration
}

// RecordAppender stores a record that already carries its id and timestamp.
// Retrying uses it so every attempt writes the same record.
type RecordAppender interface {
	AppendRecord(ctx context.Context, rec Record) error
}

// Retrying retries a wrapped sink with linear backoff.
type Retrying struct {
	next   Sink
	policy Policy
	sleep  func(context.Context, time.Duration) error
	now    func() time.Time
}

// NewRetrying wraps next. A zero policy means a single attempt.
func NewRetrying(next Sink, policy Policy) *Retrying {
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	return &Retrying{next: next, policy: policy, sleep: sleepCtx, now: time.Now}
}

// Append forwards to the wrapped sink until it succeeds, the retries run out,
// or ctx is done. The last failure is returned as a *WriteError. When the
// wrapped sink is a RecordAppender the record is stamped once, so a write
// that landed but reported an error is retried under the same id.
func (r *Retrying) Append(ctx context.Context, sub flow.Submission) error {
	write := func() error { return r.next.Append(ctx, sub) }
	if ra, ok := r.next.(RecordAppender); ok {
		rec := NewRecord(sub, r.now())
		write = func() error { return ra.AppendRecord(ctx, rec) }
	}
	var err error
	for attempt := 0; attempt <= r.policy.Retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * r.policy.Backoff
			logger.Warn(ctx, "intake.sink", "sink.retry",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("err", err.Error()),
			)
			if serr := r.sleep(ctx, wait); serr != nil {
				break
			}
		}
		if err = write(); err == nil {
			return nil
		}
	}
	var we *WriteError
	if errors.As(err, &we) {
		return err
	}
	return &WriteError{Sink: "retry", Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
