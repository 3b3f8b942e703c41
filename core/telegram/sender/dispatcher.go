// Package sender runs outbound Bot API calls on per-chat workers with retries.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/enrollbot/core/logger"
	"github.com/m3rciful/enrollbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the owning worker's backlog is full.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	// QueueSize bounds each worker's backlog.
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	key      int64
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes outbound Telegram calls asynchronously. Jobs sharing a
// key run on the same worker in enqueue order, so one chat never sees its
// messages reordered.
type Dispatcher struct {
	opts   Options
	shards []chan job
	wait   func(context.Context, time.Duration) error

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
	failed atomic.Uint64
}

// NewDispatcher starts opts.Workers workers; zero options take defaults.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts:   opts,
		shards: make([]chan job, opts.Workers),
		wait:   sleep,
	}
	d.wg.Add(len(d.shards))
	for i := range d.shards {
		d.shards[i] = make(chan job, opts.QueueSize)
		go d.loop(d.shards[i])
	}
	return d
}

// Enqueue schedules run on the worker owning key, usually a chat or user id.
// run may be called more than once when it fails with a transient error.
func (d *Dispatcher) Enqueue(ctx context.Context, key int64, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.shards[uint64(key)%uint64(len(d.shards))] <- job{ctx: ctx, key: key, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that failed after all attempts.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.failed.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		for _, ch := range d.shards {
			close(ch)
		}
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) loop(jobs <-chan job) {
	defer d.wg.Done()
	for j := range jobs {
		d.process(j)
	}
}

func (d *Dispatcher) process(j job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	attempts, err := d.attempt(ctx, j)
	attrs := append(j.attrs(),
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", logger.RoundMS(time.Since(start))),
	)
	if err != nil {
		d.failed.Add(1)
		logger.Error(j.ctx, "tg.sender", "send.fail", append(attrs,
			slog.String("err", redactToken(err.Error())),
			slog.String("err_kind", classifyError(err)),
		)...)
		return
	}
	logger.Debug(j.ctx, "tg.sender", "send.ok", attrs...)
}

// attempt runs j until it succeeds, fails permanently or runs out of retries
// or time. It returns the number of calls made and the last error.
func (d *Dispatcher) attempt(ctx context.Context, j job) (int, error) {
	limit := d.opts.MaxRetries + 1
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}
		err := j.run()
		if err == nil || n == limit || !netutil.ShouldRetry(err) {
			return n, err
		}
		delay := retryDelay(err, d.opts.RetryBackoff, n)
		logger.Debug(j.ctx, "tg.sender", "send.retry", append(j.attrs(),
			slog.Int("attempt", n),
			slog.Duration("delay", delay),
			slog.String("err_kind", classifyError(err)),
		)...)
		if werr := d.wait(ctx, delay); werr != nil {
			return n, errors.Join(err, werr)
		}
	}
}

// retryDelay grows linearly with the attempt number. Flood control errors use
// the server's retry_after when it is longer.
func retryDelay(err error, backoff time.Duration, attempt int) time.Duration {
	delay := backoff * time.Duration(attempt)
	var flood tele.FloodError
	if errors.As(err, &flood) {
		if after := time.Duration(flood.RetryAfter) * time.Second; after > delay {
			delay = after
		}
	}
	return delay
}

func (j job) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
