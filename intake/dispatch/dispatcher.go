// Package dispatch runs intake events through the session store, the state
// machine, the submission sink and the outbound transport.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/m3rciful/enrollbot/core/logger"
	"github.com/m3rciful/enrollbot/core/telegram/state"
	"github.com/m3rciful/enrollbot/intake/catalog"
	"github.com/m3rciful/enrollbot/intake/flow"
	"github.com/m3rciful/enrollbot/intake/submission"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatch: closed")

// Transport delivers replies to users.
type Transport interface {
	Send(ctx context.Context, reply flow.Reply) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, reply flow.Reply) error

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, reply flow.Reply) error { return f(ctx, reply) }

// Options wires the dispatcher's collaborators.
type Options struct {
	Store     state.Manager[flow.Session]
	Machine   *flow.Machine
	Sink      submission.Sink
	Transport Transport
	// Workers is the number of per-user shards; events for one user always
	// land on the same shard.
	Workers   int
	QueueSize int
	// CommitRetries bounds re-reads after a concurrent session update.
	CommitRetries int
}

type task struct {
	ctx context.Context
	ev  flow.Event
}

// Dispatcher owns the intake pipeline. Build one per process with New.
type Dispatcher struct {
	opts   Options
	shards []chan task

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
}

// New validates opts and starts the shard workers.
func New(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("dispatch: session store is required")
	case opts.Machine == nil:
		return nil, errors.New("dispatch: state machine is required")
	case opts.Sink == nil:
		return nil, errors.New("dispatch: submission sink is required")
	case opts.Transport == nil:
		return nil, errors.New("dispatch: transport is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.CommitRetries <= 0 {
		opts.CommitRetries = 3
	}

	d := &Dispatcher{opts: opts, shards: make([]chan task, opts.Workers)}
	d.wg.Add(opts.Workers)
	for i := range d.shards {
		d.shards[i] = make(chan task, opts.QueueSize)
		go d.worker(d.shards[i])
	}
	return d, nil
}

// Submit queues ev behind earlier events of the same user. It blocks while the
// user's shard is full and gives up when ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, ev flow.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.shards[d.shardFor(ev.UserID)] <- task{ctx: context.WithoutCancel(ctx), ev: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits until queued ones are handled.
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

func (d *Dispatcher) shardFor(userID int64) int {
	return int(uint64(userID) % uint64(len(d.shards)))
}

func (d *Dispatcher) worker(tasks <-chan task) {
	defer d.wg.Done()
	for t := range tasks {
		d.safeHandle(t)
	}
}

func (d *Dispatcher) safeHandle(t task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(t.ctx, "intake.dispatch", "dispatch.panic",
				slog.Int64("user_id", t.ev.UserID),
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	_ = d.Handle(t.ctx, t.ev)
}

// Handle processes one event to completion: read the session, transition,
// commit, then append any submission and send the replies. Side effects run
// only after the commit succeeds. A sink failure is returned after the replies
// have been sent; the committed session is never rolled back.
func (d *Dispatcher) Handle(ctx context.Context, ev flow.Event) (err error) {
	start := time.Now()
	ctx = logger.WithHandler(ctx, "intake."+string(ev.Kind))

	var (
		prev flow.State
		res  flow.Result
	)
	for attempt := 0; ; attempt++ {
		snap := d.opts.Store.GetOrCreate(ev.UserID)
		prev = snap.Value.State
		res = d.opts.Machine.Transition(snap.Value, ev)
		cerr := d.opts.Store.Commit(ev.UserID, snap.Version, res.Next)
		if cerr == nil {
			break
		}
		if errors.Is(cerr, state.ErrStaleSession) && attempt < d.opts.CommitRetries {
			continue
		}
		err = fmt.Errorf("commit session %d: %w", ev.UserID, cerr)
		d.logHandled(ctx, ev, prev, res, err, start)
		return err
	}

	var errs []error
	if res.Submission != nil {
		if serr := d.opts.Sink.Append(ctx, *res.Submission); serr != nil {
			errs = append(errs, serr)
			logger.Error(ctx, "intake.dispatch", "submission.failed",
				slog.Int64("user_id", ev.UserID),
				slog.String("course", res.Submission.Course),
				slog.String("err", serr.Error()),
			)
		} else {
			logger.Info(ctx, "intake.dispatch", "submission.saved",
				slog.Int64("user_id", ev.UserID),
				slog.String("course", res.Submission.Course),
				slog.String("language", res.Submission.Language),
			)
		}
	}

	for _, r := range res.Replies {
		if terr := d.opts.Transport.Send(ctx, r); terr != nil {
			errs = append(errs, fmt.Errorf("send reply to %d: %w", r.UserID, terr))
		}
	}

	err = errors.Join(errs...)
	d.logHandled(ctx, ev, prev, res, err, start)
	return err
}

func (d *Dispatcher) logHandled(ctx context.Context, ev flow.Event, prev flow.State, res flow.Result, err error, start time.Time) {
	attrs := []slog.Attr{
		slog.Int64("user_id", ev.UserID),
		slog.String("kind", string(ev.Kind)),
		slog.String("state", string(prev)),
		slog.String("next_state", string(res.Next.State)),
		slog.Int("replies", len(res.Replies)),
		slog.Bool("submission", res.Submission != nil),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	}
	if res.Reason != nil {
		attrs = append(attrs, slog.String("reason", reasonCode(res.Reason)))
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		var we *submission.WriteError
		if errors.As(err, &we) {
			attrs = append(attrs, slog.String("err_code", we.Code()))
		}
		logger.Warn(ctx, "intake.dispatch", "dispatch.handled", attrs...)
		return
	}
	logger.Debug(ctx, "intake.dispatch", "dispatch.handled", attrs...)
}

func reasonCode(err error) string {
	switch {
	case errors.Is(err, catalog.ErrUnknownLanguage):
		return "unknown_language"
	case errors.Is(err, flow.ErrInvalidCourse):
		return "invalid_course"
	}
	return "rejected"
}
