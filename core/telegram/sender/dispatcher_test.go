package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestDispatcherPreservesPerKeyOrder(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4, QueueSize: 128})

	var mu sync.Mutex
	got := map[int64][]int{}
	for i := 0; i < 30; i++ {
		for key := int64(1); key <= 3; key++ {
			key, i := key, i
			err := d.Enqueue(context.Background(), key, "send", "sendMessage", func() error {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}
		}
	}
	d.Close()

	for key := int64(1); key <= 3; key++ {
		seq := got[key]
		if len(seq) != 30 {
			t.Fatalf("key %d ran %d jobs", key, len(seq))
		}
		for i, v := range seq {
			if v != i {
				t.Fatalf("key %d out of order: %v", key, seq)
			}
		}
	}
}

func TestDispatcherRetriesRetryableErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	calls := 0
	err := d.Enqueue(context.Background(), 1, "send", "sendMessage", func() error {
		calls++
		if calls < 3 {
			return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d.Close()
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if d.ErrorCount() != 0 {
		t.Fatalf("errors = %d", d.ErrorCount())
	}
}

func TestDispatcherCountsPermanentFailures(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	calls := 0
	_ = d.Enqueue(context.Background(), 9, "send", "sendMessage", func() error {
		calls++
		return errors.New("telegram: chat not found (400)")
	})
	d.Close()
	if calls != 1 {
		t.Fatalf("calls = %d, non-retryable errors must not be retried", calls)
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("errors = %d, want 1", d.ErrorCount())
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	err := d.Enqueue(context.Background(), 1, "send", "", func() error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestEnqueueFullQueue(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	block := make(chan struct{})
	started := make(chan struct{})
	_ = d.Enqueue(context.Background(), 1, "send", "", func() error {
		close(started)
		<-block
		return nil
	})
	<-started
	if err := d.Enqueue(context.Background(), 1, "send", "", func() error { return nil }); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	err := d.Enqueue(context.Background(), 1, "send", "", func() error { return nil })
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	close(block)
	d.Close()
}

func TestDispatcherHonoursFloodRetryAfter(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 1, RetryBackoff: time.Millisecond, MaxDuration: time.Minute})
	var waited []time.Duration
	d.wait = func(_ context.Context, delay time.Duration) error {
		waited = append(waited, delay)
		return nil
	}
	calls := 0
	_ = d.Enqueue(context.Background(), 1, "send", "sendMessage", func() error {
		calls++
		if calls == 1 {
			return tele.FloodError{RetryAfter: 5}
		}
		return nil
	})
	d.Close()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if len(waited) != 1 || waited[0] != 5*time.Second {
		t.Fatalf("waited = %v, want [5s]", waited)
	}
}

func TestRedactToken(t *testing.T) {
	msg := "post https://api.telegram.org/bot123456:ABC-def_ghi/sendMessage: timeout"
	if got := redactToken(msg); got != "post https://api.telegram.org/bot<redacted>/sendMessage: timeout" {
		t.Fatalf("token leaked: %q", got)
	}
}

func TestClassifyError(t *testing.T) {
	cases := map[string]error{
		"http_5xx": &tele.Error{Code: 502, Description: "Bad Gateway"},
		"http_4xx": fmt.Errorf("send: %w", &tele.Error{Code: 400}),
		"timeout":  context.DeadlineExceeded,
		"flood":    tele.FloodError{RetryAfter: 1},
		"dial":     &net.OpError{Op: "dial", Err: errors.New("refused")},
		"unknown":  errors.New("boom"),
	}
	for want, err := range cases {
		if got := classifyError(err); got != want {
			t.Fatalf("classifyError(%v) = %q, want %q", err, got, want)
		}
	}
}
