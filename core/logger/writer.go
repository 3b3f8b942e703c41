package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var errWriterClosed = errors.New("logger: writer closed")

type output struct {
	w   *bufio.Writer
	err error
}

// asyncWriter fans lines out to several outputs from a single goroutine.
// An output that fails is dropped; the rest keep receiving lines.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
	// outputs belong to the loop goroutine.
	outputs []*output
	// dead holds the first error once every output has failed.
	dead atomic.Pointer[error]
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	aw := &asyncWriter{
		queue:    make(chan []byte, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, w := range writers {
		if w != nil {
			aw.outputs = append(aw.outputs, &output{w: bufio.NewWriterSize(w, bufSize)})
		}
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				w.flush()
				return
			}
			w.write(line)
		case ack := <-w.flushReq:
			ack <- w.flush()
		}
		w.checkDead()
	}
}

// Write copies p onto the queue, blocking while it is full.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	if err := w.dead.Load(); err != nil {
		return *err
	}
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Flush waits until every queued line has reached the outputs.
func (w *asyncWriter) Flush() error {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return errWriterClosed
	}
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return errWriterClosed
	}
}

// Close drains the queue and returns the output errors seen so far.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done

	var errs []error
	for _, o := range w.outputs {
		errs = append(errs, o.err)
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) write(line []byte) {
	for _, o := range w.outputs {
		if o.err != nil {
			continue
		}
		if _, err := o.w.Write(line); err != nil {
			o.err = err
			continue
		}
		if err := o.w.Flush(); err != nil {
			o.err = err
		}
	}
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, o := range w.outputs {
		if o.err != nil {
			continue
		}
		if err := o.w.Flush(); err != nil {
			o.err = err
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) checkDead() {
	if len(w.outputs) == 0 || w.dead.Load() != nil {
		return
	}
	for _, o := range w.outputs {
		if o.err == nil {
			return
		}
	}
	err := w.outputs[0].err
	w.dead.Store(&err)
}
