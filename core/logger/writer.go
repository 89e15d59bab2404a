package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter copies lines to its sinks from a single goroutine. Lines are
// buffered and the sinks flushed whenever the queue runs dry, so a burst
// costs one flush instead of one per line.
type asyncWriter struct {
	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool
	queue  chan []byte
	done   chan struct{}
	sinks  []*bufio.Writer

	errMu sync.Mutex
	err   error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue: make(chan []byte, 256),
		done:  make(chan struct{}),
	}
	for _, sink := range writers {
		if sink != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(sink, bufSize))
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for line := range w.queue {
		w.write(line)
		if len(w.queue) == 0 {
			w.flush()
		}
	}
	w.flush()
}

func (w *asyncWriter) write(p []byte) {
	for _, s := range w.sinks {
		if _, err := s.Write(p); err != nil {
			w.fail(err)
		}
	}
}

func (w *asyncWriter) flush() {
	for _, s := range w.sinks {
		if err := s.Flush(); err != nil {
			w.fail(err)
		}
	}
}

// Write queues a copy of p. It blocks while the queue is full and reports
// the first sink error seen so far.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Close drains the queue, flushes the sinks and returns the first error.
// It is safe to call more than once.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) fail(err error) {
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}

func (w *asyncWriter) firstErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
