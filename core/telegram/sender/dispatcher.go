package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/funnelbot/core/logger"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the job did not fit in the queue.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

const component = "tg.sender"

// Options controls the outbound dispatcher. Zero values get defaults:
// 256 queued jobs, 2 workers, DefaultPolicy and two minutes per job.
type Options struct {
	QueueSize   int
	Workers     int
	Policy      Policy
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.Policy.MaxAttempts <= 0 {
		o.Policy = DefaultPolicy()
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 2 * time.Minute
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func(ctx context.Context) error
}

// Stats counts jobs by outcome.
type Stats struct {
	Queued   uint64
	Sent     uint64
	Failed   uint64
	Rejected uint64
}

// Dispatcher runs fire-and-forget Telegram calls on a small worker pool,
// each under the retry Policy. Close drains what is already queued.
type Dispatcher struct {
	opts Options
	jobs chan job
	wg   sync.WaitGroup

	mu     sync.RWMutex // held for reading while sending on jobs
	closed bool

	queued, sent, failed, rejected atomic.Uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, jobs: make(chan job, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.handle(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run without blocking. Cancelling ctx later does not
// cancel the job; its values (request id, chat) are kept for logging.
// run may be called several times and must be safe to repeat.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func(ctx context.Context) error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.rejected.Add(1)
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: context.WithoutCancel(ctx), action: action, endpoint: endpoint, run: run}:
		d.queued.Add(1)
		return nil
	default:
		d.rejected.Add(1)
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that failed after retries.
func (d *Dispatcher) ErrorCount() uint64 { return d.failed.Load() }

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:   d.queued.Load(),
		Sent:     d.sent.Load(),
		Failed:   d.failed.Load(),
		Rejected: d.rejected.Load(),
	}
}

// Close stops accepting jobs and waits for the queued ones. Safe to call
// more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) handle(j job) {
	ctx := j.ctx
	runCtx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	base := j.attrs()
	policy := d.opts.Policy
	policy.OnRetry = func(attempt int, kind Kind, delay time.Duration, err error) {
		logger.Debug(ctx, component, "send.retry", append(base,
			slog.String("status", "retry"),
			slog.Int("attempt", attempt),
			slog.String("cause", kind.String()),
			slog.Duration("backoff", delay),
			slog.String("err", sanitizeErrorMessage(err)),
		)...)
	}

	start := time.Now()
	attempts, err := policy.Do(runCtx, j.run)
	took := slog.Duration("duration", time.Since(start))
	if err == nil {
		d.sent.Add(1)
		logger.Debug(ctx, component, "send.ok", append(base, slog.Int("attempts", attempts), took)...)
		return
	}

	d.failed.Add(1)
	attrs := append(base,
		slog.String("status", "fail"),
		slog.String("err", sanitizeErrorMessage(err)),
		slog.String("err_code", describeError(err)),
		slog.Int("attempts", attempts),
		took,
	)
	// A user who blocked the bot is routine, not an error.
	if IsBlocked(err) {
		logger.Info(ctx, component, "send.fail", attrs...)
		return
	}
	logger.Error(ctx, component, "send.fail", attrs...)
}

// attrs carries the job identity; rid, chat and user come from the
// context through the log handler.
func (j job) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs, slog.String("action", j.action))
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}
