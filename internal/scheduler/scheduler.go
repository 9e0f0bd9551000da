// Package scheduler provides a bounded FIFO dispatcher for blocking or slow
// calls. One item is in flight at a time, each item runs under its own
// deadline, and the loop pauses a fixed interval between items so background
// work never saturates the host.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kolibri-trade/kolibri/pkg/errors"
)

const (
	// DefaultCallInterval is the pause between finishing one item and
	// dequeuing the next.
	DefaultCallInterval = 10 * time.Millisecond

	// DefaultQueueSize bounds how many calls may be pending at once.
	DefaultQueueSize = 1024

	// DefaultLabel is attached to calls submitted without a diagnostic label.
	DefaultLabel = "API call error."
)

// Operation is one unit of work. The context carries the per-item deadline
// and is cancelled when the scheduler stops; operations should honor it.
type Operation func(ctx context.Context) (any, error)

// Pending is the caller-visible handle for a submitted call. It resolves
// exactly once, to either a value or an error.
type Pending struct {
	ID    uuid.UUID
	label string

	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func newPending(label string) *Pending {
	return &Pending{ID: uuid.New(), label: label, done: make(chan struct{})}
}

func (p *Pending) resolve(value any, err error) {
	p.once.Do(func() {
		p.value = value
		p.err = err
		close(p.done)
	})
}

// Done returns a channel closed once the call has resolved.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the call resolves or ctx is cancelled.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type item struct {
	pending *Pending
	op      Operation
	timeout time.Duration
}

// Config adjusts scheduler behavior; zero values use the defaults above.
type Config struct {
	CallInterval time.Duration
	QueueSize    int
}

// Scheduler is the dispatcher. Construct with New; the loop starts lazily on
// first submission and can be stopped and restarted, resuming whatever is
// still queued.
type Scheduler struct {
	logger   *zap.Logger
	interval time.Duration
	queue    chan *item
	metrics  *metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New creates a stopped scheduler.
func New(logger *zap.Logger, cfg Config) *Scheduler {
	if cfg.CallInterval <= 0 {
		cfg.CallInterval = DefaultCallInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Scheduler{
		logger:   logger,
		interval: cfg.CallInterval,
		queue:    make(chan *item, cfg.QueueSize),
		metrics:  newMetrics(),
	}
}

// Started reports whether the dispatch loop is running.
func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Start launches the dispatch loop. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopped = make(chan struct{})
	go s.loop(ctx, s.stopped)
}

// Stop cancels the dispatch loop and waits for it to exit. Queued items are
// retained and processed again after the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel = nil
	s.stopped = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// Submit enqueues op for FIFO processing under the given timeout and returns
// its handle. The loop is started if it is not already running. A full queue
// resolves the handle immediately with an error rather than blocking.
func (s *Scheduler) Submit(op Operation, timeout time.Duration, label string) *Pending {
	if label == "" {
		label = DefaultLabel
	}
	p := newPending(label)
	select {
	case s.queue <- &item{pending: p, op: op, timeout: timeout}:
		s.metrics.queueDepth.Inc()
	default:
		p.resolve(nil, fmt.Errorf("%s [scheduler queue full]", label))
		return p
	}
	if !s.Started() {
		s.Start()
	}
	return p
}

// Call runs a blocking function on its own goroutine, routes its completion
// through the queue for timeout enforcement, and waits for the outcome.
func (s *Scheduler) Call(ctx context.Context, fn func(ctx context.Context) (any, error), timeout time.Duration, label string) (any, error) {
	return s.Submit(Operation(fn), timeout, label).Wait(ctx)
}

func (s *Scheduler) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.queue:
			s.metrics.queueDepth.Dec()
			s.runOne(ctx, it)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

// runOne executes a single item under its timeout. The operation runs on its
// own goroutine so a deadline overrun or an uncooperative blocking call never
// stalls the loop; the loop simply abandons it and moves on.
func (s *Scheduler) runOne(ctx context.Context, it *item) {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	result := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- outcome{err: fmt.Errorf("%s [panic: %v]", it.pending.label, r)}
			}
		}()
		value, err := it.op(opCtx)
		result <- outcome{value: value, err: err}
	}()

	timer := time.NewTimer(it.timeout)
	defer timer.Stop()

	select {
	case out := <-result:
		if out.err != nil {
			s.metrics.failures.Inc()
			s.logger.Debug("scheduled call failed",
				zap.String("call_id", it.pending.ID.String()),
				zap.String("label", it.pending.label),
				zap.Error(out.err))
		} else {
			s.metrics.processed.Inc()
		}
		it.pending.resolve(out.value, out.err)
	case <-timer.C:
		cancel()
		s.metrics.timeouts.Inc()
		s.logger.Warn("scheduled call timed out",
			zap.String("call_id", it.pending.ID.String()),
			zap.String("label", it.pending.label),
			zap.Duration("timeout", it.timeout))
		it.pending.resolve(nil, &errors.TimeoutError{Label: it.pending.label, Timeout: it.timeout})
	case <-ctx.Done():
		cancel()
		it.pending.resolve(nil, ctx.Err())
	}
}
