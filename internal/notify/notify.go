// Package notify delivers replies to output sinks (log, speech, websocket
// clients) off the request path.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/jarvis/internal/domain"
)

const (
	// DefaultQueueSize is the number of pending notifications kept when no
	// size is configured.
	DefaultQueueSize = 64
	// DefaultSinkTimeout bounds a single sink delivery.
	DefaultSinkTimeout = 30 * time.Second

	closeTimeout   = 5 * time.Second
	slowSinkWarnAt = 500 * time.Millisecond
)

// Notifier accepts replies for delivery. Notify never blocks and never
// reports failure.
type Notifier interface {
	Notify(n domain.Notification)
	Close() error
}

// Sink is one delivery target.
type Sink interface {
	Name() string
	Send(ctx context.Context, n domain.Notification) error
}

// Noop discards every notification.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(domain.Notification) {}

// Close implements Notifier.
func (Noop) Close() error { return nil }

// Dispatcher queues notifications and delivers them to its sinks from a
// single worker goroutine. When the queue is full the oldest pending
// notification is dropped.
type Dispatcher struct {
	sinks   []Sink
	queue   chan domain.Notification
	timeout time.Duration
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed    atomic.Bool
	dropped   atomic.Int64
	delivered atomic.Int64
}

// NewDispatcher starts a dispatcher over sinks.
func NewDispatcher(sinks []Sink, queueSize int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sinks:   sinks,
		queue:   make(chan domain.Notification, queueSize),
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Notify implements Notifier.
func (d *Dispatcher) Notify(n domain.Notification) {
	if d.closed.Load() {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}

	select {
	case d.queue <- n:
		return
	default:
	}

	// Full: make room by discarding the oldest entry, then retry once.
	select {
	case <-d.queue:
		d.dropped.Add(1)
		d.logger.Warn("Notification queue full, dropped oldest", "queue_len", len(d.queue))
	default:
	}

	select {
	case d.queue <- n:
	default:
		d.dropped.Add(1)
		d.logger.Warn("Failed to queue notification", "session_id", n.SessionID)
	}
}

// Dropped reports how many notifications were discarded for backpressure.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Delivered reports how many notifications were handed to every sink.
func (d *Dispatcher) Delivered() int64 { return d.delivered.Load() }

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case n := <-d.queue:
			d.deliver(n)
		}
	}
}

func (d *Dispatcher) deliver(n domain.Notification) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
		start := time.Now()
		err := sink.Send(ctx, n)
		cancel()

		elapsed := time.Since(start)
		if err != nil {
			d.logger.Warn("Notification sink failed",
				"sink", sink.Name(),
				"session_id", n.SessionID,
				"error", err,
			)
			continue
		}
		if elapsed > slowSinkWarnAt {
			d.logger.Warn("Slow notification sink", "sink", sink.Name(), "duration_ms", elapsed.Milliseconds())
		}
	}
	d.delivered.Add(1)
}

// Close stops the worker. Pending notifications are discarded.
func (d *Dispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	pending := len(d.queue)
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Notification dispatcher stopped", "discarded", pending)
	case <-time.After(closeTimeout):
		d.logger.Warn("Notification dispatcher shutdown timeout")
	}
	return nil
}
