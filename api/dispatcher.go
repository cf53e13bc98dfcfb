package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// EventSink delivers task events downstream.
type EventSink interface {
	Publish(ctx context.Context, ev domain.TaskEvent) error
}

// DispatcherOptions sizes the worker pool.
type DispatcherOptions struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	// HandoffTimeout bounds how long Publish waits for buffer space before
	// delivering inline.
	HandoffTimeout time.Duration
}

func (o DispatcherOptions) withDefaults() DispatcherOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 10 * time.Second
	}
	if o.HandoffTimeout < 0 {
		o.HandoffTimeout = 0
	}
	return o
}

// Dispatcher publishes task events from a pool of workers so request handlers
// do not wait on queue or pub/sub round trips. When the buffer stays full the
// event is published inline.
type Dispatcher struct {
	sink   EventSink
	logger *log.Logger
	opts   DispatcherOptions

	jobs      chan domain.TaskEvent
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewDispatcher(sink EventSink, logger *log.Logger, opts DispatcherOptions) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	opts = opts.withDefaults()
	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		opts:   opts,
		jobs:   make(chan domain.TaskEvent, opts.Buffer),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("event dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v",
		opts.Workers, opts.Buffer, opts.PublishTimeout, opts.HandoffTimeout)
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for ev := range d.jobs {
		if err := d.deliver(ev); err != nil {
			d.logger.WithError(err).WithFields(log.Fields{"event": ev.Type, "task": ev.TaskID, "worker": id}).Error("publish task event failed")
		}
	}
}

func (d *Dispatcher) deliver(ev domain.TaskEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.PublishTimeout)
	defer cancel()
	return d.sink.Publish(ctx, ev)
}

// Publish hands ev to a worker, falling back to inline delivery when the
// pool is saturated or closed. The request context is not used for delivery
// so a finished request does not cancel its event.
func (d *Dispatcher) Publish(_ context.Context, ev domain.TaskEvent) error {
	if d.tryEnqueue(ev) {
		return nil
	}
	d.logger.Warn("event buffer saturated; publishing inline")
	return d.deliver(ev)
}

func (d *Dispatcher) tryEnqueue(ev domain.TaskEvent) bool {
	if ok, closed := trySendNonBlocking(d.jobs, ev); closed {
		return false
	} else if ok {
		return true
	}
	if d.opts.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(d.opts.HandoffTimeout)
	defer timer.Stop()
	ok, _ := sendWithTimer(d.jobs, ev, timer.C)
	return ok
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

// trySendNonBlocking reports closed instead of panicking when ch was closed
// by a concurrent Close.
func trySendNonBlocking(ch chan domain.TaskEvent, ev domain.TaskEvent) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.TaskEvent, ev domain.TaskEvent, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	case <-timer:
		return false, false
	}
}
