package alert

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher queues alerts and delivers them on a background goroutine so
// callers never wait on a slow channel. When the queue is full the alert
// is dropped and counted.
type Dispatcher struct {
	n       Notifier
	log     *slog.Logger
	timeout time.Duration

	queue   chan Message
	dropped atomic.Int64
	sent    atomic.Int64
	failed  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(n Notifier, size int, log *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		n:       n,
		log:     log,
		timeout: 10 * time.Second,
		queue:   make(chan Message, size),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) Name() string { return "dispatcher(" + d.n.Name() + ")" }

// Notify enqueues m. It never blocks and always returns nil.
func (d *Dispatcher) Notify(_ context.Context, m Message) error {
	d.Send(m)
	return nil
}

// Send enqueues m and reports whether it was accepted.
func (d *Dispatcher) Send(m Message) (ok bool) {
	defer func() {
		// Send after Close.
		if recover() != nil {
			d.dropped.Add(1)
			ok = false
		}
	}()
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	select {
	case d.queue <- m:
		return true
	default:
		d.dropped.Add(1)
		d.log.Warn("alert dropped", "category", string(m.Category), "title", m.Title)
		return false
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for m := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.n.Notify(ctx, m)
		cancel()
		if err != nil {
			d.failed.Add(1)
			d.log.Error("alert delivery failed", "notifier", d.n.Name(), "category", string(m.Category), "error", err)
			continue
		}
		d.sent.Add(1)
	}
}

type DispatchStats struct {
	Sent    int64
	Failed  int64
	Dropped int64
}

func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{Sent: d.sent.Load(), Failed: d.failed.Load(), Dropped: d.dropped.Load()}
}

// Close stops accepting alerts and waits until the queue drains or ctx
// ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() { close(d.queue) })
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
