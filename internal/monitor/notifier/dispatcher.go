package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/stepguard/internal/monitor/core"
	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/internal/pkg/metrics"
	"github.com/autopeer-io/stepguard/pkg/log"
)

var _ core.Publisher = (*Dispatcher)(nil)

// flushTimeout bounds the final deliveries made after Run is cancelled.
const flushTimeout = time.Second

type namedSink struct {
	name string
	sink Sink
}

// Dispatcher queues transitions and delivers them to every registered sink
// from a single goroutine. Publish never blocks: when the queue is full the
// event is dropped and counted.
//
// Events of one device reach the sinks in Seq order. An event whose Seq is
// lower than one already delivered for the same device is stale and dropped,
// so two producers racing to enqueue cannot invert the final state.
type Dispatcher struct {
	queue chan model.Event

	mu    sync.RWMutex
	sinks []namedSink

	// lastSeq is only touched by the delivery goroutine.
	lastSeq map[string]uint64

	logger log.Logger
}

// NewDispatcher creates a Dispatcher holding at most size pending events.
func NewDispatcher(size int) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		queue:   make(chan model.Event, size),
		lastSeq: make(map[string]uint64),
		logger:  log.WithName("notifier"),
	}
}

// AddSink registers a sink under name, used in logs and metrics.
func (d *Dispatcher) AddSink(name string, s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, namedSink{name: name, sink: s})
}

// Publish enqueues events for delivery.
func (d *Dispatcher) Publish(events ...model.Event) {
	for _, e := range events {
		select {
		case d.queue <- e:
		default:
			metrics.EventsDroppedTotal.WithLabelValues("queue_full").Inc()
			d.logger.Warn("Notification queue full, dropping transition", "device", e.DeviceID, "status", e.Status, "seq", e.Seq)
		}
	}
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Run delivers events until ctx is cancelled, then flushes what is already queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Starting notification dispatcher", "queueSize", cap(d.queue))

	for {
		select {
		case <-ctx.Done():
			d.flush()
			d.logger.Info("Notification dispatcher stopped")
			return nil
		case e := <-d.queue:
			d.deliver(ctx, e)
		}
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e model.Event) {
	if last, ok := d.lastSeq[e.DeviceID]; ok && e.Seq <= last {
		metrics.EventsDroppedTotal.WithLabelValues("stale").Inc()
		d.logger.Debug("Dropping stale transition", "device", e.DeviceID, "seq", e.Seq, "lastSeq", last)
		return
	}
	d.lastSeq[e.DeviceID] = e.Seq

	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()

	for _, s := range sinks {
		if err := d.call(ctx, s, e); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(s.name).Inc()
			d.logger.Error(err, "Sink failed to handle transition", "sink", s.name, "device", e.DeviceID, "status", e.Status)
		}
	}
}

func (d *Dispatcher) call(ctx context.Context, s namedSink, e model.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.sink.OnTransition(ctx, e)
}
