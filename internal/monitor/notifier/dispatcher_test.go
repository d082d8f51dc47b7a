package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/internal/pkg/metrics"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *recordingSink) OnTransition(_ context.Context, e model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...)
}

func ev(id string, status model.Status, seq uint64) model.Event {
	return model.Event{DeviceID: id, Status: status, Time: t0, Seq: seq, Reason: model.ReasonHeartbeat}
}

func runDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDispatcherDeliversToEverySinkInOrder(t *testing.T) {
	d := NewDispatcher(16)
	a, b := &recordingSink{}, &recordingSink{}
	d.AddSink("a", a)
	d.AddSink("b", b)
	runDispatcher(t, d)

	d.Publish(ev("AA:00:01", model.StatusOnline, 1), ev("AA:00:02", model.StatusOnline, 2))
	d.Publish(ev("AA:00:01", model.StatusOffline, 3))

	require.Eventually(t, func() bool { return len(b.Events()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, a.Events(), b.Events())
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{a.Events()[0].Seq, a.Events()[1].Seq, a.Events()[2].Seq})
}

func TestDispatcherDropsStaleEvents(t *testing.T) {
	d := NewDispatcher(16)
	rec := &recordingSink{}
	d.AddSink("rec", rec)

	before := testutil.ToFloat64(metrics.EventsDroppedTotal.WithLabelValues("stale"))

	// A sweep decided Offline (seq 6) after a heartbeat decided Online (seq 5)
	// but enqueued first.
	d.Publish(ev("AA:BB:CC", model.StatusOffline, 6))
	d.Publish(ev("AA:BB:CC", model.StatusOnline, 5))
	d.Publish(ev("DD:EE:FF", model.StatusOnline, 4))
	runDispatcher(t, d)

	require.Eventually(t, func() bool { return len(rec.Events()) == 2 }, time.Second, time.Millisecond)
	events := rec.Events()
	assert.Equal(t, model.StatusOffline, events[0].Status)
	assert.Equal(t, "DD:EE:FF", events[1].DeviceID)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.EventsDroppedTotal.WithLabelValues("stale")))
}

func TestDispatcherPublishNeverBlocks(t *testing.T) {
	d := NewDispatcher(1)
	before := testutil.ToFloat64(metrics.EventsDroppedTotal.WithLabelValues("queue_full"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Publish(ev("A", model.StatusOnline, 1), ev("B", model.StatusOnline, 2), ev("C", model.StatusOnline, 3))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	assert.Equal(t, 1, d.Pending())
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.EventsDroppedTotal.WithLabelValues("queue_full")))
}

func TestDispatcherSurvivesFailingSinks(t *testing.T) {
	d := NewDispatcher(16)
	rec := &recordingSink{}
	d.AddSink("failing", SinkFunc(func(context.Context, model.Event) error { return errors.New("disk full") }))
	d.AddSink("panicking", SinkFunc(func(context.Context, model.Event) error { panic("boom") }))
	d.AddSink("rec", rec)

	before := testutil.ToFloat64(metrics.SinkErrorsTotal.WithLabelValues("failing"))
	runDispatcher(t, d)

	d.Publish(ev("A", model.StatusOnline, 1), ev("B", model.StatusOnline, 2))

	require.Eventually(t, func() bool { return len(rec.Events()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.SinkErrorsTotal.WithLabelValues("failing")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.SinkErrorsTotal.WithLabelValues("panicking")), 2.0)
}

func TestDispatcherFlushesOnCancel(t *testing.T) {
	d := NewDispatcher(16)
	rec := &recordingSink{}
	d.AddSink("rec", rec)

	d.Publish(ev("A", model.StatusOnline, 1), ev("B", model.StatusOnline, 2), ev("C", model.StatusOnline, 3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	assert.Len(t, rec.Events(), 3)
	assert.Zero(t, d.Pending())
}

func TestChanSink(t *testing.T) {
	s := NewChanSink(1)
	require.NoError(t, s.OnTransition(context.Background(), ev("A", model.StatusOnline, 1)))
	assert.Equal(t, "A", (<-s.Events()).DeviceID)

	require.NoError(t, s.OnTransition(context.Background(), ev("B", model.StatusOnline, 2)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.OnTransition(ctx, ev("C", model.StatusOnline, 3)), context.Canceled)
}
