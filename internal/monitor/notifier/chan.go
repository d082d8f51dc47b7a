package notifier

import (
	"context"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
)

// ChanSink hands transitions to a presentation layer over a channel. It
// blocks the dispatcher until the event is received or ctx is done.
type ChanSink struct {
	ch chan model.Event
}

func NewChanSink(size int) *ChanSink {
	return &ChanSink{ch: make(chan model.Event, size)}
}

// Events returns the receive side of the channel.
func (s *ChanSink) Events() <-chan model.Event {
	return s.ch
}

func (s *ChanSink) OnTransition(ctx context.Context, e model.Event) error {
	select {
	case s.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
