// Package notifier delivers presence transitions to their consumers.
package notifier

import (
	"context"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
)

// Sink receives presence transitions. Calls to a Sink are serialized by the
// Dispatcher, so implementations need no locking of their own.
type Sink interface {
	OnTransition(ctx context.Context, e model.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e model.Event) error

func (f SinkFunc) OnTransition(ctx context.Context, e model.Event) error {
	return f(ctx, e)
}

// DeviceLookup returns the current record of a device.
type DeviceLookup func(id string) (model.Device, bool)

// DeviceLister returns every known device.
type DeviceLister func() []model.Device
