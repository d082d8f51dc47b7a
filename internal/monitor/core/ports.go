package core

import (
	"context"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
)

// Publisher accepts presence transitions for asynchronous delivery.
// In StepGuard, this is implemented by the notifier Dispatcher.
type Publisher interface {
	// Publish enqueues events without blocking the caller.
	Publish(events ...model.Event)
}

// NameStore persists device display names.
// In StepGuard, this is implemented by the alias Store (file or S3 backend).
type NameStore interface {
	// ResolveName returns the stored display name of id.
	ResolveName(id string) (string, bool)

	// SetName stores name for id. An empty name removes the alias.
	SetName(ctx context.Context, id, name string) error

	// Names returns a copy of every stored alias.
	Names() map[string]string
}
