package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/stepguard/internal/monitor/alias"
	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/internal/monitor/ingest"
	"github.com/autopeer-io/stepguard/internal/monitor/notifier"
	"github.com/autopeer-io/stepguard/internal/monitor/presence"
	httpserver "github.com/autopeer-io/stepguard/internal/monitor/server/http"
	"github.com/autopeer-io/stepguard/internal/monitor/watchdog"
	"github.com/autopeer-io/stepguard/internal/pkg/metrics"
	"github.com/autopeer-io/stepguard/pkg/log"
)

var _ httpserver.Service = (*Monitor)(nil)

// Monitor tracks the presence of every StepGuard device. It implements the
// use cases and owns the lifecycle of the components serving them.
type Monitor struct {
	registry   *presence.Registry
	aliases    *alias.Store
	dispatcher *notifier.Dispatcher
	watchdog   *watchdog.Watchdog
	adapter    *ingest.Adapter
	http       *httpserver.Server
	clock      clock.PassiveClock

	// renameMu keeps the registry and the alias document in the same order
	// of renames.
	renameMu sync.Mutex

	honorOffline bool
	watchAliases bool

	logger log.Logger
}

// HandleHeartbeat applies one status message from a device. "online" records
// a heartbeat, "offline" demotes the device when enabled, anything else is
// ignored.
func (m *Monitor) HandleHeartbeat(_ context.Context, id, payload string) {
	now := m.clock.Now()

	switch ingest.Classify(payload) {
	case ingest.SignalOnline:
		metrics.HeartbeatsTotal.Inc()
		if e, ok := m.registry.RecordHeartbeat(id, now); ok {
			m.dispatcher.Publish(e)
		}
	case ingest.SignalOffline:
		if !m.honorOffline {
			m.logger.Debug("Ignoring offline payload", "device", id)
			return
		}
		if e, ok := m.registry.MarkOffline(id, now); ok {
			m.dispatcher.Publish(e)
		}
	default:
		m.logger.Debug("Ignoring status payload", "device", id, "payload", payload)
	}
}

// Rename sets the display name of a device and persists it. The registry is
// updated first; a failure to persist is logged and does not undo the rename.
func (m *Monitor) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)

	m.renameMu.Lock()
	defer m.renameMu.Unlock()

	if err := m.registry.Rename(id, name, m.clock.Now()); err != nil {
		return err
	}

	if err := m.aliases.SetName(ctx, id, name); err != nil {
		m.logger.Error(err, "Failed to persist device name", "device", id)
	}
	m.logger.Info("Device renamed", "device", model.NormalizeID(id), "name", name)
	return nil
}

// Devices returns every known device ordered by ID.
func (m *Monitor) Devices() []model.Device {
	return m.registry.Snapshot()
}

// Device returns one device, or presence.ErrDeviceNotFound.
func (m *Monitor) Device(id string) (model.Device, error) {
	d, ok := m.registry.Get(id)
	if !ok {
		return model.Device{}, fmt.Errorf("device %s: %w", model.NormalizeID(id), presence.ErrDeviceNotFound)
	}
	return d, nil
}

// Ready reports whether the broker connection is up.
func (m *Monitor) Ready() bool {
	return m.adapter.Connected()
}

// AddSink registers an extra transition consumer. Call it before Run.
func (m *Monitor) AddSink(name string, s notifier.Sink) {
	m.dispatcher.AddSink(name, s)
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails.
func (m *Monitor) Run(ctx context.Context) error {
	ctx = log.IntoContext(ctx)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return m.dispatcher.Run(ctx) })
	g.Go(func() error { return m.watchdog.Run(ctx) })
	g.Go(func() error { return m.adapter.Run(ctx) })
	if m.http != nil {
		g.Go(func() error { return m.http.Start(ctx) })
	}
	if m.watchAliases {
		g.Go(func() error { return m.aliases.Watch(ctx) })
	}

	m.logger.Info("StepGuard monitor started", "devices", m.registry.Len())
	return g.Wait()
}
