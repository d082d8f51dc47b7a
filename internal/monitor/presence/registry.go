package presence

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/pkg/log"
)

var (
	// ErrDeviceNotFound is returned when an operation addresses a device
	// the registry has never seen.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrEmptyDeviceID is returned for identifiers that are blank once normalized.
	ErrEmptyDeviceID = errors.New("device id is empty")
)

// RenamePolicy decides what Rename does for a device that was never heard.
type RenamePolicy int

const (
	// RenamePolicyPlaceholder creates an Offline record with a zero LastSeen.
	// The first heartbeat then brings it Online with a single event.
	RenamePolicyPlaceholder RenamePolicy = iota

	// RenamePolicyReject fails with ErrDeviceNotFound and changes nothing.
	RenamePolicyReject
)

// ParseRenamePolicy maps the configuration value to a RenamePolicy.
func ParseRenamePolicy(s string) (RenamePolicy, error) {
	switch s {
	case "", "placeholder":
		return RenamePolicyPlaceholder, nil
	case "reject":
		return RenamePolicyReject, nil
	}
	return 0, fmt.Errorf("unknown rename policy %q", s)
}

func (p RenamePolicy) String() string {
	if p == RenamePolicyReject {
		return "reject"
	}
	return "placeholder"
}

// NameResolver looks up the display name of a device when its record is created.
type NameResolver func(id string) (string, bool)

// Option configures a Registry.
type Option func(*Registry)

// WithRenamePolicy sets how renames of unknown devices are handled.
func WithRenamePolicy(p RenamePolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithNameResolver seeds DisplayName of new records.
func WithNameResolver(fn NameResolver) Option {
	return func(r *Registry) { r.resolve = fn }
}

type entry struct {
	device  model.Device
	machine *fsm.FSM
}

// Registry is the authoritative in-memory table of device presence.
// Every read-modify-write of a record happens under a single lock, and the
// transition events it returns are meant to be dispatched after the call
// returns, outside that lock.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*entry
	seq     uint64

	policy  RenamePolicy
	resolve NameResolver
	logger  log.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		devices: make(map[string]*entry),
		logger:  log.WithName("presence"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordHeartbeat stores a heartbeat received at now.
// An unseen device is created Online. An Offline device comes back Online.
// In both cases the returned event is DeviceCameOnline. A device that is
// already Online only has its LastSeen refreshed and no event is returned.
func (r *Registry) RecordHeartbeat(id string, now time.Time) (model.Event, bool) {
	id = model.NormalizeID(id)
	if id == "" {
		return model.Event{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.devices[id]
	if !ok {
		e = r.create(id, model.StatusOnline, now)
		e.device.LastSeen = now
		return r.event(id, model.StatusOnline, now, model.ReasonHeartbeat), true
	}

	e.device.LastSeen = now
	e.device.Placeholder = false
	if !r.transition(e, eventHeartbeat) {
		return model.Event{}, false
	}
	return r.event(id, model.StatusOnline, now, model.ReasonHeartbeat), true
}

// SweepTimeouts marks Offline every Online device whose last heartbeat is
// strictly older than timeout at now, and returns one DeviceWentOffline
// event per device demoted, in no particular order. A device exactly timeout
// old stays Online.
func (r *Registry) SweepTimeouts(now time.Time, timeout time.Duration) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []model.Event
	for id, e := range r.devices {
		if !e.device.Online() || now.Sub(e.device.LastSeen) <= timeout {
			continue
		}
		if r.transition(e, eventTimeout) {
			events = append(events, r.event(id, model.StatusOffline, now, model.ReasonTimeout))
		}
	}
	return events
}

// MarkOffline demotes an Online device immediately, for devices announcing
// their own shutdown. Unknown or already Offline devices yield no event.
func (r *Registry) MarkOffline(id string, now time.Time) (model.Event, bool) {
	id = model.NormalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.devices[id]
	if !ok || !r.transition(e, eventOffline) {
		return model.Event{}, false
	}
	return r.event(id, model.StatusOffline, now, model.ReasonOfflinePayload), true
}

// Rename sets the display name of a device. An empty name clears it.
// Status and LastSeen are never touched and no event is produced.
// For an unseen device the outcome depends on the RenamePolicy.
func (r *Registry) Rename(id, name string, now time.Time) error {
	id = model.NormalizeID(id)
	if id == "" {
		return ErrEmptyDeviceID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.devices[id]
	if !ok {
		if r.policy == RenamePolicyReject {
			return fmt.Errorf("rename %s: %w", id, ErrDeviceNotFound)
		}
		e = r.create(id, model.StatusOffline, now)
		e.device.Placeholder = true
	}
	e.device.DisplayName = name
	return nil
}

// SyncNames replaces the display name of every known device with the one in
// names, clearing names that are absent. It never creates records.
func (r *Registry) SyncNames(names map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.devices {
		e.device.DisplayName = names[id]
	}
}

// Get returns a copy of the record of id.
func (r *Registry) Get(id string) (model.Device, bool) {
	id = model.NormalizeID(id)

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.devices[id]
	if !ok {
		return model.Device{}, false
	}
	return e.device, true
}

// Snapshot returns a copy of every record ordered by ID.
func (r *Registry) Snapshot() []model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Device, 0, len(r.devices))
	for _, id := range r.sortedIDs() {
		out = append(out, r.devices[id].device)
	}
	return out
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Counts returns the number of Online and Offline devices.
func (r *Registry) Counts() (online, offline int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.devices {
		if e.device.Online() {
			online++
		} else {
			offline++
		}
	}
	return online, offline
}

// create inserts a new record. Callers hold the write lock.
func (r *Registry) create(id string, status model.Status, now time.Time) *entry {
	e := &entry{
		device: model.Device{
			ID:        id,
			Status:    status,
			FirstSeen: now,
		},
		machine: newMachine(status),
	}
	if r.resolve != nil {
		if name, ok := r.resolve(id); ok {
			e.device.DisplayName = name
		}
	}
	r.devices[id] = e
	return e
}

// transition fires event on the record machine and mirrors the resulting
// state. Callers hold the write lock.
func (r *Registry) transition(e *entry, event string) bool {
	changed, err := fire(e.machine, event)
	if err != nil {
		r.logger.Error(err, "Presence state machine rejected event", "device", e.device.ID, "event", event)
		return false
	}
	e.device.Status = model.Status(e.machine.Current())
	return changed
}

// event stamps a transition with the next sequence number. Callers hold the
// write lock.
func (r *Registry) event(id string, status model.Status, now time.Time, reason model.Reason) model.Event {
	r.seq++
	return model.Event{
		DeviceID: id,
		Status:   status,
		Time:     now,
		Seq:      r.seq,
		Reason:   reason,
	}
}

func (r *Registry) sortedIDs() []string {
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
