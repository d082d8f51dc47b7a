package topic

import (
	"errors"
	"fmt"
	"strings"
)

// Segments under the root namespace. Devices in the field publish to these,
// so changing them breaks compatibility with deployed firmware.
const (
	// SegmentStatus carries device heartbeats (Device -> Monitor).
	// Structure: {root}/status/{deviceID}, payload "online".
	SegmentStatus = "status"

	// SegmentPresence carries the monitor's view of a device (Monitor -> consumers).
	// Structure: {root}/presence/{deviceID}
	SegmentPresence = "presence"

	// SegmentMonitor carries the liveness of the monitor itself, backed by
	// its Last Will. Structure: {root}/monitor/status
	SegmentMonitor = "monitor"
)

// DefaultRoot is the namespace used by StepGuard firmware.
const DefaultRoot = "stepguard"

// MultiWildcard matches the current level and every level below it.
const MultiWildcard = "#"

// ErrMissingDeviceID is returned when a topic has no trailing device segment.
var ErrMissingDeviceID = errors.New("topic has no device segment")

// Builder constructs and parses StepGuard topic strings.
type Builder struct {
	root string
}

// NewBuilder creates a Builder for root. An empty root uses DefaultRoot.
func NewBuilder(root string) *Builder {
	root = strings.Trim(root, "/")
	if root == "" {
		root = DefaultRoot
	}
	return &Builder{root: root}
}

// Root returns the namespace.
func (b *Builder) Root() string {
	return b.root
}

// Status returns the heartbeat topic of a device.
func (b *Builder) Status(deviceID string) string {
	return b.build(SegmentStatus, deviceID)
}

// StatusWildcard returns the filter matching every heartbeat.
// Result: {root}/status/#
func (b *Builder) StatusWildcard() string {
	return b.build(SegmentStatus, MultiWildcard)
}

// Presence returns the topic on which the monitor republishes a device state.
func (b *Builder) Presence(deviceID string) string {
	return b.build(SegmentPresence, deviceID)
}

// MonitorStatus returns the retained topic reporting whether the monitor is
// connected ("online") or gone ("offline", published by the broker as Will).
func (b *Builder) MonitorStatus() string {
	return b.build(SegmentMonitor, SegmentStatus)
}

// ParseStatus extracts the device identifier from a heartbeat topic.
// The identifier is the trailing segment and must not be blank; the topic
// must live under {root}/status/.
func (b *Builder) ParseStatus(topic string) (string, error) {
	prefix := b.root + "/" + SegmentStatus + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", fmt.Errorf("topic %q is not under %q: %w", topic, prefix, ErrMissingDeviceID)
	}

	rest := strings.TrimPrefix(topic, prefix)
	id := rest[strings.LastIndex(rest, "/")+1:]
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("topic %q: %w", topic, ErrMissingDeviceID)
	}
	return id, nil
}

// build joins {root}/{segment}/{id}.
func (b *Builder) build(segment, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, id)
}
