package model

import "time"

// EventKind names a presence transition.
type EventKind string

const (
	DeviceCameOnline  EventKind = "DeviceCameOnline"
	DeviceWentOffline EventKind = "DeviceWentOffline"
)

// Reason explains what caused a transition.
type Reason string

const (
	ReasonHeartbeat      Reason = "heartbeat"
	ReasonTimeout        Reason = "timeout"
	ReasonOfflinePayload Reason = "offline-payload"
)

// Event is a status transition of a single device.
type Event struct {
	DeviceID string    `json:"deviceId"`
	Status   Status    `json:"status"`
	Time     time.Time `json:"time"`

	// Seq orders events across the whole registry. A higher Seq was decided later.
	Seq uint64 `json:"seq"`

	Reason Reason `json:"reason"`
}

// Kind returns the transition name derived from the new status.
func (e Event) Kind() EventKind {
	if e.Status == StatusOnline {
		return DeviceCameOnline
	}
	return DeviceWentOffline
}
