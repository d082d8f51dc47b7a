package model

import (
	"strings"
	"time"
)

// Status is the presence state of a device.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Device is the presence record of one StepGuard wearable.
type Device struct {
	// ID is the stable identifier reported by the device (its MAC address).
	ID string `json:"id"`

	// Status is the current presence state.
	Status Status `json:"status"`

	// LastSeen is when the last heartbeat arrived. Zero for a device that
	// has been named but never heard.
	LastSeen time.Time `json:"lastSeen"`

	// DisplayName is the optional human label. Empty falls back to ID.
	DisplayName string `json:"displayName,omitempty"`

	// FirstSeen is when the record was created.
	FirstSeen time.Time `json:"firstSeen"`

	// Placeholder is true while the record exists only because it was renamed.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Name returns the display name, or the ID when no alias is set.
func (d *Device) Name() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.ID
}

// Online reports whether the device is currently online.
func (d *Device) Online() bool {
	return d.Status == StatusOnline
}

// NormalizeID canonicalizes a device identifier so that "aa:bb:cc " and
// "AA:BB:CC" address the same record.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
