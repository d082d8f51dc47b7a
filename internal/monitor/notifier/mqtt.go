package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	pkgmqtt "github.com/autopeer-io/stepguard/pkg/mqtt"
	"github.com/autopeer-io/stepguard/pkg/mqtt/topic"
)

// PresenceMessage is the retained document published for each device.
type PresenceMessage struct {
	DeviceID string       `json:"deviceId"`
	Name     string       `json:"name"`
	Status   model.Status `json:"status"`
	LastSeen *time.Time   `json:"lastSeen,omitempty"`
	Changed  time.Time    `json:"changed"`
	Reason   model.Reason `json:"reason"`
}

// MQTTSink republishes every transition as a retained message on
// {root}/presence/{deviceID}, so late subscribers see the current state.
type MQTTSink struct {
	client pkgmqtt.Client
	topics *topic.Builder
	lookup DeviceLookup
	qos    int
}

func NewMQTTSink(client pkgmqtt.Client, topics *topic.Builder, lookup DeviceLookup, qos int) *MQTTSink {
	return &MQTTSink{client: client, topics: topics, lookup: lookup, qos: qos}
}

func (s *MQTTSink) OnTransition(ctx context.Context, e model.Event) error {
	msg := PresenceMessage{
		DeviceID: e.DeviceID,
		Name:     e.DeviceID,
		Status:   e.Status,
		Changed:  e.Time,
		Reason:   e.Reason,
	}
	if s.lookup != nil {
		if d, ok := s.lookup(e.DeviceID); ok {
			msg.Name = d.Name()
			if !d.LastSeen.IsZero() {
				seen := d.LastSeen
				msg.LastSeen = &seen
			}
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal presence of %s: %w", e.DeviceID, err)
	}

	return s.client.Publish(ctx, s.topics.Presence(e.DeviceID), s.qos, true, payload)
}
