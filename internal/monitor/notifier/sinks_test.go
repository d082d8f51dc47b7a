package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/internal/pkg/metrics"
	"github.com/autopeer-io/stepguard/pkg/log"
	"github.com/autopeer-io/stepguard/pkg/mqtt/mqtttest"
	"github.com/autopeer-io/stepguard/pkg/mqtt/topic"
)

func lookupFrom(devices ...model.Device) DeviceLookup {
	return func(id string) (model.Device, bool) {
		for _, d := range devices {
			if d.ID == id {
				return d, true
			}
		}
		return model.Device{}, false
	}
}

func TestMQTTSinkPublishesRetainedPresence(t *testing.T) {
	client := mqtttest.NewClient()
	dev := model.Device{ID: "AA:BB:CC", Status: model.StatusOffline, LastSeen: t0, DisplayName: "Grandma"}
	sink := NewMQTTSink(client, topic.NewBuilder("stepguard"), lookupFrom(dev), 1)

	e := model.Event{DeviceID: "AA:BB:CC", Status: model.StatusOffline, Time: t0.Add(16 * time.Second), Seq: 2, Reason: model.ReasonTimeout}
	require.NoError(t, sink.OnTransition(context.Background(), e))

	published := client.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "stepguard/presence/AA:BB:CC", published[0].Topic)
	assert.True(t, published[0].Retain)
	assert.Equal(t, 1, published[0].QoS)

	var msg PresenceMessage
	require.NoError(t, json.Unmarshal(published[0].Payload, &msg))
	assert.Equal(t, "Grandma", msg.Name)
	assert.Equal(t, model.StatusOffline, msg.Status)
	assert.Equal(t, model.ReasonTimeout, msg.Reason)
	require.NotNil(t, msg.LastSeen)
	assert.True(t, t0.Equal(*msg.LastSeen))
}

func TestMQTTSinkReturnsPublishError(t *testing.T) {
	client := mqtttest.NewClient()
	client.PublishErr = errors.New("not connected")
	sink := NewMQTTSink(client, topic.NewBuilder(""), nil, 0)

	err := sink.OnTransition(context.Background(), ev("AA", model.StatusOnline, 1))
	assert.EqualError(t, err, "not connected")
}

func TestConsoleSinkRendersTable(t *testing.T) {
	var buf bytes.Buffer
	devices := []model.Device{
		{ID: "AA:BB:CC", Status: model.StatusOnline, LastSeen: t0, DisplayName: "Workstation-1"},
		{ID: "DD:EE:FF", Status: model.StatusOffline, Placeholder: true},
	}
	sink := NewConsoleSink(&buf, func() []model.Device { return devices })
	sink.now = func() time.Time { return t0.Add(3 * time.Second) }

	require.NoError(t, sink.OnTransition(context.Background(), ev("AA:BB:CC", model.StatusOnline, 1)))

	out := buf.String()
	assert.Contains(t, out, "DeviceCameOnline")
	assert.Contains(t, out, "LAST SEEN")
	assert.Contains(t, out, "Workstation-1")
	assert.Contains(t, out, "3s ago")
	assert.Contains(t, out, "never")
}

func TestMetricsSink(t *testing.T) {
	sink := NewMetricsSink(func() (int, int) { return 3, 1 })
	before := testutil.ToFloat64(metrics.TransitionsTotal.WithLabelValues("offline", "timeout"))

	e := model.Event{DeviceID: "AA", Status: model.StatusOffline, Reason: model.ReasonTimeout}
	require.NoError(t, sink.OnTransition(context.Background(), e))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.TransitionsTotal.WithLabelValues("offline", "timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Devices.WithLabelValues("online")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Devices.WithLabelValues("offline")))
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(log.NewNopLogger(), lookupFrom(model.Device{ID: "AA", DisplayName: "Hall"}))
	assert.NoError(t, sink.OnTransition(context.Background(), ev("AA", model.StatusOnline, 1)))
	assert.NoError(t, sink.OnTransition(context.Background(), ev("BB", model.StatusOffline, 2)))
}
