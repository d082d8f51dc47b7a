package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/stepguard/internal/pkg/metrics"
	"github.com/autopeer-io/stepguard/pkg/mqtt/mqtttest"
	"github.com/autopeer-io/stepguard/pkg/mqtt/topic"
)

type received struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *received) handle(_ context.Context, id, payload string) {
	if payload == "boom" {
		panic("handler exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Message{DeviceID: id, Payload: payload})
}

func (r *received) all() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func startAdapter(t *testing.T) (*mqtttest.Client, *received) {
	t.Helper()

	client := mqtttest.NewClient()
	rec := &received{}
	a := NewAdapter(client, topic.NewBuilder("stepguard"), 1, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		assert.False(t, client.IsConnected())
	})

	require.Eventually(t, func() bool { return len(client.Filters()) == 1 }, time.Second, time.Millisecond)
	return client, rec
}

func TestAdapterSubscribesAndForwards(t *testing.T) {
	client, rec := startAdapter(t)
	assert.Equal(t, []string{"stepguard/status/#"}, client.Filters())

	client.Deliver("stepguard/status/AA:BB:CC", []byte("online"))
	client.Deliver("stepguard/status/DD:EE:FF", []byte("online"))
	client.Deliver("stepguard/status/AA:BB:CC", []byte("restarting"))

	assert.Equal(t, []Message{
		{DeviceID: "AA:BB:CC", Payload: "online"},
		{DeviceID: "DD:EE:FF", Payload: "online"},
		{DeviceID: "AA:BB:CC", Payload: "restarting"},
	}, rec.all())
}

func TestAdapterAnnouncesMonitorStatus(t *testing.T) {
	client, _ := startAdapter(t)

	require.Eventually(t, func() bool { return len(client.Published()) > 0 }, time.Second, time.Millisecond)
	published := client.Published()
	assert.Equal(t, "stepguard/monitor/status", published[0].Topic)
	assert.Equal(t, "online", string(published[0].Payload))
	assert.True(t, published[0].Retain)
}

func TestAdapterDropsMalformedMessages(t *testing.T) {
	client, rec := startAdapter(t)
	topicErrs := testutil.ToFloat64(metrics.DecodeErrorsTotal.WithLabelValues("topic"))
	payloadErrs := testutil.ToFloat64(metrics.DecodeErrorsTotal.WithLabelValues("payload"))

	client.Deliver("stepguard/status/", []byte("online"))
	client.Deliver("stepguard/status/AA:BB:CC", []byte{0xff, 0xfe})
	client.Deliver("stepguard/status/AA:BB:CC", []byte("boom"))
	client.Deliver("stepguard/status/AA:BB:CC", []byte("online"))

	assert.Equal(t, []Message{{DeviceID: "AA:BB:CC", Payload: "online"}}, rec.all())
	assert.Equal(t, topicErrs+1, testutil.ToFloat64(metrics.DecodeErrorsTotal.WithLabelValues("topic")))
	assert.Equal(t, payloadErrs+1, testutil.ToFloat64(metrics.DecodeErrorsTotal.WithLabelValues("payload")))
}

func TestAdapterCountsBlankDeviceIDAsMalformedTopic(t *testing.T) {
	client, rec := startAdapter(t)
	topicErrs := testutil.ToFloat64(metrics.DecodeErrorsTotal.WithLabelValues("topic"))

	client.Deliver("stepguard/status/ ", []byte("online"))
	client.Deliver("stepguard/status/site-1/\t", []byte("online"))

	assert.Empty(t, rec.all())
	assert.Equal(t, topicErrs+2, testutil.ToFloat64(metrics.DecodeErrorsTotal.WithLabelValues("topic")))
}

func TestAdapterSubscribeIsIdempotent(t *testing.T) {
	client := mqtttest.NewClient()
	a := NewAdapter(client, topic.NewBuilder(""), 1, func(context.Context, string, string) {})
	require.NoError(t, client.Start(context.Background()))

	require.NoError(t, a.Subscribe(context.Background()))
	require.NoError(t, a.Subscribe(context.Background()))
	assert.Equal(t, []string{"stepguard/status/#"}, client.Filters())
}

func TestDecode(t *testing.T) {
	b := topic.NewBuilder("stepguard")

	msg, err := Decode(b, "stepguard/status/AA:BB:CC", []byte(" Online\n"))
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC", msg.DeviceID)
	assert.Equal(t, SignalOnline, Classify(msg.Payload))

	_, err = Decode(b, "stepguard/status", []byte("online"))
	assert.ErrorIs(t, err, ErrMalformedTopic)
	assert.ErrorIs(t, err, topic.ErrMissingDeviceID)

	_, err = Decode(b, "stepguard/status/ ", []byte("online"))
	assert.ErrorIs(t, err, ErrMalformedTopic)

	_, err = Decode(b, "stepguard/status/AA", []byte{0xc3, 0x28})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestClassify(t *testing.T) {
	tests := map[string]Signal{
		"online":   SignalOnline,
		"ONLINE ":  SignalOnline,
		"offline":  SignalOffline,
		"":         SignalIgnored,
		"reboot":   SignalIgnored,
		"online!": SignalIgnored,
	}
	for payload, want := range tests {
		assert.Equal(t, want, Classify(payload), payload)
	}
	assert.Equal(t, "online", SignalOnline.String())
}
