package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/internal/monitor/notifier"
	"github.com/autopeer-io/stepguard/internal/monitor/presence"
	"github.com/autopeer-io/stepguard/pkg/mqtt/mqtttest"
	"github.com/autopeer-io/stepguard/pkg/options"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	m      *Monitor
	client *mqtttest.Client
	clock  *clocktesting.FakeClock
	events *notifier.ChanSink
	names  string
}

func testConfig(t *testing.T) *Config {
	t.Helper()

	aliasOpts := options.NewAliasOptions()
	aliasOpts.File = filepath.Join(t.TempDir(), "device_names.json")
	aliasOpts.Watch = false

	httpOpts := options.NewHttpOptions()
	httpOpts.Addr = ""

	return &Config{
		MqttOptions:     options.NewMqttOptions(),
		WatchdogOptions: options.NewWatchdogOptions(),
		AliasOptions:    aliasOpts,
		S3Options:       options.NewS3Options(),
		HttpOptions:     httpOpts,
		Client:          mqtttest.NewClient(),
		Clock:           clocktesting.NewFakeClock(t0),
	}
}

func startMonitor(t *testing.T, cfg *Config) *harness {
	t.Helper()

	m, err := cfg.NewMonitor(context.Background())
	require.NoError(t, err)

	h := &harness{
		m:      m,
		client: cfg.Client.(*mqtttest.Client),
		clock:  cfg.Clock.(*clocktesting.FakeClock),
		events: notifier.NewChanSink(64),
		names:  cfg.AliasOptions.File,
	}
	m.AddSink("test", h.events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	require.Eventually(t, func() bool {
		return h.clock.HasWaiters() && len(h.client.Filters()) == 1
	}, 2*time.Second, time.Millisecond)
	return h
}

func (h *harness) heartbeat(id string) {
	h.client.Deliver("stepguard/status/"+id, []byte("online"))
}

func (h *harness) expect(t *testing.T, kind model.EventKind, id string) model.Event {
	t.Helper()
	select {
	case e := <-h.events.Events():
		assert.Equal(t, kind, e.Kind())
		assert.Equal(t, id, e.DeviceID)
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("no %s event for %s", kind, id)
		return model.Event{}
	}
}

func (h *harness) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-h.events.Events():
		t.Fatalf("unexpected event %s for %s", e.Kind(), e.DeviceID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScenarioDeviceTimesOutAndReturns(t *testing.T) {
	h := startMonitor(t, testConfig(t))

	h.heartbeat("AA:BB:CC")
	h.expect(t, model.DeviceCameOnline, "AA:BB:CC")

	d, err := h.m.Device("AA:BB:CC")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnline, d.Status)

	h.clock.Step(16 * time.Second)
	e := h.expect(t, model.DeviceWentOffline, "AA:BB:CC")
	assert.Equal(t, model.ReasonTimeout, e.Reason)

	h.clock.Step(4 * time.Second)
	h.heartbeat("AA:BB:CC")
	h.expect(t, model.DeviceCameOnline, "AA:BB:CC")
	h.expectNone(t)

	d, err = h.m.Device("AA:BB:CC")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(20*time.Second), d.LastSeen)

	require.Eventually(t, func() bool {
		for _, msg := range h.client.Published() {
			if msg.Topic == "stepguard/presence/AA:BB:CC" && msg.Retain {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestScenarioInterleavedDevicesStayOnline(t *testing.T) {
	h := startMonitor(t, testConfig(t))
	ctx := context.Background()

	h.heartbeat("AA:00:01")
	h.expect(t, model.DeviceCameOnline, "AA:00:01")

	for s := 1; s <= 60; s++ {
		h.clock.Step(time.Second)
		if s%5 == 0 {
			h.heartbeat("AA:00:01")
		}
		if s%5 == 2 {
			h.heartbeat("AA:00:02")
		}
		if s == 2 {
			h.expect(t, model.DeviceCameOnline, "AA:00:02")
		}
		assert.Zero(t, h.m.watchdog.SweepOnce(ctx), "t=%d", s)
	}

	h.expectNone(t)
	for _, d := range h.m.Devices() {
		assert.Equal(t, model.StatusOnline, d.Status, d.ID)
	}
}

func TestRenameBeforeHeartbeatCreatesPlaceholder(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatchdogOptions.RenamePolicy = options.RenamePolicyPlaceholder
	h := startMonitor(t, cfg)

	require.NoError(t, h.m.Rename(context.Background(), "aa:bb:cc", "  Workstation-1 "))
	h.expectNone(t)

	d, err := h.m.Device("AA:BB:CC")
	require.NoError(t, err)
	assert.True(t, d.Placeholder)
	assert.Equal(t, model.StatusOffline, d.Status)
	assert.Equal(t, "Workstation-1", d.Name())

	data, err := os.ReadFile(h.names)
	require.NoError(t, err)
	assert.JSONEq(t, `{"AA:BB:CC": "Workstation-1"}`, string(data))

	h.heartbeat("AA:BB:CC")
	h.expect(t, model.DeviceCameOnline, "AA:BB:CC")
	h.expectNone(t)

	d, _ = h.m.Device("AA:BB:CC")
	assert.False(t, d.Placeholder)
	assert.Equal(t, "Workstation-1", d.Name())
}

func TestRenameBeforeHeartbeatRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatchdogOptions.RenamePolicy = options.RenamePolicyReject
	h := startMonitor(t, cfg)

	err := h.m.Rename(context.Background(), "AA:BB:CC", "Workstation-1")
	require.ErrorIs(t, err, presence.ErrDeviceNotFound)
	assert.Empty(t, h.m.Devices())

	_, err = os.Stat(h.names)
	assert.True(t, os.IsNotExist(err), "nothing persisted")

	_, err = h.m.Device("AA:BB:CC")
	assert.ErrorIs(t, err, presence.ErrDeviceNotFound)
}

func TestRenameKeepsPresence(t *testing.T) {
	h := startMonitor(t, testConfig(t))
	h.heartbeat("AA:BB:CC")
	h.expect(t, model.DeviceCameOnline, "AA:BB:CC")
	before, _ := h.m.Device("AA:BB:CC")

	require.NoError(t, h.m.Rename(context.Background(), "AA:BB:CC", "Workstation-1"))
	h.expectNone(t)

	after, _ := h.m.Device("AA:BB:CC")
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.LastSeen, after.LastSeen)
	assert.Equal(t, "Workstation-1", after.DisplayName)
}

func TestConcurrentRenamesSurviveAliasWatcher(t *testing.T) {
	cfg := testConfig(t)
	cfg.AliasOptions.Watch = true
	h := startMonitor(t, cfg)
	require.True(t, h.m.watchAliases)

	ids := []string{"AA:00:01", "AA:00:02"}
	for _, id := range ids {
		h.heartbeat(id)
		h.expect(t, model.DeviceCameOnline, id)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				assert.NoError(t, h.m.Rename(context.Background(), id, fmt.Sprintf("%s-%d", id, i)))
			}
		}(id)
	}
	wg.Wait()
	h.expectNone(t)

	want := map[string]string{"AA:00:01": "AA:00:01-19", "AA:00:02": "AA:00:02-19"}
	names := func() map[string]string {
		out := make(map[string]string)
		for _, d := range h.m.Devices() {
			out[d.ID] = d.DisplayName
		}
		return out
	}
	persisted := func() map[string]string {
		data, err := os.ReadFile(h.names)
		if err != nil {
			return nil
		}
		var doc map[string]string
		if json.Unmarshal(data, &doc) != nil {
			return nil
		}
		return doc
	}

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, names()) && assert.ObjectsAreEqual(want, persisted())
	}, 5*time.Second, 10*time.Millisecond)

	// Reloads triggered by the last writes must not roll anything back.
	require.NoError(t, h.m.aliases.Reload(context.Background()))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, want, names())
	assert.Equal(t, want, persisted())
	assert.Equal(t, want, h.m.aliases.Names())
}

func TestOfflinePayload(t *testing.T) {
	t.Run("ignored by default", func(t *testing.T) {
		h := startMonitor(t, testConfig(t))
		h.heartbeat("AA:BB:CC")
		h.expect(t, model.DeviceCameOnline, "AA:BB:CC")

		h.client.Deliver("stepguard/status/AA:BB:CC", []byte("offline"))
		h.expectNone(t)
	})

	t.Run("honored when enabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.WatchdogOptions.HonorOfflinePayload = true
		h := startMonitor(t, cfg)
		h.heartbeat("AA:BB:CC")
		h.expect(t, model.DeviceCameOnline, "AA:BB:CC")

		h.client.Deliver("stepguard/status/AA:BB:CC", []byte("OFFLINE"))
		e := h.expect(t, model.DeviceWentOffline, "AA:BB:CC")
		assert.Equal(t, model.ReasonOfflinePayload, e.Reason)
	})
}

func TestNamesLoadedAtStartupAndReloaded(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.AliasOptions.File, []byte(`{"aa:bb:cc": "Kitchen"}`), 0o644))
	h := startMonitor(t, cfg)

	h.heartbeat("AA:BB:CC")
	h.expect(t, model.DeviceCameOnline, "AA:BB:CC")
	d, _ := h.m.Device("AA:BB:CC")
	assert.Equal(t, "Kitchen", d.Name())

	require.NoError(t, os.WriteFile(cfg.AliasOptions.File, []byte(`{"AA:BB:CC": "Hall"}`), 0o644))
	require.NoError(t, h.m.aliases.Reload(context.Background()))
	d, _ = h.m.Device("AA:BB:CC")
	assert.Equal(t, "Hall", d.Name())
}

func TestReadyFollowsBrokerConnection(t *testing.T) {
	h := startMonitor(t, testConfig(t))
	assert.True(t, h.m.Ready())

	h.client.SetConnected(false)
	assert.False(t, h.m.Ready())
}

func TestNewMonitorRejectsUnknownRenamePolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatchdogOptions.RenamePolicy = "drop"
	_, err := cfg.NewMonitor(context.Background())
	assert.Error(t, err)
}
