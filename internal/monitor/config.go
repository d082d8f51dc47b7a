package monitor

import (
	"context"
	"fmt"
	"io"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/stepguard/internal/monitor/alias"
	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/internal/monitor/ingest"
	"github.com/autopeer-io/stepguard/internal/monitor/notifier"
	"github.com/autopeer-io/stepguard/internal/monitor/presence"
	httpserver "github.com/autopeer-io/stepguard/internal/monitor/server/http"
	"github.com/autopeer-io/stepguard/internal/monitor/watchdog"
	"github.com/autopeer-io/stepguard/pkg/log"
	pkgmqtt "github.com/autopeer-io/stepguard/pkg/mqtt"
	"github.com/autopeer-io/stepguard/pkg/mqtt/topic"
	"github.com/autopeer-io/stepguard/pkg/options"
)

type Config struct {
	MqttOptions     *options.MqttOptions
	WatchdogOptions *options.WatchdogOptions
	AliasOptions    *options.AliasOptions
	S3Options       *options.S3Options
	HttpOptions     *options.HttpOptions

	// Console, when set, receives the device table on every transition.
	Console io.Writer

	// Client replaces the MQTT client built from MqttOptions.
	Client pkgmqtt.Client
	// AliasBackend replaces the backend selected by AliasOptions.
	AliasBackend alias.Backend
	// Clock replaces the wall clock.
	Clock clock.WithTicker
}

// NewMonitor wires every component from the configuration.
func (cfg *Config) NewMonitor(ctx context.Context) (*Monitor, error) {
	topics := topic.NewBuilder(cfg.MqttOptions.TopicRoot)

	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	// 1. Infrastructure: Alias persistence (Secondary Adapter)
	backend := cfg.AliasBackend
	if backend == nil {
		var err error
		if backend, err = InitializeAliasBackend(ctx, cfg.AliasOptions, cfg.S3Options); err != nil {
			return nil, err
		}
	}
	aliases, err := alias.NewStore(ctx, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to init alias store: %w", err)
	}

	// 2. Core: Presence Registry
	policy, err := presence.ParseRenamePolicy(cfg.WatchdogOptions.RenamePolicy)
	if err != nil {
		return nil, err
	}
	registry := presence.NewRegistry(
		presence.WithRenamePolicy(policy),
		presence.WithNameResolver(aliases.ResolveName),
	)
	aliases.OnReload(registry.SyncNames)

	// 3. Infrastructure: MQTT
	client := cfg.Client
	if client == nil {
		if client, err = InitializeMQTTClient(cfg.MqttOptions, topics); err != nil {
			return nil, err
		}
	}

	m := &Monitor{
		registry:     registry,
		aliases:      aliases,
		dispatcher:   notifier.NewDispatcher(cfg.WatchdogOptions.QueueSize),
		clock:        clk,
		honorOffline: cfg.WatchdogOptions.HonorOfflinePayload,
		watchAliases: cfg.AliasOptions.Watch && cfg.AliasOptions.Backend == options.AliasBackendFile && cfg.AliasBackend == nil,
		logger:       log.WithName("monitor"),
	}

	// 4. Notification sinks
	lookup := func(id string) (model.Device, bool) { return registry.Get(id) }
	m.dispatcher.AddSink("log", notifier.NewLogSink(log.WithName("presence"), lookup))
	m.dispatcher.AddSink("metrics", notifier.NewMetricsSink(registry.Counts))
	m.dispatcher.AddSink("mqtt", notifier.NewMQTTSink(client, topics, lookup, cfg.MqttOptions.QoS))
	if cfg.Console != nil {
		m.dispatcher.AddSink("console", notifier.NewConsoleSink(cfg.Console, registry.Snapshot))
	}

	// 5. Watchdog
	if m.watchdog, err = watchdog.New(registry, m.dispatcher,
		cfg.WatchdogOptions.Timeout, cfg.WatchdogOptions.Period, watchdog.WithClock(clk)); err != nil {
		return nil, err
	}

	// 6. Ingress (Primary Adapters)
	m.adapter = ingest.NewAdapter(client, topics, cfg.MqttOptions.QoS, m.HandleHeartbeat)
	if cfg.HttpOptions != nil && cfg.HttpOptions.Addr != "" {
		m.http = httpserver.NewServer(cfg.HttpOptions, m)
	}

	return m, nil
}
