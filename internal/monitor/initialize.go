package monitor

import (
	"context"
	"fmt"
	"os"

	"github.com/autopeer-io/stepguard/internal/monitor/alias"
	"github.com/autopeer-io/stepguard/pkg/log"
	"github.com/autopeer-io/stepguard/pkg/mqtt"
	"github.com/autopeer-io/stepguard/pkg/mqtt/topic"
	"github.com/autopeer-io/stepguard/pkg/options"
)

// InitializeMQTTClient builds the broker client. The broker publishes a
// retained "offline" on the monitor status topic if the monitor vanishes.
func InitializeMQTTClient(opts *options.MqttOptions, topics *topic.Builder) (mqtt.Client, error) {
	cfg := opts.ToClientConfig()

	if cfg.ClientID == "" {
		hostname, _ := os.Hostname()
		cfg.ClientID = fmt.Sprintf("stepguard-monitor-%s", hostname)
	}
	cfg.WillTopic = topics.MonitorStatus()
	cfg.WillPayload = []byte("offline")
	cfg.WillQoS = 1
	cfg.WillRetain = true

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "failed to new mqtt client")
		return nil, err
	}

	return client, nil
}

// InitializeAliasBackend selects where device names are stored.
func InitializeAliasBackend(ctx context.Context, opts *options.AliasOptions, s3 *options.S3Options) (alias.Backend, error) {
	switch opts.Backend {
	case options.AliasBackendS3:
		backend, err := alias.NewS3Backend(ctx, s3, opts.ObjectKey)
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 alias backend: %w", err)
		}
		return backend, nil
	case options.AliasBackendFile, "":
		return alias.NewFileBackend(opts.File), nil
	}
	return nil, fmt.Errorf("unknown alias backend %q", opts.Backend)
}
