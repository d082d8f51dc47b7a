// Package ingest turns MQTT status messages into heartbeats.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/stepguard/internal/pkg/metrics"
	"github.com/autopeer-io/stepguard/pkg/log"
	pkgmqtt "github.com/autopeer-io/stepguard/pkg/mqtt"
	"github.com/autopeer-io/stepguard/pkg/mqtt/topic"
)

// HeartbeatFunc receives every decoded status message.
type HeartbeatFunc func(ctx context.Context, deviceID, payload string)

// Adapter subscribes to the heartbeat wildcard and forwards decoded messages.
// Messages are handled on the client's delivery goroutine, one at a time, in
// the order the broker sent them.
type Adapter struct {
	client  pkgmqtt.Client
	topics  *topic.Builder
	qos     int
	handler HeartbeatFunc
	logger  log.Logger
}

// NewAdapter creates an Adapter. It does not connect until Run.
func NewAdapter(client pkgmqtt.Client, topics *topic.Builder, qos int, handler HeartbeatFunc) *Adapter {
	return &Adapter{
		client:  client,
		topics:  topics,
		qos:     qos,
		handler: handler,
		logger:  log.WithName("ingest"),
	}
}

// Run connects to the broker, subscribes, and blocks until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	// 1. Start the connection manager (Non-blocking)
	if err := a.client.Start(ctx); err != nil {
		return err
	}

	// Ensure MQTT disconnects when Run exits
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.announce(shutdownCtx, "offline")
		a.client.Disconnect(shutdownCtx)
		metrics.BrokerConnected.Set(0)
	}()

	// 2. Wait for the initial connection before subscribing
	a.logger.Info("Waiting for MQTT connection...")
	if err := a.client.AwaitConnection(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	a.logger.Info("MQTT Connected")

	if err := a.Subscribe(ctx); err != nil {
		return err
	}
	a.announce(ctx, "online")

	wait.UntilWithContext(ctx, a.sampleConnection, time.Second)
	return nil
}

// Subscribe registers the heartbeat wildcard. The client re-subscribes it
// on every reconnect.
func (a *Adapter) Subscribe(ctx context.Context) error {
	filter := a.topics.StatusWildcard()
	if err := a.client.Subscribe(ctx, filter, a.qos, a.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %s, err: %w", filter, err)
	}
	return nil
}

// Connected reports whether the broker connection is up.
func (a *Adapter) Connected() bool {
	return a.client.IsConnected()
}

// HandleMessage decodes one message and forwards it. Malformed messages are
// logged and dropped, and a panicking handler never stops later deliveries.
func (a *Adapter) HandleMessage(ctx context.Context, t string, payload []byte) {
	msg, err := Decode(a.topics, t, payload)
	if err != nil {
		reason := "payload"
		if errors.Is(err, ErrMalformedTopic) {
			reason = "topic"
		}
		metrics.DecodeErrorsTotal.WithLabelValues(reason).Inc()
		a.logger.Warn("Dropping undecodable message", "topic", t, "error", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error(fmt.Errorf("panic: %v", r), "Heartbeat handler panicked", "device", msg.DeviceID)
		}
	}()
	a.handler(ctx, msg.DeviceID, msg.Payload)
}

func (a *Adapter) announce(ctx context.Context, state string) {
	if err := a.client.Publish(ctx, a.topics.MonitorStatus(), 1, true, []byte(state)); err != nil {
		a.logger.Debug("Failed to publish monitor status", "state", state, "error", err)
	}
}

func (a *Adapter) sampleConnection(context.Context) {
	if a.client.IsConnected() {
		metrics.BrokerConnected.Set(1)
		return
	}
	metrics.BrokerConnected.Set(0)
}
