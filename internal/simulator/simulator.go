// Package simulator publishes heartbeats on behalf of fake StepGuard devices,
// for exercising a monitor without hardware.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/stepguard/pkg/log"
	"github.com/autopeer-io/stepguard/pkg/mqtt"
	"github.com/autopeer-io/stepguard/pkg/mqtt/topic"
)

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock replaces the wall clock driving the publish loop.
func WithClock(c clock.WithTicker) Option {
	return func(s *Simulator) { s.clock = c }
}

// WithOfflineOnExit publishes "offline" for every device when Run returns.
func WithOfflineOnExit(v bool) Option {
	return func(s *Simulator) { s.offlineOnExit = v }
}

// WithQoS sets the QoS of heartbeat publishes.
func WithQoS(qos int) Option {
	return func(s *Simulator) { s.qos = qos }
}

type Simulator struct {
	client   mqtt.Client
	topics   *topic.Builder
	devices  []string
	interval time.Duration

	qos           int
	offlineOnExit bool
	clock         clock.WithTicker
	logger        log.Logger
}

func New(client mqtt.Client, topics *topic.Builder, devices []string, interval time.Duration, opts ...Option) (*Simulator, error) {
	if len(devices) == 0 {
		return nil, errors.New("simulator needs at least one device")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("heartbeat interval must be positive, got %s", interval)
	}

	s := &Simulator{
		client:   client,
		topics:   topics,
		devices:  devices,
		interval: interval,
		qos:      1,
		clock:    clock.RealClock{},
		logger:   log.WithName("simulator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GenerateIDs returns n locally administered MAC addresses.
func GenerateIDs(n int) []string {
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		ids = append(ids, fmt.Sprintf("02:00:00:%02X:%02X:%02X", (i>>16)&0xff, (i>>8)&0xff, i&0xff))
	}
	return ids
}

// Run connects and publishes one heartbeat per device every interval until
// ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.offlineOnExit {
			s.publish(shutdownCtx, "offline")
		}
		s.client.Disconnect(shutdownCtx)
	}()

	if err := s.client.AwaitConnection(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	s.logger.Info("Simulating devices", "count", len(s.devices), "interval", s.interval)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.Beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.Beat(ctx)
		}
	}
}

// Beat publishes "online" for every device and returns how many succeeded.
func (s *Simulator) Beat(ctx context.Context) int {
	return s.publish(ctx, "online")
}

func (s *Simulator) publish(ctx context.Context, payload string) int {
	sent := 0
	for _, id := range s.devices {
		if err := s.client.Publish(ctx, s.topics.Status(id), s.qos, false, []byte(payload)); err != nil {
			s.logger.Warn("Failed to publish heartbeat", "device", id, "error", err)
			continue
		}
		sent++
	}
	return sent
}
