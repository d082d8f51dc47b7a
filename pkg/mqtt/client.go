package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/stepguard/pkg/log"
)

var _ Client = (*pahoClient)(nil)

type pahoClient struct {
	cfg    *ClientConfig
	cm     *autopaho.ConnectionManager
	logger log.Logger

	connected atomic.Bool

	// subscriptions is keyed by topic filter, so a filter is never held twice.
	mu            sync.RWMutex
	subscriptions map[string]subscriptionEntry
}

type subscriptionEntry struct {
	topic   string
	qos     int
	handler MessageHandler
}

// NewClient creates a new MQTT client implementing the Client interface.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}

	setDefaultConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &pahoClient{
		cfg:           cfg,
		logger:        log.WithName("mqtt"),
		subscriptions: make(map[string]subscriptionEntry),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL) // Already validated

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(c.cfg.ReconnectBackoff),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		WillMessage:                   c.willMessage(),
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.router,
			},
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
	}
	if c.cfg.UsesTLS() {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		}
	}

	c.logger.Info("Starting MQTT client", "broker", brokerURL.Redacted(), "clientID", c.cfg.ClientID, "tls", c.cfg.UsesTLS())

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %w", err)
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		c.logger.Warn("MQTT disconnect did not complete cleanly", "error", err)
	}
	c.connected.Store(false)
	c.logger.Info("MQTT client disconnected")
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return fmt.Errorf("client not started")
	}

	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (c *pahoClient) Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return fmt.Errorf("client not started")
	}

	c.register(topic, qos, handler)

	// When the connection is down the SUBSCRIBE is sent again by onConnectionUp.
	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: byte(qos)},
		},
	}); err != nil {
		return fmt.Errorf("failed to send subscription packet: %w", err)
	}

	c.logger.Info("Subscribed to topic", "topic", topic, "qos", qos)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, topic string) error {
	if c.cm == nil {
		return fmt.Errorf("client not started")
	}

	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()

	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{
		Topics: []string{topic},
	})
	return err
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return fmt.Errorf("client not started")
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

func (c *pahoClient) register(topic string, qos int, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[topic] = subscriptionEntry{topic: topic, qos: qos, handler: handler}
}

// entries returns the registered subscriptions ordered by filter.
func (c *pahoClient) entries() []subscriptionEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]subscriptionEntry, 0, len(c.subscriptions))
	for _, e := range c.subscriptions {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].topic < out[j].topic })
	return out
}

// --- Internal Callbacks ---

// onConnectionUp is called when the connection is established or re-established.
func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.connected.Store(true)
	c.logger.Info("MQTT connection established")

	sub := c.resubscribePacket()
	if sub == nil {
		return
	}
	if _, err := cm.Subscribe(context.Background(), sub); err != nil {
		c.logger.Error(err, "Failed to re-subscribe", "filters", len(sub.Subscriptions))
		return
	}
	c.logger.Info("Re-subscribed", "filters", len(sub.Subscriptions))
}

// resubscribePacket builds one SUBSCRIBE carrying every registered filter,
// ordered by filter. It returns nil when nothing is registered.
func (c *pahoClient) resubscribePacket() *paho.Subscribe {
	entries := c.entries()
	if len(entries) == 0 {
		return nil
	}

	sub := &paho.Subscribe{Subscriptions: make([]paho.SubscribeOptions, 0, len(entries))}
	for _, e := range entries {
		sub.Subscriptions = append(sub.Subscriptions, paho.SubscribeOptions{Topic: e.topic, QoS: byte(e.qos)})
	}
	return sub
}

func (c *pahoClient) onConnectError(err error) {
	c.connected.Store(false)
	c.logger.Error(err, "MQTT connection failed, retrying")
}

func (c *pahoClient) onClientError(err error) {
	c.connected.Store(false)
	c.logger.Error(err, "MQTT client error")
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	c.connected.Store(false)
	if d.Properties != nil {
		c.logger.Warn("MQTT server requested disconnect", "reason", d.Properties.ReasonString)
		return
	}
	c.logger.Warn("MQTT server requested disconnect", "reasonCode", d.ReasonCode)
}

// router dispatches an incoming message to every matching handler.
// Handlers run inline so that messages are delivered in the order received.
func (c *pahoClient) router(p paho.PublishReceived) (bool, error) {
	c.dispatch(p.Packet.Topic, p.Packet.Payload)
	return true, nil // Always acknowledge reception
}

func (c *pahoClient) dispatch(topic string, payload []byte) {
	matched := false
	for _, e := range c.entries() {
		if !topicsMatch(topicFilter(e.topic), topic) {
			continue
		}
		matched = true
		c.invoke(e, topic, payload)
	}

	if !matched {
		c.logger.Debug("Received message on unhandled topic", "topic", topic)
	}
}

func (c *pahoClient) invoke(e subscriptionEntry, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(fmt.Errorf("panic: %v", r), "MQTT handler panicked", "filter", e.topic, "topic", topic)
		}
	}()
	e.handler(context.Background(), topic, payload)
}

func (c *pahoClient) willMessage() *paho.WillMessage {
	if c.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.WillTopic,
		Payload: c.cfg.WillPayload,
		QoS:     c.cfg.WillQoS,
		Retain:  c.cfg.WillRetain,
	}
}

// topicsMatch checks if a topic matches a filter (supports wildcards + and #).
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}

// topicFilter strips a $share/<group>/ prefix.
func topicFilter(filter string) string {
	if strings.HasPrefix(filter, "$share/") {
		parts := strings.SplitN(filter, "/", 3)
		if len(parts) == 3 {
			return parts[2]
		}
	}
	return filter
}

// Match reports whether topic is matched by filter, including shared
// subscription filters.
func Match(filter, topic string) bool {
	return topicsMatch(topicFilter(filter), topic)
}
