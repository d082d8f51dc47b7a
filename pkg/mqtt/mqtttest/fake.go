// Package mqtttest provides an in-memory mqtt.Client for tests.
package mqtttest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/autopeer-io/stepguard/pkg/mqtt"
)

// Message is a publish captured by the fake client.
type Message struct {
	Topic   string
	QoS     int
	Retain  bool
	Payload []byte
}

var _ mqtt.Client = (*Client)(nil)

// Client is a broker-less mqtt.Client. Deliver routes a message to the
// matching handlers synchronously, the same way the paho client does.
type Client struct {
	mu         sync.Mutex
	started    bool
	connected  bool
	handlers   map[string]mqtt.MessageHandler
	subscribes int
	published  []Message

	// PublishErr, when set, is returned by every Publish call.
	PublishErr error
}

// NewClient returns a fake client that reports itself connected once started.
func NewClient() *Client {
	return &Client{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *Client) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	c.connected = true
	return nil
}

func (c *Client) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *Client) Publish(_ context.Context, topic string, qos int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.published = append(c.published, Message{Topic: topic, QoS: qos, Retain: retain, Payload: append([]byte(nil), payload...)})
	return nil
}

func (c *Client) Subscribe(_ context.Context, topic string, _ int, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return errors.New("client not started")
	}
	c.handlers[topic] = handler
	c.subscribes++
	return nil
}

func (c *Client) Unsubscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	return nil
}

func (c *Client) AwaitConnection(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return errors.New("client not started")
	}
	return ctx.Err()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SetConnected flips the reported connection state.
func (c *Client) SetConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}

// Deliver routes an inbound message to every matching handler.
func (c *Client) Deliver(topic string, payload []byte) {
	c.mu.Lock()
	filters := make([]string, 0, len(c.handlers))
	for f := range c.handlers {
		filters = append(filters, f)
	}
	sort.Strings(filters)
	var matched []mqtt.MessageHandler
	for _, f := range filters {
		if mqtt.Match(f, topic) {
			matched = append(matched, c.handlers[f])
		}
	}
	c.mu.Unlock()

	for _, h := range matched {
		h(context.Background(), topic, payload)
	}
}

// Filters returns the currently subscribed filters.
func (c *Client) Filters() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.handlers))
	for f := range c.handlers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Published returns a copy of every captured publish.
func (c *Client) Published() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.published...)
}
