// Package mqtt wraps the paho MQTT v5 connection manager behind a small
// interface that the monitor, the simulator and the tests share.
package mqtt

import "context"

// MessageHandler receives one inbound message. Handlers are called on the
// reader goroutine in arrival order and must return quickly.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is a long-lived broker connection that survives reconnects.
type Client interface {
	// Start launches the connection manager in the background.
	Start(ctx context.Context) error

	// AwaitConnection blocks until the broker accepted the connection or
	// ctx is done.
	AwaitConnection(ctx context.Context) error

	// IsConnected reports the state of the current connection.
	IsConnected() bool

	// Subscribe sends a SUBSCRIBE for filter and routes matching messages to
	// handler. The filter is kept and subscribed again after a reconnect;
	// subscribing it twice replaces the handler.
	Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error

	// Unsubscribe forgets filter and sends an UNSUBSCRIBE.
	Unsubscribe(ctx context.Context, filter string) error

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Disconnect closes the connection and stops reconnecting.
	Disconnect(ctx context.Context)
}
