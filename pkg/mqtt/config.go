package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ClientConfig holds the configuration for creating a new MQTT Client.
type ClientConfig struct {
	// BrokerURL is the full broker address, e.g. mqtts://broker.example:8883.
	// The scheme decides whether TLS is used (mqtts, ssl, tls, wss).
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout for each connection attempt. Default is 5s.
	ConnectTimeout time.Duration

	// ReconnectBackoff is the constant delay between reconnection attempts.
	// Default is 3s.
	ReconnectBackoff time.Duration

	// SessionExpiry in seconds; 0 ends the session on disconnect.
	SessionExpiry uint32

	CleanStart bool

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Optional Last Will.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool
}

var tlsSchemes = map[string]bool{
	"mqtts": true,
	"ssl":   true,
	"tls":   true,
	"wss":   true,
}

func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 3 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return fmt.Errorf("invalid broker url: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("broker url %q has no host", c.BrokerURL)
	}
	if c.WillQoS > 2 {
		return fmt.Errorf("invalid will qos %d", c.WillQoS)
	}
	return nil
}

// UsesTLS reports whether the broker URL selects a TLS transport.
func (c *ClientConfig) UsesTLS() bool {
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return false
	}
	return tlsSchemes[u.Scheme]
}
