package options

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/stepguard/pkg/mqtt"
	"github.com/autopeer-io/stepguard/pkg/mqtt/topic"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for MQTT client and topics.
type MqttOptions struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	TLS      bool   `json:"tls" mapstructure:"tls"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive        time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout   time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	ReconnectBackoff time.Duration `json:"reconnect-backoff" mapstructure:"reconnect-backoff"`
	SessionExpiry    uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart       bool          `json:"clean-start" mapstructure:"clean-start"`
	QoS              int           `json:"qos" mapstructure:"qos"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// TopicRoot is the namespace devices publish under: {TopicRoot}/status/{deviceID}.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Host:             "localhost",
		Port:             8883,
		TLS:              true,
		Username:         "stepguard",
		ClientID:         "stepguard-monitor",
		KeepAlive:        60 * time.Second,
		ConnectTimeout:   5 * time.Second,
		ReconnectBackoff: 3 * time.Second,
		SessionExpiry:    60,
		CleanStart:       true,
		QoS:              1,
		TopicRoot:        topic.DefaultRoot,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.Host == "" {
		errs = append(errs, errors.New("--mqtt.host must not be empty"))
	} else if err := ValidateHost(o.Host); err != nil {
		errs = append(errs, fmt.Errorf("--mqtt.host: %w", err))
	}
	if o.Port <= 0 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("--mqtt.port %d is out of range", o.Port))
	}
	if o.QoS < 0 || o.QoS > 2 {
		errs = append(errs, fmt.Errorf("--mqtt.qos %d must be 0, 1 or 2", o.QoS))
	}
	if o.KeepAlive < time.Second || o.KeepAlive.Seconds() > 65535 {
		errs = append(errs, fmt.Errorf("--mqtt.keep-alive %s must be between 1s and 65535s", o.KeepAlive))
	}
	if o.ReconnectBackoff <= 0 {
		errs = append(errs, errors.New("--mqtt.reconnect-backoff must be positive"))
	}

	return errs
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Host, "mqtt.host", o.Host, "Host name of the MQTT broker.")
	fs.IntVar(&o.Port, "mqtt.port", o.Port, "Port of the MQTT broker.")
	fs.BoolVar(&o.TLS, "mqtt.tls", o.TLS, "Connect to the broker over TLS.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Client ID presented to the broker.")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.DurationVar(&o.ReconnectBackoff, "mqtt.reconnect-backoff", o.ReconnectBackoff, "Delay between reconnection attempts.")
	fs.Uint32Var(&o.SessionExpiry, "mqtt.session-expiry", o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start a clean session on the first connection.")
	fs.IntVar(&o.QoS, "mqtt.qos", o.QoS, "QoS used for the heartbeat subscription.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Topic namespace devices publish heartbeats under.")
}

// BrokerURL returns mqtts://host:port when TLS is enabled, mqtt://host:port otherwise.
func (o *MqttOptions) BrokerURL() string {
	scheme := "mqtt"
	if o.TLS {
		scheme = "mqtts"
	}
	return scheme + "://" + net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.BrokerURL(),
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		ReconnectBackoff:   o.ReconnectBackoff,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
