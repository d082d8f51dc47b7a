package ingest

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/autopeer-io/stepguard/pkg/mqtt/topic"
)

var (
	// ErrMalformedTopic is returned for topics without a device segment.
	ErrMalformedTopic = errors.New("malformed topic")

	// ErrInvalidPayload is returned for payloads that are not UTF-8 text.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Signal is the meaning of a status payload.
type Signal int

const (
	// SignalIgnored is any payload without a defined meaning.
	SignalIgnored Signal = iota
	// SignalOnline is a heartbeat.
	SignalOnline
	// SignalOffline is a device announcing it is going away.
	SignalOffline
)

func (s Signal) String() string {
	switch s {
	case SignalOnline:
		return "online"
	case SignalOffline:
		return "offline"
	}
	return "ignored"
}

// Message is a decoded status announcement.
type Message struct {
	DeviceID string
	Payload  string
}

// Decode extracts the device identifier from the trailing topic segment and
// the payload as text.
func Decode(topics *topic.Builder, t string, payload []byte) (Message, error) {
	id, err := topics.ParseStatus(t)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedTopic, err)
	}
	if !utf8.Valid(payload) {
		return Message{}, fmt.Errorf("%w: payload of %s is not valid UTF-8", ErrInvalidPayload, t)
	}
	return Message{DeviceID: id, Payload: string(payload)}, nil
}

// Classify maps a payload to its Signal. Matching ignores surrounding
// whitespace and case.
func Classify(payload string) Signal {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "online":
		return SignalOnline
	case "offline":
		return SignalOffline
	}
	return SignalIgnored
}
