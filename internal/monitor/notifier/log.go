package notifier

import (
	"context"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/pkg/log"
)

// LogSink writes every transition to the structured log.
type LogSink struct {
	logger log.Logger
	lookup DeviceLookup
}

// NewLogSink creates a LogSink. lookup, when set, adds the display name.
func NewLogSink(logger log.Logger, lookup DeviceLookup) *LogSink {
	return &LogSink{logger: logger, lookup: lookup}
}

func (s *LogSink) OnTransition(_ context.Context, e model.Event) error {
	name := e.DeviceID
	if s.lookup != nil {
		if d, ok := s.lookup(e.DeviceID); ok {
			name = d.Name()
		}
	}

	msg := "Device went offline"
	if e.Kind() == model.DeviceCameOnline {
		msg = "Device came online"
	}
	s.logger.Info(msg, "device", e.DeviceID, "name", name, "reason", e.Reason, "seq", e.Seq)
	return nil
}
