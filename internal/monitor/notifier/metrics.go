package notifier

import (
	"context"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/internal/pkg/metrics"
)

// MetricsSink counts transitions and keeps the per-status device gauges current.
type MetricsSink struct {
	counts func() (online, offline int)
}

func NewMetricsSink(counts func() (online, offline int)) *MetricsSink {
	return &MetricsSink{counts: counts}
}

func (s *MetricsSink) OnTransition(_ context.Context, e model.Event) error {
	metrics.TransitionsTotal.WithLabelValues(string(e.Status), string(e.Reason)).Inc()

	online, offline := s.counts()
	metrics.Devices.WithLabelValues(string(model.StatusOnline)).Set(float64(online))
	metrics.Devices.WithLabelValues(string(model.StatusOffline)).Set(float64(offline))
	return nil
}
