package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/cyphernode-status/internal/progress"
)

// PrometheusSink exports the tracked verification state via Prometheus.
type PrometheusSink struct {
	progressRatio prometheus.Gauge
	etaSeconds    prometheus.Gauge
	connected     prometheus.Gauge
	events        *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		progressRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cnstatus_verification_progress_ratio",
			Help: "Last observed verification progress in [0,1].",
		}),
		etaSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cnstatus_verification_eta_seconds",
			Help: "Last linear estimate of the remaining verification time.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cnstatus_upstream_connected",
			Help: "1 when the last poll reached the status endpoint, 0 otherwise.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cnstatus_events_total",
			Help: "Presenter events partitioned by stage.",
		}, []string{"stage"}),
	}
	for _, collector := range []prometheus.Collector{
		s.progressRatio,
		s.etaSeconds,
		s.connected,
		s.events,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.events.WithLabelValues(string(evt.Stage)).Inc()
		switch evt.Stage {
		case progress.StageConnectionError:
			s.connected.Set(0)
			continue
		case progress.StageEstimate:
			s.etaSeconds.Set(evt.ETA.Seconds())
		case progress.StageComplete:
			s.etaSeconds.Set(0)
		}
		s.connected.Set(1)
		s.progressRatio.Set(evt.Progress)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
