package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	MessagesTotal   *prometheus.CounterVec
	MessageDuration *prometheus.HistogramVec
	ImagesAnalyzed  *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgprompt_messages_total",
				Help: "Messages handled, by context, type and outcome",
			},
			[]string{"context", "type", "outcome"},
		),
		MessageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imgprompt_message_duration_seconds",
				Help:    "Message handling duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"context", "type"},
		),
		ImagesAnalyzed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgprompt_images_analyzed_total",
				Help: "Images analyzed, by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Registry returns the registry served on /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordMessage records one handled message.
func (m *Metrics) RecordMessage(contextName, kind, outcome string, duration time.Duration) {
	m.MessagesTotal.WithLabelValues(contextName, kind, outcome).Inc()
	m.MessageDuration.WithLabelValues(contextName, kind).Observe(duration.Seconds())
}

// RecordImage records one analyzed image.
func (m *Metrics) RecordImage(outcome string) {
	m.ImagesAnalyzed.WithLabelValues(outcome).Inc()
}
