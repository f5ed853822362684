package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exports events as Prometheus series.
type PrometheusSink struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

// NewPrometheusSink registers the simulator series on reg under namespace.
func NewPrometheusSink(reg prometheus.Registerer, namespace string) (*PrometheusSink, error) {
	s := &PrometheusSink{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "MQTT operations by name, result and failure kind.",
		}, []string{"name", "result", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_time_milliseconds",
			Help:      "Time between submission and acknowledgement.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"name"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Payload bytes of successfully acknowledged publishes.",
		}, []string{"name"}),
	}

	for _, c := range []prometheus.Collector{s.requests, s.latency, s.bytes} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register prometheus collector: %w", err)
		}
	}
	return s, nil
}

func (s *PrometheusSink) RecordSuccess(event Event) {
	s.requests.WithLabelValues(event.Name, "success", "").Inc()
	s.latency.WithLabelValues(event.Name).Observe(float64(event.ElapsedMs()))
	if event.PayloadSize > 0 {
		s.bytes.WithLabelValues(event.Name).Add(float64(event.PayloadSize))
	}
}

func (s *PrometheusSink) RecordFailure(event Event) {
	kind := event.Kind
	if kind == KindNone {
		kind = KindGeneric
	}
	s.requests.WithLabelValues(event.Name, "failure", string(kind)).Inc()
	s.latency.WithLabelValues(event.Name).Observe(float64(event.ElapsedMs()))
}
