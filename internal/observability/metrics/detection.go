package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectionMetrics contains Prometheus metrics for detected calls.
type DetectionMetrics struct {
	CallsDetected *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec
	PeakFrequency *prometheus.HistogramVec
}

// NewDetectionMetrics creates and registers detection metrics.
func NewDetectionMetrics(registry prometheus.Registerer) (*DetectionMetrics, error) {
	m := &DetectionMetrics{
		CallsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "calls_detected_total",
			Help:      "Total number of detected calls",
		}, []string{LabelDevice, LabelCall}),

		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of detected calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(durationBucketStart, 2, BucketCount12),
		}, []string{LabelCall}),

		PeakFrequency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "call_peak_frequency_hertz",
			Help:      "Peak frequency of detected calls in Hz",
			Buckets:   prometheus.LinearBuckets(frequencyBucketStart, frequencyBucketWidth, BucketCount12),
		}, []string{LabelCall}),
	}

	for _, c := range []prometheus.Collector{m.CallsDetected, m.CallDuration, m.PeakFrequency} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register detection metrics: %w", err)
		}
	}
	return m, nil
}

// RecordCall records one detected call.
func (m *DetectionMetrics) RecordCall(device, call string, durationSeconds, frequencyHz float64) {
	m.CallsDetected.WithLabelValues(device, call).Inc()
	m.CallDuration.WithLabelValues(call).Observe(durationSeconds)
	m.PeakFrequency.WithLabelValues(call).Observe(frequencyHz)
}
