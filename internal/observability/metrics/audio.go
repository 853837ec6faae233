package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AudioMetrics contains Prometheus metrics for audio inputs
type AudioMetrics struct {
	FramesDropped *prometheus.CounterVec // capture ring buffer overruns
	InputLevel    *prometheus.GaugeVec   // RMS level of the last analysed block
}

// NewAudioMetrics creates and registers audio input metrics
func NewAudioMetrics(registry prometheus.Registerer) (*AudioMetrics, error) {
	m := &AudioMetrics{
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Total number of captured audio frames dropped because the buffer was full",
		}, []string{LabelDevice}),
		InputLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "audio_input_level_dbfs",
			Help:      "RMS input level of the last analysed block in dBFS",
		}, []string{LabelDevice}),
	}

	if err := registry.Register(m.FramesDropped); err != nil {
		return nil, fmt.Errorf("failed to register audio frames dropped metric: %w", err)
	}
	if err := registry.Register(m.InputLevel); err != nil {
		return nil, fmt.Errorf("failed to register audio input level metric: %w", err)
	}
	return m, nil
}

// RecordFramesDropped adds dropped frames for a device
func (m *AudioMetrics) RecordFramesDropped(device string, frames int) {
	if frames <= 0 {
		return
	}
	m.FramesDropped.WithLabelValues(device).Add(float64(frames))
}

// SetInputLevel updates the input level gauge for a device
func (m *AudioMetrics) SetInputLevel(device string, dbfs float64) {
	m.InputLevel.WithLabelValues(device).Set(dbfs)
}
