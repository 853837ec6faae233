package myaudio

import "math"

// silenceFloorDBFS is reported for digital silence.
const silenceFloorDBFS = -120.0

// LevelDBFS returns the RMS level of samples in dB relative to full scale.
func LevelDBFS(samples []float64) float64 {
	if len(samples) == 0 {
		return silenceFloorDBFS
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return silenceFloorDBFS
	}
	return math.Max(20*math.Log10(rms), silenceFloorDBFS)
}
