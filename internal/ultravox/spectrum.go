package ultravox

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// spectrumAnalyzer computes Hann-windowed amplitude spectra of fixed-size frames.
// Amplitudes are scaled so a full-scale sine centred on a bin reads 1.0.
type spectrumAnalyzer struct {
	n      int
	fft    *fourier.FFT
	window []float64
	scale  float64
	frame  []float64
	coeffs []complex128
	mags   []float64
}

func newSpectrumAnalyzer(n int) *spectrumAnalyzer {
	window := make([]float64, n)
	var sum float64
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
		sum += window[i]
	}
	return &spectrumAnalyzer{
		n:      n,
		fft:    fourier.NewFFT(n),
		window: window,
		scale:  2 / sum,
		frame:  make([]float64, n),
		coeffs: make([]complex128, n/2+1),
		mags:   make([]float64, n/2+1),
	}
}

// analyze returns the amplitude spectrum of samples, which must hold n values.
// The returned slice is reused by the next call.
func (a *spectrumAnalyzer) analyze(samples []float64) []float64 {
	for i := range a.frame {
		a.frame[i] = samples[i] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)
	for i, c := range a.coeffs {
		a.mags[i] = cmplx.Abs(c) * a.scale
	}
	return a.mags
}

// bins returns the number of spectrum bins.
func (a *spectrumAnalyzer) bins() int { return a.n/2 + 1 }

// toDB converts an amplitude to dB, floored at floorDB.
func toDB(amplitude, floorDB float64) float64 {
	if amplitude <= 0 {
		return floorDB
	}
	return math.Max(20*math.Log10(amplitude), floorDB)
}

// interpolatePeak refines a peak bin with a parabola through the log
// magnitudes of its neighbours. The offset is within [-0.5, 0.5].
func interpolatePeak(mags []float64, bin int) float64 {
	if bin <= 0 || bin >= len(mags)-1 {
		return float64(bin)
	}
	const floor = -300.0
	l := toDB(mags[bin-1], floor)
	c := toDB(mags[bin], floor)
	r := toDB(mags[bin+1], floor)
	denom := l - 2*c + r
	if denom == 0 {
		return float64(bin)
	}
	offset := 0.5 * (l - r) / denom
	return float64(bin) + math.Max(-0.5, math.Min(0.5, offset))
}
