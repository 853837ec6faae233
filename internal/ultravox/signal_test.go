package ultravox

import (
	"context"
	"io"
	"math"
	"sync/atomic"

	"github.com/elan-lab/ultravox-elan/internal/myaudio"
)

const (
	testRate = 250000
	testFFT  = 256
	testHop  = 128
)

type burst struct {
	start, dur, freq, amp float64
}

// synth renders tone bursts with 1 ms raised-cosine ramps over low-level
// deterministic noise.
func synth(seconds float64, bursts ...burst) []float64 {
	n := int(seconds * testRate)
	out := make([]float64, n)

	var state uint32 = 12345
	for i := range out {
		state = state*1664525 + 1013904223
		out[i] = (float64(state)/float64(math.MaxUint32)*2 - 1) * 0.001
	}

	const ramp = 0.001
	for _, b := range bursts {
		first := int(b.start * testRate)
		last := min(int((b.start+b.dur)*testRate), n)
		for i := first; i < last; i++ {
			t := float64(i-first) / testRate
			env := 1.0
			switch {
			case t < ramp:
				env = 0.5 - 0.5*math.Cos(math.Pi*t/ramp)
			case b.dur-t < ramp:
				env = 0.5 - 0.5*math.Cos(math.Pi*(b.dur-t)/ramp)
			}
			out[i] += b.amp * env * math.Sin(2*math.Pi*b.freq*t)
		}
	}
	return out
}

// sliceSource serves samples from memory in fixed chunks.
type sliceSource struct {
	name    string
	rate    int
	samples []float64
	pos     int
	chunk   int
	closed  atomic.Bool
}

func newSliceSource(name string, samples []float64) *sliceSource {
	return &sliceSource{name: name, rate: testRate, samples: samples, chunk: 1000}
}

func (s *sliceSource) Name() string    { return s.name }
func (s *sliceSource) SampleRate() int { return s.rate }

func (s *sliceSource) Read(ctx context.Context, buf []float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}
	n := copy(buf[:min(len(buf), s.chunk)], s.samples[s.pos:])
	s.pos += n
	return n, nil
}

func (s *sliceSource) Close() error {
	s.closed.Store(true)
	return nil
}

// openerFor returns a SourceOpener serving the given sources by device name.
func openerFor(sources map[string]myaudio.Source) SourceOpener {
	return func(_ context.Context, cfg *myaudio.SourceConfig, _ ...myaudio.CaptureOption) (myaudio.Source, error) {
		src, ok := sources[cfg.Name]
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		return src, nil
	}
}

func testConfig(devices []string, calls ...CallConfig) *Config {
	cfg := &Config{
		Analysis: AnalysisConfig{FFTSize: testFFT, Hop: testHop, NoiseFloor: DefaultNoiseFloor, MaxSegment: DefaultMaxSegment},
		Calls:    calls,
	}
	for _, d := range devices {
		cfg.Devices = append(cfg.Devices, DeviceConfig{Name: d, File: d + ".wav", Gain: 1})
	}
	return cfg
}

func usvCall() CallConfig {
	return CallConfig{
		Name:        "USV",
		MinFreq:     40000,
		MaxFreq:     70000,
		Threshold:   20,
		MinDuration: 0.005,
		MaxGap:      0.002,
	}
}
