package ultravox

import (
	"math"
	"slices"

	"github.com/elan-lab/ultravox-elan/internal/logger"
)

// levelFloorDB bounds band levels from below so digital silence has a finite floor.
const levelFloorDB = -120.0

// floorWarmup is the stretch of audio buffered to seed the noise floor.
// The floor starts at a low percentile of the warm-up levels, so a call
// sounding at the very start of a stream is measured against background.
const (
	floorWarmup     = 0.1
	floorPercentile = 0.1
)

// frameStat is the band measurement of one analysis frame.
type frameStat struct {
	level   float64
	peakAmp float64
	peakBin float64
}

// segment is a run of active frames, possibly bridged over short gaps.
type segment struct {
	firstFrame   int64
	lastActive   int64
	peakAmp      float64
	peakBin      float64
	snrSum       float64
	activeFrames int
}

// callTracker follows one call band on one device. It keeps an adaptive
// noise floor and turns runs of frames above floor+threshold into calls.
type callTracker struct {
	device string
	call   CallConfig
	log    logger.Logger

	sampleRate int
	fftSize    int
	hop        int
	alpha      float64
	binHz      float64
	loBin      int
	hiBin      int
	maxGapHops int64
	maxOpen    float64

	warmupFrames int
	warmup       []frameStat
	floorDB      float64
	hasFloor     bool
	current      *segment
}

func newCallTracker(device string, call CallConfig, a AnalysisConfig, sampleRate int, bins int, log logger.Logger) (*callTracker, bool) {
	binHz := float64(sampleRate) / float64(a.FFTSize)
	nyquist := float64(sampleRate) / 2

	lo := int(math.Ceil(call.MinFreq / binHz))
	hi := int(math.Floor(math.Min(call.MaxFreq, nyquist) / binHz))
	lo = max(lo, 1)
	hi = min(hi, bins-1)
	if lo > hi {
		log.Warn("call band lies outside the analysable spectrum, skipping",
			logger.String("device", device),
			logger.String("call", call.Name),
			logger.Float64("min_freq", call.MinFreq),
			logger.Float64("max_freq", call.MaxFreq),
			logger.Float64("nyquist", nyquist))
		return nil, false
	}
	if call.MaxFreq > nyquist {
		log.Warn("call band exceeds nyquist frequency, clamping",
			logger.String("device", device),
			logger.String("call", call.Name),
			logger.Float64("nyquist", nyquist))
	}

	// A segment open longer than this is background, not a call.
	maxOpen := a.MaxSegment
	if call.MaxDuration > 0 {
		maxOpen = call.MaxDuration
	}

	hopSeconds := float64(a.Hop) / float64(sampleRate)
	return &callTracker{
		device:       device,
		call:         call,
		log:          log,
		sampleRate:   sampleRate,
		fftSize:      a.FFTSize,
		hop:          a.Hop,
		alpha:        a.NoiseFloor,
		binHz:        binHz,
		loBin:        lo,
		hiBin:        hi,
		maxGapHops:   int64(math.Floor(call.MaxGap/hopSeconds + 1e-9)),
		maxOpen:      maxOpen,
		warmupFrames: max(int(math.Ceil(floorWarmup/hopSeconds)), 1),
	}, true
}

// frameStart returns the start time in seconds of the hop-long slot centred
// on the analysis window of frame i.
func (t *callTracker) frameStart(i int64) float64 {
	s := (float64(i)*float64(t.hop) + float64(t.fftSize)/2 - float64(t.hop)/2) / float64(t.sampleRate)
	return math.Max(s, 0)
}

func (t *callTracker) frameEnd(i int64) float64 {
	return (float64(i)*float64(t.hop) + float64(t.fftSize)/2 + float64(t.hop)/2) / float64(t.sampleRate)
}

// process consumes the spectrum of frame i and emits calls as they complete.
func (t *callTracker) process(i int64, mags []float64, emit func(Call)) {
	st := t.measure(mags)
	if t.hasFloor {
		t.step(i, st, emit)
		return
	}

	t.warmup = append(t.warmup, st)
	if len(t.warmup) >= t.warmupFrames {
		t.replayWarmup(i-int64(len(t.warmup))+1, emit)
	}
}

// flush closes any open segment at end of stream. A stream shorter than the
// warm-up is still analysed.
func (t *callTracker) flush(next int64, emit func(Call)) {
	if !t.hasFloor && len(t.warmup) > 0 {
		t.replayWarmup(next-int64(len(t.warmup)), emit)
	}
	if t.current == nil {
		return
	}
	if c, ok := t.finish(); ok {
		emit(c)
	}
}

func (t *callTracker) measure(mags []float64) frameStat {
	peakBin := t.loBin
	peakAmp := mags[t.loBin]
	for b := t.loBin + 1; b <= t.hiBin; b++ {
		if mags[b] > peakAmp {
			peakAmp = mags[b]
			peakBin = b
		}
	}
	return frameStat{
		level:   toDB(peakAmp, levelFloorDB),
		peakAmp: peakAmp,
		peakBin: interpolatePeak(mags, peakBin),
	}
}

// replayWarmup seeds the floor from the buffered frames and runs them through
// the segmenter. first is the index of the oldest buffered frame.
func (t *callTracker) replayWarmup(first int64, emit func(Call)) {
	levels := make([]float64, len(t.warmup))
	for k, st := range t.warmup {
		levels[k] = st.level
	}
	slices.Sort(levels)
	t.floorDB = levels[int(float64(len(levels)-1)*floorPercentile)]
	t.hasFloor = true

	t.log.Trace("noise floor seeded",
		logger.String("device", t.device),
		logger.String("call", t.call.Name),
		logger.Float64("floor_db", t.floorDB),
		logger.Int("frames", len(levels)))

	for k, st := range t.warmup {
		t.step(first+int64(k), st, emit)
	}
	t.warmup = nil
}

func (t *callTracker) step(i int64, st frameStat, emit func(Call)) {
	snr := st.level - t.floorDB
	if snr >= t.call.Threshold {
		if t.current == nil {
			t.current = &segment{firstFrame: i}
			t.log.Trace("segment opened",
				logger.String("device", t.device),
				logger.String("call", t.call.Name),
				logger.Float64("time", t.frameStart(i)),
				logger.Float64("snr_db", snr))
		}
		seg := t.current
		seg.lastActive = i
		seg.snrSum += snr
		seg.activeFrames++
		if st.peakAmp > seg.peakAmp {
			seg.peakAmp = st.peakAmp
			seg.peakBin = st.peakBin
		}

		// A sound that stays up this long is the new background.
		if t.frameEnd(i)-t.frameStart(seg.firstFrame) > t.maxOpen {
			t.log.Debug("segment exceeded maximum length, noise floor re-seeded",
				logger.String("device", t.device),
				logger.String("call", t.call.Name),
				logger.Float64("start", t.frameStart(seg.firstFrame)),
				logger.Float64("floor_db", st.level))
			t.current = nil
			t.floorDB = st.level
		}
		return
	}

	if t.current == nil {
		t.floorDB = t.alpha*t.floorDB + (1-t.alpha)*st.level
		return
	}

	if i-t.current.lastActive > t.maxGapHops {
		if c, ok := t.finish(); ok {
			emit(c)
		}
	}
}

func (t *callTracker) finish() (Call, bool) {
	seg := t.current
	t.current = nil

	c := Call{
		Device:    t.device,
		Name:      t.call.Name,
		Start:     t.frameStart(seg.firstFrame),
		End:       t.frameEnd(seg.lastActive),
		Frequency: seg.peakBin * t.binHz,
		Amplitude: seg.snrSum / float64(seg.activeFrames),
	}

	d := c.Duration()
	if d < t.call.MinDuration || (t.call.MaxDuration > 0 && d > t.call.MaxDuration) {
		t.log.Trace("segment rejected by duration",
			logger.String("device", t.device),
			logger.String("call", t.call.Name),
			logger.Float64("start", c.Start),
			logger.Float64("duration", d))
		return Call{}, false
	}
	return c, true
}
