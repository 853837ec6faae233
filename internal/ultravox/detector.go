// Package ultravox detects ultrasonic vocalizations in live or recorded audio.
//
// A Detector is built from a UVL detection file. Each configured device runs
// its own analysis pipeline: samples are windowed into overlapping frames,
// transformed with an FFT and scanned for energy above an adaptive noise floor
// inside every configured call band. Completed calls are delivered to a single
// callback that is never invoked concurrently.
package ultravox

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elan-lab/ultravox-elan/internal/errors"
	"github.com/elan-lab/ultravox-elan/internal/logger"
	"github.com/elan-lab/ultravox-elan/internal/myaudio"
)

// levelReportInterval is the approximate spacing of input level reports.
const levelReportInterval = 100 * time.Millisecond

// Call is one detected vocalization.
type Call struct {
	Device    string
	Name      string
	Start     float64 // seconds since the device stream started
	End       float64 // seconds since the device stream started
	Frequency float64 // peak frequency in Hz
	Amplitude float64 // mean level above the noise floor in dB
}

// Duration returns the call length in seconds.
func (c Call) Duration() float64 { return c.End - c.Start }

// SourceOpener opens the audio source for a device.
type SourceOpener func(ctx context.Context, cfg *myaudio.SourceConfig, opts ...myaudio.CaptureOption) (myaudio.Source, error)

// LevelObserver receives periodic input levels in dBFS.
type LevelObserver interface {
	InputLevel(device string, dbfs float64)
}

// Option configures a Detector.
type Option func(*Detector)

// WithSourceOpener replaces the default source opener.
func WithSourceOpener(open SourceOpener) Option {
	return func(d *Detector) { d.open = open }
}

// WithLevelObserver registers an observer for input levels.
func WithLevelObserver(o LevelObserver) Option {
	return func(d *Detector) { d.levels = o }
}

// WithCaptureOptions passes options through to live capture sources.
func WithCaptureOptions(opts ...myaudio.CaptureOption) Option {
	return func(d *Detector) { d.captureOpts = append(d.captureOpts, opts...) }
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// Detector runs call detection for every device of a UVL configuration.
type Detector struct {
	cfg         *Config
	open        SourceOpener
	levels      LevelObserver
	captureOpts []myaudio.CaptureOption
	log         logger.Logger
}

// LoadLiveDetection loads a UVL file and prepares a detector for it.
func LoadLiveDetection(path string, opts ...Option) (*Detector, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewDetector(cfg, opts...), nil
}

// NewDetector prepares a detector for an already validated configuration.
func NewDetector(cfg *Config, opts ...Option) *Detector {
	d := &Detector{
		cfg:  cfg,
		open: myaudio.Open,
		log:  GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the detection configuration.
func (d *Detector) Config() *Config { return d.cfg }

// DetectCalls runs detection until every source is exhausted, the experiment
// duration elapses or ctx is cancelled. Cancellation of ctx is a normal stop
// and returns nil.
func (d *Detector) DetectCalls(ctx context.Context, onCall func(Call)) error {
	sources := make([]myaudio.Source, 0, len(d.cfg.Devices))
	closeAll := func() {
		for _, s := range sources {
			if err := s.Close(); err != nil {
				d.log.Warn("failed to close audio source", logger.String("source", s.Name()), logger.Error(err))
			}
		}
	}

	for i := range d.cfg.Devices {
		dev := &d.cfg.Devices[i]
		src, err := d.open(ctx, dev.SourceConfig(), d.captureOpts...)
		if err != nil {
			closeAll()
			return errors.New(err).
				Component("ultravox").
				Category(errors.CategoryAudioSource).
				Context("device", dev.Name).
				Build()
		}
		sources = append(sources, src)
	}
	defer closeAll()

	var mu sync.Mutex
	emit := func(c Call) {
		mu.Lock()
		defer mu.Unlock()
		onCall(c)
	}

	d.log.Info("call detection started",
		logger.String("experiment", d.cfg.Experiment.Name),
		logger.Int("devices", len(sources)),
		logger.Int("calls", len(d.cfg.Calls)))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		name := d.cfg.Devices[i].Name
		g.Go(func() error {
			return d.runDevice(gctx, name, src, emit)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if ctx.Err() != nil {
		d.log.Info("call detection stopped")
		return nil
	}
	d.log.Info("call detection finished")
	return nil
}

// runDevice feeds one source through a sliding analysis window.
func (d *Detector) runDevice(ctx context.Context, name string, src myaudio.Source, emit func(Call)) error {
	a := d.cfg.Analysis
	sr := src.SampleRate()
	log := d.log.With(logger.String("device", name))

	analyzer := newSpectrumAnalyzer(a.FFTSize)
	trackers := make([]*callTracker, 0, len(d.cfg.Calls))
	for _, call := range d.cfg.Calls {
		if t, ok := newCallTracker(name, call, a, sr, analyzer.bins(), log); ok {
			trackers = append(trackers, t)
		}
	}
	if len(trackers) == 0 {
		log.Warn("no call band fits this device, nothing to detect", logger.Int("sample_rate", sr))
		return nil
	}

	var limit int64
	if d.cfg.Experiment.Duration > 0 {
		limit = int64(d.cfg.Experiment.Duration * float64(sr))
	}
	levelEvery := max(int64(float64(sr)*levelReportInterval.Seconds()), 1)

	window := make([]float64, 0, a.FFTSize+a.Hop*4)
	buf := make([]float64, max(a.Hop*4, 4096))
	var (
		consumed   int64
		frame      int64
		sinceLevel int64
	)

	deliver := func(c Call) { d.deliver(log, c, emit) }
	flush := func() {
		for _, t := range trackers {
			t.flush(frame, deliver)
		}
	}

	log.Debug("device pipeline started",
		logger.Int("sample_rate", sr),
		logger.Int("fft_size", a.FFTSize),
		logger.Int("hop", a.Hop),
		logger.Int("trackers", len(trackers)))

	for {
		want := len(buf)
		if limit > 0 {
			remaining := limit - consumed
			if remaining <= 0 {
				log.Info("experiment duration reached", logger.Float64("seconds", d.cfg.Experiment.Duration))
				flush()
				return nil
			}
			want = int(min(int64(want), remaining))
		}

		n, err := src.Read(ctx, buf[:want])
		if n > 0 {
			consumed += int64(n)
			window = append(window, buf[:n]...)

			sinceLevel += int64(n)
			if d.levels != nil && sinceLevel >= levelEvery {
				d.levels.InputLevel(name, myaudio.LevelDBFS(buf[:n]))
				sinceLevel = 0
			}

			for len(window) >= a.FFTSize {
				mags := analyzer.analyze(window[:a.FFTSize])
				for _, t := range trackers {
					t.process(frame, mags, deliver)
				}
				frame++
				window = append(window[:0], window[a.Hop:]...)
			}
		}

		switch {
		case err == nil:
		case err == io.EOF:
			flush()
			log.Debug("audio source exhausted", logger.Float64("seconds", float64(consumed)/float64(sr)))
			return nil
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			flush()
			return ctx.Err()
		default:
			return errors.New(err).
				Component("ultravox").
				Category(errors.CategoryAudio).
				Context("device", name).
				Build()
		}
	}
}

func (d *Detector) deliver(log logger.Logger, c Call, emit func(Call)) {
	log.Debug("call detected",
		logger.String("call", c.Name),
		logger.Float64("start", c.Start),
		logger.Float64("end", c.End),
		logger.Float64("frequency", c.Frequency),
		logger.Float64("amplitude", c.Amplitude))
	emit(c)
}

// GetLogger returns the ultravox module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("ultravox")
}
