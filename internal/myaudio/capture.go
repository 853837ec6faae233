package myaudio

import (
	"context"
	"encoding/binary"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/elan-lab/ultravox-elan/internal/errors"
	"github.com/elan-lab/ultravox-elan/internal/logger"
)

const (
	defaultCaptureRate     = 250000
	defaultBufferDuration  = 2 * time.Second
	defaultPollInterval    = 50 * time.Millisecond
	dropWarningInterval    = 5 * time.Second
	bytesPerCapturedSample = 2 // captures are always signed 16-bit
)

// CaptureOption configures live capture.
type CaptureOption func(*captureOptions)

type captureOptions struct {
	observer       Observer
	bufferDuration time.Duration
	pollInterval   time.Duration
}

// WithObserver reports dropped frames to o.
func WithObserver(o Observer) CaptureOption {
	return func(opts *captureOptions) { opts.observer = o }
}

// WithBufferDuration sets how much audio the ring buffer holds before frames are dropped.
func WithBufferDuration(d time.Duration) CaptureOption {
	return func(opts *captureOptions) {
		if d > 0 {
			opts.bufferDuration = d
		}
	}
}

// CaptureSource captures from a soundcard. The malgo callback writes
// interleaved S16 frames into a ring buffer that Read drains.
type CaptureSource struct {
	name       string
	sampleRate int
	channels   int
	channel    int
	gain       float64
	frameSize  int

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	rb       *ringbuffer.RingBuffer
	notify   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	dropped  atomic.Uint64
	limiter  *rate.Limiter
	observer Observer
	poll     time.Duration
	raw      []byte
	isDone   bool

	closeOnce sync.Once
	closeErr  error
	log       logger.Logger
}

// StartCapture opens the device named by cfg.Device and starts capturing.
func StartCapture(ctx context.Context, cfg *SourceConfig, opts ...CaptureOption) (*CaptureSource, error) {
	options := captureOptions{
		bufferDuration: defaultBufferDuration,
		pollInterval:   defaultPollInterval,
	}
	for _, opt := range opts {
		opt(&options)
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultCaptureRate
	}
	channels := max(cfg.Channels, 1)
	if cfg.Channel < 0 || cfg.Channel >= channels {
		return nil, errors.Newf("channel %d out of range for %d capture channels", cfg.Channel, channels).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("device", cfg.Device).
			Build()
	}

	log := GetLogger().Module("capture").With(logger.String("source", cfg.Name))

	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		log.Trace(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		freeContext(mctx)
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	candidates := make([]candidate, len(infos))
	for i := range infos {
		candidates[i] = candidate{
			name:      infos[i].Name(),
			id:        decodeDeviceID(infos[i].ID.String()),
			isDefault: infos[i].IsDefault == 1,
		}
	}
	idx, err := selectDevice(candidates, cfg.Device)
	if err != nil {
		freeContext(mctx)
		return nil, err
	}

	frameSize := channels * bytesPerCapturedSample
	bufferFrames := int(options.bufferDuration.Seconds() * float64(sampleRate))

	s := &CaptureSource{
		name:       cfg.Name,
		sampleRate: sampleRate,
		channels:   channels,
		channel:    cfg.Channel,
		gain:       cfg.Gain,
		frameSize:  frameSize,
		mctx:       mctx,
		rb:         ringbuffer.New(bufferFrames * frameSize),
		notify:     make(chan struct{}, 1),
		stopped:    make(chan struct{}),
		limiter:    rate.NewLimiter(rate.Every(dropWarningInterval), 1),
		observer:   options.observer,
		poll:       options.pollInterval,
		log:        log,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.Capture.DeviceID = infos[idx].ID.Pointer()
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onAudioData,
		Stop: s.onDeviceStop,
	})
	if err != nil {
		freeContext(mctx)
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioSource).
			Context("device", candidates[idx].name).
			Context("operation", "init_device").
			Build()
	}
	s.device = device

	if actual := int(device.SampleRate()); actual != 0 && actual != sampleRate {
		log.Warn("device does not support requested sample rate",
			logger.Int("requested", sampleRate),
			logger.Int("actual", actual))
		s.sampleRate = actual
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(mctx)
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioSource).
			Context("device", candidates[idx].name).
			Context("operation", "start_device").
			Build()
	}

	log.Info("capture started",
		logger.String("device", candidates[idx].name),
		logger.String("device_id", candidates[idx].id),
		logger.Int("sample_rate", s.sampleRate),
		logger.Int("channels", channels),
		logger.Int("channel", cfg.Channel))

	return s, nil
}

func freeContext(mctx *malgo.AllocatedContext) {
	_ = mctx.Uninit()
	mctx.Free()
}

// Name returns the configured source name.
func (s *CaptureSource) Name() string { return s.name }

// SampleRate returns the rate the device actually runs at.
func (s *CaptureSource) SampleRate() int { return s.sampleRate }

// Dropped returns the number of frames lost to ring buffer overruns.
func (s *CaptureSource) Dropped() uint64 { return s.dropped.Load() }

// onAudioData runs on the audio thread and must not block.
func (s *CaptureSource) onAudioData(_, pSamples []byte, framecount uint32) {
	data := pSamples
	if want := int(framecount) * s.frameSize; want < len(data) {
		data = data[:want]
	}

	free := s.rb.Free()
	writable := free - free%s.frameSize
	if writable < len(data) {
		s.recordDrop((len(data) - writable) / s.frameSize)
		data = data[:writable]
	}

	if len(data) > 0 {
		if n, err := s.rb.Write(data); err != nil {
			if errors.Is(err, ringbuffer.ErrIsFull) {
				s.recordDrop((len(data) - n) / s.frameSize)
			} else {
				s.log.Error("ring buffer write failed", logger.Error(err))
			}
		}
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *CaptureSource) recordDrop(frames int) {
	if frames <= 0 {
		return
	}
	total := s.dropped.Add(uint64(frames))
	if s.observer != nil {
		s.observer.FramesDropped(s.name, frames)
	}
	if s.limiter.Allow() {
		s.log.Warn("capture buffer overrun, dropping frames",
			logger.Int("frames", frames),
			logger.Uint64("total_dropped", total),
			logger.Int("buffer_bytes", s.rb.Capacity()))
	}
}

func (s *CaptureSource) onDeviceStop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Read implements Source. It returns io.EOF once the device has stopped and
// the buffer is drained.
func (s *CaptureSource) Read(ctx context.Context, out []float64) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	for {
		if frames := s.rb.Length() / s.frameSize; frames > 0 {
			return s.drain(min(frames, len(out)), out)
		}
		if s.isDone {
			return 0, io.EOF
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-s.stopped:
			s.isDone = true
		case <-s.notify:
		case <-time.After(s.poll):
		}
	}
}

func (s *CaptureSource) drain(frames int, out []float64) (int, error) {
	nbytes := frames * s.frameSize
	if cap(s.raw) < nbytes {
		s.raw = make([]byte, nbytes)
	}
	raw := s.raw[:nbytes]

	n, err := s.rb.Read(raw)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryBuffer).
			Context("source", s.name).
			Build()
	}

	frames = n / s.frameSize
	offset := s.channel * bytesPerCapturedSample
	for f := range frames {
		sample := int16(binary.LittleEndian.Uint16(raw[f*s.frameSize+offset:]))
		out[f] = float64(sample) / 32768.0
	}
	applyGain(out[:frames], s.gain)
	return frames, nil
}

// Close stops the device and releases the backend context.
func (s *CaptureSource) Close() error {
	s.closeOnce.Do(func() {
		if s.device != nil {
			if err := s.device.Stop(); err != nil {
				s.closeErr = err
			}
			s.device.Uninit()
		}
		freeContext(s.mctx)
		s.onDeviceStop()
		s.log.Debug("capture stopped", logger.Uint64("dropped_frames", s.dropped.Load()))
	})
	return s.closeErr
}
