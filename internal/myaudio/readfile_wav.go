package myaudio

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/elan-lab/ultravox-elan/internal/errors"
	"github.com/elan-lab/ultravox-elan/internal/logger"
)

// wavReadFrames is the number of frames decoded per PCMBuffer call.
const wavReadFrames = 8192

// WAVSource reads one channel of a PCM WAV file.
type WAVSource struct {
	name       string
	file       *os.File
	decoder    *wav.Decoder
	sampleRate int
	channels   int
	bitDepth   int
	channel    int
	divisor    float64
	gain       float64

	buf     *audio.IntBuffer
	scratch []float64
	pending []float64
	eof     bool
}

// NewWAVSource opens path and validates its format.
func NewWAVSource(path string, channel int, gain float64) (*WAVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		_ = file.Close()
		return nil, errors.Newf("invalid WAV file format: %s", path).
			Component("myaudio").
			Category(errors.CategoryFileParsing).
			Build()
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		_ = file.Close()
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	channels := int(decoder.NumChans)
	if channel < 0 || channel >= channels {
		_ = file.Close()
		return nil, errors.Newf("channel %d out of range, file has %d channels", channel, channels).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	s := &WAVSource{
		name:       filepath.Base(path),
		file:       file,
		decoder:    decoder,
		sampleRate: int(decoder.SampleRate),
		channels:   channels,
		bitDepth:   int(decoder.BitDepth),
		channel:    channel,
		divisor:    divisor,
		gain:       gain,
		buf: &audio.IntBuffer{
			Data:   make([]int, wavReadFrames*channels),
			Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: channels},
		},
		scratch: make([]float64, 0, wavReadFrames),
	}

	GetLogger().Debug("opened WAV source",
		logger.String("path", path),
		logger.Int("sample_rate", s.sampleRate),
		logger.Int("bit_depth", s.bitDepth),
		logger.Int("channels", channels),
		logger.Int("channel", channel))

	return s, nil
}

// Name returns the file's base name.
func (s *WAVSource) Name() string { return s.name }

// SampleRate returns the file's sample rate.
func (s *WAVSource) SampleRate() int { return s.sampleRate }

// Read implements Source.
func (s *WAVSource) Read(ctx context.Context, out []float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for len(s.pending) == 0 {
		if s.eof {
			return 0, io.EOF
		}
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(out, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *WAVSource) fill() error {
	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil {
		return errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileParsing).
			Context("source", s.name).
			Build()
	}
	if n == 0 {
		s.eof = true
		return nil
	}

	frames := n / s.channels
	s.scratch = s.scratch[:0]
	for f := range frames {
		s.scratch = append(s.scratch, float64(s.buf.Data[f*s.channels+s.channel])/s.divisor)
	}
	applyGain(s.scratch, s.gain)
	s.pending = s.scratch
	return nil
}

// Close closes the file.
func (s *WAVSource) Close() error {
	return s.file.Close()
}
