package myaudio

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/tphakala/flac"

	"github.com/elan-lab/ultravox-elan/internal/errors"
	"github.com/elan-lab/ultravox-elan/internal/logger"
)

// FLACSource reads one channel of a FLAC file frame by frame.
type FLACSource struct {
	name       string
	file       *os.File
	decoder    *flac.Decoder
	sampleRate int
	channels   int
	bitDepth   int
	channel    int
	divisor    float64
	gain       float64

	scratch []float64
	pending []float64
	eof     bool
}

// NewFLACSource opens path and reads the stream header.
func NewFLACSource(path string, channel int, gain float64) (*FLACSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	decoder, err := flac.NewDecoder(file)
	if err != nil {
		_ = file.Close()
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	divisor, err := getAudioDivisor(decoder.BitsPerSample)
	if err != nil {
		_ = file.Close()
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	if channel < 0 || channel >= decoder.NChannels {
		_ = file.Close()
		return nil, errors.Newf("channel %d out of range, file has %d channels", channel, decoder.NChannels).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	GetLogger().Debug("opened FLAC source",
		logger.String("path", path),
		logger.Int("sample_rate", decoder.SampleRate),
		logger.Int("bit_depth", decoder.BitsPerSample),
		logger.Int("channels", decoder.NChannels),
		logger.Int64("total_samples", int64(decoder.TotalSamples)))

	return &FLACSource{
		name:       filepath.Base(path),
		file:       file,
		decoder:    decoder,
		sampleRate: decoder.SampleRate,
		channels:   decoder.NChannels,
		bitDepth:   decoder.BitsPerSample,
		channel:    channel,
		divisor:    divisor,
		gain:       gain,
	}, nil
}

// Name returns the file's base name.
func (s *FLACSource) Name() string { return s.name }

// SampleRate returns the stream's sample rate.
func (s *FLACSource) SampleRate() int { return s.sampleRate }

// Read implements Source.
func (s *FLACSource) Read(ctx context.Context, out []float64) (int, error) {
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

func (s *FLACSource) fill() error {
	frame, err := s.decoder.Next()
	if err == io.EOF {
		s.eof = true
		return nil
	} else if err != nil {
		return errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileParsing).
			Context("source", s.name).
			Build()
	}

	bytesPerSample := s.bitDepth / 8
	stride := bytesPerSample * s.channels
	offset := s.channel * bytesPerSample

	s.scratch = s.scratch[:0]
	for i := offset; i+bytesPerSample <= len(frame); i += stride {
		s.scratch = append(s.scratch, float64(decodeSample(frame[i:], s.bitDepth))/s.divisor)
	}
	applyGain(s.scratch, s.gain)
	s.pending = s.scratch
	return nil
}

// decodeSample decodes one little-endian signed sample.
func decodeSample(b []byte, bitDepth int) int32 {
	switch bitDepth {
	case 16:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		// sign-extend from 24 bits
		return (v << 8) >> 8
	case 32:
		return int32(binary.LittleEndian.Uint32(b))
	default:
		return 0
	}
}

// Close closes the file.
func (s *FLACSource) Close() error {
	return s.file.Close()
}
