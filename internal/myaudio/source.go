// Package myaudio provides the audio sources the detector analyses: live
// soundcard capture through malgo and recorded WAV or FLAC files.
//
// Every source delivers a single channel of float64 samples in [-1, 1].
package myaudio

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/elan-lab/ultravox-elan/internal/errors"
	"github.com/elan-lab/ultravox-elan/internal/logger"
)

// Source is a mono stream of normalized samples.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string
	// SampleRate returns the stream's sample rate in Hz.
	SampleRate() int
	// Read fills buf with up to len(buf) samples. It blocks until at least one
	// sample is available, ctx is done, or the stream ends with io.EOF.
	Read(ctx context.Context, buf []float64) (int, error)
	// Close releases the underlying device or file.
	Close() error
}

// Observer receives capture health events.
type Observer interface {
	FramesDropped(source string, frames int)
}

// SourceConfig describes one audio input.
type SourceConfig struct {
	Name       string  // source name used in logs and metrics
	Device     string  // capture device name, decoded id or substring; "default" for the system default
	File       string  // recorded file (.wav or .flac); takes precedence over Device
	SampleRate int     // capture rate in Hz
	Channels   int     // capture channel count
	Channel    int     // channel index to deliver
	Gain       float64 // linear gain applied to every sample, 0 means 1
}

// GetLogger returns the myaudio logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audio")
}

// Open returns the source described by cfg. Live capture is started immediately.
func Open(ctx context.Context, cfg *SourceConfig, opts ...CaptureOption) (Source, error) {
	if cfg.File != "" {
		return OpenFile(cfg.File, cfg.Channel, cfg.Gain)
	}
	return StartCapture(ctx, cfg, opts...)
}

// OpenFile opens a recorded source by file extension.
func OpenFile(path string, channel int, gain float64) (Source, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return NewWAVSource(path, channel, gain)
	case ".flac":
		return NewFLACSource(path, channel, gain)
	default:
		return nil, errors.Newf("unsupported audio file type %q", ext).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
}

// getAudioDivisor returns the full-scale value for the given bit depth
func getAudioDivisor(bitDepth int) (float64, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported audio bit depth: %d", bitDepth)
	}
}

// applyGain scales samples in place and clamps them to [-1, 1].
func applyGain(samples []float64, gain float64) {
	if gain == 0 || gain == 1 {
		return
	}
	for i, s := range samples {
		s *= gain
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		samples[i] = s
	}
}
