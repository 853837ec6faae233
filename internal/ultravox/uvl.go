package ultravox

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/elan-lab/ultravox-elan/internal/conf"
	"github.com/elan-lab/ultravox-elan/internal/errors"
	"github.com/elan-lab/ultravox-elan/internal/myaudio"
)

// Defaults applied to unset UVL fields.
const (
	DefaultFFTSize    = 512
	DefaultNoiseFloor = 0.995
	DefaultSampleRate = 250000
	DefaultGain       = 1.0
	DefaultMaxSegment = 1.0
	maxGain           = 16.0
	minFFTSize        = 64
	maxFFTSize        = 65536
)

// Config is a parsed UVL detection file.
type Config struct {
	Experiment ExperimentConfig `yaml:"experiment"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Devices    []DeviceConfig   `yaml:"devices"`
	Calls      []CallConfig     `yaml:"calls"`

	path string
}

// ExperimentConfig holds run-level metadata.
type ExperimentConfig struct {
	Name     string  `yaml:"name"`
	Duration float64 `yaml:"duration"` // seconds per device, 0 runs until stopped or EOF
}

// AnalysisConfig holds spectral analysis parameters.
type AnalysisConfig struct {
	FFTSize    int     `yaml:"fftsize"`
	Hop        int     `yaml:"hop"`
	NoiseFloor float64 `yaml:"noisefloor"` // EMA coefficient of the adaptive noise floor
	MaxSegment float64 `yaml:"maxsegment"` // seconds a segment may stay open when a call has no maxduration
}

// DeviceConfig is one audio input. Exactly one of Source or File is set.
type DeviceConfig struct {
	Name       string  `yaml:"name"`
	Source     string  `yaml:"source"`
	File       string  `yaml:"file"`
	SampleRate int     `yaml:"samplerate"`
	Channels   int     `yaml:"channels"`
	Channel    int     `yaml:"channel"`
	Gain       float64 `yaml:"gain"`
}

// CallConfig defines one call type to detect.
type CallConfig struct {
	Name        string  `yaml:"name"`
	MinFreq     float64 `yaml:"minfreq"`
	MaxFreq     float64 `yaml:"maxfreq"`
	Threshold   float64 `yaml:"threshold"`   // dB above the noise floor
	MinDuration float64 `yaml:"minduration"` // seconds
	MaxDuration float64 `yaml:"maxduration"` // seconds, 0 is unlimited
	MaxGap      float64 `yaml:"maxgap"`      // seconds
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string { return c.path }

// SourceConfig converts the device entry into an audio source description.
func (d *DeviceConfig) SourceConfig() *myaudio.SourceConfig {
	return &myaudio.SourceConfig{
		Name:       d.Name,
		Device:     d.Source,
		File:       d.File,
		SampleRate: d.SampleRate,
		Channels:   d.Channels,
		Channel:    d.Channel,
		Gain:       d.Gain,
	}
}

// LoadConfig reads, defaults and validates a UVL file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("ultravox").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, errors.New(fmt.Errorf("%s: %w", path, err)).
			Component("ultravox").
			Category(errors.CategoryConfiguration).
			Context("path", path).
			Build()
	}

	cfg.path = path
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// ParseConfig decodes UVL content. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty detection config")
		}
		return nil, fmt.Errorf("parse detection config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Analysis.FFTSize == 0 {
		c.Analysis.FFTSize = DefaultFFTSize
	}
	if c.Analysis.Hop == 0 {
		c.Analysis.Hop = c.Analysis.FFTSize / 2
	}
	if c.Analysis.NoiseFloor == 0 {
		c.Analysis.NoiseFloor = DefaultNoiseFloor
	}
	if c.Analysis.MaxSegment == 0 {
		c.Analysis.MaxSegment = DefaultMaxSegment
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Gain == 0 {
			d.Gain = DefaultGain
		}
		if d.Channels == 0 {
			d.Channels = 1
		}
		if d.SampleRate == 0 && d.File == "" {
			d.SampleRate = DefaultSampleRate
		}
	}
}

func (c *Config) resolvePaths(dir string) {
	for i := range c.Devices {
		if f := c.Devices[i].File; f != "" && !filepath.IsAbs(f) {
			c.Devices[i].File = filepath.Join(dir, f)
		}
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	ve := conf.ValidationError{}
	add := func(format string, args ...any) {
		ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
	}

	if c.Experiment.Duration < 0 {
		add("experiment duration must not be negative")
	}

	a := c.Analysis
	if a.FFTSize < minFFTSize || a.FFTSize > maxFFTSize || a.FFTSize&(a.FFTSize-1) != 0 {
		add("analysis fftsize must be a power of two between %d and %d, got %d", minFFTSize, maxFFTSize, a.FFTSize)
	}
	if a.Hop < 1 || a.Hop > a.FFTSize {
		add("analysis hop must be between 1 and fftsize, got %d", a.Hop)
	}
	if a.NoiseFloor <= 0 || a.NoiseFloor >= 1 {
		add("analysis noisefloor must be between 0 and 1 (exclusive), got %g", a.NoiseFloor)
	}
	if a.MaxSegment <= 0 {
		add("analysis maxsegment must be positive, got %g", a.MaxSegment)
	}

	if len(c.Devices) == 0 {
		add("at least one device is required")
	}
	seenDevices := make(map[string]bool)
	for i := range c.Devices {
		d := &c.Devices[i]
		label := fmt.Sprintf("device %d", i+1)
		if strings.TrimSpace(d.Name) == "" {
			add("%s: name is required", label)
		} else {
			label = fmt.Sprintf("device %q", d.Name)
			if seenDevices[d.Name] {
				add("%s: duplicate name", label)
			}
			seenDevices[d.Name] = true
		}
		switch {
		case d.Source == "" && d.File == "":
			add("%s: one of source or file is required", label)
		case d.Source != "" && d.File != "":
			add("%s: source and file are mutually exclusive", label)
		}
		if d.File == "" && d.SampleRate <= 0 {
			add("%s: samplerate must be positive", label)
		}
		if d.File == "" && (d.Channel < 0 || d.Channel >= d.Channels) {
			add("%s: channel %d out of range for %d channels", label, d.Channel, d.Channels)
		}
		if d.File != "" && d.Channel < 0 {
			add("%s: channel must not be negative", label)
		}
		if d.Gain <= 0 || d.Gain > maxGain {
			add("%s: gain must be in (0, %g], got %g", label, maxGain, d.Gain)
		}
	}

	if len(c.Calls) == 0 {
		add("at least one call definition is required")
	}
	seenCalls := make(map[string]bool)
	for i := range c.Calls {
		call := &c.Calls[i]
		label := fmt.Sprintf("call %d", i+1)
		if strings.TrimSpace(call.Name) == "" {
			add("%s: name is required", label)
		} else {
			label = fmt.Sprintf("call %q", call.Name)
			if seenCalls[call.Name] {
				add("%s: duplicate name", label)
			}
			seenCalls[call.Name] = true
		}
		if call.MinFreq < 0 || call.MaxFreq <= call.MinFreq {
			add("%s: need 0 <= minfreq < maxfreq, got %g..%g", label, call.MinFreq, call.MaxFreq)
		}
		if call.Threshold <= 0 {
			add("%s: threshold must be positive", label)
		}
		if call.MinDuration < 0 {
			add("%s: minduration must not be negative", label)
		}
		if call.MaxDuration != 0 && call.MaxDuration < call.MinDuration {
			add("%s: maxduration must be 0 or at least minduration", label)
		}
		if call.MaxGap < 0 {
			add("%s: maxgap must not be negative", label)
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}
