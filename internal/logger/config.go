package logger

import "io"

// Config represents logging configuration
type Config struct {
	DefaultLevel string            // trace, debug, info, warn, error
	ModuleLevels map[string]string // per-module level overrides, keyed by top-level module name
	Timezone     string            // "Local", "UTC" or an IANA name
	Console      io.Writer         // console stream, defaults to os.Stderr
	Sinks        []io.Writer       // additional text sinks, e.g. a UDPWriter
}

// Default values for logging configuration.
const (
	DefaultLogLevel = "info"
	DefaultTimezone = "Local"
)

// applyConfigDefaults fills unset fields in place.
func applyConfigDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.ModuleLevels == nil {
		cfg.ModuleLevels = make(map[string]string)
	}
}
