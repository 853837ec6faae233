// Package logger provides the module-aware structured logging used by the
// detector and its tools. It is built on log/slog.
//
// Three kinds of output are supported:
//
//   - A human-readable console stream (stderr by default) with one line per record:
//     [2006-01-02 15:04:05.000] [module] [level] message key=value ...
//   - Optional sinks that receive the same text lines, typically a UDPWriter
//     pointed at a remote receiver.
//   - Raw loggers (NewRawLogger) that emit only the message. The detector uses one
//     to write its CSV rows to stdout and the UDP sink.
//
// # Quick Start
//
//	central, err := logger.NewCentralLogger(&logger.Config{
//	    DefaultLevel: "info",
//	    ModuleLevels: map[string]string{"ultravox": "trace"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer central.Close()
//
//	log := central.Module("audio")
//	log.Info("capture started",
//	    logger.String("device", "hw:1,0"),
//	    logger.Int("sample_rate", 250000))
//
// # Log Levels
//
// From most to least verbose: trace, debug, info, warn, error.
//
// # Thread Safety
//
// Loggers and writers in this package are safe for concurrent use.
package logger

import (
	"time"
	"unique"
)

// LogLevel represents log severity levels
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field represents a structured log field.
// Keys are interned with unique.Make so hot-path keys share one allocation.
type Field struct {
	Key   string
	Value any
}

func internKey(key string) string {
	return unique.Make(key).Value()
}

var (
	errorKey = internKey("error")
)

// Logger is the logging interface injected into components
type Logger interface {
	// Module returns a logger scoped to a sub-module
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	With(fields ...Field) Logger

	// Log with explicit level
	Log(level LogLevel, msg string, fields ...Field)

	// Flush ensures all buffered logs are written
	Flush() error
}

// String creates a string field.
//
// Example:
//
//	log.Info("device opened", logger.String("device", "hw:1,0"))
func String(key, value string) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int64 creates a 64-bit integer field.
func Int64(key string, value int64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Uint64 creates an unsigned 64-bit integer field, used for frame and byte counters.
func Uint64(key string, value uint64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Float64 creates a 64-bit float field. Values are rounded to three decimals on output.
func Float64(key string, value float64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: internKey(key), Value: value}
}

// Error creates an error field. The key is always "error".
//
// Example:
//
//	if err := src.Close(); err != nil {
//	    log.Warn("failed to close source", logger.Error(err))
//	}
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

// Duration creates a duration field rendered as a human-readable string.
func Duration(key string, value time.Duration) Field {
	return Field{Key: internKey(key), Value: value}
}
