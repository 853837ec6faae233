package conf

import "github.com/elan-lab/ultravox-elan/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched from the global logger on each call so it follows SetGlobal.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
