package analysis

import "github.com/elan-lab/ultravox-elan/internal/logger"

// GetLogger returns the analysis module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}
