// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Metric namespace shared by every collector.
const Namespace = "ultravox"

// Label names.
const (
	LabelDevice = "device"
	LabelCall   = "call"
	LabelReason = "reason"
)

// Bucket layouts.
const (
	// durationBucketStart is the smallest call duration bucket in seconds.
	durationBucketStart = 0.001
	// frequencyBucketStart is the lowest peak frequency bucket in Hz.
	frequencyBucketStart = 10000.0
	// frequencyBucketWidth is the width of each linear frequency bucket.
	frequencyBucketWidth = 10000.0

	BucketCount10 = 10
	BucketCount12 = 12
)

// Time and conversion constants.
const (
	// ShutdownTimeout is the timeout for graceful shutdown operations.
	ShutdownTimeout = 5 * time.Second
	// MillisecondsPerSecond is the conversion factor from seconds to milliseconds.
	MillisecondsPerSecond = 1000.0
)
