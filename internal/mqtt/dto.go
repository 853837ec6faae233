package mqtt

import (
	"time"

	"github.com/elan-lab/ultravox-elan/internal/ultravox"
)

// CallMessage is the JSON payload published for every detected call.
//
// Field names are part of the MQTT contract consumed by downstream tooling.
type CallMessage struct {
	Session     string    `json:"session"`     // one UUID per detector run
	Call        int       `json:"call"`        // same number as the CSV "Call" column
	Device      string    `json:"device"`
	Name        string    `json:"name"`
	Start       float64   `json:"start"`       // seconds
	End         float64   `json:"end"`         // seconds
	DurationMS  float64   `json:"duration_ms"`
	FrequencyHz float64   `json:"frequency_hz"`
	Amplitude   float64   `json:"amplitude"`   // dB above the noise floor
	DetectedAt  time.Time `json:"detected_at"` // wall clock when the call was emitted
}

// NewCallMessage builds the payload for call number n.
func NewCallMessage(session string, n int, c ultravox.Call, detectedAt time.Time) CallMessage {
	return CallMessage{
		Session:     session,
		Call:        n,
		Device:      c.Device,
		Name:        c.Name,
		Start:       c.Start,
		End:         c.End,
		DurationMS:  c.Duration() * 1000,
		FrequencyHz: c.Frequency,
		Amplitude:   c.Amplitude,
		DetectedAt:  detectedAt.UTC(),
	}
}
