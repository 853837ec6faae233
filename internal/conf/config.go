// Package conf holds the runtime settings of the detector command.
//
// Settings come from, in increasing precedence: built-in defaults, a .env file
// in the working directory, ULTRAVOX_* environment variables and command-line flags.
package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/elan-lab/ultravox-elan/internal/logger"
)

// Settings contains the detector's runtime configuration.
type Settings struct {
	Debug     bool   // audio module at debug, detection module at trace
	LogTarget string // optional <host:port> UDP sink for logs and CSV rows

	// ConfigPath is the UVL file given on the command line. It is not read through viper.
	ConfigPath string `mapstructure:"-"`

	CSV struct {
		Duration bool // emit the "Duration (ms)" column
	}

	Log struct {
		Timezone string // "Local", "UTC" or an IANA name
	}

	Metrics struct {
		Listen string // host:port for the Prometheus endpoint, empty disables it
	}

	MQTT MQTTSettings

	Sentry struct {
		DSN string // empty disables error telemetry
	}
}

// MQTTSettings configures call publishing over MQTT.
type MQTTSettings struct {
	Broker    string        // e.g. tcp://localhost:1883, empty disables MQTT
	Topic     string        // topic pattern, {device} is replaced by the device name
	ClientID  string        // empty generates one
	Username  string
	Password  string
	QoS       byte
	Retain    bool
	QueueSize int           // pending messages before new ones are dropped
	Timeout   time.Duration // connect and publish timeout
}

// Enabled reports whether a broker is configured.
func (m *MQTTSettings) Enabled() bool {
	return m.Broker != ""
}

// LoadDotEnv loads a .env file into the process environment if it exists.
// Variables already set in the environment are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error loading %s: %w", p, err)
		}
		GetLogger().Debug("loaded environment file", logger.String("path", p))
	}
	return nil
}

// NewViper returns a viper instance populated with defaults and environment bindings.
// Callers bind command-line flags to it before calling Load.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	setDefaultConfig(v)
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Load unmarshals and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}
