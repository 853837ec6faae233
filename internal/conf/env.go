package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "ULTRAVOX_DEBUG", validateEnvBool},
		{"logtarget", "ULTRAVOX_LOG_TARGET", validateEnvLogTarget},
		{"csv.duration", "ULTRAVOX_CSV_DURATION", validateEnvBool},
		{"log.timezone", "ULTRAVOX_LOG_TIMEZONE", nil},

		{"metrics.listen", "ULTRAVOX_METRICS_LISTEN", nil},

		{"mqtt.broker", "ULTRAVOX_MQTT_BROKER", validateEnvBrokerURL},
		{"mqtt.topic", "ULTRAVOX_MQTT_TOPIC", nil},
		{"mqtt.clientid", "ULTRAVOX_MQTT_CLIENT_ID", nil},
		{"mqtt.username", "ULTRAVOX_MQTT_USERNAME", nil},
		{"mqtt.password", "ULTRAVOX_MQTT_PASSWORD", nil},
		{"mqtt.qos", "ULTRAVOX_MQTT_QOS", validateEnvQoS},
		{"mqtt.retain", "ULTRAVOX_MQTT_RETAIN", validateEnvBool},
		{"mqtt.queuesize", "ULTRAVOX_MQTT_QUEUE_SIZE", validateEnvPositiveInt},
		{"mqtt.timeout", "ULTRAVOX_MQTT_TIMEOUT", validateEnvDuration},

		{"sentry.dsn", "ULTRAVOX_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every environment variable and validates values that are set.
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvLogTarget(value string) error {
	_, err := ParseLogTarget(value)
	return err
}

func validateEnvBrokerURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("broker URL has no host")
	}
	return nil
}

func validateEnvQoS(value string) error {
	qos, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid QoS: %w", err)
	}
	if qos < 0 || qos > 2 {
		return fmt.Errorf("QoS must be 0, 1 or 2, got %d", qos)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", d)
	}
	return nil
}
