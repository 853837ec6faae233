package conf

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if settings.LogTarget != "" {
		if _, err := ParseLogTarget(settings.LogTarget); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if settings.Log.Timezone != "" && settings.Log.Timezone != "Local" {
		if _, err := time.LoadLocation(settings.Log.Timezone); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("invalid log timezone %q", settings.Log.Timezone))
		}
	}

	if settings.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(settings.Metrics.Listen); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("invalid metrics listen address %q: %v", settings.Metrics.Listen, err))
		}
	}

	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled() {
		return nil
	}

	var errs []string
	if err := validateEnvBrokerURL(settings.Broker); err != nil {
		errs = append(errs, fmt.Sprintf("mqtt broker: %v", err))
	}
	if strings.TrimSpace(settings.Topic) == "" {
		errs = append(errs, "mqtt topic must not be empty")
	}
	if strings.ContainsAny(settings.Topic, "#+") {
		errs = append(errs, "mqtt topic must not contain wildcards")
	}
	if settings.QoS > 2 {
		errs = append(errs, fmt.Sprintf("mqtt qos must be 0, 1 or 2, got %d", settings.QoS))
	}
	if settings.QueueSize <= 0 {
		errs = append(errs, "mqtt queue size must be positive")
	}
	if settings.Timeout <= 0 {
		errs = append(errs, "mqtt timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("MQTT settings errors: %v", errs)
	}
	return nil
}
