package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values used by the detector command.
const (
	DefaultMQTTTopic     = "ultravox/{device}/calls"
	DefaultMQTTQueueSize = 256
	DefaultMQTTTimeout   = 5 * time.Second
)

// setDefaultConfig sets default values for every settings key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("logtarget", "")

	v.SetDefault("csv.duration", false)

	v.SetDefault("log.timezone", "Local")

	v.SetDefault("metrics.listen", "")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", DefaultMQTTTopic)
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.queuesize", DefaultMQTTQueueSize)
	v.SetDefault("mqtt.timeout", DefaultMQTTTimeout)

	v.SetDefault("sentry.dsn", "")
}
