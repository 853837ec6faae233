package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogTarget(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "ipv4", input: "192.168.1.10:9999", wantHost: "192.168.1.10", wantPort: 9999},
		{name: "hostname", input: "receiver.local:5000", wantHost: "receiver.local", wantPort: 5000},
		{name: "bracketed ipv6", input: "[::1]:9999", wantHost: "::1", wantPort: 9999},
		{name: "splits on last colon", input: "fe80::1:9999", wantHost: "fe80::1", wantPort: 9999},
		{name: "no colon", input: "localhost", wantErr: true},
		{name: "empty host", input: ":9999", wantErr: true},
		{name: "non-numeric port", input: "localhost:abc", wantErr: true},
		{name: "port zero", input: "localhost:0", wantErr: true},
		{name: "port too large", input: "localhost:65536", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			target, err := ParseLogTarget(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrLogTargetFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantHost, target.Host)
			assert.Equal(t, tc.wantPort, target.Port)
		})
	}
}

func TestLogTargetString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "127.0.0.1:9999", LogTarget{Host: "127.0.0.1", Port: 9999}.String())
	assert.Equal(t, "[::1]:9999", LogTarget{Host: "::1", Port: 9999}.String())
}

func TestValidateSettingsAggregatesErrors(t *testing.T) {
	t.Parallel()

	s := &Settings{LogTarget: "nohost"}
	s.Metrics.Listen = "not-an-address"
	s.MQTT = MQTTSettings{Broker: "http://broker", Topic: "calls/#", QoS: 3}

	err := ValidateSettings(s)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	t.Parallel()

	v, err := NewViper()
	require.NoError(t, err)

	s, err := Load(v)
	require.NoError(t, err)
	assert.False(t, s.Debug)
	assert.Empty(t, s.LogTarget)
	assert.False(t, s.CSV.Duration)
	assert.Equal(t, DefaultMQTTTopic, s.MQTT.Topic)
	assert.Equal(t, DefaultMQTTQueueSize, s.MQTT.QueueSize)
	assert.Equal(t, DefaultMQTTTimeout, s.MQTT.Timeout)
	assert.False(t, s.MQTT.Enabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ULTRAVOX_DEBUG", "true")
	t.Setenv("ULTRAVOX_LOG_TARGET", "10.0.0.2:9999")
	t.Setenv("ULTRAVOX_CSV_DURATION", "1")
	t.Setenv("ULTRAVOX_MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("ULTRAVOX_MQTT_QOS", "1")
	t.Setenv("ULTRAVOX_MQTT_TIMEOUT", "2s")

	v, err := NewViper()
	require.NoError(t, err)

	s, err := Load(v)
	require.NoError(t, err)
	assert.True(t, s.Debug)
	assert.Equal(t, "10.0.0.2:9999", s.LogTarget)
	assert.True(t, s.CSV.Duration)
	assert.True(t, s.MQTT.Enabled())
	assert.Equal(t, byte(1), s.MQTT.QoS)
	assert.Equal(t, 2*time.Second, s.MQTT.Timeout)
}

func TestNewViperRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("ULTRAVOX_LOG_TARGET", "no-port")
	t.Setenv("ULTRAVOX_MQTT_QOS", "7")

	_, err := NewViper()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ULTRAVOX_LOG_TARGET")
	assert.Contains(t, err.Error(), "ULTRAVOX_MQTT_QOS")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ULTRAVOX_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("ULTRAVOX_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from-file", os.Getenv("ULTRAVOX_TEST_DOTENV"))
}
