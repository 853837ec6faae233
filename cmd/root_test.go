package cmd

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elan-lab/ultravox-elan/internal/analysis"
	"github.com/elan-lab/ultravox-elan/internal/myaudio"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := RootCommand(analysis.WithStderr(io.Discard), analysis.WithStdout(io.Discard))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUsageErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"missing config", nil, "accepts 1 arg(s), received 0"},
		{"extra argument", []string{"a.uvl", "b.uvl"}, "accepts 1 arg(s), received 2"},
		{"unknown flag", []string{"a.uvl", "--verbose"}, "unknown flag: --verbose"},
		{"flag without value", []string{"a.uvl", "--log-target"}, "flag needs an argument"},
		{"log target without colon", []string{"a.uvl", "--log-target", "localhost"}, "--log-target must be <ip:port>"},
		{"log target port not numeric", []string{"a.uvl", "--log-target", "10.0.0.5:abc"}, "invalid port"},
		{"log target port out of range", []string{"a.uvl", "--log-target", "10.0.0.5:70000"}, "out of range"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.Contains(t, out, "Usage:")
		})
	}
}

func TestRuntimeFailureSkipsUsage(t *testing.T) {
	out, err := execute(t, filepath.Join(t.TempDir(), "missing.uvl"))
	require.Error(t, err)
	assert.NotContains(t, out, "Usage:")
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "ultravox-elan version")
}

func TestLoadSettingsPrecedence(t *testing.T) {
	t.Setenv("ULTRAVOX_CSV_DURATION", "true")
	t.Setenv("ULTRAVOX_METRICS_LISTEN", "127.0.0.1:9100")

	cmd := RootCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"--metrics-listen", "127.0.0.1:9200",
		"--log-target", "[::1]:9999",
		"--debug",
	}))

	settings, err := loadSettings(cmd.Flags(), "exp.uvl")
	require.NoError(t, err)

	assert.Equal(t, "exp.uvl", settings.ConfigPath)
	assert.True(t, settings.Debug)
	assert.True(t, settings.CSV.Duration, "environment applies when the flag is unset")
	assert.Equal(t, "127.0.0.1:9200", settings.Metrics.Listen, "flag overrides environment")
	assert.Equal(t, "[::1]:9999", settings.LogTarget)
	assert.Equal(t, "ultravox/{device}/calls", settings.MQTT.Topic)
	assert.False(t, settings.MQTT.Enabled())
}

func TestListDevices(t *testing.T) {
	orig := listDevices
	t.Cleanup(func() { listDevices = orig })
	listDevices = func() ([]myaudio.DeviceInfo, error) {
		return []myaudio.DeviceInfo{
			{Index: 0, Name: "Default Audio Device", ID: "default", IsDefault: true},
			{Index: 2, Name: "UltraMic 250K", ID: ":1,0"},
		}, nil
	}

	out, err := execute(t, "--list-devices")
	require.NoError(t, err)
	assert.Equal(t, "0: Default Audio Device [default] (default)\n2: UltraMic 250K [:1,0]\n", out)

	_, err = execute(t, "--list-devices", "exp.uvl")
	require.Error(t, err, "--list-devices takes no config file")
}
