package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/elan-lab/ultravox-elan/internal/analysis"
	"github.com/elan-lab/ultravox-elan/internal/buildinfo"
	"github.com/elan-lab/ultravox-elan/internal/conf"
	"github.com/elan-lab/ultravox-elan/internal/myaudio"
)

// listDevices enumerates capture devices for --list-devices.
var listDevices = myaudio.ListDevices

// flagKeys maps command-line flags to their viper settings keys.
var flagKeys = map[string]string{
	"debug":          "debug",
	"log-target":     "logtarget",
	"csv-duration":   "csv.duration",
	"metrics-listen": "metrics.listen",
	"mqtt-broker":    "mqtt.broker",
	"mqtt-topic":     "mqtt.topic",
}

// RootCommand creates the detector command. Extra options are passed to the
// analysis session.
func RootCommand(opts ...analysis.Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ultravox-elan <config-file>",
		Short:   "Ultrasonic vocalization detector",
		Long:    "Detect ultrasonic calls on live or recorded audio as described by a UVL file and stream them as CSV.",
		Version: buildinfo.Current().String(),
		Args: func(cmd *cobra.Command, args []string) error {
			if list, _ := cmd.Flags().GetBool("list-devices"); list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if list, _ := cmd.Flags().GetBool("list-devices"); list {
				cmd.SilenceUsage = true
				return printDevices(cmd.OutOrStdout())
			}

			settings, err := loadSettings(cmd.Flags(), args[0])
			if err != nil {
				return err
			}

			// Everything past flag handling is a runtime failure, not a usage error.
			cmd.SilenceUsage = true

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return analysis.Run(ctx, settings, opts...)
		},
	}

	setupFlags(cmd)
	return cmd
}

func setupFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-target", "", "Forward logs and CSV rows to <ip:port> over UDP")
	cmd.Flags().Bool("debug", false, "Log audio at debug and detection at trace level")
	cmd.Flags().Bool("csv-duration", false, "Add the \"Duration (ms)\" column to the CSV output")
	cmd.Flags().String("metrics-listen", "", "Serve Prometheus metrics on host:port")
	cmd.Flags().String("mqtt-broker", "", "Publish calls to this MQTT broker, e.g. tcp://localhost:1883")
	cmd.Flags().String("mqtt-topic", conf.DefaultMQTTTopic, "MQTT topic pattern, {device} is replaced by the device name")
	cmd.Flags().Bool("list-devices", false, "Print the capture devices usable as a UVL device source and exit")
}

func printDevices(w io.Writer) error {
	devices, err := listDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "No capture devices found")
		return nil
	}
	for _, d := range devices {
		marker := ""
		if d.IsDefault {
			marker = " (default)"
		}
		fmt.Fprintf(w, "%d: %s [%s]%s\n", d.Index, d.Name, d.ID, marker)
	}
	return nil
}

// loadSettings merges defaults, .env, environment variables and flags.
func loadSettings(flags *pflag.FlagSet, configPath string) (*conf.Settings, error) {
	if target, _ := flags.GetString("log-target"); target != "" {
		if _, err := conf.ParseLogTarget(target); err != nil {
			return nil, err
		}
	}

	if err := conf.LoadDotEnv(); err != nil {
		return nil, err
	}
	v, err := conf.NewViper()
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	settings, err := conf.Load(v)
	if err != nil {
		return nil, err
	}
	settings.ConfigPath = configPath
	return settings, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Execute runs the detector command with ctx.
func Execute(ctx context.Context) error {
	return RootCommand().ExecuteContext(ctx)
}
