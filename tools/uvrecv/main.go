// Package main provides uvrecv, a UDP receiver for the detector's
// --log-target stream. It prints every line tagged as CSV or LOG and can
// copy the CSV rows or a per-call summary to files.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/elan-lab/ultravox-elan/internal/buildinfo"
	"github.com/elan-lab/ultravox-elan/internal/receiver"
)

type config struct {
	Port        int
	CSVPath     string
	SummaryPath string
}

var cfg config

var rootCmd = &cobra.Command{
	Use:     "uvrecv",
	Short:   "Receive live call data from ultravox-elan over UDP",
	Version: buildinfo.Current().String(),
	Args:    cobra.NoArgs,
	RunE:    runReceiver,
}

func init() {
	rootCmd.Flags().IntVar(&cfg.Port, "port", receiver.DefaultPort, "UDP port to listen on")
	rootCmd.Flags().StringVar(&cfg.CSVPath, "csv", "", "Write CSV lines (only) to this file")
	rootCmd.Flags().StringVar(&cfg.SummaryPath, "summary", "", "Write Date,Time,Cage,Label,Duration (ms) rows to this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// listen binds the receiver socket. Tests replace it.
var listen = receiver.Listen

func runReceiver(cmd *cobra.Command, _ []string) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("--port must be in 1..65535, got %d", cfg.Port)
	}
	cmd.SilenceUsage = true
	out := cmd.OutOrStdout()

	// Output files are opened first so a bad path never leaves a bound socket behind.
	var csvFile io.Writer
	if cfg.CSVPath != "" {
		f, err := os.Create(cfg.CSVPath)
		if err != nil {
			return err
		}
		defer f.Close()
		csvFile = f
	}

	var summary *receiver.Summary
	if cfg.SummaryPath != "" {
		f, err := os.Create(cfg.SummaryPath)
		if err != nil {
			return err
		}
		defer f.Close()
		summary = receiver.NewSummary(f)
		if err := summary.WriteHeader(); err != nil {
			return err
		}
	}

	r, err := listen("0.0.0.0:" + strconv.Itoa(cfg.Port))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Listening on UDP port %d ...\n", cfg.Port)
	if csvFile != nil {
		fmt.Fprintf(out, "Writing CSV data to %s\n", cfg.CSVPath)
	}
	if summary != nil {
		r.On(receiver.CallPattern, summary.Handle)
		fmt.Fprintf(out, "Writing call summary to %s\n", cfg.SummaryPath)
	}

	r.On(receiver.AnyLine, receiver.NewConsole(out, csvFile).Handle)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = r.Run(ctx)
	fmt.Fprintln(out, "\nShutdown.")
	return err
}
